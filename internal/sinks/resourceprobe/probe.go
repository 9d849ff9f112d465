// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resourceprobe implements the default ports.ResourceProbe binding
// consumed by the Health Monitor. No example repo in the retrieval pack
// vendors gopsutil or an equivalent cross-platform resource-sampling
// library; the closest
// grounding is a reference repo's procfs-delta CPUCollector
// (internal/collector/cpu.go), which reads /proc/stat directly rather than
// pulling in a dependency for it. This probe follows the same /proc-delta
// idiom for CPU and adds runtime.MemStats for process memory, keeping the
// binding dependency-free like the reference.
package resourceprobe

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"axonflow/controlplane/internal/ports"
)

type cpuTimes struct {
	user, nice, system, idle, iowait, irq, softirq, steal uint64
}

func (t cpuTimes) total() uint64 {
	return t.user + t.nice + t.system + t.idle + t.iowait + t.irq + t.softirq + t.steal
}

func (t cpuTimes) busy() uint64 {
	return t.total() - t.idle - t.iowait
}

func readProcStat(procRoot string) (cpuTimes, error) {
	f, err := os.Open(procRoot + "/stat")
	if err != nil {
		return cpuTimes{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 9 || fields[0] != "cpu" {
			continue
		}
		var t cpuTimes
		vals := make([]uint64, 0, 8)
		for _, s := range fields[1:9] {
			n, _ := strconv.ParseUint(s, 10, 64)
			vals = append(vals, n)
		}
		t.user, t.nice, t.system, t.idle, t.iowait, t.irq, t.softirq, t.steal = vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], vals[6], vals[7]
		return t, nil
	}
	return cpuTimes{}, err
}

func readMemInfo(procRoot string) (totalKB, availKB uint64) {
	f, err := os.Open(procRoot + "/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		n, _ := strconv.ParseUint(fields[1], 10, 64)
		switch fields[0] {
		case "MemTotal:":
			totalKB = n
		case "MemAvailable:":
			availKB = n
		}
	}
	return totalKB, availKB
}

// Probe is the default ports.ResourceProbe: two-point /proc/stat delta
// sampling for CPU, /proc/meminfo for system memory, runtime.MemStats as a
// process-local fallback when procfs is unavailable (e.g. non-Linux).
type Probe struct {
	procRoot string
	interval time.Duration

	mu   sync.Mutex
	last cpuTimes
}

// New builds a Probe reading from procRoot (normally "/proc") and sampling
// CPU over a two-point window of interval.
func New(procRoot string, interval time.Duration) *Probe {
	if procRoot == "" {
		procRoot = "/proc"
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Probe{procRoot: procRoot, interval: interval}
}

// Sample reports CPU/memory utilization as a ports.ResourceSample. On a
// platform with no /proc/stat (non-Linux), CPUPct falls back to 0 and only
// process-local memory via runtime.MemStats is reported.
func (p *Probe) Sample(ctx context.Context) (ports.ResourceSample, error) {
	cpuPct := p.sampleCPU(ctx)

	memPct := 0.0
	totalKB, availKB := readMemInfo(p.procRoot)
	if totalKB > 0 {
		memPct = (1 - float64(availKB)/float64(totalKB)) * 100
	} else {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		memPct = float64(ms.Sys) / float64(1<<30) * 100 // rough process-local proxy, capped below
		if memPct > 100 {
			memPct = 100
		}
	}

	return ports.ResourceSample{CPUPct: cpuPct, MemPct: memPct, DiskPct: 0}, nil
}

func (p *Probe) sampleCPU(ctx context.Context) float64 {
	first, err := readProcStat(p.procRoot)
	if err != nil {
		return 0
	}

	select {
	case <-ctx.Done():
		return 0
	case <-time.After(p.interval):
	}

	second, err := readProcStat(p.procRoot)
	if err != nil {
		return 0
	}

	totalDelta := second.total() - first.total()
	if totalDelta == 0 {
		return 0
	}
	busyDelta := second.busy() - first.busy()

	p.mu.Lock()
	p.last = second
	p.mu.Unlock()

	return float64(busyDelta) / float64(totalDelta) * 100
}
