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

// Package pathmetrics implements the Routing Performance Monitor:
// per-path aggregate metrics, bounded latency deques, and routing
// efficiency scoring. Grounded on the teacher's metrics_collector.go
// ProviderMetrics/RequestTypeMetrics shape.
package pathmetrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"axonflow/controlplane/internal/domain"
)

type pathState struct {
	requestCount int64
	successCount int64
	failureCount int64
	latencies    []int64 // bounded deque, oldest first
	lastUpdated  time.Time
}

// Monitor tracks per-path aggregate metrics.
type Monitor struct {
	mu    sync.RWMutex
	paths map[string]*pathState
	cap   int
}

// New builds a Routing Performance Monitor with the given per-path
// latency-deque capacity (default 10000).
func New(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Monitor{paths: make(map[string]*pathState), cap: capacity}
}

// RecordOutcome appends one completed call's outcome for path.
func (m *Monitor) RecordOutcome(path string, success bool, latencyMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.paths[path]
	if !ok {
		p = &pathState{}
		m.paths[path] = p
	}
	p.requestCount++
	if success {
		p.successCount++
	} else {
		p.failureCount++
	}
	p.latencies = append(p.latencies, latencyMs)
	if m.cap > 0 && len(p.latencies) > m.cap {
		p.latencies = p.latencies[len(p.latencies)-m.cap:]
	}
	p.lastUpdated = time.Now()
}

// P95 implements routing.PathLatencyReader.
func (m *Monitor) P95(path string) (int64, bool) {
	snap, ok := m.snapshotOne(path)
	if !ok {
		return 0, false
	}
	return snap.P95, true
}

func percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func (m *Monitor) snapshotOne(path string) (domain.PathMetrics, bool) {
	m.mu.RLock()
	p, ok := m.paths[path]
	var latencies []int64
	var requestCount, successCount, failureCount int64
	var lastUpdated time.Time
	if ok {
		latencies = append([]int64{}, p.latencies...)
		requestCount, successCount, failureCount, lastUpdated = p.requestCount, p.successCount, p.failureCount, p.lastUpdated
	}
	m.mu.RUnlock()
	if !ok {
		return domain.PathMetrics{}, false
	}

	sorted := append([]int64{}, latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var avg float64
	if len(sorted) > 0 {
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		avg = float64(sum) / float64(len(sorted))
	}

	successRate := 0.0
	if requestCount > 0 {
		successRate = float64(successCount) / float64(requestCount) * 100
	}

	return domain.PathMetrics{
		Path: path, RequestCount: requestCount, SuccessCount: successCount, FailureCount: failureCount,
		Latencies: latencies, P50: percentile(sorted, 50), P95: percentile(sorted, 95), P99: percentile(sorted, 99),
		AverageLatencyMs: avg, SuccessRate: successRate, LastUpdated: lastUpdated,
	}, true
}

// GetAllPathMetrics returns a read-only snapshot per path.
func (m *Monitor) GetAllPathMetrics() map[string]domain.PathMetrics {
	m.mu.RLock()
	names := make([]string, 0, len(m.paths))
	for name := range m.paths {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make(map[string]domain.PathMetrics, len(names))
	for _, name := range names {
		if snap, ok := m.snapshotOne(name); ok {
			out[name] = snap
		}
	}
	return out
}

// RoutingEfficiency summarizes overall and per-path efficiency.
type RoutingEfficiency struct {
	OverallEfficiency  float64
	PerPathEfficiency  map[string]float64
	FallbackRate       float64
	OptimalRoutingRate float64
}

// CalculateRoutingEfficiency weights success rate and inverse-latency
// (normalized to latencyCeilingMs) per path by request count.
func (m *Monitor) CalculateRoutingEfficiency(latencyCeilingMs float64) RoutingEfficiency {
	all := m.GetAllPathMetrics()
	perPath := make(map[string]float64, len(all))
	var totalRequests, weightedSum float64
	for path, pm := range all {
		latencyScore := 1.0
		if latencyCeilingMs > 0 {
			latencyScore = math.Max(0, 1-float64(pm.P95)/latencyCeilingMs)
		}
		efficiency := 0.5*(pm.SuccessRate/100) + 0.5*latencyScore
		perPath[path] = efficiency * 100
		weight := float64(pm.RequestCount)
		totalRequests += weight
		weightedSum += efficiency * 100 * weight
	}
	overall := 0.0
	if totalRequests > 0 {
		overall = weightedSum / totalRequests
	}
	return RoutingEfficiency{OverallEfficiency: overall, PerPathEfficiency: perPath}
}
