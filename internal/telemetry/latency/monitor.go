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

// Package latency implements the Latency Monitor: a bounded, time-decayed
// rolling window per Operation, percentile computation, and P95/cache-hit
// alerting. Grounded on the teacher's metrics_collector.go
// (RequestTypeMetrics's bounded responseTimes buffer and periodic ticker),
// with correct sort-then-index percentile math (sort.Float64s plus a
// ceil(n*p/100)-1 index) instead of the teacher's own unsorted index
// approach.
package latency

import (
	"math"
	"sort"
	"sync"
	"time"

	"axonflow/controlplane/internal/domain"
)

// Targets holds the P95 target per Operation plus the cache-hit-rate
// target, in milliseconds / percent.
type Targets struct {
	Generation        int64
	RAG               int64
	Cached            int64
	CacheHitTargetPct float64
}

func (t Targets) forOp(op domain.Operation) int64 {
	switch op {
	case domain.OperationRAG:
		return t.RAG
	case domain.OperationCached:
		return t.Cached
	default:
		return t.Generation
	}
}

type sample struct {
	latencyMs int64
	cacheHit  bool
	hasCache  bool
	at        time.Time
}

type window struct {
	samples []sample
}

// Monitor tracks per-operation latency samples and raises alerts.
type Monitor struct {
	mu          sync.RWMutex
	windows     map[domain.Operation]*window
	starts      map[string]startRecord
	startsMu    sync.Mutex
	maxMetrics  int
	timeWindow  time.Duration
	targets     Targets
	alerts      []domain.Alert
}

type startRecord struct {
	op   domain.Operation
	t    time.Time
}

// New builds a Latency Monitor. maxMetrics bounds the retained sample
// count per operation; timeWindow bounds it by age.
func New(maxMetrics int, timeWindow time.Duration, targets Targets) *Monitor {
	return &Monitor{
		windows:    make(map[domain.Operation]*window),
		starts:     make(map[string]startRecord),
		maxMetrics: maxMetrics,
		timeWindow: timeWindow,
		targets:    targets,
	}
}

// RecordRequestStart stores a start timestamp for requestID.
func (m *Monitor) RecordRequestStart(requestID string, op domain.Operation) {
	m.startsMu.Lock()
	m.starts[requestID] = startRecord{op: op, t: time.Now()}
	m.startsMu.Unlock()
}

// RecordRequestComplete computes latency from the matching start and
// appends a LatencyMetric, pruning samples beyond maxMetrics or
// timeWindow. It also synchronously emits a LATENCY_SPIKE alert if this
// sample exceeds 2x the operation's target.
func (m *Monitor) RecordRequestComplete(requestID string, cacheHit, hasCache bool) (domain.LatencyMetric, bool) {
	m.startsMu.Lock()
	rec, ok := m.starts[requestID]
	if ok {
		delete(m.starts, requestID)
	}
	m.startsMu.Unlock()
	if !ok {
		return domain.LatencyMetric{}, false
	}

	now := time.Now()
	latencyMs := now.Sub(rec.t).Milliseconds()
	metric := domain.LatencyMetric{RequestID: requestID, Operation: rec.op, LatencyMs: latencyMs, Timestamp: now, CacheHit: cacheHit, HasCache: hasCache}

	m.mu.Lock()
	w, ok := m.windows[rec.op]
	if !ok {
		w = &window{}
		m.windows[rec.op] = w
	}
	w.samples = append(w.samples, sample{latencyMs: latencyMs, cacheHit: cacheHit, hasCache: hasCache, at: now})
	m.pruneLocked(w, now)
	m.mu.Unlock()

	target := m.targets.forOp(rec.op)
	if target > 0 && latencyMs > target*2 {
		m.mu.Lock()
		m.alerts = append(m.alerts, domain.Alert{
			Type: domain.AlertLatencySpike, Severity: domain.AlertCritical,
			Scope: string(rec.op), CurrentValue: float64(latencyMs), Threshold: float64(target) * 2, Timestamp: now,
		})
		m.mu.Unlock()
	}

	return metric, true
}

// pruneLocked must be called with m.mu held for write.
func (m *Monitor) pruneLocked(w *window, now time.Time) {
	cutoff := now.Add(-m.timeWindow)
	i := 0
	for ; i < len(w.samples); i++ {
		if w.samples[i].at.After(cutoff) {
			break
		}
	}
	w.samples = w.samples[i:]
	if m.maxMetrics > 0 && len(w.samples) > m.maxMetrics {
		w.samples = w.samples[len(w.samples)-m.maxMetrics:]
	}
}

// P95 gives routing.PathLatencyReader-shaped access keyed by operation
// name. The default wiring hands the Router the Routing Performance
// Monitor, not this one, so the Router does not call this method there.
func (m *Monitor) P95(opName string) (int64, bool) {
	return m.Percentile(domain.Operation(opName), 95)
}

// Percentile returns the requested percentile latency over the retained
// window for op, computed as sort(L)[ceil(|L|xp/100)-1], matching spec §8
// property 3 exactly.
func (m *Monitor) Percentile(op domain.Operation, p float64) (int64, bool) {
	m.mu.RLock()
	w, ok := m.windows[op]
	var latencies []float64
	if ok {
		latencies = make([]float64, len(w.samples))
		for i, s := range w.samples {
			latencies[i] = float64(s.latencyMs)
		}
	}
	m.mu.RUnlock()
	if !ok || len(latencies) == 0 {
		return 0, false
	}
	sort.Float64s(latencies)
	n := len(latencies)
	idx := int(math.Ceil(float64(n)*p/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return int64(latencies[idx]), true
}

// CacheHitRate returns the fraction of samples with CacheHit=true over the
// retained window for op.
func (m *Monitor) CacheHitRate(op domain.Operation) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[op]
	if !ok || len(w.samples) == 0 {
		return 0, false
	}
	hits := 0
	counted := 0
	for _, s := range w.samples {
		if s.hasCache {
			counted++
			if s.cacheHit {
				hits++
			}
		}
	}
	if counted == 0 {
		return 0, false
	}
	return float64(hits) / float64(counted), true
}

// CheckTargets runs the periodic target check (default every 60s): emits a
// P95_BREACH alert per breaching operation and a CACHE_MISS_RATE alert
// when the hit rate drops below target.
func (m *Monitor) CheckTargets() []domain.Alert {
	now := time.Now()
	var out []domain.Alert
	for _, op := range []domain.Operation{domain.OperationGeneration, domain.OperationRAG, domain.OperationCached} {
		target := m.targets.forOp(op)
		p95, ok := m.Percentile(op, 95)
		if ok && target > 0 && p95 > target {
			severity := domain.AlertWarning
			if float64(p95) > float64(target)*1.5 {
				severity = domain.AlertCritical
			}
			out = append(out, domain.Alert{Type: domain.AlertP95Breach, Severity: severity, Scope: string(op), CurrentValue: float64(p95), Threshold: float64(target), Timestamp: now})
		}
		if rate, ok := m.CacheHitRate(op); ok && rate*100 < m.targets.CacheHitTargetPct {
			severity := domain.AlertWarning
			if rate*100 < 60 {
				severity = domain.AlertCritical
			}
			out = append(out, domain.Alert{Type: domain.AlertCacheMissRate, Severity: severity, Scope: string(op), CurrentValue: rate * 100, Threshold: m.targets.CacheHitTargetPct, Timestamp: now})
		}
	}
	m.mu.Lock()
	m.alerts = append(m.alerts, out...)
	m.mu.Unlock()
	return out
}

// Grade computes the A-F performance grade from 0.7*targetScore +
// 0.3*cacheScore.
func (m *Monitor) Grade() string {
	targetsMet := 0
	for _, op := range []domain.Operation{domain.OperationGeneration, domain.OperationRAG, domain.OperationCached} {
		target := m.targets.forOp(op)
		if p95, ok := m.Percentile(op, 95); ok && p95 <= target {
			targetsMet++
		} else if !ok {
			targetsMet++
		}
	}
	targetScore := float64(targetsMet) / 3 * 100

	var cacheScore float64
	var rates []float64
	for _, op := range []domain.Operation{domain.OperationGeneration, domain.OperationRAG, domain.OperationCached} {
		if rate, ok := m.CacheHitRate(op); ok {
			rates = append(rates, rate*100)
		}
	}
	if len(rates) > 0 {
		var sum float64
		for _, r := range rates {
			sum += r
		}
		cacheScore = sum / float64(len(rates))
	} else {
		cacheScore = 100
	}

	overall := 0.7*targetScore + 0.3*cacheScore
	switch {
	case overall >= 90:
		return "A"
	case overall >= 80:
		return "B"
	case overall >= 70:
		return "C"
	case overall >= 60:
		return "D"
	default:
		return "F"
	}
}

// Alerts returns a snapshot of alerts raised so far.
func (m *Monitor) Alerts() []domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
