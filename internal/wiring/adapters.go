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

package wiring

import (
	"context"
	"sync"
	"time"

	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/flags"
	"axonflow/controlplane/internal/routing"
	"axonflow/controlplane/internal/shutdown"
	"axonflow/controlplane/internal/telemetry/pathmetrics"
)

// perfAdapter satisfies internal/health.PerformanceSource over the Routing
// Performance Monitor: response time is the request-weighted average
// across tracked paths, throughput is the request-count delta since the
// previous call divided by elapsed wall time.
type perfAdapter struct {
	perf *pathmetrics.Monitor

	mu         sync.Mutex
	lastSample time.Time
	lastCount  int64
}

func newPerfAdapter(perf *pathmetrics.Monitor) *perfAdapter {
	return &perfAdapter{perf: perf}
}

func (p *perfAdapter) ResponseTimeMs() float64 {
	all := p.perf.GetAllPathMetrics()
	var sum, weight float64
	for _, pm := range all {
		sum += pm.AverageLatencyMs * float64(pm.RequestCount)
		weight += float64(pm.RequestCount)
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func (p *perfAdapter) Throughput() float64 {
	var total int64
	for _, pm := range p.perf.GetAllPathMetrics() {
		total += pm.RequestCount
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if p.lastSample.IsZero() {
		p.lastSample, p.lastCount = now, total
		return 0
	}
	elapsed := now.Sub(p.lastSample).Seconds()
	delta := total - p.lastCount
	p.lastSample, p.lastCount = now, total
	if elapsed <= 0 || delta <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}

// autoResolutionAdapter satisfies internal/health.AutoResolutionReporter
// over the Activation Monitor's trailing-hour success rate.
type autoResolutionAdapter struct {
	activation *flags.ActivationMonitor
}

func newAutoResolutionAdapter(activation *flags.ActivationMonitor) *autoResolutionAdapter {
	return &autoResolutionAdapter{activation: activation}
}

func (a *autoResolutionAdapter) SuccessRate() float64 {
	stats := a.activation.Stats(time.Hour)
	if stats.Count == 0 {
		return 1.0
	}
	return stats.SuccessRate / 100
}

// recoveryProbeAdapter satisfies internal/shutdown.RecoveryProbe over the
// Routing Performance Monitor and Circuit Breaker: error rate and latency
// come from the worst-observed tracked path, consecutive failures from the
// most-tripped breaker among the two RouteTypes.
type recoveryProbeAdapter struct {
	perf            *pathmetrics.Monitor
	breaker         *routing.CircuitBreaker
	costPerRequest  float64
}

func newRecoveryProbeAdapter(perf *pathmetrics.Monitor, breaker *routing.CircuitBreaker, costPerRequest float64) *recoveryProbeAdapter {
	return &recoveryProbeAdapter{perf: perf, breaker: breaker, costPerRequest: costPerRequest}
}

func (r *recoveryProbeAdapter) Sample(ctx context.Context) (shutdown.RecoveryMetrics, error) {
	all := r.perf.GetAllPathMetrics()
	var totalReq, totalFail int64
	var worstP95 int64
	for _, pm := range all {
		totalReq += pm.RequestCount
		totalFail += pm.FailureCount
		if pm.P95 > worstP95 {
			worstP95 = pm.P95
		}
	}
	errorRate := 0.0
	if totalReq > 0 {
		errorRate = float64(totalFail) / float64(totalReq)
	}

	maxConsecutive := 0
	for _, route := range []domain.RouteType{domain.RouteDirect, domain.RouteMediated} {
		state := r.breaker.Snapshot(string(route))
		if state.ConsecutiveFailures > maxConsecutive {
			maxConsecutive = state.ConsecutiveFailures
		}
	}

	return shutdown.RecoveryMetrics{
		ErrorRate:           errorRate,
		LatencyMs:           worstP95,
		CostEuroPerHour:     r.costPerRequest * float64(totalReq),
		ConsecutiveFailures: maxConsecutive,
	}, nil
}
