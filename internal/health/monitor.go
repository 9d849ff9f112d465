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

// Package health implements the Intelligent Health Monitor: periodic
// aggregation of component health and performance into a scalar health
// score, anomaly detection, least-squares trend analysis, and rule-based
// recommendations.
package health

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/ports"
)

// AutoResolutionReporter is the collaborator that reports the resolver's
// recent success rate, used for componentHealth.autoResolution.
type AutoResolutionReporter interface {
	SuccessRate() float64
}

// PerformanceSource supplies the response-time and throughput inputs the
// Health Monitor folds into HealthMetrics.Performance.
type PerformanceSource interface {
	ResponseTimeMs() float64
	Throughput() float64
}

// Monitor produces HealthMetrics on a fixed cadence.
type Monitor struct {
	cfg       config.HealthConfig
	probe     ports.ResourceProbe
	resolver  AutoResolutionReporter
	perf      PerformanceSource

	mu      sync.RWMutex
	history []domain.HealthMetrics
}

// New builds an Intelligent Health Monitor.
func New(cfg config.HealthConfig, probe ports.ResourceProbe, resolver AutoResolutionReporter, perf PerformanceSource) *Monitor {
	return &Monitor{cfg: cfg, probe: probe, resolver: resolver, perf: perf}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Sample produces one HealthMetrics reading. The resource probe, the
// auto-resolution reporter, and the performance source are independent
// collaborators -- none reads the others' output -- so they are sampled
// concurrently via errgroup rather than as three sequential blocking calls;
// the probe in particular is the one genuinely I/O-bound call on this path
// (ports.ResourceProbe, spec §6: "returns {cpuPct, memPct, diskPct,...} on
// request").
func (m *Monitor) Sample(ctx context.Context) (domain.HealthMetrics, error) {
	var res ports.ResourceSample
	autoResolutionRate := 1.0
	var responseTime, throughput float64

	g, gctx := errgroup.WithContext(ctx)
	if m.probe != nil {
		g.Go(func() error {
			sample, err := m.probe.Sample(gctx)
			if err != nil {
				return fmt.Errorf("resource probe: %w", err)
			}
			res = sample
			return nil
		})
	}
	if m.resolver != nil {
		g.Go(func() error {
			autoResolutionRate = m.resolver.SuccessRate()
			return nil
		})
	}
	if m.perf != nil {
		g.Go(func() error {
			responseTime = m.perf.ResponseTimeMs()
			throughput = m.perf.Throughput()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.HealthMetrics{}, err
	}

	componentHealth := map[string]float64{
		"resourceMonitor": clamp01(((1 - res.CPUPct/100) + (1 - res.MemPct/100) + (1 - res.DiskPct/100)) / 3),
		"autoResolution":  clamp01(autoResolutionRate),
	}
	for _, name := range []string{"safetyPipeline", "router", "telemetry"} {
		if _, ok := componentHealth[name]; !ok {
			componentHealth[name] = 1.0
		}
	}

	errorRate := 1 - componentHealth["autoResolution"]
	resourceUtilization := clamp01((res.CPUPct + res.MemPct) / 200)

	var avgComponent float64
	for _, v := range componentHealth {
		avgComponent += v
	}
	avgComponent /= float64(len(componentHealth))

	perfScore := (1 - errorRate) * (1 - math.Min(1, resourceUtilization)) * math.Min(1, throughput/500)
	overall := clamp01(0.6*avgComponent + 0.4*perfScore)

	metrics := domain.HealthMetrics{
		Timestamp:       time.Now(),
		Overall:         overall,
		ComponentHealth: componentHealth,
		Performance: domain.PerformanceSnapshot{
			ResponseTimeMs: responseTime, Throughput: throughput, ErrorRate: errorRate, ResourceUtilization: resourceUtilization,
		},
	}
	metrics.Anomalies = m.detectAnomalies(res, metrics.Performance)
	metrics.Recommendations = m.recommend(metrics)

	m.mu.Lock()
	m.history = append(m.history, metrics)
	if m.cfg.History > 0 && len(m.history) > m.cfg.History {
		m.history = m.history[len(m.history)-m.cfg.History:]
	}
	m.mu.Unlock()

	return metrics, nil
}

func (m *Monitor) detectAnomalies(res ports.ResourceSample, perf domain.PerformanceSnapshot) []domain.Anomaly {
	t := m.cfg.AnomalyThresholds
	now := time.Now()
	var out []domain.Anomaly
	add := func(cat domain.AnomalyCategory, value, warnThreshold, critThreshold float64, higherIsWorse bool) {
		breach := value > warnThreshold
		if !higherIsWorse {
			breach = value < warnThreshold
		}
		if !breach {
			return
		}
		sev := domain.SeverityHigh
		critBreach := value > critThreshold
		if !higherIsWorse {
			critBreach = value < critThreshold
		}
		if critBreach {
			sev = domain.SeverityCritical
		}
		out = append(out, domain.Anomaly{ID: uuid.NewString(), Category: cat, Severity: sev, Value: value, Threshold: warnThreshold, DetectedAt: now})
	}

	add(domain.AnomalyCPU, res.CPUPct, t.CPU, 95, true)
	add(domain.AnomalyMemory, res.MemPct, t.Mem, 95, true)
	add(domain.AnomalyErrorRate, perf.ErrorRate*100, t.ErrorRate*100, 10, true)
	if perf.ResponseTimeMs > 2000 {
		sev := domain.SeverityMedium
		if perf.ResponseTimeMs > 5000 {
			sev = domain.SeverityCritical
		}
		out = append(out, domain.Anomaly{ID: uuid.NewString(), Category: domain.AnomalyResponseTime, Severity: sev, Value: perf.ResponseTimeMs, Threshold: 2000, DetectedAt: now})
	}
	if perf.Throughput < t.Throughput {
		out = append(out, domain.Anomaly{ID: uuid.NewString(), Category: domain.AnomalyThroughput, Severity: domain.SeverityLow, Value: perf.Throughput, Threshold: t.Throughput, DetectedAt: now})
	}
	return out
}

// TrendDirection classifies a metric's recent movement.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDegrading TrendDirection = "degrading"
)

// Trend is the outcome of least-squares analysis over recent samples.
type Trend struct {
	Direction  TrendDirection
	Slope      float64
	Confidence float64 // R^2
}

// metricInverted reports whether higher values of metricName mean "worse",
// so response-time and error-rate trends must have their semantic
// direction flipped before surfacing (spec §4.8).
func metricInverted(metricName string) bool {
	return metricName == "responseTime" || metricName == "errorRate"
}

// AnalyzeTrend runs least-squares regression over the trailing n samples
// (default 10) of metricName, using montanaflynn/stats.LinearRegression.
func (m *Monitor) AnalyzeTrend(metricName string, n int) (Trend, bool) {
	m.mu.RLock()
	hist := m.history
	m.mu.RUnlock()
	if len(hist) < 2 {
		return Trend{}, false
	}
	if n <= 0 {
		n = 10
	}
	if n > len(hist) {
		n = len(hist)
	}
	recent := hist[len(hist)-n:]

	series := make(stats.Series, 0, len(recent))
	for i, h := range recent {
		var v float64
		switch metricName {
		case "responseTime":
			v = h.Performance.ResponseTimeMs
		case "errorRate":
			v = h.Performance.ErrorRate
		case "throughput":
			v = h.Performance.Throughput
		default:
			v = h.Overall
		}
		series = append(series, stats.Coordinate{X: float64(i), Y: v})
	}

	coords, err := stats.LinearRegression(series)
	if err != nil || len(coords) < 2 {
		return Trend{}, false
	}
	slope := coords[len(coords)-1].Y - coords[0].Y
	if len(coords) > 1 {
		slope = (coords[len(coords)-1].Y - coords[0].Y) / float64(len(coords)-1)
	}

	r2, err := stats.R2ForPolynomialRegression(series)
	if err != nil {
		r2 = 0
	}

	direction := TrendStable
	if math.Abs(slope) >= 0.01 {
		if slope > 0 {
			direction = TrendImproving
		} else {
			direction = TrendDegrading
		}
	}
	if metricInverted(metricName) && direction != TrendStable {
		if direction == TrendImproving {
			direction = TrendDegrading
		} else {
			direction = TrendImproving
		}
	}

	return Trend{Direction: direction, Slope: slope, Confidence: r2}, true
}

// recommend generates fixed rule-based recommendations keyed on anomalies
// and component scores, sorted by descending priority. Priority 10 is
// reserved for critical-issue resolution.
func (m *Monitor) recommend(metrics domain.HealthMetrics) []domain.Recommendation {
	var out []domain.Recommendation
	for _, a := range metrics.Anomalies {
		if a.Severity == domain.SeverityCritical {
			out = append(out, domain.Recommendation{
				ID: uuid.NewString(), Category: domain.RecommendationMaintenance, Priority: 10,
				Description: "critical issue resolution: " + string(a.Category), ImplementationEffort: "immediate", ExpectedImprovementPct: 0,
			})
		}
	}
	if metrics.ComponentHealth["resourceMonitor"] < 0.5 {
		out = append(out, domain.Recommendation{
			ID: uuid.NewString(), Category: domain.RecommendationScaling, Priority: 8,
			Description: "scale out to relieve resource pressure", ImplementationEffort: "moderate", ExpectedImprovementPct: 20,
		})
	}
	if metrics.Performance.ErrorRate > 0.05 {
		out = append(out, domain.Recommendation{
			ID: uuid.NewString(), Category: domain.RecommendationOptimization, Priority: 7,
			Description: "tighten circuit-breaker thresholds to shed failing calls sooner", ImplementationEffort: "low", ExpectedImprovementPct: 15,
		})
	}
	if metrics.Overall < 0.8 {
		out = append(out, domain.Recommendation{
			ID: uuid.NewString(), Category: domain.RecommendationOptimization, Priority: 6,
			Description: "run a routing efficiency optimization cycle", ImplementationEffort: "low", ExpectedImprovementPct: 10,
		})
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Priority > out[i].Priority {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// History returns a copy of the retained HealthMetrics history.
func (m *Monitor) History() []domain.HealthMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.HealthMetrics, len(m.history))
	copy(out, m.history)
	return out
}

// Latest returns the most recent HealthMetrics sample, if any.
func (m *Monitor) Latest() (domain.HealthMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return domain.HealthMetrics{}, false
	}
	return m.history[len(m.history)-1], true
}
