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

// Package drift implements the Drift Monitor: distribution comparisons
// against a declared baseline, regression scoring, and alerting.
package drift

import (
	"math"
	"time"

	"axonflow/controlplane/internal/domain"
)

// Thresholds holds the warn/critical pairs from spec §4.6 defaults.
type Thresholds struct {
	DataDriftWarn, DataDriftCrit             float64
	PromptDriftWarn, PromptDriftCrit         float64
	LatencyRegressionWarn, LatencyRegressionCrit float64
	AccuracyRegressionWarn, AccuracyRegressionCrit float64
	ErrorRateRegressionWarn, ErrorRateRegressionCrit float64
	QualityWarn, QualityCrit                 float64
	ToxicityWarn, ToxicityCrit               float64
}

// DefaultThresholds returns the spec §4.6 default threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DataDriftWarn: 0.3, DataDriftCrit: 0.5,
		PromptDriftWarn: 0.2, PromptDriftCrit: 0.4,
		LatencyRegressionWarn: 0.20, LatencyRegressionCrit: 0.50,
		AccuracyRegressionWarn: 0.10, AccuracyRegressionCrit: 0.20,
		ErrorRateRegressionWarn: 0.10, ErrorRateRegressionCrit: 0.20,
		QualityWarn: 0.8, QualityCrit: 0.7,
		ToxicityWarn: 0.10, ToxicityCrit: 0.20,
	}
}

// Monitor compares a current distribution against a declared baseline.
type Monitor struct {
	thresholds Thresholds
}

// New builds a Drift Monitor with the given thresholds.
func New(thresholds Thresholds) *Monitor {
	return &Monitor{thresholds: thresholds}
}

func safeRatio(numerator, base float64) float64 {
	if base == 0 {
		return 0
	}
	return numerator / base
}

// PromptDriftScore computes 0.4*|mean-base|/base + 0.3*|std-base|/base +
// 0.3*|p95-base|/base.
func PromptDriftScore(current, baseline domain.DistributionStats) float64 {
	return 0.4*math.Abs(safeRatio(current.Mean-baseline.Mean, baseline.Mean)) +
		0.3*math.Abs(safeRatio(current.Std-baseline.Std, baseline.Std)) +
		0.3*math.Abs(safeRatio(current.P95-baseline.P95, baseline.P95))
}

// RegressionScore computes max(0, -(current-baseline)/baseline) when
// higherIsBetter, else max(0, (current-baseline)/baseline).
func RegressionScore(current, baseline float64, higherIsBetter bool) float64 {
	delta := safeRatio(current-baseline, baseline)
	if higherIsBetter {
		return math.Max(0, -delta)
	}
	return math.Max(0, delta)
}

// Evaluate computes all drift/regression scores for metrics and returns
// any alerts raised against the configured thresholds, with category-
// tailored recommendations.
func (m *Monitor) Evaluate(metrics domain.DriftMetrics) (domain.DriftMetrics, []domain.Alert) {
	metrics.PromptDriftScore = PromptDriftScore(metrics.Current, metrics.Baseline)
	now := time.Now()
	var alerts []domain.Alert

	if sev, breached := m.severity(metrics.DataDriftScore, m.thresholds.DataDriftWarn, m.thresholds.DataDriftCrit); breached {
		alerts = append(alerts, m.alert(domain.AlertDataDrift, sev, metrics.ModelOrProvider, metrics.DataDriftScore, m.thresholds.DataDriftWarn, now,
			[]string{"retrain on recent data", "review feature pipeline for schema drift"}))
	}
	if sev, breached := m.severity(metrics.PromptDriftScore, m.thresholds.PromptDriftWarn, m.thresholds.PromptDriftCrit); breached {
		alerts = append(alerts, m.alert(domain.AlertPromptDrift, sev, metrics.ModelOrProvider, metrics.PromptDriftScore, m.thresholds.PromptDriftWarn, now,
			[]string{"adjust prompt templates", "review recent prompt corpus"}))
	}
	if sev, breached := m.severity(metrics.LatencyRegression, m.thresholds.LatencyRegressionWarn, m.thresholds.LatencyRegressionCrit); breached {
		alerts = append(alerts, m.alert(domain.AlertRegression, sev, metrics.ModelOrProvider, metrics.LatencyRegression, m.thresholds.LatencyRegressionWarn, now,
			[]string{"roll back to last known-good model version"}))
	}
	if sev, breached := m.severity(metrics.AccuracyRegression, m.thresholds.AccuracyRegressionWarn, m.thresholds.AccuracyRegressionCrit); breached {
		alerts = append(alerts, m.alert(domain.AlertRegression, sev, metrics.ModelOrProvider, metrics.AccuracyRegression, m.thresholds.AccuracyRegressionWarn, now,
			[]string{"retrain", "roll back to last known-good model version"}))
	}
	if sev, breached := m.severity(metrics.ErrorRateRegression, m.thresholds.ErrorRateRegressionWarn, m.thresholds.ErrorRateRegressionCrit); breached {
		alerts = append(alerts, m.alert(domain.AlertRegression, sev, metrics.ModelOrProvider, metrics.ErrorRateRegression, m.thresholds.ErrorRateRegressionWarn, now,
			[]string{"investigate recent deploy", "consider circuit-breaker tightening"}))
	}
	if metrics.QualityScore > 0 && metrics.QualityScore < m.thresholds.QualityWarn {
		sev := domain.AlertWarning
		if metrics.QualityScore < m.thresholds.QualityCrit {
			sev = domain.AlertCritical
		}
		alerts = append(alerts, m.alert(domain.AlertQualityDrop, sev, metrics.ModelOrProvider, metrics.QualityScore, m.thresholds.QualityWarn, now,
			[]string{"review recent quality samples", "retrain"}))
	}
	if metrics.ToxicityScore > m.thresholds.ToxicityWarn {
		sev := domain.AlertWarning
		if metrics.ToxicityScore > m.thresholds.ToxicityCrit {
			sev = domain.AlertCritical
		}
		alerts = append(alerts, m.alert(domain.AlertToxicityDrift, sev, metrics.ModelOrProvider, metrics.ToxicityScore, m.thresholds.ToxicityWarn, now,
			[]string{"tighten safety detector thresholds", "review recent flagged outputs"}))
	}

	return metrics, alerts
}

func (m *Monitor) severity(value, warn, crit float64) (domain.AlertSeverity, bool) {
	if value >= crit {
		return domain.AlertCritical, true
	}
	if value >= warn {
		return domain.AlertWarning, true
	}
	return "", false
}

func (m *Monitor) alert(t domain.AlertType, sev domain.AlertSeverity, scope string, value, threshold float64, at time.Time, recs []string) domain.Alert {
	return domain.Alert{Type: t, Severity: sev, Scope: scope, CurrentValue: value, Threshold: threshold, Timestamp: at, Recommendations: recs}
}
