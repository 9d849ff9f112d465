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

package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/controlplane/internal/domain"
)

func TestPromptDriftScore_Formula(t *testing.T) {
	baseline := domain.DistributionStats{Mean: 100, Std: 10, P95: 200}
	current := domain.DistributionStats{Mean: 120, Std: 12, P95: 220}
	got := PromptDriftScore(current, baseline)
	want := 0.4*0.2 + 0.3*0.2 + 0.3*0.1
	assert.InDelta(t, want, got, 1e-9)
}

func TestRegressionScore_HigherIsBetter(t *testing.T) {
	// success rate dropped from 0.98 to 0.90 -> regression positive
	got := RegressionScore(0.90, 0.98, true)
	assert.Greater(t, got, 0.0)
	// improved metric -> clamped to 0
	got2 := RegressionScore(0.99, 0.98, true)
	assert.Equal(t, 0.0, got2)
}

func TestRegressionScore_LowerIsBetter(t *testing.T) {
	// latency increased from 1000 to 1500 -> regression positive
	got := RegressionScore(1500, 1000, false)
	assert.InDelta(t, 0.5, got, 1e-9)
	// latency improved -> clamped to 0
	got2 := RegressionScore(800, 1000, false)
	assert.Equal(t, 0.0, got2)
}

func TestEvaluate_ThresholdSeverities(t *testing.T) {
	m := New(DefaultThresholds())
	metrics := domain.DriftMetrics{
		ModelOrProvider:     "primary",
		Baseline:            domain.DistributionStats{Mean: 100, Std: 10, P95: 200},
		Current:             domain.DistributionStats{Mean: 100, Std: 10, P95: 200},
		DataDriftScore:      0.6, // >= crit 0.5
		LatencyRegression:   0.25,
		AccuracyRegression:  0.05,
		ErrorRateRegression: 0.0,
		QualityScore:        0.65, // < crit 0.7
		ToxicityScore:       0.25, // > crit 0.2
	}
	_, alerts := m.Evaluate(metrics)

	var byType = map[domain.AlertType][]domain.Alert{}
	for _, a := range alerts {
		byType[a.Type] = append(byType[a.Type], a)
	}
	require.NotEmpty(t, byType[domain.AlertDataDrift])
	assert.Equal(t, domain.AlertCritical, byType[domain.AlertDataDrift][0].Severity)

	require.NotEmpty(t, byType[domain.AlertQualityDrop])
	assert.Equal(t, domain.AlertCritical, byType[domain.AlertQualityDrop][0].Severity)

	require.NotEmpty(t, byType[domain.AlertToxicityDrift])
	assert.Equal(t, domain.AlertCritical, byType[domain.AlertToxicityDrift][0].Severity)
}
