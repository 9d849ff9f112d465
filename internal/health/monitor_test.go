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

package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/ports"
)

type fakeProbe struct {
	sample ports.ResourceSample
	err    error
}

func (f fakeProbe) Sample(ctx context.Context) (ports.ResourceSample, error) {
	return f.sample, f.err
}

type fakeResolver struct{ rate float64 }

func (f fakeResolver) SuccessRate() float64 { return f.rate }

type fakePerf struct{ respMs, throughput float64 }

func (f fakePerf) ResponseTimeMs() float64 { return f.respMs }
func (f fakePerf) Throughput() float64     { return f.throughput }

func healthyConfig() config.HealthConfig {
	return config.HealthConfig{
		CheckIntervalMs: 30000, History: 1000,
		AnomalyThresholds: config.HealthAnomalyThresholds{CPU: 85, Mem: 90, ErrorRate: 0.05, ResponseTime: 2000, Throughput: 100},
	}
}

func TestSample_OverallBoundedZeroToOne(t *testing.T) {
	m := New(healthyConfig(), fakeProbe{sample: ports.ResourceSample{CPUPct: 20, MemPct: 30, DiskPct: 10}}, fakeResolver{rate: 1.0}, fakePerf{respMs: 100, throughput: 600})
	metrics, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, metrics.Overall, 0.0)
	assert.LessOrEqual(t, metrics.Overall, 1.0)
}

func TestSample_AllHealthyMeetsHighBar(t *testing.T) {
	// all component scores 1.0, zero anomalies -> spec §8 property 6:
	// overallHealth >= 0.95.
	m := New(healthyConfig(), fakeProbe{sample: ports.ResourceSample{CPUPct: 0, MemPct: 0, DiskPct: 0}}, fakeResolver{rate: 1.0}, fakePerf{respMs: 50, throughput: 1000})
	metrics, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.Empty(t, metrics.Anomalies)
	assert.GreaterOrEqual(t, metrics.Overall, 0.95)
}

func TestSample_HighCPUProducesAnomaly(t *testing.T) {
	m := New(healthyConfig(), fakeProbe{sample: ports.ResourceSample{CPUPct: 97, MemPct: 10, DiskPct: 10}}, fakeResolver{rate: 1.0}, fakePerf{respMs: 100, throughput: 500})
	metrics, err := m.Sample(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, metrics.Anomalies)
	var found bool
	for _, a := range metrics.Anomalies {
		if a.Category == "cpu" {
			found = true
			assert.Equal(t, "CRITICAL", string(a.Severity))
		}
	}
	assert.True(t, found)
}

func TestSample_CriticalAnomalyYieldsPriority10Recommendation(t *testing.T) {
	m := New(healthyConfig(), fakeProbe{sample: ports.ResourceSample{CPUPct: 97, MemPct: 10, DiskPct: 10}}, fakeResolver{rate: 1.0}, fakePerf{respMs: 100, throughput: 500})
	metrics, err := m.Sample(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, metrics.Recommendations)
	assert.Equal(t, 10, metrics.Recommendations[0].Priority)
	for i := 1; i < len(metrics.Recommendations); i++ {
		assert.LessOrEqual(t, metrics.Recommendations[i].Priority, metrics.Recommendations[i-1].Priority)
	}
}

func TestAnalyzeTrend_DegradingResponseTimeInvertedToDegrading(t *testing.T) {
	m := New(healthyConfig(), fakeProbe{}, fakeResolver{rate: 1.0}, fakePerf{})
	respTimes := []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}
	for _, rt := range respTimes {
		m.Sample(context.Background()) // placeholder sample to build history length
		m.mu.Lock()
		m.history[len(m.history)-1].Performance.ResponseTimeMs = rt
		m.mu.Unlock()
	}
	trend, ok := m.AnalyzeTrend("responseTime", 10)
	require.True(t, ok)
	assert.Equal(t, TrendDegrading, trend.Direction, "rising response time must surface as degrading")
}

func TestAnalyzeTrend_InsufficientHistory(t *testing.T) {
	m := New(healthyConfig(), fakeProbe{}, fakeResolver{rate: 1.0}, fakePerf{})
	_, ok := m.AnalyzeTrend("overall", 10)
	assert.False(t, ok)
}

func TestHistory_BoundedByConfig(t *testing.T) {
	cfg := healthyConfig()
	cfg.History = 3
	m := New(cfg, fakeProbe{sample: ports.ResourceSample{CPUPct: 10, MemPct: 10, DiskPct: 10}}, fakeResolver{rate: 1.0}, fakePerf{respMs: 10, throughput: 500})
	for i := 0; i < 10; i++ {
		_, err := m.Sample(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, m.History(), 3)
}
