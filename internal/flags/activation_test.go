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

package flags

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/controlplane/internal/domain"
)

func TestParseWindow_AcceptsHDM(t *testing.T) {
	cases := map[string]time.Duration{
		"1h":   time.Hour,
		"30m":  30 * time.Minute,
		"7d":   7 * 24 * time.Hour,
		"0.5h": 30 * time.Minute,
	}
	for in, want := range cases {
		got, err := ParseWindow(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseWindow_RejectsOtherUnits(t *testing.T) {
	for _, in := range []string{"1s", "1w", "1y", "x", ""} {
		_, err := ParseWindow(in)
		assert.Error(t, err, in)
	}
}

func TestActivationMonitor_StatsOverWindow(t *testing.T) {
	a := NewActivationMonitor(30, 99, 95)
	now := time.Now()
	for i := 0; i < 8; i++ {
		a.Record(domain.ActivationOperation{
			FlagName: "f1", Operation: "set", Timestamp: now, Success: i < 6, DurationMs: int64(10 * (i + 1)),
		})
	}
	stats := a.Stats(time.Hour)
	assert.Equal(t, 8, stats.Count)
	assert.InDelta(t, 75.0, stats.SuccessRate, 0.01)
	assert.Contains(t, stats.AffectedFlags, "f1")
}

func TestActivationMonitor_CheckLastHour_RequiresMinimumOps(t *testing.T) {
	a := NewActivationMonitor(30, 99, 95)
	now := time.Now()
	for i := 0; i < 3; i++ {
		a.Record(domain.ActivationOperation{FlagName: "f", Timestamp: now, Success: false})
	}
	_, ok := a.CheckLastHour()
	assert.False(t, ok, "fewer than 5 ops in the last hour must not alert")
}

func TestActivationMonitor_CheckLastHour_CriticalBelowWarningThreshold(t *testing.T) {
	a := NewActivationMonitor(30, 99, 95)
	now := time.Now()
	for i := 0; i < 10; i++ {
		a.Record(domain.ActivationOperation{FlagName: "f", Timestamp: now, Success: i < 8}) // 80% success
	}
	alert, ok := a.CheckLastHour()
	require.True(t, ok)
	assert.Equal(t, domain.AlertCritical, alert.Severity)
}

func TestActivationMonitor_CheckLastHour_WarningBand(t *testing.T) {
	a := NewActivationMonitor(30, 99, 95)
	now := time.Now()
	for i := 0; i < 20; i++ {
		a.Record(domain.ActivationOperation{FlagName: "f", Timestamp: now, Success: i < 19}) // 95% success
	}
	alert, ok := a.CheckLastHour()
	require.True(t, ok)
	assert.Equal(t, domain.AlertWarning, alert.Severity)
}

func TestActivationMonitor_Prunes_BeyondRetention(t *testing.T) {
	a := NewActivationMonitor(0, 99, 95) // retention window of 0 prunes immediately
	a.Record(domain.ActivationOperation{FlagName: "f", Timestamp: time.Now().Add(-time.Hour), Success: true})
	a.Record(domain.ActivationOperation{FlagName: "f", Timestamp: time.Now(), Success: true})
	a.mu.RLock()
	n := len(a.ops)
	a.mu.RUnlock()
	assert.LessOrEqual(t, n, 1)
}
