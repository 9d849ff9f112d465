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

package domain

import "time"

// ActivationOperation records one feature-flag or routing-rule mutation.
type ActivationOperation struct {
	FlagName    string
	Operation   string
	Timestamp   time.Time
	Success     bool
	DurationMs  int64
	Error       string
	Environment string
}

// DistributionStats describes a sampled distribution for drift comparison.
type DistributionStats struct {
	Mean float64
	Std  float64
	P50  float64
	P95  float64
	P99  float64
}

// DriftMetrics compares a current distribution against a declared baseline
// for one model/provider pair.
type DriftMetrics struct {
	ModelOrProvider    string
	Baseline           DistributionStats
	Current            DistributionStats
	DataDriftScore     float64
	PromptDriftScore   float64
	LatencyRegression  float64
	AccuracyRegression float64
	ErrorRateRegression float64
	QualityScore       float64
	ToxicityScore      float64
}

// ShutdownScope names the set of components an emergency shutdown affects.
type ShutdownScope string

const (
	ShutdownAll              ShutdownScope = "ALL"
	ShutdownDirect           ShutdownScope = "DIRECT"
	ShutdownMediated         ShutdownScope = "MEDIATED"
	ShutdownIntelligentRouter ShutdownScope = "INTELLIGENT_ROUTER"
	ShutdownSupportMode      ShutdownScope = "SUPPORT_MODE"
)

// ShutdownReason names why an emergency shutdown was triggered.
type ShutdownReason string

const (
	ReasonSecurityIncident      ShutdownReason = "security_incident"
	ReasonComplianceViolation   ShutdownReason = "compliance_violation"
	ReasonSystemFailure         ShutdownReason = "system_failure"
	ReasonPerformanceDegradation ShutdownReason = "performance_degradation"
	ReasonCostOverrun           ShutdownReason = "cost_overrun"
	ReasonManualIntervention    ShutdownReason = "manual_intervention"
	ReasonCircuitBreakerTriggered ShutdownReason = "circuit_breaker_triggered"
	ReasonHealthCheckFailure    ShutdownReason = "health_check_failure"
)

// ShutdownEvent is one entry in the Emergency Shutdown Manager's bounded
// history.
type ShutdownEvent struct {
	ID                 string
	Scope              ShutdownScope
	Reason             ShutdownReason
	TriggeredBy        string
	Timestamp          time.Time
	AffectedComponents []string
	Metadata           map[string]any
}
