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

// Package config loads the control plane's recognized configuration
// options (spec §6) from YAML with environment-variable overrides, the
// way the teacher's orchestrator loads its own policy defaults plus
// os.Getenv overrides in dynamic_policy_engine.go and llm_router.go.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"axonflow/controlplane/internal/cperr"
	"axonflow/controlplane/internal/domain"
)

// SafetyConfig configures the Safety Detectors and Guardrails Service.
type SafetyConfig struct {
	EnablePII              bool    `yaml:"enablePII"`
	EnableToxicity         bool    `yaml:"enableToxicity"`
	EnablePromptInjection  bool    `yaml:"enablePromptInjection"`
	EnableBedrockGuardrails bool   `yaml:"enableBedrockGuardrails"`
	StrictMode             bool    `yaml:"strictMode"`
	BlockOnViolation       bool    `yaml:"blockOnViolation"`
	LogViolations          bool    `yaml:"logViolations"`
	RedactionMode          string  `yaml:"redactionMode"`
	ConfidenceThreshold    float64 `yaml:"confidenceThreshold"`
}

// LatencyTargets maps each Operation to its P95 target in milliseconds.
type LatencyTargets struct {
	Generation int64 `yaml:"GENERATION"`
	RAG        int64 `yaml:"RAG"`
	Cached     int64 `yaml:"CACHED"`
}

// LatencyConfig configures the Latency Monitor.
type LatencyConfig struct {
	MaxMetrics        int            `yaml:"maxMetrics"`
	TimeWindowMs       int64         `yaml:"timeWindowMs"`
	Targets            LatencyTargets `yaml:"targets"`
	CacheHitTargetPct  float64        `yaml:"cacheHitTargetPct"`
}

// CircuitBreakerConfig configures every per-path Circuit Breaker.
type CircuitBreakerConfig struct {
	FailureThreshold  int   `yaml:"failureThreshold"`
	RecoveryTimeoutMs int64 `yaml:"recoveryTimeoutMs"`
	HalfOpenMaxCalls  int   `yaml:"halfOpenMaxCalls"`
}

// OptimizerConfig configures the Routing Efficiency Optimizer.
type OptimizerConfig struct {
	TargetPerformanceImprovement float64 `yaml:"targetPerformanceImprovement"`
	IntervalMs                   int64   `yaml:"intervalMs"`
	EvaluationWindowMs           int64   `yaml:"evaluationWindowMs"`
	MaxChanges                   int     `yaml:"maxChanges"`
	MinDataPoints                int     `yaml:"minDataPoints"`
	RollbackThreshold            float64 `yaml:"rollbackThreshold"`
	DefaultStrategy               string  `yaml:"defaultStrategy"`
	Adaptive                      bool    `yaml:"adaptive"`
	AutoRollback                  bool    `yaml:"autoRollback"`
}

// HealthAnomalyThresholds configures the Health Monitor's anomaly triggers.
type HealthAnomalyThresholds struct {
	CPU          float64 `yaml:"cpu"`
	Mem          float64 `yaml:"mem"`
	ErrorRate    float64 `yaml:"errorRate"`
	ResponseTime float64 `yaml:"responseTime"`
	Throughput   float64 `yaml:"throughput"`
}

// HealthConfig configures the Intelligent Health Monitor.
type HealthConfig struct {
	CheckIntervalMs   int64                   `yaml:"checkIntervalMs"`
	History           int                     `yaml:"history"`
	AnomalyThresholds HealthAnomalyThresholds `yaml:"anomalyThresholds"`
}

// AutoExecuteConfig gates which recommendations the Orchestrator may apply
// without human approval.
type AutoExecuteConfig struct {
	Enabled           bool     `yaml:"enabled"`
	MaxPriority       int      `yaml:"maxPriority"`
	RequiresApproval  []string `yaml:"requiresApproval"`
}

// OrchestratorConfig configures the System Optimization Orchestrator.
type OrchestratorConfig struct {
	HealthScoreThreshold            float64           `yaml:"healthScoreThreshold"`
	CriticalAnomalyThreshold        int               `yaml:"criticalAnomalyThreshold"`
	HighPriorityRecThreshold        int               `yaml:"highPriorityRecThreshold"`
	AutoExecute                     AutoExecuteConfig `yaml:"autoExecute"`
}

// ShutdownThresholds are the automatic-trigger thresholds for the Emergency
// Shutdown Manager.
type ShutdownThresholds struct {
	ErrorRate           float64 `yaml:"errorRate"`
	LatencyMs           int64   `yaml:"latencyMs"`
	CostEuroPerHour     float64 `yaml:"costEuroPerHour"`
	ConsecutiveFailures int     `yaml:"consecutiveFailures"`
}

// RecoveryConfig configures automatic recovery after an emergency shutdown.
type RecoveryConfig struct {
	Enabled         bool  `yaml:"enabled"`
	DelayMs         int64 `yaml:"delayMs"`
	ProbeIntervalMs int64 `yaml:"probeIntervalMs"`
	MaxAttempts     int   `yaml:"maxAttempts"`
}

// ShutdownConfig configures the Emergency Shutdown Manager.
type ShutdownConfig struct {
	AutoShutdown bool               `yaml:"autoShutdown"`
	Thresholds   ShutdownThresholds `yaml:"thresholds"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
}

// DirectConfig configures the DIRECT-path `net/http` provider client,
// mirroring the teacher's `NewAnthropicProvider(apiKey)` constructor
// argument shape in llm_router.go.
type DirectConfig struct {
	BaseURL   string `yaml:"baseURL"`
	APIKeyEnv string `yaml:"apiKeyEnv"`
	Model     string `yaml:"model"`
	TimeoutMs int64  `yaml:"timeoutMs"`
}

// MediatedConfig configures the MEDIATED-path Bedrock provider client,
// mirroring the teacher's `NewBedrockProvider(region, model)`.
type MediatedConfig struct {
	Region    string `yaml:"region"`
	Model     string `yaml:"model"`
	TimeoutMs int64  `yaml:"timeoutMs"`
}

// ProvidersConfig configures the concrete ProviderClient adapters.
type ProvidersConfig struct {
	Direct   DirectConfig   `yaml:"direct"`
	Mediated MediatedConfig `yaml:"mediated"`
}

// ActivationConfig configures the Activation Monitor.
type ActivationConfig struct {
	SuccessRateThreshold float64 `yaml:"successRateThreshold"`
	WarningThreshold     float64 `yaml:"warningThreshold"`
	MaxOperationDuration int64   `yaml:"maxOperationDuration"`
	RetentionDays        int     `yaml:"retentionDays"`
	BatchSize            int     `yaml:"batchSize"`
}

// Config is the fully-resolved control-plane configuration.
type Config struct {
	Safety       SafetyConfig         `yaml:"safety"`
	Latency      LatencyConfig        `yaml:"latency"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Optimizer    OptimizerConfig      `yaml:"optimizer"`
	Health       HealthConfig         `yaml:"health"`
	Orchestrator OrchestratorConfig   `yaml:"orchestrator"`
	Shutdown     ShutdownConfig       `yaml:"shutdown"`
	Activation   ActivationConfig     `yaml:"activation"`
	Providers    ProvidersConfig      `yaml:"providers"`
}

// Default returns the spec §6 default configuration.
func Default() Config {
	return Config{
		Safety: SafetyConfig{
			EnablePII: true, EnableToxicity: true, EnablePromptInjection: true,
			StrictMode: false, BlockOnViolation: true, LogViolations: true,
			RedactionMode: "MASK", ConfidenceThreshold: 0.7,
		},
		Latency: LatencyConfig{
			MaxMetrics: 10000, TimeWindowMs: 300000,
			Targets: LatencyTargets{Generation: 1500, RAG: 300, Cached: 300},
			CacheHitTargetPct: 80,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5, RecoveryTimeoutMs: 60000, HalfOpenMaxCalls: 2,
		},
		Optimizer: OptimizerConfig{
			TargetPerformanceImprovement: 15, IntervalMs: 300000, EvaluationWindowMs: 900000,
			MaxChanges: 3, MinDataPoints: 100, RollbackThreshold: -5,
			DefaultStrategy: string(domain.StrategyBalanced), Adaptive: true, AutoRollback: true,
		},
		Health: HealthConfig{
			CheckIntervalMs: 30000, History: 1000,
			AnomalyThresholds: HealthAnomalyThresholds{CPU: 85, Mem: 90, ErrorRate: 0.05, ResponseTime: 2000, Throughput: 100},
		},
		Orchestrator: OrchestratorConfig{
			HealthScoreThreshold: 0.8, CriticalAnomalyThreshold: 1, HighPriorityRecThreshold: 2,
			AutoExecute: AutoExecuteConfig{Enabled: true, MaxPriority: 7, RequiresApproval: []string{"scaling", "maintenance"}},
		},
		Shutdown: ShutdownConfig{
			AutoShutdown: true,
			Thresholds:   ShutdownThresholds{ErrorRate: 0.1, LatencyMs: 5000, CostEuroPerHour: 100, ConsecutiveFailures: 5},
			Recovery:     RecoveryConfig{Enabled: true, DelayMs: 300000, ProbeIntervalMs: 30000, MaxAttempts: 3},
		},
		Activation: ActivationConfig{
			SuccessRateThreshold: 99.0, WarningThreshold: 95.0, MaxOperationDuration: 5000,
			RetentionDays: 30, BatchSize: 100,
		},
		Providers: ProvidersConfig{
			Direct:   DirectConfig{BaseURL: "https://api.anthropic.com/v1/messages", APIKeyEnv: "ANTHROPIC_API_KEY", Model: "claude-3-5-sonnet-20240620", TimeoutMs: 30000},
			Mediated: MediatedConfig{Region: "us-east-1", Model: "anthropic.claude-3-5-sonnet-20240620-v1:0", TimeoutMs: 30000},
		},
	}
}

// Load reads a YAML file at path, merging it over Default, and applies
// AXONFLOW_-prefixed environment overrides for a small set of operational
// knobs (mirrors the teacher's os.Getenv overlay in llm_router.go).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, cperr.Config(fmt.Sprintf("reading config %s: %v", path, err))
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, cperr.Config(fmt.Sprintf("parsing config %s: %v", path, err))
		}
	}
	if v := os.Getenv("AXONFLOW_STRICT_MODE"); v == "true" {
		cfg.Safety.StrictMode = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate runs the startup range checks that produce a ConfigError: cpu in
// (0,100], recoveryTimeoutMs >= 0, failureThreshold > 0, minDataPoints >= 0,
// shutdown errorRate in (0,1], and latency targets > 0. It checks each value
// on its own and does not compare min/max threshold pairs with each other.
func (c Config) Validate() error {
	if c.Health.AnomalyThresholds.CPU <= 0 || c.Health.AnomalyThresholds.CPU > 100 {
		return cperr.Config("health.anomalyThresholds.cpu must be in (0,100]")
	}
	if c.CircuitBreaker.RecoveryTimeoutMs < 0 {
		return cperr.Config("circuitBreaker.recoveryTimeoutMs must be >= 0")
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return cperr.Config("circuitBreaker.failureThreshold must be > 0")
	}
	if c.Optimizer.MinDataPoints < 0 {
		return cperr.Config("optimizer.minDataPoints must be >= 0")
	}
	if c.Shutdown.Thresholds.ErrorRate <= 0 || c.Shutdown.Thresholds.ErrorRate > 1 {
		return cperr.Config("shutdown.thresholds.errorRate must be in (0,1]")
	}
	if c.Latency.Targets.Generation <= 0 || c.Latency.Targets.RAG <= 0 || c.Latency.Targets.Cached <= 0 {
		return cperr.Config("latency.targets must all be > 0")
	}
	return nil
}
