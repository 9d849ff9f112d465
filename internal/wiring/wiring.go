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

// Package wiring is the control plane's single composition root. It builds
// every concrete adapter and monitor once and injects them into the
// Router, the Guardrails Manager, the Health Monitor, the Optimizer, and
// the Orchestrator by constructor argument, following spec §9's explicit
// ban on package-level singletons and back-pointers — the opposite of the
// teacher's own orchestrator/run.go, which holds its engines in
// package-level vars.
package wiring

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/flags"
	"axonflow/controlplane/internal/gateway"
	"axonflow/controlplane/internal/health"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/optimize"
	"axonflow/controlplane/internal/orchestrator"
	"axonflow/controlplane/internal/ports"
	"axonflow/controlplane/internal/providers/bedrockclient"
	"axonflow/controlplane/internal/providers/directclient"
	"axonflow/controlplane/internal/routing"
	"axonflow/controlplane/internal/safety/guardrails"
	"axonflow/controlplane/internal/sinks/logsink"
	"axonflow/controlplane/internal/sinks/memflags"
	"axonflow/controlplane/internal/sinks/policysink"
	"axonflow/controlplane/internal/sinks/prommetrics"
	"axonflow/controlplane/internal/sinks/redisflags"
	"axonflow/controlplane/internal/sinks/resourceprobe"
	"axonflow/controlplane/internal/shutdown"
	"axonflow/controlplane/internal/telemetry/drift"
	"axonflow/controlplane/internal/telemetry/latency"
	"axonflow/controlplane/internal/telemetry/pathmetrics"
)

// Feature flag names the shutdown manager's scope bindings expect. Declared
// here, not in internal/shutdown, since wiring owns the default flag set a
// fresh deployment starts with.
const (
	flagDirectEnabled           = "direct_provider_enabled"
	flagMediatedEnabled         = "mediated_provider_enabled"
	flagIntelligentRouterEnabled = "intelligent_router_enabled"
	flagSupportModeEnabled      = "support_mode_enabled"
)

func defaultFlags() map[string]bool {
	return map[string]bool{
		flagDirectEnabled:            true,
		flagMediatedEnabled:          true,
		flagIntelligentRouterEnabled: true,
		flagSupportModeEnabled:       true,
	}
}

// defaultRules builds the starting RoutingRule set from cfg.Latency.Targets,
// following the teacher's llm_router.go notion of a GENERATION/RAG/CACHED
// operation split, DIRECT preferred with MEDIATED fallback for everything
// except a cost-sensitive CACHED path, which prefers MEDIATED.
func defaultRules(cfg config.Config) []domain.RoutingRule {
	t := cfg.Latency.Targets
	return []domain.RoutingRule{
		{
			OperationType: string(domain.OperationGeneration), Priority: domain.PriorityHigh,
			LatencyRequirementMs: t.Generation, Primary: domain.RouteDirect, Fallback: domain.RouteMediated,
			HealthCheckRequired: true,
		},
		{
			OperationType: string(domain.OperationRAG), Priority: domain.PriorityMedium,
			LatencyRequirementMs: t.RAG, Primary: domain.RouteDirect, Fallback: domain.RouteMediated,
			HealthCheckRequired: true,
		},
		{
			OperationType: string(domain.OperationCached), Priority: domain.PriorityLow,
			LatencyRequirementMs: t.Cached, Primary: domain.RouteMediated, Fallback: domain.RouteDirect,
			HealthCheckRequired: false,
		},
	}
}

// System holds every wired component plus the running background loops.
// Nothing here is package-level: a caller that wants two isolated control
// planes in one process can call New twice.
type System struct {
	cfg config.Config
	log *logger.Logger

	Flags      *flags.Flags
	Activation *flags.ActivationMonitor
	PathPerf   *pathmetrics.Monitor
	Breaker    *routing.CircuitBreaker
	Router     *routing.Router
	Latency    *latency.Monitor
	Drift      *drift.Monitor
	Guardrails *guardrails.Manager
	Health     *health.Monitor
	Optimizer  *optimize.Optimizer
	Shutdown   *shutdown.Manager
	Orchestrator *orchestrator.Orchestrator
	Gateway    *gateway.Gateway
	Metrics    ports.MetricSink

	recoveryProbe *recoveryProbeAdapter
	flagStoreClose func() error

	stop chan struct{}
	done chan struct{}
}

// deploymentControlStub logs scale requests instead of calling a cloud
// autoscaler API: no DeploymentControl-capable SDK is in scope for this
// module (see DESIGN.md), so the Orchestrator's scaling category dispatch
// has a safe, observable default binding.
type deploymentControlStub struct {
	log *logger.Logger
}

func (d deploymentControlStub) ScaleOut(ctx context.Context, target string, amount int) error {
	d.log.Info("", "", "scale out requested", map[string]any{"target": target, "amount": amount})
	return nil
}

func (d deploymentControlStub) ScaleIn(ctx context.Context, target string, amount int) error {
	d.log.Info("", "", "scale in requested", map[string]any{"target": target, "amount": amount})
	return nil
}

// New constructs every component and wires them together. A Redis-backed
// flag store is used when redisURL is non-empty; otherwise flags fall back
// to the in-memory default. A failure to load AWS credentials for the
// MEDIATED provider is logged and tolerated: the DIRECT path alone is
// enough for the control plane to start serving.
func New(ctx context.Context, cfg config.Config, redisURL string, log *logger.Logger) (*System, error) {
	var flagStore ports.FeatureFlagStore
	var flagStoreClose func() error
	if redisURL != "" {
		store, err := redisflags.New(ctx, redisURL)
		if err != nil {
			return nil, fmt.Errorf("wiring: redis flag store: %w", err)
		}
		flagStore = store
		flagStoreClose = store.Close
	} else {
		flagStore = memflags.New(defaultFlags())
	}

	flagSvc := flags.New(flagStore)
	activation := flags.NewActivationMonitor(cfg.Activation.RetentionDays, cfg.Activation.SuccessRateThreshold, cfg.Activation.WarningThreshold)

	pathPerf := pathmetrics.New(10000)
	breaker := routing.NewCircuitBreaker(routing.BreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.CircuitBreaker.RecoveryTimeoutMs) * time.Millisecond,
		HalfOpenMaxCalls: int32(cfg.CircuitBreaker.HalfOpenMaxCalls),
	})
	router := routing.NewRouter(defaultRules(cfg), breaker, pathPerf)

	latencyMon := latency.New(cfg.Latency.MaxMetrics, time.Duration(cfg.Latency.TimeWindowMs)*time.Millisecond, latency.Targets{
		Generation: cfg.Latency.Targets.Generation, RAG: cfg.Latency.Targets.RAG, Cached: cfg.Latency.Targets.Cached,
		CacheHitTargetPct: cfg.Latency.CacheHitTargetPct,
	})
	driftMon := drift.New(drift.DefaultThresholds())

	sink := policysink.New()
	guardSvc := guardrails.New(cfg.Safety, sink, log)
	guardMgr := guardrails.NewManager(guardSvc, cfg.Safety.StrictMode, cfg.Safety.BlockOnViolation, log)

	providers := map[domain.RouteType]ports.ProviderClient{
		domain.RouteDirect: directclient.New(cfg.Providers.Direct),
	}
	if bc, err := bedrockclient.New(ctx, cfg.Providers.Mediated); err != nil {
		log.Warn("", "", "mediated provider unavailable, starting without it", map[string]any{"error": err.Error()})
	} else {
		providers[domain.RouteMediated] = bc
	}

	gw := gateway.New(guardMgr, router, breaker, pathPerf, latencyMon, providers, 30*time.Second, log)

	probe := resourceprobe.New(ProcRootOverride(), 200*time.Millisecond)
	perfSrc := newPerfAdapter(pathPerf)
	resolver := newAutoResolutionAdapter(activation)
	healthMon := health.New(cfg.Health, probe, resolver, perfSrc)

	baseCostPerRoute := 0.002 // USD/request, rough default until a billing feed is wired in
	optimizer := optimize.New(cfg.Optimizer, pathPerf, router, breaker, baseCostPerRoute, log)

	deploy := deploymentControlStub{log: log}
	orch := orchestrator.New(cfg.Orchestrator, healthMon, optimizer, deploy, log)

	notify := logsink.New(log)
	recoveryProbe := newRecoveryProbeAdapter(pathPerf, breaker, baseCostPerRoute)
	shutdownMgr := shutdown.New(cfg.Shutdown, flagSvc, breaker, notify, recoveryProbe, log)

	metrics := prommetrics.New(prometheus.DefaultRegisterer)

	return &System{
		cfg: cfg, log: log,
		Flags: flagSvc, Activation: activation, PathPerf: pathPerf, Breaker: breaker, Router: router,
		Latency: latencyMon, Drift: driftMon, Guardrails: guardMgr, Health: healthMon, Optimizer: optimizer,
		Shutdown: shutdownMgr, Orchestrator: orch, Gateway: gw, Metrics: metrics,
		recoveryProbe: recoveryProbe, flagStoreClose: flagStoreClose,
		stop: make(chan struct{}), done: make(chan struct{}),
	}, nil
}

// safeLoop runs fn on every tick of interval until Stop, recovering any
// panic so one misbehaving cycle never brings down the process (spec §7).
func (s *System) safeLoop(name string, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runSafely(name, fn)
		}
	}
}

func (s *System) runSafely(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("", "", "periodic task panicked", map[string]any{"task": name, "panic": fmt.Sprintf("%v", r)})
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fn(ctx)
}

// Start launches every periodic loop: the Orchestrator's own optimization
// gate, a latency-target sweep, the optimizer's analyze/recommend/apply
// cycle, and the emergency shutdown manager's automatic-trigger check.
// Every loop runs in its own goroutine and is panic-isolated from the
// others.
func (s *System) Start(ctx context.Context) {
	healthInterval := time.Duration(s.cfg.Health.CheckIntervalMs) * time.Millisecond
	if healthInterval <= 0 {
		healthInterval = 30 * time.Second
	}
	s.Orchestrator.Start(ctx, 2*healthInterval)

	go s.safeLoop("latency-targets", 60*time.Second, func(ctx context.Context) {
		for _, alert := range s.Latency.CheckTargets() {
			s.log.Warn("", "", "latency target breached", map[string]any{"scope": alert.Scope, "severity": alert.Severity})
		}
	})

	optimizerInterval := time.Duration(s.cfg.Optimizer.IntervalMs) * time.Millisecond
	if optimizerInterval <= 0 {
		optimizerInterval = 5 * time.Minute
	}
	evalWindow := time.Duration(s.cfg.Optimizer.EvaluationWindowMs) * time.Millisecond
	go s.safeLoop("optimizer-cycle", optimizerInterval, func(ctx context.Context) {
		eff := s.PathPerf.CalculateRoutingEfficiency(float64(s.cfg.Latency.Targets.Generation))
		if recs, ok := s.Optimizer.Recommend(eff.OverallEfficiency); ok {
			s.Optimizer.Apply(recs)
		}
		for _, result := range s.Optimizer.Evaluate(ctx, time.Now(), evalWindow) {
			s.log.Info("", "", "optimization cycle evaluated", map[string]any{"cycleID": result.CycleID, "rolledBack": result.RolledBack})
		}
	})

	go s.safeLoop("shutdown-autotrigger", healthInterval, func(ctx context.Context) {
		sample, err := s.recoveryProbe.Sample(ctx)
		if err != nil {
			return
		}
		if event, fired := s.Shutdown.CheckAutomaticTrigger(ctx, sample); fired {
			s.log.Error("", "", "automatic emergency shutdown triggered", map[string]any{"scope": event.Scope, "reason": event.Reason})
		}
	})

	go s.safeLoop("activation-watch", 5*time.Minute, func(ctx context.Context) {
		if alert, ok := s.Activation.CheckLastHour(); ok {
			s.log.Warn("", "", "activation success rate alert", map[string]any{"severity": alert.Severity, "scope": alert.Scope})
		}
	})

	go func() {
		<-s.stop
		close(s.done)
	}()
}

// Stop signals every loop to exit and waits for the shutdown-manager's own
// recovery goroutines to unwind, then releases the flag store's connection
// if one was opened.
func (s *System) Stop() {
	close(s.stop)
	<-s.done
	s.Orchestrator.Stop()
	s.Shutdown.Close()
	if s.flagStoreClose != nil {
		if err := s.flagStoreClose(); err != nil {
			s.log.Warn("", "", "error closing flag store", map[string]any{"error": err.Error()})
		}
	}
}

// ProcRootOverride lets a deployment point the resource probe at a
// non-default procfs mount (e.g. under a container's /host/proc bind);
// exposed as a function rather than a field so the zero-value System keeps
// working in tests that never call it.
func ProcRootOverride() string {
	if v := os.Getenv("AXONFLOW_PROC_ROOT"); v != "" {
		return v
	}
	return "/proc"
}
