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

// Package shutdown implements the Emergency Shutdown Manager: scoped
// shutdown triggers, flag/breaker effects, notification fan-out, and
// automatic recovery via periodic health probing. Grounded on the
// teacher's audit_logger.go append-only event pattern for ShutdownEvent
// history and on dynamic_policy_engine.go's threshold-triggered action
// dispatch for the automatic trigger.
package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/ports"
)

// FlagDisabler is the subset of internal/flags.Flags the Manager needs to
// disable scoped feature flags.
type FlagDisabler interface {
	Disable(ctx context.Context, name string) error
	Set(ctx context.Context, name string, value bool, meta map[string]string) error
}

// BreakerControl is the subset of internal/routing.CircuitBreaker the
// Manager needs to force-open or reset scoped paths.
type BreakerControl interface {
	ForceOpen(path string)
	Reset(path string)
}

// RecoveryMetrics is what a RecoveryProbe reports for automatic-trigger and
// recovery-success evaluation.
type RecoveryMetrics struct {
	ErrorRate           float64
	LatencyMs           int64
	CostEuroPerHour     float64
	ConsecutiveFailures int
}

// RecoveryProbe samples the current system metrics the Manager compares
// against its configured shutdown thresholds.
type RecoveryProbe interface {
	Sample(ctx context.Context) (RecoveryMetrics, error)
}

// scopeBinding maps a ShutdownScope to the feature flags it disables and
// the breaker paths it force-opens.
type scopeBinding struct {
	flags []string
	paths []string
}

func bindingsFor(scope domain.ShutdownScope) scopeBinding {
	switch scope {
	case domain.ShutdownDirect:
		return scopeBinding{flags: []string{"route.direct.enabled"}, paths: []string{string(domain.RouteDirect)}}
	case domain.ShutdownMediated:
		return scopeBinding{flags: []string{"route.mediated.enabled"}, paths: []string{string(domain.RouteMediated)}}
	case domain.ShutdownIntelligentRouter:
		return scopeBinding{flags: []string{"router.intelligent.enabled"}}
	case domain.ShutdownSupportMode:
		return scopeBinding{flags: []string{"support_mode.enabled"}}
	default: // ShutdownAll
		return scopeBinding{
			flags: []string{"route.direct.enabled", "route.mediated.enabled", "router.intelligent.enabled"},
			paths: []string{string(domain.RouteDirect), string(domain.RouteMediated)},
		}
	}
}

// Status is the Manager's current shutdown state.
type Status struct {
	IsShutdown       bool
	ActiveScope      domain.ShutdownScope
	RecoveryAttempts int
}

// Manager is the Emergency Shutdown Manager.
type Manager struct {
	cfg     config.ShutdownConfig
	flags   FlagDisabler
	breaker BreakerControl
	notify  ports.NotificationSink
	probe   RecoveryProbe
	log     *logger.Logger

	mu      sync.Mutex
	status  Status
	history []domain.ShutdownEvent

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds an Emergency Shutdown Manager.
func New(cfg config.ShutdownConfig, flags FlagDisabler, breaker BreakerControl, notify ports.NotificationSink, probe RecoveryProbe, log *logger.Logger) *Manager {
	return &Manager{cfg: cfg, flags: flags, breaker: breaker, notify: notify, probe: probe, log: log}
}

// Trigger records a ShutdownEvent, applies scoped effects, fans out
// notifications, and (if enabled) schedules automatic recovery. Per
// spec §4.10 step 1-4.
func (m *Manager) Trigger(ctx context.Context, scope domain.ShutdownScope, reason domain.ShutdownReason, triggeredBy string, metadata map[string]any) domain.ShutdownEvent {
	binding := bindingsFor(scope)

	event := domain.ShutdownEvent{
		ID: uuid.NewString(), Scope: scope, Reason: reason, TriggeredBy: triggeredBy,
		Timestamp: time.Now(), AffectedComponents: append(append([]string{}, binding.flags...), binding.paths...),
		Metadata: metadata,
	}

	m.mu.Lock()
	m.status = Status{IsShutdown: true, ActiveScope: scope, RecoveryAttempts: 0}
	m.history = append(m.history, event)
	if len(m.history) > 1000 {
		m.history = m.history[len(m.history)-1000:]
	}
	m.mu.Unlock()

	for _, name := range binding.flags {
		if err := m.flags.Disable(ctx, name); err != nil {
			m.log.Error(event.ID, "", "failed to disable flag during shutdown", map[string]any{"flag": name, "error": err.Error()})
		}
	}
	for _, path := range binding.paths {
		m.breaker.ForceOpen(path)
	}

	m.notifyAll(ctx, event)

	if m.cfg.Recovery.Enabled {
		m.scheduleRecovery(event)
	}
	return event
}

func (m *Manager) notifyAll(ctx context.Context, event domain.ShutdownEvent) {
	subject := "emergency shutdown: " + string(event.Scope)
	body := "reason=" + string(event.Reason) + " triggeredBy=" + event.TriggeredBy
	for _, ch := range []ports.NotificationChannel{ports.ChannelChat, ports.ChannelEmail, ports.ChannelPager} {
		if err := m.notify.Publish(ctx, ch, subject, body); err != nil {
			m.log.Warn(event.ID, "", "notification publish failed", map[string]any{"channel": string(ch), "error": err.Error()})
		}
	}
}

// scheduleRecovery starts the recovery goroutine: wait recoveryDelayMs,
// then probe every healthCheckIntervalMs until metrics fall below every
// configured threshold or maxAttempts is exhausted.
func (m *Manager) scheduleRecovery(event domain.ShutdownEvent) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error(event.ID, "", "recovery goroutine panic, recovered", map[string]any{"panic": r})
			}
		}()

		select {
		case <-time.After(time.Duration(m.cfg.Recovery.DelayMs) * time.Millisecond):
		case <-m.stopCh():
			return
		}

		ticker := time.NewTicker(time.Duration(m.cfg.Recovery.ProbeIntervalMs) * time.Millisecond)
		defer ticker.Stop()

		for attempt := 1; attempt <= m.cfg.Recovery.MaxAttempts; attempt++ {
			select {
			case <-ticker.C:
			case <-m.stopCh():
				return
			}

			m.mu.Lock()
			m.status.RecoveryAttempts = attempt
			m.mu.Unlock()

			if m.attemptRecovery(context.Background(), event) {
				return
			}
		}
	}()
}

func (m *Manager) stopCh() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil {
		m.stop = make(chan struct{})
	}
	return m.stop
}

// attemptRecovery runs one health probe and, if every configured threshold
// is satisfied, re-enables flags and resets breakers, ending the shutdown.
func (m *Manager) attemptRecovery(ctx context.Context, event domain.ShutdownEvent) bool {
	if m.probe == nil {
		return false
	}
	sample, err := m.probe.Sample(ctx)
	if err != nil {
		m.log.Warn(event.ID, "", "recovery probe failed", map[string]any{"error": err.Error()})
		return false
	}
	if !m.belowThresholds(sample) {
		return false
	}

	binding := bindingsFor(event.Scope)
	for _, name := range binding.flags {
		_ = m.flags.Set(ctx, name, true, map[string]string{"reason": "shutdown_recovery"})
	}
	for _, path := range binding.paths {
		m.breaker.Reset(path)
	}

	m.mu.Lock()
	m.status = Status{IsShutdown: false}
	m.mu.Unlock()
	m.log.Info(event.ID, "", "emergency shutdown recovered", map[string]any{"scope": string(event.Scope)})
	return true
}

func (m *Manager) belowThresholds(s RecoveryMetrics) bool {
	t := m.cfg.Thresholds
	return s.ErrorRate < t.ErrorRate &&
		s.LatencyMs < t.LatencyMs &&
		s.CostEuroPerHour < t.CostEuroPerHour &&
		s.ConsecutiveFailures < t.ConsecutiveFailures
}

// CheckAutomaticTrigger evaluates spec §4.10's automatic triggers
// (errorRate >= 0.1, latencyMs >= 5000, costEuroPerHour >= 100,
// consecutiveFailures >= 5) and fires a scope-ALL shutdown with reason
// performance_degradation if autoShutdown is enabled and any threshold is
// breached.
func (m *Manager) CheckAutomaticTrigger(ctx context.Context, s RecoveryMetrics) (domain.ShutdownEvent, bool) {
	if !m.cfg.AutoShutdown {
		return domain.ShutdownEvent{}, false
	}
	t := m.cfg.Thresholds
	breached := s.ErrorRate >= t.ErrorRate || s.LatencyMs >= t.LatencyMs ||
		s.CostEuroPerHour >= t.CostEuroPerHour || s.ConsecutiveFailures >= t.ConsecutiveFailures
	if !breached {
		return domain.ShutdownEvent{}, false
	}
	event := m.Trigger(ctx, domain.ShutdownAll, domain.ReasonPerformanceDegradation, "automatic", map[string]any{
		"errorRate": s.ErrorRate, "latencyMs": s.LatencyMs, "costEuroPerHour": s.CostEuroPerHour, "consecutiveFailures": s.ConsecutiveFailures,
	})
	return event, true
}

// Status returns a copy of the Manager's current shutdown status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// History returns a copy of the retained shutdown event history.
func (m *Manager) History() []domain.ShutdownEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ShutdownEvent, len(m.history))
	copy(out, m.history)
	return out
}

// Close stops any in-flight recovery goroutine without running it to
// completion; used at process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.stop == nil {
		m.stop = make(chan struct{})
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
