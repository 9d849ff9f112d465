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

// Package routing implements the Intelligent Router and its per-path
// Circuit Breaker. The teacher's only circuitbreaker package
// (agent/circuitbreaker/circuitbreaker_community.go) is an Enterprise
// no-op stub with no real state machine, so the breaker here is written
// fresh against spec §4.3/§8 property 4, following the same per-path-lock
// + atomic-counter discipline the teacher uses elsewhere (metrics_collector.go,
// llm_router.go).
package routing

import (
	"sync"
	"sync/atomic"
	"time"

	"axonflow/controlplane/internal/domain"
)

// BreakerConfig parameterizes one path's Circuit Breaker.
type BreakerConfig struct {
	FailureThreshold  int
	RecoveryTimeout   time.Duration
	HalfOpenMaxCalls  int32
}

type pathBreaker struct {
	mu                  sync.Mutex
	state               domain.CircuitStateName
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int32
}

// CircuitBreaker tracks one state machine per path, guarded by a per-path
// lock; the HALF_OPEN admission counter is a separate atomic field that
// Allow updates alongside the path's state. failureThreshold is
// likewise a separate atomic so the Routing Efficiency Optimizer can
// tighten/loosen it at runtime without taking any path's lock.
type CircuitBreaker struct {
	cfg              BreakerConfig
	failureThreshold atomic.Int32
	mu               sync.RWMutex
	paths            map[string]*pathBreaker
}

// NewCircuitBreaker builds a breaker using cfg for every path it sees.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	b := &CircuitBreaker{cfg: cfg, paths: make(map[string]*pathBreaker)}
	b.failureThreshold.Store(int32(cfg.FailureThreshold))
	return b
}

// FailureThreshold returns the current consecutive-failure trip threshold.
func (b *CircuitBreaker) FailureThreshold() int {
	return int(b.failureThreshold.Load())
}

// SetFailureThreshold atomically updates the trip threshold used by
// RecordFailure, clamped to a minimum of 1. Used by the Routing Efficiency
// Optimizer to tighten the breaker when overall success rate degrades, and
// to roll that change back if it doesn't help.
func (b *CircuitBreaker) SetFailureThreshold(n int) {
	if n < 1 {
		n = 1
	}
	b.failureThreshold.Store(int32(n))
}

func (b *CircuitBreaker) pathFor(path string) *pathBreaker {
	b.mu.RLock()
	p, ok := b.paths[path]
	b.mu.RUnlock()
	if ok {
		return p
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok = b.paths[path]; ok {
		return p
	}
	p = &pathBreaker{state: domain.CircuitClosed}
	b.paths[path] = p
	return p
}

// Snapshot returns path's current CircuitState, transitioning OPEN->HALF_OPEN
// if the recovery timeout has elapsed.
func (b *CircuitBreaker) Snapshot(path string) domain.CircuitState {
	p := b.pathFor(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	b.maybeRecover(p)
	return domain.CircuitState{
		State:                 p.state,
		ConsecutiveFailures:   p.consecutiveFailures,
		OpenedAt:              p.openedAt,
		HasOpenedAt:           !p.openedAt.IsZero(),
		HalfOpenCallsInFlight: atomic.LoadInt32(&p.halfOpenInFlight),
	}
}

// maybeRecover must be called with p.mu held.
func (b *CircuitBreaker) maybeRecover(p *pathBreaker) {
	if p.state == domain.CircuitOpen && time.Since(p.openedAt) >= b.cfg.RecoveryTimeout {
		p.state = domain.CircuitHalfOpen
		atomic.StoreInt32(&p.halfOpenInFlight, 0)
	}
}

// Allow reports whether a call may proceed on path right now, admitting at
// most HalfOpenMaxCalls concurrent calls while HALF_OPEN.
func (b *CircuitBreaker) Allow(path string) bool {
	p := b.pathFor(path)
	p.mu.Lock()
	b.maybeRecover(p)
	state := p.state
	p.mu.Unlock()

	switch state {
	case domain.CircuitOpen:
		return false
	case domain.CircuitHalfOpen:
		return atomic.AddInt32(&p.halfOpenInFlight, 1) <= b.cfg.HalfOpenMaxCalls
	default:
		return true
	}
}

// RecordSuccess reports a successful call on path. Consecutive failures
// never decrease state toward CLOSED except via this path: a single
// success in HALF_OPEN transitions to CLOSED; a success in CLOSED just
// resets the failure counter.
func (b *CircuitBreaker) RecordSuccess(path string) {
	p := b.pathFor(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case domain.CircuitHalfOpen:
		p.state = domain.CircuitClosed
		p.consecutiveFailures = 0
		p.openedAt = time.Time{}
		atomic.StoreInt32(&p.halfOpenInFlight, 0)
	case domain.CircuitClosed:
		p.consecutiveFailures = 0
	}
}

// RecordFailure reports a failed call on path. Any failure in HALF_OPEN
// transitions to OPEN; in CLOSED, consecutive failures accumulate and trip
// OPEN at the configured threshold.
func (b *CircuitBreaker) RecordFailure(path string) {
	p := b.pathFor(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case domain.CircuitHalfOpen:
		p.state = domain.CircuitOpen
		p.openedAt = time.Now()
		atomic.StoreInt32(&p.halfOpenInFlight, 0)
	case domain.CircuitClosed:
		p.consecutiveFailures++
		if p.consecutiveFailures >= b.FailureThreshold() {
			p.state = domain.CircuitOpen
			p.openedAt = time.Now()
		}
	case domain.CircuitOpen:
		// already open; nothing decreases toward CLOSED
	}
}

// ForceOpen externally trips path open, used by the Emergency Shutdown
// Manager.
func (b *CircuitBreaker) ForceOpen(path string) {
	p := b.pathFor(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = domain.CircuitOpen
	p.openedAt = time.Now()
}

// Reset externally restores path to CLOSED.
func (b *CircuitBreaker) Reset(path string) {
	p := b.pathFor(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = domain.CircuitClosed
	p.consecutiveFailures = 0
	p.openedAt = time.Time{}
	atomic.StoreInt32(&p.halfOpenInFlight, 0)
}
