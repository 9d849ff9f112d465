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

package routing

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"axonflow/controlplane/internal/cperr"
	"axonflow/controlplane/internal/domain"
)

// PathLatencyReader is the minimal slice of the Routing Performance
// Monitor the Router needs to make a decision: the path's recent P95.
// Declared locally rather than importing internal/telemetry/pathmetrics
// to avoid a dependency cycle (pathmetrics, in turn, never needs routing).
type PathLatencyReader interface {
	P95(path string) (int64, bool)
}

// RuleSet is the Router's immutable active rule list. Updates swap the
// pointer atomically; in-flight decisions keep using the set they read.
type RuleSet struct {
	Rules []domain.RoutingRule
}

// ruleFor returns the first rule matching operationType, or nil.
func (rs *RuleSet) ruleFor(operationType string) *domain.RoutingRule {
	for i := range rs.Rules {
		if rs.Rules[i].OperationType == operationType {
			return &rs.Rules[i]
		}
	}
	return nil
}

// ProviderSet is a weighted-random selector over provider names for one
// path, modeled on the teacher's weighted load-balancing design
// (llm_router.go's LoadBalancer.SelectProvider). The Router does not
// consult a ProviderSet; it only chooses between RouteTypes.
type ProviderSet struct {
	weights map[string]float64
	names   []string
	rng     *rand.Rand
}

// NewProviderSet builds a weighted provider set for one path.
func NewProviderSet(weights map[string]float64, seed int64) *ProviderSet {
	names := make([]string, 0, len(weights))
	for n := range weights {
		names = append(names, n)
	}
	return &ProviderSet{weights: weights, names: names, rng: rand.New(rand.NewSource(seed))}
}

// Select returns one provider name, weighted-random, or "" if empty.
func (p *ProviderSet) Select() string {
	if len(p.names) == 0 {
		return ""
	}
	total := 0.0
	for _, n := range p.names {
		total += p.weights[n]
	}
	if total <= 0 {
		return p.names[0]
	}
	r := p.rng.Float64() * total
	for _, n := range p.names {
		r -= p.weights[n]
		if r <= 0 {
			return n
		}
	}
	return p.names[len(p.names)-1]
}

// Router selects an execution path per request from the active rule set,
// the Circuit Breaker, and recent path latency.
type Router struct {
	rules   atomic.Pointer[RuleSet]
	breaker *CircuitBreaker
	latency PathLatencyReader
}

// NewRouter builds a Router over an initial rule set.
func NewRouter(rules []domain.RoutingRule, breaker *CircuitBreaker, latency PathLatencyReader) *Router {
	r := &Router{breaker: breaker, latency: latency}
	r.rules.Store(&RuleSet{Rules: rules})
	return r
}

// SetRules atomically swaps the active rule set; used by the Routing
// Efficiency Optimizer when it applies a rule_adjustment recommendation.
func (r *Router) SetRules(rules []domain.RoutingRule) {
	r.rules.Store(&RuleSet{Rules: rules})
}

// Rules returns a copy of the currently active rules.
func (r *Router) Rules() []domain.RoutingRule {
	rs := r.rules.Load()
	out := make([]domain.RoutingRule, len(rs.Rules))
	copy(out, rs.Rules)
	return out
}

func (r *Router) pathHealthy(route domain.RouteType, rule *domain.RoutingRule) bool {
	path := string(route)
	state := r.breaker.Snapshot(path)
	if state.State == domain.CircuitOpen {
		return false
	}
	if r.latency != nil {
		if p95, ok := r.latency.P95(path); ok {
			if float64(p95) > float64(rule.LatencyRequirementMs)*1.5 {
				return false
			}
		}
	}
	return true
}

// Route selects a path for req per spec §4.3: find the first rule whose
// operationType matches, prefer primary unless its circuit is open or its
// recent P95 exceeds 1.5x the requirement, in which case use the fallback;
// if both are unhealthy, return an empty RouteDecision and a
// ProviderUnavailable error; no emergency decision is produced.
func (r *Router) Route(req domain.Request) (domain.RouteDecision, error) {
	rs := r.rules.Load()
	rule := rs.ruleFor(req.Context.Intent)
	if rule == nil {
		rule = rs.ruleFor(req.Context.Domain)
	}
	if rule == nil {
		return domain.RouteDecision{}, cperr.Internal(req.ID, fmt.Errorf("no routing rule matches operation %q/%q", req.Context.Domain, req.Context.Intent))
	}

	if r.pathHealthy(rule.Primary, rule) {
		return domain.RouteDecision{Route: rule.Primary, Reason: "primary healthy"}, nil
	}
	if r.pathHealthy(rule.Fallback, rule) {
		return domain.RouteDecision{Route: rule.Fallback, Reason: "primary unhealthy, using fallback"}, nil
	}
	return domain.RouteDecision{}, cperr.ProviderUnavailable(req.ID, "both primary and fallback paths unhealthy for operation "+rule.OperationType)
}
