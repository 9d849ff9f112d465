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

// Package optimize implements the Routing Efficiency Optimizer: the
// analyze -> recommend -> apply -> evaluate (-> rollback) cycle described
// in spec §4.9, grounded on the teacher's weighted-provider-selection and
// cost-estimation ideas in llm_router.go, generalized to whole-route
// profiles instead of single providers.
package optimize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/telemetry/pathmetrics"
)

// RouteProfile is the per-route performance/cost/capacity estimate
// computed each cycle from the Routing Performance Monitor.
type RouteProfile struct {
	Path             string
	AverageLatencyMs float64
	P95LatencyMs     int64
	SuccessRate      float64
	RequestCount     int64
	CostPerRequest   float64
	Reliability      float64
	Capacity         float64
}

// RuleSetter is the subset of internal/routing.Router the Optimizer needs
// to apply a rule_adjustment recommendation.
type RuleSetter interface {
	SetRules(rules []domain.RoutingRule)
	Rules() []domain.RoutingRule
}

// BreakerTuner is the subset of internal/routing.CircuitBreaker the
// Optimizer needs to apply (and roll back) a circuit-breaker-tightening
// recommendation. May be nil, in which case that recommendation category
// falls back to a rule-set-only rollback.
type BreakerTuner interface {
	FailureThreshold() int
	SetFailureThreshold(n int)
}

// ruleAction is the concrete mutation Apply performs for a recommendation
// Recommend produced, keyed by the recommendation's ID. Recommend populates
// this alongside the domain.Recommendation it returns so Apply can act on
// it without parsing Description strings.
type ruleAction struct {
	preferPath     domain.RouteType
	tightenBreaker bool
}

// appliedRecommendation pairs a Recommendation with the closure that
// undoes its effect.
type appliedRecommendation struct {
	rec      domain.Recommendation
	rollback func()
}

type cycleRecord struct {
	id        string
	at        time.Time
	applied   []appliedRecommendation
	baseline  aggregateSnapshot
}

type aggregateSnapshot struct {
	avgLatencyMs float64
	successRate  float64
	avgCost      float64
}

// Optimizer runs the periodic optimization cycle.
type Optimizer struct {
	cfg      config.OptimizerConfig
	perf     *pathmetrics.Monitor
	router   RuleSetter
	breaker  BreakerTuner
	log      *logger.Logger
	baseCostPerRoute float64

	mu             sync.Mutex
	history        []domain.OptimizationResult
	pending        []*cycleRecord
	pendingActions map[string]ruleAction
}

// New builds a Routing Efficiency Optimizer. breaker may be nil if no
// circuit breaker is wired; circuit-breaker-tightening recommendations then
// degrade to a rule-set-only rollback.
func New(cfg config.OptimizerConfig, perf *pathmetrics.Monitor, router RuleSetter, breaker BreakerTuner, baseCostPerRoute float64, log *logger.Logger) *Optimizer {
	return &Optimizer{cfg: cfg, perf: perf, router: router, breaker: breaker, baseCostPerRoute: baseCostPerRoute, log: log}
}

func (o *Optimizer) setAction(id string, a ruleAction) {
	o.mu.Lock()
	if o.pendingActions == nil {
		o.pendingActions = make(map[string]ruleAction)
	}
	o.pendingActions[id] = a
	o.mu.Unlock()
}

// takeAction returns and clears the action recorded for id, or the zero
// value if Recommend never registered one for it.
func (o *Optimizer) takeAction(id string) ruleAction {
	o.mu.Lock()
	a := o.pendingActions[id]
	delete(o.pendingActions, id)
	o.mu.Unlock()
	return a
}

// preferPrimary returns a copy of rules with every rule that currently
// falls back to preferred promoting it to primary, implementing the
// "shift traffic toward <path>" rule_adjustment recommendation as an
// actual mutation of the active rule set.
func preferPrimary(rules []domain.RoutingRule, preferred domain.RouteType) []domain.RoutingRule {
	out := make([]domain.RoutingRule, len(rules))
	for i, r := range rules {
		if r.Fallback == preferred && r.Primary != preferred {
			r.Primary, r.Fallback = r.Fallback, r.Primary
		}
		out[i] = r
	}
	return out
}

// refreshProfiles computes one RouteProfile per path currently tracked by
// the Performance Monitor.
func (o *Optimizer) refreshProfiles() []RouteProfile {
	all := o.perf.GetAllPathMetrics()
	out := make([]RouteProfile, 0, len(all))
	for path, pm := range all {
		cost := o.baseCostPerRoute * (pm.AverageLatencyMs / 1000)
		capacity := 1 - float64(pm.P95)/30000
		if capacity < 0.1 {
			capacity = 0.1
		}
		out = append(out, RouteProfile{
			Path: path, AverageLatencyMs: pm.AverageLatencyMs, P95LatencyMs: pm.P95,
			SuccessRate: pm.SuccessRate, RequestCount: pm.RequestCount,
			CostPerRequest: cost, Reliability: pm.SuccessRate / 100, Capacity: capacity,
		})
	}
	return out
}

func weightedAverage(profiles []RouteProfile, pick func(RouteProfile) float64) (float64, int64) {
	var sum float64
	var total int64
	for _, p := range profiles {
		sum += pick(p) * float64(p.RequestCount)
		total += p.RequestCount
	}
	if total == 0 {
		return 0, 0
	}
	return sum / float64(total), total
}

func aggregate(profiles []RouteProfile) aggregateSnapshot {
	avgLatency, _ := weightedAverage(profiles, func(p RouteProfile) float64 { return p.AverageLatencyMs })
	avgSuccess, _ := weightedAverage(profiles, func(p RouteProfile) float64 { return p.SuccessRate })
	avgCost, _ := weightedAverage(profiles, func(p RouteProfile) float64 { return p.CostPerRequest })
	return aggregateSnapshot{avgLatencyMs: avgLatency, successRate: avgSuccess, avgCost: avgCost}
}

// Recommend runs steps 1-4 of spec §4.9: refresh profiles, analyze overall
// performance, and produce recommendations. Returns (nil, false) if the
// total observed request count is below minDataPoints.
func (o *Optimizer) Recommend(efficiency float64) ([]domain.Recommendation, bool) {
	profiles := o.refreshProfiles()
	_, total := weightedAverage(profiles, func(p RouteProfile) float64 { return p.AverageLatencyMs })
	if int(total) < o.cfg.MinDataPoints {
		return nil, false
	}

	agg := aggregate(profiles)
	var recs []domain.Recommendation

	if agg.avgLatencyMs > 5000 {
		for _, p := range profiles {
			if p.AverageLatencyMs <= agg.avgLatencyMs*0.8 {
				rec := domain.Recommendation{
					ID: uuid.NewString(), Category: domain.RecommendationOptimization, Priority: 8,
					Description: fmt.Sprintf("shift traffic toward %s (%.0fms avg vs %.0fms overall)", p.Path, p.AverageLatencyMs, agg.avgLatencyMs),
					ImplementationEffort: "low", ExpectedImprovementPct: 25,
				}
				o.setAction(rec.ID, ruleAction{preferPath: domain.RouteType(p.Path)})
				recs = append(recs, rec)
				break
			}
		}
	}
	if agg.successRate < 95 {
		rec := domain.Recommendation{
			ID: uuid.NewString(), Category: domain.RecommendationOptimization, Priority: 10,
			Description: "tighten circuit-breaker thresholds to shed failing requests faster",
			ImplementationEffort: "low", ExpectedImprovementPct: 15,
		}
		o.setAction(rec.ID, ruleAction{tightenBreaker: true})
		recs = append(recs, rec)
	}
	if o.baseCostPerRoute > 0 && agg.avgCost > o.baseCostPerRoute*1.2 {
		recs = append(recs, domain.Recommendation{
			ID: uuid.NewString(), Category: domain.RecommendationOptimization, Priority: 5,
			Description: "switch to cost-efficient routing strategy", ImplementationEffort: "moderate", ExpectedImprovementPct: 30,
		})
	}
	if efficiency < 80 {
		recs = append(recs, domain.Recommendation{
			ID: uuid.NewString(), Category: domain.RecommendationOptimization, Priority: 8,
			Description: "enable adaptive-threshold optimization", ImplementationEffort: "moderate", ExpectedImprovementPct: 20,
		})
	}
	if o.cfg.Adaptive && len(recs) >= 3 {
		recs = append(recs, domain.Recommendation{
			ID: uuid.NewString(), Category: domain.RecommendationOptimization, Priority: 5,
			Description: "switch default strategy to adaptive", ImplementationEffort: "low", ExpectedImprovementPct: 18,
		})
	}

	for i := 0; i < len(recs); i++ {
		for j := i + 1; j < len(recs); j++ {
			if recs[j].Priority > recs[i].Priority {
				recs[i], recs[j] = recs[j], recs[i]
			}
		}
	}
	return recs, true
}

// Apply applies up to maxChanges recommendations (high/critical first,
// already the sort order from Recommend), recording a rollback closure per
// applied recommendation and capturing the pre-cycle baseline. A
// rule_adjustment recommendation (from Recommend's latency check) promotes
// the faster path to primary on every rule that currently falls back to
// it; a circuit-breaker recommendation (from Recommend's success-rate
// check) lowers the breaker's failure threshold so it trips sooner.
// Recommendations with no registered action (cost/strategy changes, which
// spec §4.9 does not tie to a concrete Router/CircuitBreaker knob) still
// get a rule-set rollback so every applied recommendation has one to
// invoke per spec §8 property 5.
func (o *Optimizer) Apply(recs []domain.Recommendation) *cycleRecord {
	if len(recs) > o.cfg.MaxChanges {
		recs = recs[:o.cfg.MaxChanges]
	}

	rec := &cycleRecord{id: uuid.NewString(), at: time.Now(), baseline: aggregate(o.refreshProfiles())}
	snapshotRules := o.router.Rules()
	workingRules := append([]domain.RoutingRule{}, snapshotRules...)
	var snapshotThreshold int
	var workingThreshold int
	if o.breaker != nil {
		snapshotThreshold = o.breaker.FailureThreshold()
		workingThreshold = snapshotThreshold
	}

	for _, r := range recs {
		action := o.takeAction(r.ID)
		var rollback func()

		switch {
		case action.preferPath != "":
			workingRules = preferPrimary(workingRules, action.preferPath)
			o.router.SetRules(workingRules)
			rollback = func() { o.router.SetRules(snapshotRules) }
		case action.tightenBreaker && o.breaker != nil:
			workingThreshold--
			if workingThreshold < 1 {
				workingThreshold = 1
			}
			o.breaker.SetFailureThreshold(workingThreshold)
			rollback = func() { o.breaker.SetFailureThreshold(snapshotThreshold) }
		default:
			rollback = func() { o.router.SetRules(snapshotRules) }
		}

		rec.applied = append(rec.applied, appliedRecommendation{rec: r, rollback: rollback})
	}

	o.mu.Lock()
	o.pending = append(o.pending, rec)
	o.mu.Unlock()
	return rec
}

// Evaluate runs step 6 of spec §4.9 for any pending cycle whose evaluation
// window has elapsed: compute overall improvement and roll back if below
// rollbackThreshold. Every recommendation of a rolled-back cycle has its
// rollback invoked exactly once.
func (o *Optimizer) Evaluate(ctx context.Context, now time.Time, evaluationWindow time.Duration) []domain.OptimizationResult {
	o.mu.Lock()
	var due []*cycleRecord
	var remaining []*cycleRecord
	for _, c := range o.pending {
		if now.Sub(c.at) >= evaluationWindow {
			due = append(due, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	o.pending = remaining
	o.mu.Unlock()

	var results []domain.OptimizationResult
	for _, c := range due {
		current := aggregate(o.refreshProfiles())
		latencyImprovement := relativeImprovement(c.baseline.avgLatencyMs, current.avgLatencyMs, false)
		successImprovement := relativeImprovement(c.baseline.successRate, current.successRate, true)
		costImprovement := relativeImprovement(c.baseline.avgCost, current.avgCost, false)
		overall := 0.4*latencyImprovement + 0.3*successImprovement + 0.3*costImprovement

		rolledBack := false
		if overall < o.cfg.RollbackThreshold/100 {
			for _, a := range c.applied {
				a.rollback()
			}
			rolledBack = true
		}

		applied := make([]domain.Recommendation, 0, len(c.applied))
		for _, a := range c.applied {
			applied = append(applied, a.rec)
		}

		result := domain.OptimizationResult{
			CycleID: c.id, Strategy: domain.OptimizationStrategy(o.cfg.DefaultStrategy), Applied: applied,
			StartedAt: c.at, EvaluatedAt: now, Improvement: overall, RolledBack: rolledBack, Success: !rolledBack,
		}
		results = append(results, result)

		o.mu.Lock()
		o.history = append(o.history, result)
		if len(o.history) > 100 {
			o.history = o.history[len(o.history)-100:]
		}
		o.mu.Unlock()
	}
	return results
}

// relativeImprovement returns the fractional improvement of current over
// baseline; higherIsBetter flips the sign so a positive result always
// means "got better".
func relativeImprovement(baseline, current float64, higherIsBetter bool) float64 {
	if baseline == 0 {
		return 0
	}
	delta := (current - baseline) / baseline
	if !higherIsBetter {
		delta = -delta
	}
	return delta
}

// History returns a copy of the retained optimization result log.
func (o *Optimizer) History() []domain.OptimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.OptimizationResult, len(o.history))
	copy(out, o.history)
	return out
}
