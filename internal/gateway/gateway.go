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

// Package gateway implements the request-time hot path described in spec
// §2's system overview: route -> pre-check -> provider -> post-check,
// wired from the Intelligent Router, the Active Guardrails Manager, the
// Circuit Breaker, and the Routing/Latency monitors. Grounded on the
// teacher's processRequestHandler in orchestrator/run.go, generalized from
// one fixed policy-engine call into the safety-and-routing pipeline this
// module actually owns.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"axonflow/controlplane/internal/cperr"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/ports"
	"axonflow/controlplane/internal/routing"
	"axonflow/controlplane/internal/safety/guardrails"
	"axonflow/controlplane/internal/telemetry/latency"
	"axonflow/controlplane/internal/telemetry/pathmetrics"
)

// Result is one request/response round-trip through the Gateway.
type Result struct {
	Response    domain.Response
	Route       domain.RouteType
	PreVerdict  domain.SafetyVerdict
	PostVerdict domain.SafetyVerdict
	Blocked     bool
	Err         error
}

// Gateway composes the Intelligent Router, the Active Guardrails Manager,
// the per-path Circuit Breaker, and the Routing Performance/Latency
// Monitors into the single request-time entry point.
type Gateway struct {
	guardrails *guardrails.Manager
	router     *routing.Router
	breaker    *routing.CircuitBreaker
	pathPerf   *pathmetrics.Monitor
	latency    *latency.Monitor
	providers  map[domain.RouteType]ports.ProviderClient
	log        *logger.Logger
	timeout    time.Duration
}

// New builds a Gateway. providers must have at least one entry; a route
// decision naming a RouteType with no bound ProviderClient surfaces a
// ProviderUnavailable error rather than panicking.
func New(guardMgr *guardrails.Manager, router *routing.Router, breaker *routing.CircuitBreaker,
	pathPerf *pathmetrics.Monitor, latencyMon *latency.Monitor, providers map[domain.RouteType]ports.ProviderClient,
	timeout time.Duration, log *logger.Logger) *Gateway {
	return &Gateway{
		guardrails: guardMgr, router: router, breaker: breaker, pathPerf: pathPerf,
		latency: latencyMon, providers: providers, timeout: timeout, log: log,
	}
}

// Process runs one request through route -> pre-check -> provider ->
// post-check, recording latency, per-path outcome, and circuit-breaker
// state along the way.
func (g *Gateway) Process(ctx context.Context, req domain.Request, op domain.Operation) Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	g.latency.RecordRequestStart(req.ID, op)

	decision, err := g.router.Route(req)
	if err != nil {
		g.latency.RecordRequestComplete(req.ID, false, false)
		return Result{Err: err}
	}

	provider, ok := g.providers[decision.Route]
	if !ok {
		g.latency.RecordRequestComplete(req.ID, false, false)
		return Result{Route: decision.Route, Err: cperr.ProviderUnavailable(req.ID, "no provider bound for route "+string(decision.Route))}
	}

	path := string(decision.Route)
	if !g.breaker.Allow(path) {
		g.pathPerf.RecordOutcome(path, false, 0)
		g.latency.RecordRequestComplete(req.ID, false, false)
		return Result{Route: decision.Route, Err: cperr.ProviderUnavailable(req.ID, "circuit open for "+path)}
	}

	deadline := time.Now().Add(g.timeout)
	start := time.Now()
	call := g.guardrails.Invoke(ctx, req, provider, deadline)
	elapsed := time.Since(start).Milliseconds()

	if !call.ProviderCalled {
		// pre-check blocked the request before the provider was ever
		// invoked: not a path failure, so the breaker/perf monitor see
		// nothing for this attempt.
		g.latency.RecordRequestComplete(req.ID, false, false)
		return Result{Route: decision.Route, PreVerdict: call.PreVerdict, Blocked: true, Err: guardrails.BlockedError(call.PreVerdict, req.ID)}
	}

	success := call.PostVerdict.Allowed
	if success {
		g.breaker.RecordSuccess(path)
	} else {
		g.breaker.RecordFailure(path)
	}
	g.pathPerf.RecordOutcome(path, success, elapsed)
	g.latency.RecordRequestComplete(req.ID, false, false)

	if !success {
		if len(call.PostVerdict.Violations) > 0 && call.PostVerdict.Violations[0].Type == domain.ViolationSystemError {
			return Result{Route: decision.Route, PreVerdict: call.PreVerdict, PostVerdict: call.PostVerdict,
				Err: cperr.Internal(req.ID, fmt.Errorf("provider invocation failed for route %s", path))}
		}
		return Result{Route: decision.Route, PreVerdict: call.PreVerdict, PostVerdict: call.PostVerdict,
			Blocked: true, Err: guardrails.BlockedError(call.PostVerdict, req.ID)}
	}

	return Result{Response: call.Response, Route: decision.Route, PreVerdict: call.PreVerdict, PostVerdict: call.PostVerdict}
}
