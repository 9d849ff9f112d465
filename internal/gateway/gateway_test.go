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

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/ports"
	"axonflow/controlplane/internal/routing"
	"axonflow/controlplane/internal/safety/guardrails"
	"axonflow/controlplane/internal/sinks/policysink"
	"axonflow/controlplane/internal/telemetry/latency"
	"axonflow/controlplane/internal/telemetry/pathmetrics"
)

type fakeProvider struct {
	name    string
	content string
	err     error
}

func (f fakeProvider) Name() string { return f.name }
func (f fakeProvider) Invoke(ctx context.Context, req domain.Request, deadline time.Time) (domain.Response, error) {
	if f.err != nil {
		return domain.Response{}, f.err
	}
	return domain.Response{Content: f.content, Provider: domain.Provider(f.name)}, nil
}

func testRules() []domain.RoutingRule {
	return []domain.RoutingRule{
		{OperationType: "chat", Priority: domain.PriorityHigh, LatencyRequirementMs: 1500, Primary: domain.RouteDirect, Fallback: domain.RouteMediated},
	}
}

func buildGateway(t *testing.T, provider ports.ProviderClient) (*Gateway, *routing.CircuitBreaker) {
	t.Helper()
	breaker := routing.NewCircuitBreaker(routing.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 2})
	perf := pathmetrics.New(1000)
	router := routing.NewRouter(testRules(), breaker, perf)
	lat := latency.New(1000, 5*time.Minute, latency.Targets{Generation: 1500, RAG: 300, Cached: 300, CacheHitTargetPct: 80})

	safetyCfg := config.SafetyConfig{EnablePII: true, EnableToxicity: true, EnablePromptInjection: true, BlockOnViolation: true, ConfidenceThreshold: 0.7}
	svc := guardrails.New(safetyCfg, policysink.New(), logger.New("test"))
	mgr := guardrails.NewManager(svc, false, true, logger.New("test"))

	providers := map[domain.RouteType]ports.ProviderClient{domain.RouteDirect: provider}
	gw := New(mgr, router, breaker, perf, lat, providers, time.Second, logger.New("test"))
	return gw, breaker
}

func TestProcess_SuccessfulRoundTrip(t *testing.T) {
	gw, _ := buildGateway(t, fakeProvider{name: "direct", content: "a clean response"})
	req := domain.Request{ID: "r1", Prompt: "hello there", Context: domain.RequestContext{Domain: "chat", Intent: "chat"}}

	result := gw.Process(context.Background(), req, domain.OperationGeneration)
	require.NoError(t, result.Err)
	assert.False(t, result.Blocked)
	assert.Equal(t, domain.RouteDirect, result.Route)
	assert.Equal(t, "a clean response", result.Response.Content)
}

func TestProcess_NoProviderBoundForRouteIsProviderUnavailable(t *testing.T) {
	gw, _ := buildGateway(t, fakeProvider{name: "direct", content: "ok"})
	gw.providers = map[domain.RouteType]ports.ProviderClient{} // nothing bound

	req := domain.Request{ID: "r1", Prompt: "hi", Context: domain.RequestContext{Domain: "chat", Intent: "chat"}}
	result := gw.Process(context.Background(), req, domain.OperationGeneration)
	require.Error(t, result.Err)
}

func TestProcess_UnknownOperationSurfacesRoutingError(t *testing.T) {
	gw, _ := buildGateway(t, fakeProvider{name: "direct", content: "ok"})
	req := domain.Request{ID: "r1", Prompt: "hi", Context: domain.RequestContext{Domain: "unmapped", Intent: "unmapped"}}
	result := gw.Process(context.Background(), req, domain.OperationGeneration)
	require.Error(t, result.Err)
}

func TestProcess_OpenCircuitSkipsProviderCall(t *testing.T) {
	gw, breaker := buildGateway(t, fakeProvider{name: "direct", content: "ok"})
	for i := 0; i < 10; i++ {
		breaker.RecordFailure(string(domain.RouteDirect))
	}
	breaker.ForceOpen(string(domain.RouteDirect))

	req := domain.Request{ID: "r1", Prompt: "hi", Context: domain.RequestContext{Domain: "chat", Intent: "chat"}}
	result := gw.Process(context.Background(), req, domain.OperationGeneration)
	require.Error(t, result.Err)
}

func TestProcess_ProviderErrorMarkedAsSystemErrorInternal(t *testing.T) {
	gw, _ := buildGateway(t, fakeProvider{name: "direct", err: assert.AnError})
	req := domain.Request{ID: "r1", Prompt: "hi", Context: domain.RequestContext{Domain: "chat", Intent: "chat"}}
	result := gw.Process(context.Background(), req, domain.OperationGeneration)
	require.Error(t, result.Err)
	assert.False(t, result.Blocked)
}
