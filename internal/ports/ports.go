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

// Package ports defines the fixed capability set the control plane uses to
// reach the outside world: provider invocation, content-policy checks,
// notifications, metric export, feature-flag persistence, resource probing,
// and deployment scaling. Every external dependency the core takes is one
// of these interfaces — nothing in internal/safety, internal/routing,
// internal/health, internal/optimize, or internal/shutdown imports a
// concrete adapter directly.
package ports

import (
	"context"
	"time"

	"axonflow/controlplane/internal/domain"
)

// ProviderClient invokes a model provider. Implementations must honor
// ctx cancellation: an in-flight call is aborted, not left running.
type ProviderClient interface {
	Invoke(ctx context.Context, req domain.Request, deadline time.Time) (domain.Response, error)
	Name() string
}

// PolicySource distinguishes the direction a ContentPolicySink is checking.
type PolicySource string

const (
	SourceInput  PolicySource = "INPUT"
	SourceOutput PolicySource = "OUTPUT"
)

// PolicyCheckRequest is the input to ContentPolicySink.Check.
type PolicyCheckRequest struct {
	Text      string
	Source    PolicySource
	Domain    string
	RequestID string
}

// PolicyCheckResult is a provider-specific content-policy verdict, prior to
// aggregation with the local detector verdict.
type PolicyCheckResult struct {
	Allowed     bool
	Confidence  float64
	Violations  []domain.Violation
	Modified    string
	HasModified bool
}

// ContentPolicySink is the provider-specific architectural policy check
// consulted by the Guardrails Service after local detectors run.
type ContentPolicySink interface {
	Check(ctx context.Context, req PolicyCheckRequest) (PolicyCheckResult, error)
}

// NotificationChannel is one of the pluggable fan-out destinations for
// NotificationSink.
type NotificationChannel string

const (
	ChannelChat   NotificationChannel = "chat"
	ChannelEmail  NotificationChannel = "email"
	ChannelPager  NotificationChannel = "pager"
)

// NotificationSink publishes an operator-facing message. Failures are
// logged by the caller, never propagated as request-fatal errors.
type NotificationSink interface {
	Publish(ctx context.Context, channel NotificationChannel, subject, body string) error
}

// MetricSink is the observability export port; implementations batch.
type MetricSink interface {
	Publish(ctx context.Context, namespace, metricName string, value float64, unit string, dimensions map[string]string, timestamp time.Time) error
}

// FlagChange is one entry on a FeatureFlagStore's optional change stream.
type FlagChange struct {
	Name      string
	Value     bool
	Timestamp time.Time
}

// FeatureFlagStore is the read-mostly flag persistence port.
type FeatureFlagStore interface {
	Get(ctx context.Context, name string) (bool, error)
	Set(ctx context.Context, name string, value bool, meta map[string]string) error
	// Changes returns a channel of flag mutations, or nil if the
	// implementation does not support a change stream.
	Changes() <-chan FlagChange
}

// ResourceSample is one ResourceProbe reading.
type ResourceSample struct {
	CPUPct  float64
	MemPct  float64
	DiskPct float64
	NetInKB float64
	NetOutKB float64
}

// ResourceProbe reports host/process resource utilization on request.
type ResourceProbe interface {
	Sample(ctx context.Context) (ResourceSample, error)
}

// DeploymentControl is the abstract scaling port used by the Optimization
// Orchestrator's scaling recommendations. Out of core scope — the only
// binding in this module is internal/wiring's logging stub — but the
// interface is specified so the Orchestrator can depend on it without a
// process-wide singleton.
type DeploymentControl interface {
	ScaleOut(ctx context.Context, target string, delta int) error
	ScaleIn(ctx context.Context, target string, delta int) error
}
