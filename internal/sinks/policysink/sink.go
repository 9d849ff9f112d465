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

// Package policysink implements the default ports.ContentPolicySink: an
// always-allow pass-through used when no provider-specific architectural
// policy check (e.g. Bedrock Guardrails) is configured. The Guardrails
// Service's local detectors remain the enforcement point; this sink exists
// only so the service always has a non-nil second opinion to consult,
// following the same degrade-safely-to-a-no-op idiom as
// internal/sinks/logsink rather than the teacher's enterprise-gated
// connectors/slack stub, which instead degrades by erroring.
package policysink

import (
	"context"

	"axonflow/controlplane/internal/ports"
)

// Sink is the pass-through ports.ContentPolicySink.
type Sink struct{}

// New builds a pass-through Sink.
func New() *Sink { return &Sink{} }

// Check always allows, deferring entirely to local detector verdicts.
func (Sink) Check(ctx context.Context, req ports.PolicyCheckRequest) (ports.PolicyCheckResult, error) {
	return ports.PolicyCheckResult{Allowed: true, Confidence: 1.0}, nil
}
