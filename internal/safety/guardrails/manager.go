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

package guardrails

import (
	"context"
	"time"

	"github.com/google/uuid"

	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/ports"
)

// CallResult is what the Active Guardrails Manager returns for one
// request/response round-trip.
type CallResult struct {
	Request       domain.Request
	Response      domain.Response
	PreVerdict    domain.SafetyVerdict
	PostVerdict   domain.SafetyVerdict
	Delegate      bool // bedrock-usage policy requested a different provider
	ProviderCalled bool
}

// Manager is the Active Guardrails Manager: it wraps a provider call with
// pre- and post-checks, applies redactions, and degrades safely on error.
type Manager struct {
	service  *Service
	log      *logger.Logger
	strict   bool
	block    bool
}

// New builds an Active Guardrails Manager around an existing Service.
func NewManager(service *Service, strict, blockOnViolation bool, log *logger.Logger) *Manager {
	return &Manager{service: service, log: log, strict: strict, block: blockOnViolation}
}

// Invoke runs pre-check -> provider -> post-check, in that order, per the
// §5 ordering guarantee: pre-check completes-before provider invocation
// completes-before post-check completes-before return.
func (m *Manager) Invoke(ctx context.Context, req domain.Request, provider ports.ProviderClient, deadline time.Time) CallResult {
	requestID := req.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	pre := m.service.CheckInput(ctx, req.Prompt, provider.Name(), req.Context.Domain, requestID)
	result := CallResult{Request: req, PreVerdict: pre}

	if !pre.Allowed && m.block {
		if m.service.cfg.LogViolations {
			m.log.Warn(requestID, requestID, "pre-check blocked request", map[string]any{"violations": len(pre.Violations)})
		}
		return result
	}

	effectiveReq := req
	if pre.HasModified {
		effectiveReq = req.WithPrompt(pre.Modified)
	}
	result.Request = effectiveReq

	resp, err := provider.Invoke(ctx, effectiveReq, deadline)
	result.ProviderCalled = true
	if err != nil {
		result.PostVerdict = domain.SafetyVerdict{
			Allowed:    false,
			Violations: []domain.Violation{systemErrorViolation()},
		}
		return result
	}

	post := m.service.CheckOutput(ctx, resp.Content, provider.Name(), req.Context.Domain, requestID)
	if post.HasModified {
		resp = resp.WithContent(post.Modified)
	} else if !post.Allowed && fallbackEmailRe.MatchString(resp.Content) {
		// Fallback email-only redaction: applied only when neither the
		// sink nor the local detectors already produced a modified
		// string (spec §9 open question: follow source order).
		resp = resp.WithContent(fallbackEmailRe.ReplaceAllString(resp.Content, "[REDACTED]"))
		post.Modified = resp.Content
		post.HasModified = true
	}

	result.Response = resp
	result.PostVerdict = post
	return result
}
