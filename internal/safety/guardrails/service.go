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

// Package guardrails composes the Safety Detectors with an external
// content-policy sink into a SafetyVerdict (the Guardrails Service), and
// orchestrates pre/post checks around a provider call (the Active
// Guardrails Manager). The redaction pipeline shape is grounded on the
// teacher's response_processor.go RedactionStrategy design.
package guardrails

import (
	"context"
	"regexp"
	"time"

	"axonflow/controlplane/internal/cperr"
	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/ports"
	"axonflow/controlplane/internal/safety/detect"
)

var fallbackEmailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

// Service is the Guardrails Service: detectors + an external
// ContentPolicySink, aggregated into a SafetyVerdict.
type Service struct {
	cfg       config.SafetyConfig
	pii       *detect.PIIDetector
	toxicity  *detect.ToxicityDetector
	injection *detect.InjectionDetector
	sink      ports.ContentPolicySink
	log       *logger.Logger
}

// New builds a Guardrails Service. sink may be nil, in which case only the
// local detectors contribute to the verdict.
func New(cfg config.SafetyConfig, sink ports.ContentPolicySink, log *logger.Logger) *Service {
	return &Service{
		cfg:       cfg,
		pii:       detect.NewPIIDetector(),
		toxicity:  detect.NewToxicityDetector(),
		injection: detect.NewInjectionDetector(),
		sink:      sink,
		log:       log,
	}
}

func (s *Service) runDetectors(text string) domain.SafetyVerdict {
	start := time.Now()
	var violations []domain.Violation

	if s.cfg.EnablePII {
		func() {
			defer func() {
				if r := recover(); r != nil {
					violations = append(violations, systemErrorViolation())
				}
			}()
			tokens, err := s.pii.Detect(text)
			if err != nil {
				violations = append(violations, systemErrorViolation())
				return
			}
			violations = append(violations, detect.TokensToViolations(tokens)...)
		}()
	}
	if s.cfg.EnableToxicity {
		violations = append(violations, s.toxicity.Detect(text)...)
	}
	if s.cfg.EnablePromptInjection {
		violations = append(violations, s.injection.Detect(text)...)
	}

	allowed := true
	minConfidence := 1.0
	for _, v := range violations {
		if v.Confidence < minConfidence {
			minConfidence = v.Confidence
		}
		// Block on severity regardless of confidence, and independently on
		// any violation whose confidence clears cfg.ConfidenceThreshold
		// (default 0.7) even at MEDIUM severity -- spec §8 Scenario B's
		// profanity match (MEDIUM, confidence 0.80) must block.
		if v.Severity == domain.SeverityCritical || v.Severity == domain.SeverityHigh {
			allowed = false
		}
		if v.Confidence >= s.cfg.ConfidenceThreshold {
			allowed = false
		}
	}
	if len(violations) == 0 {
		minConfidence = 1.0
	}

	var modified string
	hasModified := false
	if len(violations) > 0 {
		mode := detect.RedactionMode(s.cfg.RedactionMode)
		tokens := violationsToTokens(violations)
		if len(tokens) > 0 {
			modified = detect.RedactPII(text, tokens, mode)
			hasModified = modified != text
		}
	}

	return domain.SafetyVerdict{
		Allowed:      allowed,
		Confidence:   minConfidence,
		Violations:   violations,
		Modified:     modified,
		HasModified:  hasModified,
		ProcessingMs: time.Since(start).Milliseconds(),
		Applied:      []string{"pii", "toxicity", "prompt_injection"},
	}
}

// violationsToTokens recovers PII spans from Violation records so the
// shared RedactPII routine can operate on the aggregated violation list
// regardless of which detector produced each entry.
func violationsToTokens(violations []domain.Violation) []detect.PIIToken {
	var out []detect.PIIToken
	for _, v := range violations {
		if v.Type != domain.ViolationPII || v.Span == nil {
			continue
		}
		out = append(out, detect.PIIToken{Span: *v.Span, Confidence: v.Confidence})
	}
	return out
}

func systemErrorViolation() domain.Violation {
	return domain.Violation{Type: domain.ViolationSystemError, Severity: domain.SeverityCritical, Confidence: 1.0, Details: "detector panic"}
}

// checkDirection runs the local detectors, then (if a sink is configured)
// aggregates with the provider-specific content-policy check per spec §4.2
// step 2: allowed := a.allowed ∧ b.allowed, confidence := min(a,b),
// violations := a ++ b, modified := b.modified ?? a.modified.
func (s *Service) checkDirection(ctx context.Context, text string, source ports.PolicySource, domainName, requestID string) domain.SafetyVerdict {
	local := s.runDetectors(text)

	if !local.Allowed && s.cfg.BlockOnViolation {
		return local
	}

	if s.sink == nil {
		return local
	}

	remote, err := s.sink.Check(ctx, ports.PolicyCheckRequest{Text: text, Source: source, Domain: domainName, RequestID: requestID})
	if err != nil {
		local.Violations = append(local.Violations, systemErrorViolation())
		local.Allowed = false
		return local
	}

	confidence := local.Confidence
	if remote.Confidence < confidence {
		confidence = remote.Confidence
	}
	modified := remote.Modified
	hasModified := remote.HasModified
	if !hasModified {
		modified = local.Modified
		hasModified = local.HasModified
	}

	return domain.SafetyVerdict{
		Allowed:      local.Allowed && remote.Allowed,
		Confidence:   confidence,
		Violations:   append(append([]domain.Violation{}, local.Violations...), remote.Violations...),
		Modified:     modified,
		HasModified:  hasModified,
		ProcessingMs: local.ProcessingMs,
		Applied:      local.Applied,
	}
}

// CheckInput runs the pre-request safety pipeline.
func (s *Service) CheckInput(ctx context.Context, text, provider, domainName, requestID string) domain.SafetyVerdict {
	return s.checkDirection(ctx, text, ports.SourceInput, domainName, requestID)
}

// CheckOutput runs the post-response safety pipeline.
func (s *Service) CheckOutput(ctx context.Context, text, provider, domainName, requestID string) domain.SafetyVerdict {
	return s.checkDirection(ctx, text, ports.SourceOutput, domainName, requestID)
}

// BlockedError builds the caller-visible PolicyBlocked error for a verdict
// that disallowed the request, describing only the category, never the
// matched span, per spec §7.
func BlockedError(verdict domain.SafetyVerdict, requestID string) *cperr.Error {
	category := "unknown"
	if len(verdict.Violations) > 0 {
		category = string(verdict.Violations[0].Type)
	}
	return cperr.PolicyBlocked(requestID, category)
}
