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

package detect

import "axonflow/controlplane/internal/domain"

// AsViolation converts a PIIToken into the shared Violation shape so the
// Guardrails Service can aggregate PII findings alongside toxicity and
// prompt-injection violations uniformly.
func (t PIIToken) AsViolation() domain.Violation {
	return domain.Violation{
		Type:       domain.ViolationPII,
		Severity:   t.Type.Severity(),
		Confidence: t.Confidence,
		Details:    "pii: " + string(t.Type),
		Span:       &t.Span,
	}
}

// TokensToViolations converts a slice of PIIToken to Violations, preserving
// order.
func TokensToViolations(tokens []PIIToken) []domain.Violation {
	out := make([]domain.Violation, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.AsViolation())
	}
	return out
}
