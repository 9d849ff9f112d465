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

import (
	"regexp"

	"axonflow/controlplane/internal/domain"
)

// InjectionDetector matches a fixed regex set against common prompt
// injection payloads.
type InjectionDetector struct {
	patterns []*regexp.Regexp
}

// NewInjectionDetector builds the detector with the spec §4.1 payload set.
func NewInjectionDetector() *InjectionDetector {
	return &InjectionDetector{patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
		regexp.MustCompile(`(?i)forget\s+everything\s+above`),
		regexp.MustCompile(`(?i)\bsystem\s*:\s*`),
		regexp.MustCompile(`\{\{.*?\}\}`),
		regexp.MustCompile(`<%.*?%>`),
		regexp.MustCompile(`(?is)<script.*?>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)\beval\s*\(`),
		regexp.MustCompile(`(?i)\bexec\s*\(`),
	}}
}

// Detect returns one HIGH-severity, 0.80-confidence Violation per hit, in
// pattern-table order then leftmost-match order within a pattern.
func (d *InjectionDetector) Detect(text string) []domain.Violation {
	var out []domain.Violation
	for _, re := range d.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, domain.Violation{
				Type:       domain.ViolationPromptInjection,
				Severity:   domain.SeverityHigh,
				Confidence: 0.80,
				Details:    "prompt injection pattern matched",
				Span:       &domain.Span{Start: loc[0], End: loc[1]},
			})
		}
	}
	return out
}
