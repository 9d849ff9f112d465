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
	"strings"

	"axonflow/controlplane/internal/domain"
)

// ToxicityCategory is one keyword bucket the Toxicity Detector scores.
type ToxicityCategory string

const (
	CategoryHateSpeech     ToxicityCategory = "hate_speech"
	CategoryProfanity      ToxicityCategory = "profanity"
	CategoryViolence       ToxicityCategory = "violence"
	CategoryDiscrimination ToxicityCategory = "discrimination"
	CategorySexualExplicit ToxicityCategory = "sexual_explicit"
)

type toxicityRule struct {
	category   ToxicityCategory
	keywords   []string
	confidence float64
	severity   domain.Severity
}

// severityWeight maps a Severity to the weight used by score().
func severityWeight(s domain.Severity) float64 {
	switch s {
	case domain.SeverityLow:
		return 0.25
	case domain.SeverityMedium:
		return 0.5
	case domain.SeverityHigh:
		return 0.75
	case domain.SeverityCritical:
		return 1.0
	default:
		return 0
	}
}

// ToxicityDetector matches case-insensitive substring containment against
// fixed keyword sets per category. Substring containment (not word-boundary
// matching) is a deliberate pin of spec §9's open question: the source
// behavior is substring containment and this implementation matches it.
type ToxicityDetector struct {
	rules []toxicityRule
}

// NewToxicityDetector builds the detector with the spec §4.1 category table.
func NewToxicityDetector() *ToxicityDetector {
	return &ToxicityDetector{rules: []toxicityRule{
		{CategoryHateSpeech, []string{"subhuman", "exterminate them", "racial slur"}, 0.95, domain.SeverityCritical},
		{CategoryProfanity, []string{"fuck", "shit", "asshole", "bastard"}, 0.80, domain.SeverityMedium},
		{CategoryViolence, []string{"kill you", "beat you up", "murder", "stab"}, 0.70, domain.SeverityHigh},
		{CategoryDiscrimination, []string{"go back to your country", "women can't", "those people always"}, 0.90, domain.SeverityHigh},
		{CategorySexualExplicit, []string{"explicit sexual act", "porn scene"}, 0.75, domain.SeverityHigh},
	}}
}

// Detect returns one Violation per matched keyword, in category-table order
// then first-match order within a category.
func (d *ToxicityDetector) Detect(text string) []domain.Violation {
	lower := strings.ToLower(text)
	var out []domain.Violation
	for _, rule := range d.rules {
		for _, kw := range rule.keywords {
			if idx := strings.Index(lower, strings.ToLower(kw)); idx >= 0 {
				out = append(out, domain.Violation{
					Type:       toViolationType(rule.category),
					Severity:   rule.severity,
					Confidence: rule.confidence,
					Details:    "toxicity: " + string(rule.category),
					Span:       &domain.Span{Start: idx, End: idx + len(kw)},
				})
			}
		}
	}
	return out
}

// Score computes avg(confidence x severityWeight) across violations found
// in text; an empty result scores 0.
func (d *ToxicityDetector) Score(text string) float64 {
	violations := d.Detect(text)
	if len(violations) == 0 {
		return 0
	}
	var sum float64
	for _, v := range violations {
		sum += v.Confidence * severityWeight(v.Severity)
	}
	return sum / float64(len(violations))
}

func toViolationType(c ToxicityCategory) domain.ViolationType {
	switch c {
	case CategoryHateSpeech:
		return domain.ViolationHateSpeech
	case CategoryViolence:
		return domain.ViolationViolence
	case CategorySexualExplicit:
		return domain.ViolationSexual
	default:
		return domain.ViolationToxicity
	}
}
