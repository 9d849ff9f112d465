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
	"testing"

	"github.com/stretchr/testify/assert"

	"axonflow/controlplane/internal/domain"
)

// TestToxicityDetector_ProfanityBlocksOutput pins spec §8 scenario B: a
// profane restaurant review is flagged with MEDIUM or HIGH severity.
func TestToxicityDetector_ProfanityBlocksOutput(t *testing.T) {
	d := NewToxicityDetector()
	violations := d.Detect("This restaurant is fucking terrible")
	assert := assert.New(t)
	assert.NotEmpty(violations)
	found := false
	for _, v := range violations {
		if v.Severity == domain.SeverityMedium || v.Severity == domain.SeverityHigh {
			found = true
		}
	}
	assert.True(found)
}

func TestToxicityDetector_CaseInsensitive(t *testing.T) {
	d := NewToxicityDetector()
	violations := d.Detect("I will KILL YOU if you do that again")
	require := assert.New(t)
	require.NotEmpty(violations)
	require.Equal(domain.ViolationViolence, violations[0].Type)
}

func TestToxicityDetector_NoMatchOnCleanText(t *testing.T) {
	d := NewToxicityDetector()
	violations := d.Detect("This dish was delicious and well balanced")
	assert.Empty(t, violations)
}

func TestToxicityDetector_SubstringContainmentSemantics(t *testing.T) {
	// Open Question decision: substring containment, not word-boundary.
	// "classic" does not contain any configured keyword, so this must not
	// false-flag; "asshole" embedded in a longer token must still match.
	d := NewToxicityDetector()
	assert.Empty(t, d.Detect("a classic dish from the region"))
	assert.NotEmpty(t, d.Detect("youre such an assholee honestly"))
}

func TestToxicityDetector_Score(t *testing.T) {
	d := NewToxicityDetector()
	assert.Equal(t, 0.0, d.Score(""))
	assert.Equal(t, 0.0, d.Score("nothing toxic here"))

	// hate speech: confidence 0.95 x severityWeight(CRITICAL=1.0) = 0.95
	score := d.Score("those people are subhuman")
	assert.InDelta(t, 0.95, score, 0.0001)
}

func TestSeverityWeight(t *testing.T) {
	assert.Equal(t, 0.25, severityWeight(domain.SeverityLow))
	assert.Equal(t, 0.5, severityWeight(domain.SeverityMedium))
	assert.Equal(t, 0.75, severityWeight(domain.SeverityHigh))
	assert.Equal(t, 1.0, severityWeight(domain.SeverityCritical))
}
