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

func TestTokensToViolations(t *testing.T) {
	tokens := []PIIToken{
		{Type: PIIEmail, Confidence: 0.95, Span: domain.Span{Start: 0, End: 5}},
		{Type: PIIIBAN, Confidence: 0.95, Span: domain.Span{Start: 6, End: 10}},
	}
	violations := TokensToViolations(tokens)
	require := assert.New(t)
	require.Len(violations, 2)
	require.Equal(domain.ViolationPII, violations[0].Type)
	require.Equal(domain.SeverityHigh, violations[0].Severity)
	require.Equal(domain.SeverityCritical, violations[1].Severity)
}
