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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/ports"
)

func testConfig() config.SafetyConfig {
	return config.SafetyConfig{
		EnablePII:             true,
		EnableToxicity:        true,
		EnablePromptInjection: true,
		BlockOnViolation:      true,
		RedactionMode:         "MASK",
		ConfidenceThreshold:   0.7,
	}
}

// fakeSink is a hand-written ports.ContentPolicySink test double.
type fakeSink struct {
	result ports.PolicyCheckResult
	err    error
	calls  int
}

func (f *fakeSink) Check(ctx context.Context, req ports.PolicyCheckRequest) (ports.PolicyCheckResult, error) {
	f.calls++
	if f.err != nil {
		return ports.PolicyCheckResult{}, f.err
	}
	return f.result, nil
}

func TestService_CheckInput_NoViolations(t *testing.T) {
	svc := New(testConfig(), nil, logger.New("test"))
	verdict := svc.CheckInput(context.Background(), "please summarize this document", "bedrock", "support", "req-1")
	assert := assert.New(t)
	assert.True(verdict.Allowed)
	assert.Empty(verdict.Violations)
	assert.False(verdict.HasModified)
}

func TestService_CheckInput_PIIRedacted(t *testing.T) {
	svc := New(testConfig(), nil, logger.New("test"))
	verdict := svc.CheckInput(context.Background(), "contact me at john@example.com", "bedrock", "support", "req-1")
	require := require.New(t)
	require.NotEmpty(verdict.Violations)
	require.True(verdict.HasModified)
	assert.Contains(t, verdict.Modified, "********")
}

// TestService_CheckOutput_ToxicityBlocks pins spec §8 scenario B literally:
// "This restaurant is fucking terrible" matches only the profanity keyword
// (MEDIUM severity, confidence 0.80), which clears confidenceThreshold
// (0.7) and must block even though it never reaches HIGH/CRITICAL
// severity. The sink must never be consulted, because BlockOnViolation
// short-circuits checkDirection.
func TestService_CheckOutput_ToxicityBlocks(t *testing.T) {
	sink := &fakeSink{}
	svc := New(testConfig(), sink, logger.New("test"))
	verdict := svc.CheckOutput(context.Background(), "This restaurant is fucking terrible", "bedrock", "support", "req-2")
	assert := assert.New(t)
	assert.False(verdict.Allowed)
	require.NotEmpty(t, verdict.Violations)
	assert.Contains([]domain.Severity{domain.SeverityMedium, domain.SeverityHigh}, verdict.Violations[0].Severity)
	assert.Equal(0, sink.calls, "local block must short-circuit before consulting the sink")
}

func TestService_CheckDirection_AggregatesWithSink(t *testing.T) {
	sink := &fakeSink{result: ports.PolicyCheckResult{Allowed: true, Confidence: 0.5}}
	svc := New(testConfig(), sink, logger.New("test"))
	verdict := svc.CheckInput(context.Background(), "a perfectly clean sentence", "bedrock", "support", "req-3")
	assert := assert.New(t)
	assert.Equal(1, sink.calls)
	assert.True(verdict.Allowed)
	assert.InDelta(0.5, verdict.Confidence, 0.0001)
}

func TestService_CheckDirection_SinkDisallows(t *testing.T) {
	sink := &fakeSink{result: ports.PolicyCheckResult{Allowed: false, Confidence: 0.3, Violations: []domain.Violation{{Type: domain.ViolationToxicity, Severity: domain.SeverityHigh}}}}
	svc := New(testConfig(), sink, logger.New("test"))
	verdict := svc.CheckInput(context.Background(), "a perfectly clean sentence", "bedrock", "support", "req-4")
	assert := assert.New(t)
	assert.False(verdict.Allowed)
	assert.Len(verdict.Violations, 1)
}

func TestService_CheckDirection_SinkModifiedWins(t *testing.T) {
	sink := &fakeSink{result: ports.PolicyCheckResult{Allowed: true, Confidence: 1.0, Modified: "remote-redacted", HasModified: true}}
	svc := New(testConfig(), sink, logger.New("test"))
	verdict := svc.CheckInput(context.Background(), "nothing locally flagged here", "bedrock", "support", "req-5")
	assert.Equal(t, "remote-redacted", verdict.Modified)
	assert.True(t, verdict.HasModified)
}

func TestService_CheckDirection_SinkErrorBlocks(t *testing.T) {
	sink := &fakeSink{err: errors.New("sink unreachable")}
	svc := New(testConfig(), sink, logger.New("test"))
	verdict := svc.CheckInput(context.Background(), "nothing locally flagged here", "bedrock", "support", "req-6")
	assert := assert.New(t)
	assert.False(verdict.Allowed)
	assert.NotEmpty(verdict.Violations)
	assert.Equal(domain.ViolationSystemError, verdict.Violations[len(verdict.Violations)-1].Type)
}

func TestService_DisabledDetectorsSkip(t *testing.T) {
	cfg := testConfig()
	cfg.EnableToxicity = false
	svc := New(cfg, nil, logger.New("test"))
	verdict := svc.CheckOutput(context.Background(), "those people are subhuman", "bedrock", "support", "req-7")
	assert.True(t, verdict.Allowed, "toxicity detector disabled, nothing else should flag this text")
}

func TestBlockedError_UsesFirstViolationCategory(t *testing.T) {
	verdict := domain.SafetyVerdict{
		Allowed:    false,
		Violations: []domain.Violation{{Type: domain.ViolationToxicity}, {Type: domain.ViolationPII}},
	}
	err := BlockedError(verdict, "req-8")
	assert.Contains(t, err.Error(), string(domain.ViolationToxicity))
}

func TestBlockedError_UnknownCategoryWhenNoViolations(t *testing.T) {
	err := BlockedError(domain.SafetyVerdict{Allowed: false}, "req-9")
	assert.Contains(t, err.Error(), "unknown")
}
