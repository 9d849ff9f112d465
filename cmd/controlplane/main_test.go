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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/wiring"
)

func testSystem(t *testing.T) *wiring.System {
	t.Helper()
	sys, err := wiring.New(context.Background(), config.Default(), "", logger.New("test"))
	require.NoError(t, err)
	return sys
}

func TestHealthzReportsStartingBeforeFirstSample(t *testing.T) {
	sys := testSystem(t)
	r := newRouter(sys, logger.New("test"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "starting", resp.Status)
}

func TestHealthzReflectsLatestSample(t *testing.T) {
	sys := testSystem(t)
	_, err := sys.Health.Sample(context.Background())
	require.NoError(t, err)

	r := newRouter(sys, logger.New("test"))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, "starting", resp.Status)
}

func TestDebugRouter_ReturnsRulesAndBreakerStates(t *testing.T) {
	sys := testSystem(t)
	r := newRouter(sys, logger.New("test"))

	req := httptest.NewRequest(http.MethodGet, "/debug/router", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp debugRouterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Rules)
	assert.Contains(t, resp.Breakers, "DIRECT")
	assert.Contains(t, resp.Breakers, "MEDIATED")
}

func TestProcessHandler_RejectsEmptyPrompt(t *testing.T) {
	sys := testSystem(t)
	r := newRouter(sys, logger.New("test"))

	body, _ := json.Marshal(processRequest{Prompt: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessHandler_MalformedBodyIsBadRequest(t *testing.T) {
	sys := testSystem(t)
	r := newRouter(sys, logger.New("test"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessHandler_UnresolvableProviderIsBadGateway(t *testing.T) {
	sys := testSystem(t)
	r := newRouter(sys, logger.New("test"))

	body, _ := json.Marshal(processRequest{Prompt: "hello", Domain: "GENERATION", Intent: "GENERATION"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// DIRECT has no API key configured in this test environment, so the
	// provider call fails and the handler reports it as a bad gateway
	// (not blocked, since the safety pre-check never fired).
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestDriftEvaluateHandler_RejectsMalformedBody(t *testing.T) {
	sys := testSystem(t)
	r := newRouter(sys, logger.New("test"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/drift/evaluate", bytes.NewReader([]byte("{bad")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDriftEvaluateHandler_ReturnsScoresAndAlerts(t *testing.T) {
	sys := testSystem(t)
	r := newRouter(sys, logger.New("test"))

	body := []byte(`{"DataDriftScore": 0.5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/drift/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp driftEvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
}

func TestGetEnv_FallsBackWhenUnset(t *testing.T) {
	t.Setenv("AXONFLOW_TEST_UNSET_VAR", "")
	assert.Equal(t, "fallback", getEnv("AXONFLOW_TEST_UNSET_VAR", "fallback"))
}

func TestGetEnv_UsesSetValue(t *testing.T) {
	t.Setenv("AXONFLOW_TEST_SET_VAR", "custom")
	assert.Equal(t, "custom", getEnv("AXONFLOW_TEST_SET_VAR", "fallback"))
}
