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

// Package directclient implements the DIRECT-path ports.ProviderClient over
// a hand-rolled net/http call, the same way the teacher's AnthropicProvider
// in orchestrator/llm_router.go talks to api.anthropic.com without an SDK.
package directclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/cperr"
	"axonflow/controlplane/internal/domain"
)

// Client is a DIRECT-path provider client talking to a messages-style HTTP
// API (Anthropic's wire format by default, per the teacher's
// AnthropicProvider.Query).
type Client struct {
	cfg    config.DirectConfig
	apiKey string
	http   *http.Client
}

// New builds a Client. apiKey is read from the environment variable named
// by cfg.APIKeyEnv; an empty result is not an error here, since Invoke
// surfaces it as a ProviderUnavailable error per request instead of failing
// at construction (mirrors IsHealthy()'s apiKey != "" check in the teacher).
func New(cfg config.DirectConfig) *Client {
	return &Client{
		cfg:    cfg,
		apiKey: os.Getenv(cfg.APIKeyEnv),
		http:   &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
	}
}

// Name identifies this ProviderClient for routing/telemetry dimensions.
func (c *Client) Name() string { return "direct" }

type messageReq struct {
	Model       string              `json:"model"`
	Messages    []map[string]string `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
}

type messageResp struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Invoke issues one HTTP POST to the configured endpoint and decodes the
// messages-style response into a domain.Response. The request is aborted,
// not left running, if ctx is canceled or deadline passes first.
func (c *Client) Invoke(ctx context.Context, req domain.Request, deadline time.Time) (domain.Response, error) {
	if c.apiKey == "" {
		return domain.Response{}, cperr.ProviderUnavailable(req.ID, fmt.Sprintf("%s: no API key in env %s", c.Name(), c.cfg.APIKeyEnv))
	}

	callCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	start := time.Now()
	body, err := json.Marshal(messageReq{
		Model:     c.cfg.Model,
		Messages:  []map[string]string{{"role": "user", "content": req.Prompt}},
		MaxTokens: 1024,
	})
	if err != nil {
		return domain.Response{}, cperr.Internal(req.ID, err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return domain.Response{}, cperr.Internal(req.ID, err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return domain.Response{}, cperr.Timeout(req.ID, err)
		}
		return domain.Response{}, cperr.ProviderUnavailable(req.ID, fmt.Sprintf("%s: %v", c.Name(), err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return domain.Response{}, cperr.ProviderUnavailable(req.ID, fmt.Sprintf("%s: status %d: %s", c.Name(), resp.StatusCode, string(raw)))
	}

	var parsed messageResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Response{}, cperr.Internal(req.ID, err)
	}

	var content string
	if len(parsed.Content) > 0 {
		content = parsed.Content[0].Text
	}

	return domain.Response{
		Content:  content,
		Provider: domain.Provider(c.Name()),
		Metadata: domain.ResponseMetadata{
			Tokens:    parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
			LatencyMs: time.Since(start).Milliseconds(),
		},
	}, nil
}
