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

// Package bedrockclient implements the MEDIATED-path ports.ProviderClient
// over AWS Bedrock, grounded on the teacher's BedrockProvider in
// orchestrator/llm_router.go: aws-sdk-go-v2 for Signature V4 auth via IAM
// roles, model-family-specific request/response bodies.
package bedrockclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/cperr"
	"axonflow/controlplane/internal/domain"
)

// Client is a MEDIATED-path provider client invoking an Anthropic-family
// model on AWS Bedrock via bedrockruntime.InvokeModel.
type Client struct {
	cfg    config.MediatedConfig
	client *bedrockruntime.Client
}

// New loads the default AWS configuration for cfg.Region and builds a
// bedrockruntime.Client from it, the same two-step construction as the
// teacher's NewBedrockProvider.
func New(ctx context.Context, cfg config.MediatedConfig) (*Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, cperr.Internal("", fmt.Errorf("loading AWS config for bedrock region %s: %w", region, err))
	}
	return &Client{cfg: cfg, client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// Name identifies this ProviderClient for routing/telemetry dimensions.
func (c *Client) Name() string { return "mediated" }

type bedrockAnthropicReq struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	Messages         []map[string]string `json:"messages"`
}

type bedrockAnthropicResp struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Invoke calls bedrockruntime.InvokeModel with an Anthropic-on-Bedrock
// request body, honoring ctx/deadline cancellation for the underlying HTTP
// call the SDK issues.
func (c *Client) Invoke(ctx context.Context, req domain.Request, deadline time.Time) (domain.Response, error) {
	callCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	start := time.Now()
	model := c.cfg.Model

	body, err := json.Marshal(bedrockAnthropicReq{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
		Messages:         []map[string]string{{"role": "user", "content": req.Prompt}},
	})
	if err != nil {
		return domain.Response{}, cperr.Internal(req.ID, err)
	}

	out, err := c.client.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		if callCtx.Err() != nil {
			return domain.Response{}, cperr.Timeout(req.ID, err)
		}
		return domain.Response{}, cperr.ProviderUnavailable(req.ID, fmt.Sprintf("%s: %v", c.Name(), err))
	}

	var parsed bedrockAnthropicResp
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
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
