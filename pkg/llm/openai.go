// Copyright 2025 Kadir Pekel
//
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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/pdfassist/pkg/httpclient"
	"github.com/kadirpekel/pdfassist/pkg/observability"
)

const tracerName = "github.com/kadirpekel/pdfassist/pkg/llm"

// OpenAIProvider speaks the /chat/completions protocol shared by OpenAI,
// Groq, OpenRouter and Ollama.
type OpenAIProvider struct {
	config     Config
	httpClient *httpclient.Client
	tracer     trace.Tracer
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// NewOpenAIProvider builds a provider from cfg. Defaults are applied.
func NewOpenAIProvider(cfg Config, opts ...httpclient.Option) (*OpenAIProvider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}

	clientOpts := append([]httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
	}, opts...)

	return &OpenAIProvider{
		config:     cfg,
		httpClient: httpclient.New(clientOpts...),
		tracer:     observability.Tracer(tracerName),
	}, nil
}

// Name returns the model id.
func (p *OpenAIProvider) Name() string {
	return p.config.Model
}

// Generate sends one completion request. Tool calls in the reply are
// returned with decoded arguments; they are not executed here.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", p.config.Provider),
		attribute.String("llm.model", p.config.Model),
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.tools", len(tools)),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.makeRequest(ctx, p.buildRequest(messages, tools))

	var usage Usage
	if resp != nil {
		usage = resp.Usage
	}
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.config.Model, time.Since(start),
		usage.PromptTokens, usage.CompletionTokens, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}
	if len(resp.Choices) == 0 {
		err := errors.New("no choices in response")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	choice := resp.Choices[0]
	out := &Response{
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
	}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}

	toolCalls, err := parseToolCalls(choice.Message.ToolCalls)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid tool call")
		return nil, err
	}
	out.ToolCalls = toolCalls

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", usage.CompletionTokens),
		attribute.String("llm.finish_reason", choice.FinishReason),
	)
	return out, nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, tools []ToolDefinition) chatRequest {
	req := chatRequest{
		Model:       p.config.Model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: p.config.Temperature,
	}
	if p.config.MaxTokens > 0 {
		maxTokens := p.config.MaxTokens
		req.MaxTokens = &maxTokens
	}

	for _, msg := range messages {
		content := msg.Content
		cm := chatMessage{
			Role:       msg.Role,
			Content:    &content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatFunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		// Assistant turns that only carry tool calls send a null content.
		if msg.Role == RoleAssistant && msg.Content == "" && len(cm.ToolCalls) > 0 {
			cm.Content = nil
		}
		req.Messages = append(req.Messages, cm)
	}

	for _, tool := range tools {
		req.Tools = append(req.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	return req
}

func parseToolCalls(calls []chatToolCall) ([]ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("failed to parse arguments of tool call %s: %w", call.Function.Name, err)
			}
		}
		out = append(out, ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: args,
		})
	}
	return out, nil
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request chatRequest) (*chatResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(p.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				body = []byte(fmt.Sprintf("(failed to read error body: %v)", readErr))
			}
			return nil, parseErrorResponse(resp.StatusCode, body)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

var _ Model = (*OpenAIProvider)(nil)
