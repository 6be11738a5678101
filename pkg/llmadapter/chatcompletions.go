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

package llmadapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/tool"
)

// ChatCompletionsAdapter speaks the OpenAI Chat Completions wire shape
// (POST {BaseURL}/chat/completions), the shape most OSS-model gateways and
// Cohere/Gemini compatibility layers implement.
type ChatCompletionsAdapter struct {
	BaseURL     string
	APIKey      string
	Model       string
	Vendor      Vendor
	Client      *http.Client
	RetryPolicy RetryPolicy
}

// NewChatCompletionsAdapter builds an adapter with the default retry policy.
func NewChatCompletionsAdapter(baseURL, apiKey, model string, vendor Vendor) *ChatCompletionsAdapter {
	return &ChatCompletionsAdapter{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       model,
		Vendor:      vendor,
		Client:      http.DefaultClient,
		RetryPolicy: DefaultRetryPolicy(),
	}
}

func (a *ChatCompletionsAdapter) Name() string { return "chat-completions:" + a.Model }

type ccMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []ccToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type ccToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type ccToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ccRequest struct {
	Model            string         `json:"model"`
	Messages         []ccMessage    `json:"messages"`
	Tools            []ccToolDef    `json:"tools,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	ResponseFormat   map[string]any `json:"response_format,omitempty"`
}

type ccChoice struct {
	Message      ccMessage `json:"message"`
	Delta        ccMessage `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

type ccResponse struct {
	Choices []ccChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *ChatCompletionsAdapter) buildRequest(p Prompt, stream bool) ccRequest {
	cfg, messages := applyVendorQuirks(a.Vendor, p.GenerationConfig, p.Messages)

	req := ccRequest{
		Model:            a.Model,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		MaxTokens:        cfg.MaxTokens,
		Stop:             cfg.Stop,
		FrequencyPenalty: cfg.FrequencyPenalty,
		Stream:           stream,
	}
	if p.SystemInstruction != "" {
		req.Messages = append(req.Messages, ccMessage{Role: "system", Content: p.SystemInstruction})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, toCCMessage(m)...)
	}
	for _, t := range p.Tools {
		req.Tools = append(req.Tools, toCCToolDef(t))
	}
	if p.ResponseFormat != nil {
		req.ResponseFormat = map[string]any{
			"type":        "json_schema",
			"json_schema": map[string]any{"name": p.ResponseFormat.Name, "schema": p.ResponseFormat.ToJSONSchema()},
		}
	}
	return req
}

func toCCMessage(m message.Message) []ccMessage {
	if m.ToolResult != nil {
		return []ccMessage{{Role: "tool", Content: m.ToolResult.Content, ToolCallID: m.ToolResult.ToolRequestID}}
	}
	role := string(m.Role)
	out := ccMessage{Role: role, Content: m.Text()}
	for _, tr := range m.ToolRequests {
		args, _ := json.Marshal(tr.Args)
		tc := ccToolCall{ID: tr.ToolRequestID, Type: "function"}
		tc.Function.Name = tr.Name
		tc.Function.Arguments = string(args)
		out.ToolCalls = append(out.ToolCalls, tc)
	}
	return []ccMessage{out}
}

func toCCToolDef(t tool.Definition) ccToolDef {
	var def ccToolDef
	def.Type = "function"
	def.Function.Name = t.Name
	def.Function.Description = t.Description
	def.Function.Parameters = t.InputSchema()
	return def
}

func fromCCMessage(m ccMessage) (message.Message, error) {
	var contents []message.Content
	if m.Content != "" {
		contents = append(contents, message.TextContent{Text: m.Content})
	}
	if len(m.ToolCalls) > 0 {
		var reqs []message.ToolRequest
		for _, tc := range m.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return message.Message{}, fmt.Errorf("decoding tool call arguments: %w", err)
				}
			}
			reqs = append(reqs, message.ToolRequest{Name: tc.Function.Name, Args: args, ToolRequestID: tc.ID})
		}
		return message.New(message.RoleAssistant, message.TypeToolRequest, contents, message.WithToolRequests(reqs))
	}
	return message.New(message.RoleAssistant, message.TypeAgent, contents)
}

func (a *ChatCompletionsAdapter) do(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	url := a.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err // network errors are retried as-is
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		httpErr := fmt.Errorf("chat completions: http %d: %s", resp.StatusCode, buf.String())
		return nil, classifyHTTPStatus(resp, httpErr)
	}
	return resp, nil
}

func (a *ChatCompletionsAdapter) Send(ctx context.Context, p Prompt) (Completion, error) {
	reqBody, err := json.Marshal(a.buildRequest(p, false))
	if err != nil {
		return Completion{}, fmt.Errorf("encoding chat completions request: %w", err)
	}

	var parsed ccResponse
	err = withRetry(ctx, a.RetryPolicy, func(int) error {
		resp, err := a.do(ctx, reqBody, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&parsed)
	})
	if err != nil {
		return Completion{}, err
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, fmt.Errorf("chat completions: empty choices")
	}
	msg, err := fromCCMessage(parsed.Choices[0].Message)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Message: msg,
		TokenUsage: TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// Stream issues a Server-Sent-Events streaming request and translates the
// "data: {...}" lines into tagged Chunks, aggregating text deltas into a
// final Message on ChunkEnd (mirroring the teacher's StreamingAggregator).
func (a *ChatCompletionsAdapter) Stream(ctx context.Context, p Prompt) (<-chan Chunk, error) {
	reqBody, err := json.Marshal(a.buildRequest(p, true))
	if err != nil {
		return nil, fmt.Errorf("encoding chat completions request: %w", err)
	}
	resp, err := a.do(ctx, reqBody, true)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		out <- Chunk{Tag: ChunkStart}
		var textBuf strings.Builder
		toolCalls := map[int]*ccToolCall{}
		var usage TokenUsage

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}
			var chunk ccResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				textBuf.WriteString(delta.Content)
				out <- Chunk{Tag: ChunkText, TextDelta: delta.Content}
			}
			for i, tc := range delta.ToolCalls {
				existing, ok := toolCalls[i]
				if !ok {
					existing = &ccToolCall{ID: tc.ID, Type: "function"}
					toolCalls[i] = existing
				}
				if tc.Function.Name != "" {
					existing.Function.Name = tc.Function.Name
				}
				existing.Function.Arguments += tc.Function.Arguments
			}
			if chunk.Usage.TotalTokens > 0 {
				usage = TokenUsage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens, TotalTokens: chunk.Usage.TotalTokens}
			}
		}

		final := ccMessage{Content: textBuf.String()}
		for _, tc := range toolCalls {
			final.ToolCalls = append(final.ToolCalls, *tc)
		}
		msg, err := fromCCMessage(final)
		if err != nil {
			return
		}
		out <- Chunk{Tag: ChunkEnd, Message: &msg, TokenUsage: &usage}
	}()
	return out, nil
}
