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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/oracle/wayflow-sub001/pkg/message"
)

// ResponsesAdapter speaks the OpenAI Responses wire shape (POST
// {BaseURL}/responses), distinct from Chat Completions in that input and
// output are both flat item arrays rather than a role/content message list,
// and reasoning is carried as its own item type rather than message
// metadata.
type ResponsesAdapter struct {
	BaseURL     string
	APIKey      string
	Model       string
	Client      *http.Client
	RetryPolicy RetryPolicy
}

func NewResponsesAdapter(baseURL, apiKey, model string) *ResponsesAdapter {
	return &ResponsesAdapter{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       model,
		Client:      http.DefaultClient,
		RetryPolicy: DefaultRetryPolicy(),
	}
}

func (a *ResponsesAdapter) Name() string { return "responses:" + a.Model }

type respItem struct {
	Type      string         `json:"type"`
	Role      string         `json:"role,omitempty"`
	Content   []respContent  `json:"content,omitempty"`
	CallID    string         `json:"call_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments string         `json:"arguments,omitempty"`
	Output    string         `json:"output,omitempty"`
	Summary   []respContent  `json:"summary,omitempty"`
}

type respContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type respToolDef struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type respRequest struct {
	Model             string         `json:"model"`
	Input             []respItem     `json:"input"`
	Instructions      string         `json:"instructions,omitempty"`
	Tools             []respToolDef  `json:"tools,omitempty"`
	Temperature       *float64       `json:"temperature,omitempty"`
	TopP              *float64       `json:"top_p,omitempty"`
	MaxOutputTokens   *int           `json:"max_output_tokens,omitempty"`
	Stream            bool           `json:"stream,omitempty"`
	PromptCacheKey    string         `json:"prompt_cache_key,omitempty"`
	Text              map[string]any `json:"text,omitempty"`
}

type respResponse struct {
	Output []respItem `json:"output"`
	Usage  struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *ResponsesAdapter) buildRequest(p Prompt, stream bool) respRequest {
	req := respRequest{
		Model:           a.Model,
		Instructions:    p.SystemInstruction,
		Temperature:     p.GenerationConfig.Temperature,
		TopP:            p.GenerationConfig.TopP,
		MaxOutputTokens: p.GenerationConfig.MaxTokens,
		Stream:          stream,
		PromptCacheKey:  ResolvePromptCacheKey(p.Messages),
	}
	for _, m := range p.Messages {
		req.Input = append(req.Input, toRespItems(m)...)
	}
	for _, t := range p.Tools {
		req.Tools = append(req.Tools, respToolDef{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.InputSchema()})
	}
	if p.ResponseFormat != nil {
		req.Text = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   p.ResponseFormat.Name,
				"schema": p.ResponseFormat.ToJSONSchema(),
			},
		}
	}
	return req
}

func toRespItems(m message.Message) []respItem {
	if m.ToolResult != nil {
		return []respItem{{Type: "function_call_output", CallID: m.ToolResult.ToolRequestID, Output: m.ToolResult.Content}}
	}
	var items []respItem
	if r, ok := m.ReasoningContent(); ok {
		items = append(items, respItem{Type: "reasoning", Summary: []respContent{{Type: "summary_text", Text: r.Text}}})
	}
	if text := m.Text(); text != "" || len(m.ToolRequests) == 0 {
		items = append(items, respItem{Type: "message", Role: string(m.Role), Content: []respContent{{Type: "input_text", Text: text}}})
	}
	for _, tr := range m.ToolRequests {
		args, _ := json.Marshal(tr.Args)
		items = append(items, respItem{Type: "function_call", CallID: tr.ToolRequestID, Name: tr.Name, Arguments: string(args)})
	}
	return items
}

func fromRespOutput(items []respItem) (message.Message, error) {
	var contents []message.Content
	var reqs []message.ToolRequest
	var opts []message.Option
	for _, item := range items {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				contents = append(contents, message.TextContent{Text: c.Text})
			}
		case "reasoning":
			var text strings.Builder
			for _, s := range item.Summary {
				text.WriteString(s.Text)
			}
			opts = append(opts, message.WithReasoning(message.ReasoningContent{Text: text.String()}))
		case "function_call":
			var args map[string]any
			if item.Arguments != "" {
				if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
					return message.Message{}, fmt.Errorf("decoding function_call arguments: %w", err)
				}
			}
			reqs = append(reqs, message.ToolRequest{Name: item.Name, Args: args, ToolRequestID: item.CallID})
		}
	}
	if len(reqs) > 0 {
		opts = append(opts, message.WithToolRequests(reqs))
		var textOnly []message.Content
		for _, c := range contents {
			if _, ok := c.(message.TextContent); ok {
				textOnly = append(textOnly, c)
			}
		}
		return message.New(message.RoleAssistant, message.TypeToolRequest, textOnly, opts...)
	}
	return message.New(message.RoleAssistant, message.TypeAgent, contents, opts...)
}

func (a *ResponsesAdapter) do(ctx context.Context, body []byte) (*http.Response, error) {
	url := a.BaseURL + "/responses"
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
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		httpErr := fmt.Errorf("responses: http %d: %s", resp.StatusCode, buf.String())
		return nil, classifyHTTPStatus(resp, httpErr)
	}
	return resp, nil
}

func (a *ResponsesAdapter) Send(ctx context.Context, p Prompt) (Completion, error) {
	reqBody, err := json.Marshal(a.buildRequest(p, false))
	if err != nil {
		return Completion{}, fmt.Errorf("encoding responses request: %w", err)
	}
	var parsed respResponse
	err = withRetry(ctx, a.RetryPolicy, func(int) error {
		resp, err := a.do(ctx, reqBody)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&parsed)
	})
	if err != nil {
		return Completion{}, err
	}
	msg, err := fromRespOutput(parsed.Output)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Message: msg,
		TokenUsage: TokenUsage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// Stream is not yet wired for the Responses shape's sequence-numbered SSE
// events on the outbound adapter side (only pkg/responsesserver, the
// inbound-facing server, speaks that event stream); callers needing
// streaming against a Responses-shaped backend should use Send and poll, or
// use ChatCompletionsAdapter against the same model where the provider
// exposes it.
func (a *ResponsesAdapter) Stream(ctx context.Context, p Prompt) (<-chan Chunk, error) {
	completion, err := a.Send(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make(chan Chunk, 2)
	out <- Chunk{Tag: ChunkStart}
	out <- Chunk{Tag: ChunkEnd, Message: &completion.Message, TokenUsage: &completion.TokenUsage}
	close(out)
	return out, nil
}
