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

// Package mcptool connects to a Model Context Protocol server and exposes
// its tools through pkg/tool.Box, connecting lazily on first use. Both
// Transport values use the same exchange: each JSON-RPC 2.0 request is
// POSTed to the configured URL and the reply is read either as a JSON body
// or as a one-shot Server-Sent Events response. The long-lived SSE GET
// stream of the older SSE transport is not opened for either value. stdio
// is not offered since the executor process has no subprocess lifecycle to
// own.
package mcptool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/tool"
)

const (
	protocolVersion    = "2024-11-05"
	defaultSSETimeout  = 5 * time.Minute
	clientName         = "wayflow"
	clientVersion      = "0.1.0"
)

// Transport names the MCP server's wire transport. It is recorded in logs
// only; both values are reached through the same POST exchange described in
// the package doc.
type Transport string

const (
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
)

// Config configures a Box backed by a remote MCP server.
type Config struct {
	Name      string
	URL       string
	Transport Transport
	Filter    []string // tool names to expose; empty means all
	OAuth     *OAuthConfig
	Client    *http.Client
	SSETimeout time.Duration
}

// Box is an MCP-backed tool.Box with lazy connection.
type Box struct {
	cfg Config

	mu        sync.Mutex
	connected bool
	tools     []tool.Tool
	sessionMu sync.RWMutex
	sessionID string
	auth      *oauthSession
}

// New builds a Box. The MCP connection is not established until Tools is
// first called.
func New(cfg Config) (*Box, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mcptool: url is required")
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportStreamableHTTP
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = defaultSSETimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	var auth *oauthSession
	if cfg.OAuth != nil {
		auth = newOAuthSession(*cfg.OAuth)
	}
	return &Box{cfg: cfg, auth: auth}, nil
}

func (b *Box) Name() string { return b.cfg.Name }

func (b *Box) Tools(ctx context.Context) ([]tool.Tool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		if err := b.connect(ctx); err != nil {
			return nil, fmt.Errorf("mcptool: connecting to %q: %w", b.cfg.Name, err)
		}
	}
	return b.tools, nil
}

func (b *Box) connect(ctx context.Context) error {
	if b.auth != nil {
		if err := b.auth.ensureRegistered(ctx, b.cfg.Client); err != nil {
			return fmt.Errorf("oauth client registration: %w", err)
		}
	}

	if _, err := b.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": clientName, "version": clientVersion},
		"capabilities":    map[string]any{},
	}); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	resp, err := b.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}

	var listResult struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &listResult); err != nil {
		return fmt.Errorf("decoding tools/list result: %w", err)
	}

	var filterSet map[string]struct{}
	if len(b.cfg.Filter) > 0 {
		filterSet = make(map[string]struct{}, len(b.cfg.Filter))
		for _, name := range b.cfg.Filter {
			filterSet[name] = struct{}{}
		}
	}

	var tools []tool.Tool
	for _, mt := range listResult.Tools {
		if filterSet != nil {
			if _, keep := filterSet[mt.Name]; !keep {
				continue
			}
		}
		inputs, required, err := schemaToDescriptors(mt.InputSchema)
		if err != nil {
			slog.Warn("mcptool: skipping tool with unparseable schema", "name", mt.Name, "error", err)
			continue
		}
		tools = append(tools, &mcpTool{
			box: b,
			def: tool.Definition{
				Name:              mt.Name,
				Description:       mt.Description,
				InputDescriptors:  inputs,
				RequiredInputs:    required,
				OutputDescriptors: map[string]property.Property{tool.UnnamedOutputSentinel: property.New(tool.UnnamedOutputSentinel, property.KindAny, "")},
				Kind:              tool.KindMCP,
			},
		})
	}

	b.tools = tools
	b.connected = true
	slog.Info("mcptool: connected", "name", b.cfg.Name, "transport", b.cfg.Transport, "tools", len(tools))
	return nil
}

// schemaToDescriptors converts an MCP tool's JSON-Schema-shaped input
// schema into WayFlow property descriptors, round-tripping through the
// plain map representation property.FromJSONSchema expects.
func schemaToDescriptors(schema mcp.ToolInputSchema) (map[string]property.Property, []string, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("re-marshaling mcp schema: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decoding mcp schema: %w", err)
	}

	props, _ := raw["properties"].(map[string]any)
	out := map[string]property.Property{}
	for name, fieldRaw := range props {
		fieldMap, ok := fieldRaw.(map[string]any)
		if !ok {
			continue
		}
		p, err := property.FromJSONSchema(name, fieldMap)
		if err != nil {
			return nil, nil, err
		}
		out[name] = p
	}
	var required []string
	if reqRaw, ok := raw["required"].([]any); ok {
		for _, r := range reqRaw {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return out, required, nil
}

// mcpTool adapts one remote MCP tool to the tool.Tool interface.
type mcpTool struct {
	box *Box
	def tool.Definition
}

func (t *mcpTool) Definition() tool.Definition { return t.def }

func (t *mcpTool) Run(ctx context.Context, args map[string]any) (any, error) {
	resp, err := t.box.call(ctx, "tools/call", map[string]any{"name": t.def.Name, "arguments": args})
	if err != nil {
		return nil, fmt.Errorf("mcp tool %q: %w", t.def.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp tool %q: %s", t.def.Name, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("mcp tool %q: decoding result: %w", t.def.Name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("mcp tool %q: %s", t.def.Name, firstText(result))
	}

	var texts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	switch len(texts) {
	case 0:
		return result, nil
	case 1:
		return texts[0], nil
	default:
		return texts, nil
	}
}

func firstText(result mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "unknown error"
}

// jsonRPCRequest/Response mirror the minimal JSON-RPC 2.0 envelope MCP's
// HTTP transports use. Result is kept as raw JSON since its shape depends
// on the method (tools/list vs tools/call vs initialize), each decoded into
// its own typed struct at the call site.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (b *Box) call(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	b.sessionMu.RLock()
	sessionID := b.sessionID
	b.sessionMu.RUnlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}
	if b.auth != nil {
		if token := b.auth.accessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := b.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if newSession := resp.Header.Get("mcp-session-id"); newSession != "" {
		b.sessionMu.Lock()
		b.sessionID = newSession
		b.sessionMu.Unlock()
	}

	if resp.StatusCode == http.StatusUnauthorized && b.auth != nil {
		return nil, fmt.Errorf("mcp server returned 401; oauth token may be expired or insufficiently scoped")
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(resp, b.cfg.SSETimeout)
	}

	var parsed jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &parsed, nil
}

// readSSEResponse reads the first complete JSON-RPC message from an SSE
// stream, matching the Streamable HTTP transport's allowance for servers to
// respond with a one-shot event stream instead of a plain JSON body.
func readSSEResponse(resp *http.Response, timeout time.Duration) (*jsonRPCResponse, error) {
	type result struct {
		resp *jsonRPCResponse
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		var data strings.Builder
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				ch <- result{err: fmt.Errorf("reading sse stream: %w", err)}
				return
			}
			text := strings.TrimSpace(string(line))
			if text == "" {
				if data.Len() == 0 {
					continue
				}
				var parsed jsonRPCResponse
				if err := json.Unmarshal([]byte(data.String()), &parsed); err == nil {
					ch <- result{resp: &parsed}
					return
				}
				data.Reset()
				continue
			}
			if strings.HasPrefix(text, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(text, "data:")))
			}
		}
		ch <- result{err: fmt.Errorf("sse stream ended without a complete message")}
	}()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout reading sse response after %v", timeout)
	}
}
