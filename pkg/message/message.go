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

// Package message defines WayFlow's conversational message model: an
// immutable-by-convention record of role, content parts, and optional tool
// request/result payloads, shared by every executor, step, and server.
package message

import (
	"fmt"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Type further classifies a message beyond its Role, distinguishing the
// user-visible conversational turns from protocol-internal bookkeeping.
type Type string

const (
	TypeUser        Type = "USER"
	TypeAgent       Type = "AGENT"
	TypeToolRequest Type = "TOOL_REQUEST"
	TypeToolResult  Type = "TOOL_RESULT"
	TypeSystem      Type = "SYSTEM"
	TypeInternal    Type = "INTERNAL"
	TypeThought     Type = "THOUGHT"
)

// Content is implemented by the content-part kinds: TextContent,
// ImageContent and ReasoningContent.
type Content interface {
	isContent()
}

// TextContent is a plain-text content part.
type TextContent struct {
	Text string
}

func (TextContent) isContent() {}

// ImageContent is a base64-encoded image content part.
type ImageContent struct {
	Base64Data string
	MIMEType   string
}

func (ImageContent) isContent() {}

// ReasoningContent carries a model's intermediate reasoning trace. It is
// opaque to the executor: stored alongside a message and never rendered to
// end users by default. The Responses adapter sends a message's stored
// trace back with that message, whichever provider produced it; the Chat
// Completions adapter does not send it.
type ReasoningContent struct {
	Text      string
	Signature string // provider-specific opaque continuation token
}

func (ReasoningContent) isContent() {}

// ToolRequest is one tool invocation the assistant is asking for.
type ToolRequest struct {
	Name                string
	Args                map[string]any
	ToolRequestID       string
	RequiresConfirmation bool
	Confirmed           *bool // nil = undecided
	RejectionReason     string
}

// ToolResult is the outcome of executing a single ToolRequest.
type ToolResult struct {
	Content       string
	ToolRequestID string
	IsError       bool
}

// Message is WayFlow's conversational unit. By convention, once appended to
// a conversation's message list, a Message is never mutated in place — steps
// and the executor always construct and append new Message values.
type Message struct {
	ID            string
	Role          Role
	MessageType   Type
	Contents      []Content
	ToolRequests  []ToolRequest
	ToolResult    *ToolResult
	Sender        string
	Recipients    map[string]struct{}
	Metadata      map[string]any

	reasoningContent  *ReasoningContent
	promptCacheKey    string
}

// New creates a message with a generated ID and validates it: a message
// with tool requests may carry only text contents, and a message with a
// tool result must carry no contents. A message with both tool requests and
// a tool result is not rejected.
func New(role Role, msgType Type, contents []Content, opts ...Option) (Message, error) {
	m := Message{
		ID:          uuid.NewString(),
		Role:        role,
		MessageType: msgType,
		Contents:    contents,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// MustNew is New but panics on a validation error; reserved for code paths
// building messages from already-validated data (e.g. deserialization).
func MustNew(role Role, msgType Type, contents []Content, opts ...Option) Message {
	m, err := New(role, msgType, contents, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Message) validate() error {
	if len(m.ToolRequests) > 0 {
		for _, c := range m.Contents {
			if _, ok := c.(TextContent); !ok {
				return fmt.Errorf("message: tool_requests set requires text-only contents")
			}
		}
	}
	if m.ToolResult != nil && len(m.Contents) > 0 {
		return fmt.Errorf("message: tool_result set requires empty contents")
	}
	return nil
}

// Option configures optional Message fields at construction time.
type Option func(*Message)

// WithToolRequests attaches tool requests to the message being built.
func WithToolRequests(reqs []ToolRequest) Option {
	return func(m *Message) { m.ToolRequests = reqs }
}

// WithToolResult attaches a tool result to the message being built.
func WithToolResult(res *ToolResult) Option {
	return func(m *Message) { m.ToolResult = res }
}

// WithSender sets the sender agent id.
func WithSender(sender string) Option {
	return func(m *Message) { m.Sender = sender }
}

// WithRecipients sets the recipient agent ids.
func WithRecipients(recipients ...string) Option {
	return func(m *Message) {
		set := make(map[string]struct{}, len(recipients))
		for _, r := range recipients {
			set[r] = struct{}{}
		}
		m.Recipients = set
	}
}

// WithMetadata attaches opaque metadata to the message.
func WithMetadata(meta map[string]any) Option {
	return func(m *Message) { m.Metadata = meta }
}

// WithReasoning attaches an opaque reasoning trace to the message.
func WithReasoning(r ReasoningContent) Option {
	return func(m *Message) { m.reasoningContent = &r }
}

// WithPromptCacheKey attaches an opaque provider prompt-cache key.
func WithPromptCacheKey(key string) Option {
	return func(m *Message) { m.promptCacheKey = key }
}

// ReasoningContent returns the message's opaque reasoning trace, if any.
func (m Message) ReasoningContent() (ReasoningContent, bool) {
	if m.reasoningContent == nil {
		return ReasoningContent{}, false
	}
	return *m.reasoningContent, true
}

// PromptCacheKey returns the message's opaque prompt-cache key, if any.
func (m Message) PromptCacheKey() string {
	return m.promptCacheKey
}

// Text concatenates all TextContent parts of the message.
func (m Message) Text() string {
	var out string
	for _, c := range m.Contents {
		if t, ok := c.(TextContent); ok {
			out += t.Text
		}
	}
	return out
}

// NewText is a convenience constructor for a plain text message.
func NewText(role Role, msgType Type, text string, opts ...Option) Message {
	return MustNew(role, msgType, []Content{TextContent{Text: text}}, opts...)
}
