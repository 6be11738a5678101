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

// Package checkpoint persists and restores in-flight conversations so a
// server process can crash or restart mid-turn without losing a task's
// place (spec §12-13). It is the I7 persistence mechanism: every
// checkpoint is written through pkg/datastore.ConversationStore's
// clear-then-upsert, so at most one row is ever marked as a conversation's
// last turn.
//
// A flow.RunContext cannot round-trip through encoding/json as-is: its
// LLMs/Tools/Datastores/Agents fields are process-local resolver
// interfaces, not data, and message.Message's Contents field is an
// interface slice with unexported reasoning/prompt-cache fields. Rather
// than pretend a direct json.Marshal of the live types is lossless,
// Checkpoint captures an explicit, intentionally narrower Snapshot: text
// and tool-call content round-trips exactly; image content round-trips as
// base64 bytes; a message's reasoning trace and provider prompt-cache key
// are dropped (noted in Snapshot's doc comment) because they are
// provider-session-scoped and meaningless once resumed against a fresh
// LLM connection.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/wfagent"
)

// Checkpoint is one durable snapshot of a conversation in flight.
type Checkpoint struct {
	AgentID        string
	ConversationID string
	TurnID         string
	Status         string // wfagent.ExecutionStatus's concrete type name, for observability only
	CreatedAt      time.Time
	Snapshot       Snapshot
}

// Snapshot is the serializable subset of a wfagent.Conversation: enough to
// rebuild IOValues, message history, and variable bindings against an
// already-compiled flow.Flow looked up by name. It does not carry reasoning
// traces or prompt-cache keys (see package doc).
type Snapshot struct {
	FlowName    string           `json:"flow_name"`
	CurrentStep string           `json:"current_step"`
	IOValues    map[string]any   `json:"io_values"`
	Messages    []messageDTO     `json:"messages"`
	Variables   map[string]any   `json:"variables"`
}

type messageDTO struct {
	ID           string          `json:"id"`
	Role         message.Role    `json:"role"`
	MessageType  message.Type    `json:"message_type"`
	Contents     []contentDTO    `json:"contents,omitempty"`
	ToolRequests []message.ToolRequest `json:"tool_requests,omitempty"`
	ToolResult   *message.ToolResult   `json:"tool_result,omitempty"`
	Sender       string          `json:"sender,omitempty"`
	Recipients   []string        `json:"recipients,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// contentDTO is a discriminated union over message.Content's two exported
// implementations (TextContent, ImageContent); ReasoningContent lives on
// Message's unexported field and is not reachable from Contents at all.
type contentDTO struct {
	Kind       string `json:"kind"` // "text" or "image"
	Text       string `json:"text,omitempty"`
	Base64Data string `json:"base64_data,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`
}

func toContentDTO(c message.Content) (contentDTO, error) {
	switch v := c.(type) {
	case message.TextContent:
		return contentDTO{Kind: "text", Text: v.Text}, nil
	case message.ImageContent:
		return contentDTO{Kind: "image", Base64Data: v.Base64Data, MIMEType: v.MIMEType}, nil
	default:
		return contentDTO{}, fmt.Errorf("checkpoint: unsupported content type %T", c)
	}
}

func fromContentDTO(d contentDTO) (message.Content, error) {
	switch d.Kind {
	case "text":
		return message.TextContent{Text: d.Text}, nil
	case "image":
		return message.ImageContent{Base64Data: d.Base64Data, MIMEType: d.MIMEType}, nil
	default:
		return nil, fmt.Errorf("checkpoint: unknown content kind %q", d.Kind)
	}
}

func toMessageDTO(m message.Message) (messageDTO, error) {
	dto := messageDTO{
		ID:           m.ID,
		Role:         m.Role,
		MessageType:  m.MessageType,
		ToolRequests: m.ToolRequests,
		ToolResult:   m.ToolResult,
		Sender:       m.Sender,
		Metadata:     m.Metadata,
	}
	for r := range m.Recipients {
		dto.Recipients = append(dto.Recipients, r)
	}
	for _, c := range m.Contents {
		cd, err := toContentDTO(c)
		if err != nil {
			return messageDTO{}, err
		}
		dto.Contents = append(dto.Contents, cd)
	}
	return dto, nil
}

func fromMessageDTO(dto messageDTO) (message.Message, error) {
	contents := make([]message.Content, 0, len(dto.Contents))
	for _, cd := range dto.Contents {
		c, err := fromContentDTO(cd)
		if err != nil {
			return message.Message{}, err
		}
		contents = append(contents, c)
	}
	opts := []message.Option{
		message.WithSender(dto.Sender),
		message.WithMetadata(dto.Metadata),
	}
	if len(dto.ToolRequests) > 0 {
		opts = append(opts, message.WithToolRequests(dto.ToolRequests))
	}
	if dto.ToolResult != nil {
		opts = append(opts, message.WithToolResult(dto.ToolResult))
	}
	if len(dto.Recipients) > 0 {
		opts = append(opts, message.WithRecipients(dto.Recipients...))
	}
	m, err := message.New(dto.Role, dto.MessageType, contents, opts...)
	if err != nil {
		return message.Message{}, err
	}
	m.ID = dto.ID
	return m, nil
}

// snapshotOf builds a Snapshot of conv's current state.
func snapshotOf(conv *wfagent.Conversation) (Snapshot, error) {
	msgs := conv.Messages()
	dtos := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		dto, err := toMessageDTO(m)
		if err != nil {
			return Snapshot{}, err
		}
		dtos = append(dtos, dto)
	}
	return Snapshot{
		FlowName:    conv.Flow.Name,
		CurrentStep: conv.CurrentStep,
		IOValues:    conv.IOValues,
		Messages:    dtos,
		Variables:   conv.RC.Variables(),
	}, nil
}

// Restore rebuilds a wfagent.Conversation from s against f, which the
// caller must have already resolved (by s.FlowName) from its flow
// registry: a compiled flow.Flow is not itself part of the checkpoint.
func (s Snapshot) Restore(id string, f *flow.Flow) (*wfagent.Conversation, error) {
	conv := wfagent.New(id, f, s.IOValues)
	conv.CurrentStep = s.CurrentStep

	msgs := make([]message.Message, 0, len(s.Messages))
	for _, dto := range s.Messages {
		m, err := fromMessageDTO(dto)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	conv.RC.RestoreMessages(msgs)
	conv.RC.RestoreVariables(s.Variables)
	return conv, nil
}

func marshalSnapshot(s Snapshot) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encoding snapshot: %w", err)
	}
	return data, nil
}

func unmarshalSnapshot(data json.RawMessage) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: decoding snapshot: %w", err)
	}
	return s, nil
}
