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

// Package a2aserver exposes a wfagent conversation as an A2A JSON-RPC 2.0
// HTTP endpoint (spec §4.7/§6): POST / for message/send, tasks/get,
// tasks/cancel, and GET /.well-known/agent-card.json for discovery.
//
// The JSON-RPC envelope and message/part wire shapes are this package's own
// types, matching the protocol's documented JSON contract field-for-field
// (message_id, kind discriminators, context_id, ...). Task state, though,
// is github.com/a2aproject/a2a-go/a2a's own TaskState: the teacher's A2A
// server (v2/server, v2/task) builds directly on that type rather than a
// local re-enumeration of the same six states, and this package follows
// it — a state transition here (TaskStateSubmitted ->
// Completed/Failed/InputRequired, or Canceled via tasks/cancel) is the teacher's
// Executor.Execute event-translation rule set adapted to this module's
// step-based executor instead of Hector's runner/event stream.
package a2aserver

import (
	"encoding/json"

	"github.com/a2aproject/a2a-go/a2a"
)

// PartKind discriminates a Part's payload, matching spec §6's wire
// contract exactly: "text", "file", or "data".
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// FilePayload is a Part's content when Kind is "file".
type FilePayload struct {
	Bytes string `json:"bytes"` // base64
}

// Part is one content unit of a Message on the wire.
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitempty"`
	File     *FilePayload   `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message is the A2A wire message shape.
type Message struct {
	MessageID string         `json:"message_id"`
	Role      string         `json:"role"`
	Parts     []Part         `json:"parts"`
	TaskID    string         `json:"task_id,omitempty"`
	ContextID string         `json:"context_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Configuration tunes message/send per spec §6.
type Configuration struct {
	Blocking           bool     `json:"blocking,omitempty"`
	AcceptedOutputModes []string `json:"accepted_output_modes,omitempty"`
	HistoryLength      int      `json:"history_length,omitempty"`
}

// MessageSendParams is message/send's params object.
type MessageSendParams struct {
	Message       Message        `json:"message"`
	Configuration *Configuration `json:"configuration,omitempty"`
}

// TaskIDParams is the params object tasks/get and tasks/cancel share.
type TaskIDParams struct {
	ID            string `json:"id"`
	HistoryLength int    `json:"history_length,omitempty"`
}

// Task is the A2A wire task shape returned from message/send, tasks/get,
// and tasks/cancel.
type Task struct {
	ID        string       `json:"id"`
	ContextID string       `json:"context_id"`
	Status    TaskStatus   `json:"status"`
	History   []Message    `json:"history,omitempty"`
	Artifacts []Artifact   `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskStatus wraps a2a.TaskState, the genuinely third-party wire type this
// package is grounded on, with the optional status message the protocol
// attaches to input-required and failed states.
type TaskStatus struct {
	State   a2a.TaskState `json:"state"`
	Message *Message      `json:"message,omitempty"`
}

// Artifact is one unit of task output.
type Artifact struct {
	ArtifactID string `json:"artifact_id"`
	Parts      []Part `json:"parts"`
}

// AgentCard is the discovery document served at
// /.well-known/agent-card.json, matching spec §6's field list.
type AgentCard struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	URL                string   `json:"url"`
	Version            string   `json:"version"`
	Skills             []Skill  `json:"skills"`
	DefaultInputModes  []string `json:"default_input_modes"`
	DefaultOutputModes []string `json:"default_output_modes"`
	Capabilities       Capabilities `json:"capabilities"`
}

// Skill describes one capability an agent card advertises.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Capabilities advertises optional protocol features this server supports.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope; exactly one of Result or
// Error is set.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes per spec §7: -32001 TaskNotFound, -32602
// InvalidParams, -32603 InternalError, -32601 MethodNotFound (standard).
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeTaskNotFound   = -32001
)
