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

package flow

import (
	"sync"

	"github.com/oracle/wayflow-sub001/pkg/datastore"
	"github.com/oracle/wayflow-sub001/pkg/llmadapter"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/tool"
)

// AgentRunner is the surface AgentExecutionStep needs from an agent, kept as
// a local interface so pkg/flow never imports pkg/wfagent: wfagent.Agent is a
// Step host and implements this method set without creating an import cycle.
type AgentRunner interface {
	Name() string
	RunTurn(rc *RunContext, inputs map[string]any) (outputs map[string]any, yield *Yield, err error)
}

// LLMResolver resolves a named LLM adapter configured on the owning
// conversation or agent (spec components reference LLMs by id, not by
// value).
type LLMResolver interface {
	ResolveLLM(name string) (llmadapter.Adapter, error)
}

// ToolResolver resolves a named tool or tool box.
type ToolResolver interface {
	ResolveTool(name string) (tool.Tool, error)
}

// DatastoreResolver resolves a named datastore.
type DatastoreResolver interface {
	ResolveDatastore(name string) (datastore.Store, error)
}

// RunContext is threaded through every Step.Run call for one conversation. It
// carries the running message history, variable bindings, and the resolvers
// a step needs to reach LLMs, tools, sub-agents, sub-flows, and datastores.
// RunContext is not safe for concurrent use from more than one goroutine
// without external synchronization except through its Variables accessors,
// which are internally synchronized (MapStep's parallel branches write
// concurrently).
type RunContext struct {
	ConversationID string

	LLMs       LLMResolver
	Tools      ToolResolver
	Datastores DatastoreResolver
	Agents     map[string]AgentRunner
	Flows      map[string]*Flow

	mu        sync.Mutex
	messages  []message.Message
	variables map[string]any
}

// NewRunContext builds a RunContext with empty message history and variable
// bindings.
func NewRunContext(conversationID string) *RunContext {
	return &RunContext{
		ConversationID: conversationID,
		variables:      make(map[string]any),
	}
}

// AppendMessage adds m to the running conversation history.
func (rc *RunContext) AppendMessage(m message.Message) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.messages = append(rc.messages, m)
}

// Messages returns a snapshot of the conversation history so far.
func (rc *RunContext) Messages() []message.Message {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]message.Message, len(rc.messages))
	copy(out, rc.messages)
	return out
}

// SetVariable binds name to value in the conversation-scoped variable store
// (spec's VariableWriteStep target).
func (rc *RunContext) SetVariable(name string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.variables[name] = value
}

// Variable reads name from the conversation-scoped variable store.
func (rc *RunContext) Variable(name string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.variables[name]
	return v, ok
}

// Variables returns a snapshot copy of the whole variable store, used by
// checkpointing to persist conversation-scoped state across restarts.
func (rc *RunContext) Variables() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]any, len(rc.variables))
	for k, v := range rc.variables {
		out[k] = v
	}
	return out
}

// RestoreVariables replaces the variable store wholesale, used when
// rehydrating a RunContext from a checkpoint.
func (rc *RunContext) RestoreVariables(vars map[string]any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.variables = make(map[string]any, len(vars))
	for k, v := range vars {
		rc.variables[k] = v
	}
}

// RestoreMessages replaces the message history wholesale, used when
// rehydrating a RunContext from a checkpoint.
func (rc *RunContext) RestoreMessages(msgs []message.Message) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.messages = append([]message.Message(nil), msgs...)
}
