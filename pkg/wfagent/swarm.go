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

package wfagent

import (
	"context"
	"fmt"

	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/tool"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// HandoffMode governs whether Swarm agents are equipped with
// handoff_conversation in addition to send_message.
type HandoffMode string

const (
	HandoffNever    HandoffMode = "NEVER"
	HandoffOptional HandoffMode = "OPTIONAL"
	HandoffAlways   HandoffMode = "ALWAYS"
)

// Relationship is one directed (caller, recipient) edge in a Swarm.
type Relationship struct {
	Caller    string
	Recipient string
}

// Swarm composes Agents with directed send_message/handoff_conversation
// relationships, per §4.2. The "active" agent owns the user-facing message
// list; handoff_conversation reassigns it without starting a new
// conversation, while send_message spins the recipient up as an isolated
// sub-conversation and returns only its final assistant text.
type Swarm struct {
	SwarmName     string
	Agents        map[string]*Agent
	Relationships []Relationship
	Mode          HandoffMode
	ActiveAgent   string

	executor *Executor
	rc       *flow.RunContext // the parent conversation's RunContext, captured on each RunTurn
}

// NewSwarm validates relationships (unique agent names, no self-edges, both
// ends must name a registered agent) and wires send_message /
// handoff_conversation tools onto each caller per rel, returning the
// composed Swarm with entryAgent active.
func NewSwarm(name string, agents []*Agent, relationships []Relationship, mode HandoffMode, entryAgent string, executor *Executor) (*Swarm, error) {
	byName := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		if _, dup := byName[a.AgentName]; dup {
			return nil, &wferrors.ValidationError{Component: name, Reason: fmt.Sprintf("duplicate agent name %q in swarm", a.AgentName)}
		}
		byName[a.AgentName] = a
	}
	if _, ok := byName[entryAgent]; !ok {
		return nil, &wferrors.ValidationError{Component: name, Reason: fmt.Sprintf("entry agent %q is not a member of the swarm", entryAgent)}
	}
	for _, rel := range relationships {
		if rel.Caller == rel.Recipient {
			return nil, &wferrors.ValidationError{Component: name, Reason: fmt.Sprintf("relationship (%s, %s) is self-referential", rel.Caller, rel.Recipient)}
		}
		if _, ok := byName[rel.Caller]; !ok {
			return nil, &wferrors.ValidationError{Component: name, Reason: fmt.Sprintf("relationship caller %q is not a member of the swarm", rel.Caller)}
		}
		if _, ok := byName[rel.Recipient]; !ok {
			return nil, &wferrors.ValidationError{Component: name, Reason: fmt.Sprintf("relationship recipient %q is not a member of the swarm", rel.Recipient)}
		}
	}

	s := &Swarm{SwarmName: name, Agents: byName, Relationships: relationships, Mode: mode, ActiveAgent: entryAgent, executor: executor}

	for _, rel := range relationships {
		caller := byName[rel.Caller]
		caller.Tools = append(caller.Tools, newSendMessageTool(s, rel.Recipient))
		if mode == HandoffAlways || mode == HandoffOptional {
			caller.Tools = append(caller.Tools, newHandoffTool(s, rel.Recipient))
		}
	}
	return s, nil
}

var _ flow.AgentRunner = (*Swarm)(nil)

func (s *Swarm) Name() string { return s.SwarmName }

// RunTurn delegates to the currently active agent. A handoff_conversation
// tool call mutates ActiveAgent mid-turn (via its closure over s), so the
// *next* RunTurn call picks up the new active agent automatically; the
// message list is never copied or reset across a handoff.
func (s *Swarm) RunTurn(rc *flow.RunContext, inputs map[string]any) (map[string]any, *flow.Yield, error) {
	s.rc = rc
	active, ok := s.Agents[s.ActiveAgent]
	if !ok {
		return nil, nil, &wferrors.ValidationError{Component: s.SwarmName, Reason: fmt.Sprintf("active agent %q is not a member of the swarm", s.ActiveAgent)}
	}
	return active.RunTurn(rc, inputs)
}

// childRunContext builds a fresh RunContext for a send_message
// sub-conversation: new, empty message history and variables, but the same
// LLM/tool/agent/flow resolvers as the parent conversation.
func (s *Swarm) childRunContext(conversationID string) *flow.RunContext {
	child := flow.NewRunContext(conversationID)
	if s.rc != nil {
		child.LLMs = s.rc.LLMs
		child.Tools = s.rc.Tools
		child.Datastores = s.rc.Datastores
		child.Agents = s.rc.Agents
		child.Flows = s.rc.Flows
	}
	return child
}

// newSendMessageTool builds the server tool a caller agent uses to run
// recipientName as an isolated sub-conversation and observe only its final
// assistant text, per §4.2's send_message semantics.
func newSendMessageTool(s *Swarm, recipientName string) tool.Tool {
	return &funcTool{
		def: tool.Definition{
			Name:        "send_message_" + recipientName,
			Description: "Send a message to " + recipientName + " and wait for its reply.",
			InputDescriptors: map[string]property.Property{
				"message": property.New("message", property.KindString, "the message to send"),
			},
			RequiredInputs:    []string{"message"},
			OutputDescriptors: map[string]property.Property{tool.UnnamedOutputSentinel: property.New(tool.UnnamedOutputSentinel, property.KindString, "")},
			Kind:              tool.KindServer,
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			recipient, ok := s.Agents[recipientName]
			if !ok {
				return nil, &wferrors.ValidationError{Component: s.SwarmName, Reason: fmt.Sprintf("recipient %q is no longer a member of the swarm", recipientName)}
			}
			if s.executor == nil {
				return nil, &wferrors.ValidationError{Component: s.SwarmName, Reason: "no executor configured to run sub-conversations"}
			}
			text, _ := args["message"].(string)
			childRC := s.childRunContext(s.SwarmName + ":" + recipientName)
			outputs, _, err := s.executor.RunFlow(ctx, childRC, wrapAgentAsFlow(recipient), map[string]any{"user_provided_input": text})
			if err != nil {
				return nil, err
			}
			return outputs["response"], nil
		},
	}
}

// newHandoffTool builds the server tool a caller agent uses to permanently
// transfer the active role to recipientName, preserving the shared message
// history.
func newHandoffTool(s *Swarm, recipientName string) tool.Tool {
	return &funcTool{
		def: tool.Definition{
			Name:        "handoff_to_" + recipientName,
			Description: "Hand off the conversation to " + recipientName + ".",
			OutputDescriptors: map[string]property.Property{
				tool.UnnamedOutputSentinel: property.New(tool.UnnamedOutputSentinel, property.KindString, ""),
			},
			Kind: tool.KindServer,
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			s.ActiveAgent = recipientName
			return fmt.Sprintf("conversation handed off to %s", recipientName), nil
		},
	}
}

// wrapAgentAsFlow lifts a, which already implements flow.Step, into a
// single-step flow so Executor.RunFlow can drive it without a separate
// agent-only entry point.
func wrapAgentAsFlow(a *Agent) *flow.Flow {
	return &flow.Flow{
		Name:      "agent:" + a.AgentName,
		Steps:     map[string]flow.Step{a.AgentName: a},
		BeginStep: a.AgentName,
		OutputDescriptors: map[string]property.Property{
			"response": property.New("response", property.KindString, ""),
		},
	}
}

// funcTool adapts a plain function into tool.Tool, used for the synthetic
// send_message/handoff_conversation tools Swarm and ManagerWorkers wire
// onto member agents.
type funcTool struct {
	def tool.Definition
	run func(ctx context.Context, args map[string]any) (any, error)
}

func (f *funcTool) Definition() tool.Definition { return f.def }
func (f *funcTool) Run(ctx context.Context, args map[string]any) (any, error) {
	return f.run(ctx, args)
}
