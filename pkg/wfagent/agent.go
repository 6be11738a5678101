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
	"github.com/oracle/wayflow-sub001/pkg/llmadapter"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/tool"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// CallerInputMode controls when an Agent yields UserMessageRequestStatus
// between LLM turns, per §4.2 step 5.
type CallerInputMode string

const (
	CallerInputNever   CallerInputMode = "NEVER"
	CallerInputAlways  CallerInputMode = "ALWAYS"
	CallerInputDefault CallerInputMode = "DEFAULT"
)

// talkToUserTool is the model-visible tool name an Agent's instruction
// steers the model toward calling when it decides the conversation needs a
// caller reply; not dispatched as a real tool.Tool, just recognized by name.
const talkToUserTool = "TALK_TO_USER"

// defaultMaxIterations bounds an Agent's turn loop when MaxIterations is
// left at zero.
const defaultMaxIterations = 10

// defaultNoCallerReminderLimit bounds how many consecutive turns without
// tool calls a CallerInputNever agent tolerates before the loop
// force-completes with the latest reply.
const defaultNoCallerReminderLimit = 3

// Agent is a conversational component whose turn loop is LLM-driven tool
// selection (§4.2's Agent turn loop). It implements both flow.Step, so it
// can sit directly as a flow node, and flow.AgentRunner, so
// AgentExecutionStep and Swarm/ManagerWorkers can drive it as a
// sub-conversation.
type Agent struct {
	AgentName             string
	Instruction           string
	LLMName               string
	Tools                 []tool.Tool
	MaxIterations         int
	CallerInputMode       CallerInputMode
	NoCallerReminderLimit int
}

var _ flow.Step = (*Agent)(nil)
var _ flow.AgentRunner = (*Agent)(nil)

func (a *Agent) Name() string { return a.AgentName }

// InputDescriptors is nil: like ToolExecutionStep, an Agent's inputs are
// resolved dynamically from IOValues rather than declared statically (see
// Executor.resolveInputs).
func (a *Agent) InputDescriptors() map[string]property.Property { return nil }

func (a *Agent) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{"response": property.New("response", property.KindString, "")}
}

func (a *Agent) Branches() []string { return []string{"success", "error"} }
func (a *Agent) MightYield() bool   { return true }

// Run adapts RunTurn to the flow.Step interface for Agents used directly as
// flow nodes.
func (a *Agent) Run(ctx context.Context, rc *flow.RunContext, inputs map[string]any) (string, map[string]any, *flow.Yield, error) {
	outputs, yield, err := a.RunTurn(rc, inputs)
	if err != nil {
		return "error", map[string]any{"error": err.Error()}, nil, nil
	}
	if yield != nil {
		return "", nil, yield, nil
	}
	return "success", outputs, nil, nil
}

func (a *Agent) maxIterations() int {
	if a.MaxIterations > 0 {
		return a.MaxIterations
	}
	return defaultMaxIterations
}

func (a *Agent) noCallerReminderLimit() int {
	if a.NoCallerReminderLimit > 0 {
		return a.NoCallerReminderLimit
	}
	return defaultNoCallerReminderLimit
}

func (a *Agent) findTool(name string) tool.Tool {
	for _, t := range a.Tools {
		if t.Definition().Name == name {
			return t
		}
	}
	return nil
}

// RunTurn implements flow.AgentRunner, driving the loop described in §4.2
// to a yield or a final assistant reply. It uses context.Background
// internally: the AgentRunner interface shared with AgentExecutionStep
// carries no context parameter, so a long-running tool call here cannot be
// cancelled by the owning request's context.
func (a *Agent) RunTurn(rc *flow.RunContext, inputs map[string]any) (map[string]any, *flow.Yield, error) {
	ctx := context.Background()
	if rc.LLMs == nil {
		return nil, nil, &wferrors.ValidationError{Component: a.AgentName, Reason: "no LLM resolver configured"}
	}
	adapter, err := rc.LLMs.ResolveLLM(a.LLMName)
	if err != nil {
		return nil, nil, err
	}

	if len(rc.Messages()) == 0 {
		if text, ok := inputs["user_provided_input"].(string); ok && text != "" {
			rc.AppendMessage(message.NewText(message.RoleUser, message.TypeUser, text))
		}
	}

	if pending := pendingToolRequests(rc.Messages()); len(pending) > 0 {
		yield, err := a.dispatchToolRequests(ctx, rc, pending)
		if err != nil {
			return nil, nil, err
		}
		if yield != nil {
			return nil, yield, nil
		}
	}

	defs := make([]tool.Definition, 0, len(a.Tools))
	for _, t := range a.Tools {
		defs = append(defs, t.Definition())
	}

	noCallerStreak := 0
	for iteration := 0; iteration < a.maxIterations(); iteration++ {
		completion, err := adapter.Send(ctx, llmadapter.Prompt{
			Messages:          rc.Messages(),
			Tools:             defs,
			SystemInstruction: a.Instruction,
		})
		if err != nil {
			return nil, nil, err
		}
		rc.AppendMessage(completion.Message)

		if len(completion.Message.ToolRequests) == 0 {
			if a.CallerInputMode == CallerInputNever {
				noCallerStreak++
				if noCallerStreak < a.noCallerReminderLimit() {
					continue
				}
			}
			if a.CallerInputMode != CallerInputNever {
				return map[string]any{"response": completion.Message.Text()}, &flow.Yield{Kind: flow.YieldUserMessageRequest}, nil
			}
			return map[string]any{"response": completion.Message.Text()}, nil, nil
		}
		noCallerStreak = 0

		yield, err := a.dispatchToolRequests(ctx, rc, completion.Message.ToolRequests)
		if err != nil {
			return nil, nil, err
		}
		if yield != nil {
			return nil, yield, nil
		}
	}

	return map[string]any{"response": lastAssistantText(rc.Messages())}, nil, nil
}

// dispatchToolRequests runs every request it can resolve immediately
// (appending its ToolResult to the conversation) and returns a yield for
// the first request it cannot: an unconfirmed confirmation-required call,
// or a client tool awaiting an externally-submitted result.
func (a *Agent) dispatchToolRequests(ctx context.Context, rc *flow.RunContext, requests []message.ToolRequest) (*flow.Yield, error) {
	var confirmRefs, clientRefs []flow.ToolRequestRef

	for _, req := range requests {
		if req.Name == talkToUserTool {
			continue
		}
		t := a.findTool(req.Name)
		if t == nil {
			rc.AppendMessage(message.MustNew(message.RoleUser, message.TypeToolResult, nil,
				message.WithToolResult(&message.ToolResult{ToolRequestID: req.ToolRequestID, Content: fmt.Sprintf("unknown tool %q", req.Name), IsError: true})))
			continue
		}
		def := t.Definition()

		if def.RequiresConfirmation {
			decided, approved := confirmationDecision(rc, req.ToolRequestID)
			if !decided {
				confirmRefs = append(confirmRefs, flow.ToolRequestRef{ToolRequestID: req.ToolRequestID, Name: req.Name, Args: req.Args})
				continue
			}
			if !approved {
				rc.AppendMessage(message.MustNew(message.RoleUser, message.TypeToolResult, nil,
					message.WithToolResult(&message.ToolResult{ToolRequestID: req.ToolRequestID, Content: "tool execution rejected by caller", IsError: true})))
				continue
			}
		}
		if def.Kind == tool.KindClient {
			clientRefs = append(clientRefs, flow.ToolRequestRef{ToolRequestID: req.ToolRequestID, Name: req.Name, Args: req.Args})
			continue
		}

		out, err := t.Run(ctx, req.Args)
		if err != nil {
			rc.AppendMessage(message.MustNew(message.RoleUser, message.TypeToolResult, nil,
				message.WithToolResult(&message.ToolResult{ToolRequestID: req.ToolRequestID, Content: err.Error(), IsError: true})))
			continue
		}
		rc.AppendMessage(message.MustNew(message.RoleUser, message.TypeToolResult, nil,
			message.WithToolResult(&message.ToolResult{ToolRequestID: req.ToolRequestID, Content: fmt.Sprintf("%v", out)})))
	}

	if len(confirmRefs) > 0 {
		return &flow.Yield{Kind: flow.YieldToolExecutionConfirmation, ToolRequests: confirmRefs}, nil
	}
	if len(clientRefs) > 0 {
		return &flow.Yield{Kind: flow.YieldToolRequest, ToolRequests: clientRefs}, nil
	}
	return nil, nil
}

// confirmationDecision reports whether the caller has resolved the
// confirmation for toolRequestID yet, and if so, whether it was approved.
func confirmationDecision(rc *flow.RunContext, toolRequestID string) (decided, approved bool) {
	v, ok := rc.Variable(confirmationVariableKey(toolRequestID))
	if !ok {
		return false, false
	}
	b, _ := v.(bool)
	return true, b
}

func confirmationVariableKey(toolRequestID string) string {
	return "tool_confirmed:" + toolRequestID
}

// pendingToolRequests returns the trailing TOOL_REQUEST message's requests
// that have no matching TOOL_RESULT later in history, i.e. the batch the
// agent suspended on last time and must resolve before advancing.
func pendingToolRequests(history []message.Message) []message.ToolRequest {
	var lastRequests []message.ToolRequest
	resolved := make(map[string]bool)
	for _, m := range history {
		if m.MessageType == message.TypeToolRequest {
			lastRequests = m.ToolRequests
			continue
		}
		if m.MessageType == message.TypeToolResult && m.ToolResult != nil {
			resolved[m.ToolResult.ToolRequestID] = true
		}
	}
	var pending []message.ToolRequest
	for _, req := range lastRequests {
		if !resolved[req.ToolRequestID] {
			pending = append(pending, req)
		}
	}
	return pending
}

func lastAssistantText(history []message.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == message.RoleAssistant {
			return history[i].Text()
		}
	}
	return ""
}
