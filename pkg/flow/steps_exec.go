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
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/tool"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// ToolExecutionStep invokes a named tool with its inputs bound to the tool's
// input descriptors. A KindClient tool never runs here: Run yields
// YieldToolRequest instead, matching the spec's client-tool dispatch where
// the caller submits the ToolResult out of band.
type ToolExecutionStep struct {
	StepName string
	ToolName string
}

func (s *ToolExecutionStep) Name() string { return s.StepName }

func (s *ToolExecutionStep) resolve(rc *RunContext) (tool.Tool, error) {
	if rc.Tools == nil {
		return nil, &wferrors.ValidationError{Component: s.StepName, Reason: "no tool resolver configured"}
	}
	return rc.Tools.ResolveTool(s.ToolName)
}

func (s *ToolExecutionStep) InputDescriptors() map[string]property.Property {
	return nil // resolved dynamically; compiler treats this step as accepting any named input
}

func (s *ToolExecutionStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{tool.UnnamedOutputSentinel: property.New(tool.UnnamedOutputSentinel, property.KindAny, "")}
}

func (s *ToolExecutionStep) Branches() []string { return []string{"success", "error"} }
func (s *ToolExecutionStep) MightYield() bool   { return true }

func (s *ToolExecutionStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	t, err := s.resolve(rc)
	if err != nil {
		return "", nil, nil, err
	}
	def := t.Definition()

	if def.Kind == tool.KindClient {
		reqID := uuid.NewString()
		rc.AppendMessage(message.MustNew(message.RoleAssistant, message.TypeToolRequest, nil,
			message.WithToolRequests([]message.ToolRequest{{
				Name: def.Name, Args: inputs, ToolRequestID: reqID,
				RequiresConfirmation: def.RequiresConfirmation,
			}})))
		return "", nil, &Yield{Kind: YieldToolRequest, ToolRequests: []ToolRequestRef{{
			ToolRequestID: reqID, Name: def.Name, Args: inputs,
		}}}, nil
	}

	out, err := t.Run(ctx, inputs)
	if err != nil {
		return "error", map[string]any{"error": err.Error()}, nil, nil
	}
	return "success", map[string]any{tool.UnnamedOutputSentinel: out}, nil, nil
}

// AgentExecutionStep delegates one conversational turn to a named sub-agent,
// propagating its yield (if any) up through this step so a nested agent's
// user-message request suspends the owning flow exactly like a native
// InputMessageStep would.
type AgentExecutionStep struct {
	StepName  string
	AgentName string
}

func (s *AgentExecutionStep) Name() string                                  { return s.StepName }
func (s *AgentExecutionStep) InputDescriptors() map[string]property.Property { return nil }
func (s *AgentExecutionStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{"response": property.New("response", property.KindAny, "")}
}
func (s *AgentExecutionStep) Branches() []string { return []string{"success", "error"} }
func (s *AgentExecutionStep) MightYield() bool   { return true }

func (s *AgentExecutionStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	agent, ok := rc.Agents[s.AgentName]
	if !ok {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: fmt.Sprintf("agent %q is not registered", s.AgentName)}
	}
	outputs, yield, err := agent.RunTurn(rc, inputs)
	if err != nil {
		return "error", map[string]any{"error": err.Error()}, nil, nil
	}
	if yield != nil {
		return "", nil, yield, nil
	}
	return "success", outputs, nil, nil
}

// FlowExecutionStep runs a named sub-flow to completion (or suspend) inline,
// sharing the parent's RunContext so sub-flow messages and variables are
// visible to the rest of the conversation.
type FlowExecutionStep struct {
	StepName string
	FlowName string
	runner   FlowRunner
}

// FlowRunner is the minimal surface FlowExecutionStep needs to drive a
// sub-flow, implemented by pkg/wfagent's executor (kept as an interface here
// to avoid an import cycle between pkg/flow and the executor package).
type FlowRunner interface {
	RunFlow(ctx context.Context, rc *RunContext, f *Flow, inputs map[string]any) (outputs map[string]any, yield *Yield, err error)
}

// NewFlowExecutionStep builds a FlowExecutionStep that drives flowName via
// runner.
func NewFlowExecutionStep(stepName, flowName string, runner FlowRunner) *FlowExecutionStep {
	return &FlowExecutionStep{StepName: stepName, FlowName: flowName, runner: runner}
}

func (s *FlowExecutionStep) Name() string                                  { return s.StepName }
func (s *FlowExecutionStep) InputDescriptors() map[string]property.Property { return nil }
func (s *FlowExecutionStep) OutputDescriptors() map[string]property.Property {
	return nil
}
func (s *FlowExecutionStep) Branches() []string { return []string{"success", "error"} }
func (s *FlowExecutionStep) MightYield() bool   { return true }

func (s *FlowExecutionStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	sub, ok := rc.Flows[s.FlowName]
	if !ok {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: fmt.Sprintf("flow %q is not registered", s.FlowName)}
	}
	if s.runner == nil {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: "no flow runner configured"}
	}
	outputs, yield, err := s.runner.RunFlow(ctx, rc, sub, inputs)
	if err != nil {
		return "error", map[string]any{"error": err.Error()}, nil, nil
	}
	if yield != nil {
		return "", nil, yield, nil
	}
	return "success", outputs, nil, nil
}
