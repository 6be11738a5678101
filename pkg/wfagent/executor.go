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
	"log/slog"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/observability"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/tool"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// Interrupt is a pre-step hook the executor honors before running each
// step (§4.2's ExecutionInterrupt). Returning fired=true aborts the current
// scheduling pass with InterruptedExecutionStatus.
type Interrupt func(conv *Conversation) (fired bool, reason string)

// ResumeInput is what a caller submits to unstick a suspended conversation:
// exactly one field is populated, matching the Status the conversation was
// left in.
type ResumeInput struct {
	UserMessage  *message.Message
	ToolResults  []message.ToolResult
	Confirmed    map[string]bool // tool_request_id -> approved
}

// Executor drives conversations through the step loop described in §4.2.
// It is safe to share one Executor across many conversations; all
// per-conversation state lives on *Conversation.
type Executor struct {
	Interrupts []Interrupt
	Logger     *slog.Logger
	// Metrics records per-step counters/histograms if set; a nil Metrics
	// (the zero value) makes every recording call a no-op.
	Metrics *observability.Metrics
}

// NewExecutor builds an Executor with a default logger and no metrics
// recording.
func NewExecutor() *Executor {
	return &Executor{Logger: slog.Default()}
}

// compile-time assertion: Executor can drive sub-flows for FlowExecutionStep/MapStep.
var _ flow.FlowRunner = (*Executor)(nil)

// RunFlow drives f to completion or suspend as a nested run sharing rc,
// implementing flow.FlowRunner for FlowExecutionStep and MapStep.
func (e *Executor) RunFlow(ctx context.Context, rc *flow.RunContext, f *flow.Flow, inputs map[string]any) (map[string]any, *flow.Yield, error) {
	conv := &Conversation{ID: rc.ConversationID, Flow: f, CurrentStep: f.BeginStep, IOValues: cloneValues(inputs), RC: rc}
	status, err := e.Run(ctx, conv)
	if err != nil {
		return nil, nil, err
	}
	switch st := status.(type) {
	case FinishedStatus:
		return st.OutputValues, nil, nil
	case FailedStatus:
		return nil, nil, st.Err
	default:
		return nil, statusToYield(status), nil
	}
}

func statusToYield(status ExecutionStatus) *flow.Yield {
	switch st := status.(type) {
	case UserMessageRequestStatus:
		return &flow.Yield{Kind: flow.YieldUserMessageRequest}
	case ToolRequestStatus:
		return &flow.Yield{Kind: flow.YieldToolRequest, ToolRequests: st.ToolRequests}
	case ToolExecutionConfirmationStatus:
		return &flow.Yield{Kind: flow.YieldToolExecutionConfirmation, ToolRequests: st.ToolRequests}
	case InterruptedExecutionStatus:
		return &flow.Yield{Kind: flow.YieldInterruptedExecution, Reason: st.Reason}
	case AuthChallengeStatus:
		return &flow.Yield{Kind: flow.YieldAuthChallenge, AuthorizationURL: st.AuthorizationURL}
	default:
		return &flow.Yield{Kind: flow.YieldInterruptedExecution, Reason: "unrecognized status"}
	}
}

func cloneValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Resume consumes a suspended conversation's status and drives the step
// loop forward. Two yield kinds are single-shot step completions rather
// than a step wanting to be re-entered (InputMessageStep, and a bare
// ToolExecutionStep's client-tool yield — see their doc comments): for
// those, Resume materializes the submitted value directly as the
// suspended step's outputs and advances past it without calling Run again.
// Every other yield kind (an Agent's tool confirmation, an
// ExecutionInterrupt) is resumed by simply re-entering the loop at the same
// current step, which is itself responsible for noticing what was resolved.
func (e *Executor) Resume(ctx context.Context, conv *Conversation, in ResumeInput) (ExecutionStatus, error) {
	if conv.Status == nil {
		return e.Run(ctx, conv)
	}
	step := conv.Flow.Steps[conv.CurrentStep]

	switch status := conv.Status.(type) {
	case UserMessageRequestStatus:
		if ims, ok := step.(*flow.InputMessageStep); ok {
			text := ""
			if in.UserMessage != nil {
				conv.RC.AppendMessage(*in.UserMessage)
				text = in.UserMessage.Text()
			}
			conv.Status = nil
			if fin := e.materializeAndAdvance(conv, step.Name(), flow.DefaultBranch, singleOutput(ims.OutputDescriptors(), text)); fin != nil {
				return fin, nil
			}
			return e.Run(ctx, conv)
		}
	case ToolRequestStatus:
		if _, ok := step.(*flow.ToolExecutionStep); ok {
			branch, outputs := resolveToolResult(status.ToolRequests, in.ToolResults)
			conv.Status = nil
			if fin := e.materializeAndAdvance(conv, step.Name(), branch, outputs); fin != nil {
				return fin, nil
			}
			return e.Run(ctx, conv)
		}
	}

	e.consume(conv, in)
	conv.Status = nil
	return e.Run(ctx, conv)
}

// singleOutput binds value to the sole key of descriptors (InputMessageStep
// always declares exactly one output).
func singleOutput(descriptors map[string]property.Property, value any) map[string]any {
	for name := range descriptors {
		return map[string]any{name: value}
	}
	return nil
}

// resolveToolResult matches the caller's submitted tool result against the
// pending request and produces the branch/outputs a ToolExecutionStep would
// have returned had it run the tool itself.
func resolveToolResult(pending []flow.ToolRequestRef, results []message.ToolResult) (string, map[string]any) {
	if len(pending) == 0 || len(results) == 0 {
		return "error", map[string]any{"error": "no tool result submitted"}
	}
	want := pending[0].ToolRequestID
	for _, r := range results {
		if r.ToolRequestID != want {
			continue
		}
		if r.IsError {
			return "error", map[string]any{"error": r.Content}
		}
		return "success", map[string]any{tool.UnnamedOutputSentinel: r.Content}
	}
	return "error", map[string]any{"error": "submitted tool result does not match pending request"}
}

// materializeAndAdvance writes outputs into conv.IOValues and follows the
// matching control edge for (stepName, branch), returning a non-nil
// FinishedStatus if that edge exits the flow.
func (e *Executor) materializeAndAdvance(conv *Conversation, stepName, branch string, outputs map[string]any) ExecutionStatus {
	for k, v := range outputs {
		conv.IOValues[k] = v
	}
	edge, ok := findEdge(conv.Flow, stepName, branch)
	if !ok || edge.Dst == "" {
		finished := FinishedStatus{baseStatus: baseStatus{conv.ID}, OutputValues: selectFlowOutputs(conv), BranchName: branch}
		conv.Status = finished
		return finished
	}
	conv.CurrentStep = edge.Dst
	return nil
}

func (e *Executor) consume(conv *Conversation, in ResumeInput) {
	if in.UserMessage != nil {
		conv.RC.AppendMessage(*in.UserMessage)
		conv.IOValues["user_provided_input"] = in.UserMessage.Text()
	}
	for _, tr := range in.ToolResults {
		conv.RC.AppendMessage(message.MustNew(message.RoleUser, message.TypeToolResult, nil, message.WithToolResult(&tr)))
	}
	for toolRequestID, approved := range in.Confirmed {
		conv.RC.SetVariable(confirmationVariableKey(toolRequestID), approved)
	}
}

// Run drives conv's step loop until a terminal or suspend status is
// reached, per §4.2's scheduling algorithm.
func (e *Executor) Run(ctx context.Context, conv *Conversation) (ExecutionStatus, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, hook := range e.Interrupts {
			if fired, reason := hook(conv); fired {
				conv.Status = InterruptedExecutionStatus{baseStatus: baseStatus{conv.ID}, Reason: reason}
				return conv.Status, nil
			}
		}

		step, ok := conv.Flow.Steps[conv.CurrentStep]
		if !ok {
			err := &wferrors.ValidationError{Component: conv.CurrentStep, Reason: "step is not part of the compiled flow"}
			conv.Status = FailedStatus{baseStatus: baseStatus{conv.ID}, Err: err}
			return conv.Status, err
		}

		inputs, err := e.resolveInputs(ctx, conv, step)
		if err != nil {
			conv.Status = FailedStatus{baseStatus: baseStatus{conv.ID}, Err: err}
			return conv.Status, err
		}

		if e.Logger != nil {
			e.Logger.Debug("step invocation started", "conversation_id", conv.ID, "step", step.Name())
		}

		stepType := fmt.Sprintf("%T", step)
		stepStart := time.Now()
		branch, outputs, yield, err := step.Run(ctx, conv.RC, inputs)
		if err != nil {
			e.Metrics.ObserveStep(stepType, "error", time.Since(stepStart))
			conv.Status = FailedStatus{baseStatus: baseStatus{conv.ID}, Err: err}
			return conv.Status, err
		}
		if yield != nil {
			e.Metrics.ObserveStep(stepType, "yield", time.Since(stepStart))
			conv.Status = newStatus(conv.ID, yield)
			return conv.Status, nil
		}
		e.Metrics.ObserveStep(stepType, "ok", time.Since(stepStart))

		for k, v := range outputs {
			conv.IOValues[k] = v
		}

		edge, ok := findEdge(conv.Flow, step.Name(), branch)
		if !ok || edge.Dst == "" {
			conv.Status = FinishedStatus{baseStatus: baseStatus{conv.ID}, OutputValues: selectFlowOutputs(conv), BranchName: branch}
			return conv.Status, nil
		}
		conv.CurrentStep = edge.Dst
	}
}

func findEdge(f *flow.Flow, stepName, branch string) (flow.ControlEdge, bool) {
	for _, e := range f.ControlEdges {
		if e.Src == stepName && e.SourceBranch == branch {
			return e, true
		}
	}
	return flow.ControlEdge{}, false
}

func selectFlowOutputs(conv *Conversation) map[string]any {
	out := make(map[string]any, len(conv.Flow.OutputDescriptors))
	for name := range conv.Flow.OutputDescriptors {
		out[name] = conv.IOValues[name]
	}
	return out
}

// resolveInputs binds step's declared inputs from the compiled
// StepInputSources, re-evaluating context providers lazily on every
// invocation as §4.2 requires. A step with nil InputDescriptors (Agent,
// ToolExecutionStep, AgentExecutionStep, FlowExecutionStep) takes any named
// input dynamically, so it gets the full IOValues namespace instead of a
// fixed key set, with any declared sources for it still resolved on top.
func (e *Executor) resolveInputs(ctx context.Context, conv *Conversation, step flow.Step) (map[string]any, error) {
	sources := conv.Flow.StepInputSources[step.Name()]
	descriptors := step.InputDescriptors()

	if descriptors == nil {
		inputs := cloneValues(conv.IOValues)
		for name, src := range sources {
			val, err := e.resolveSource(ctx, conv, name, src)
			if err != nil {
				return nil, err
			}
			inputs[name] = val
		}
		return inputs, nil
	}

	inputs := make(map[string]any, len(descriptors))
	for name := range descriptors {
		src, ok := sources[name]
		if !ok {
			inputs[name] = conv.IOValues[name]
			continue
		}
		val, err := e.resolveSource(ctx, conv, name, src)
		if err != nil {
			return nil, err
		}
		inputs[name] = val
	}
	return inputs, nil
}

func (e *Executor) resolveSource(ctx context.Context, conv *Conversation, name string, src flow.InputSource) (any, error) {
	switch {
	case src.FromDataEdge:
		return conv.IOValues[src.FromOutput], nil
	case src.FromContextProvider != "":
		return e.resolveProvider(ctx, conv, src.FromContextProvider, name)
	case src.FromDefault:
		if v, ok := conv.IOValues[name]; ok {
			return v, nil
		}
		return src.DefaultValue, nil
	default:
		return conv.IOValues[name], nil
	}
}

func (e *Executor) resolveProvider(ctx context.Context, conv *Conversation, providerName, outputName string) (any, error) {
	for _, p := range conv.Flow.Providers {
		if p.Name != providerName || p.Resolve == nil {
			continue
		}
		values, err := p.Resolve(ctx, conv.RC)
		if err != nil {
			return nil, err
		}
		return values[outputName], nil
	}
	return conv.IOValues[outputName], nil
}
