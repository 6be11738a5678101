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

package responsesserver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/oracle/wayflow-sub001/pkg/checkpoint"
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/wfagent"
)

// AgentBinding is one agent registered under a model id: the compiled flow
// it runs, the executor driving it, and the checkpoint store persisting its
// conversations.
type AgentBinding struct {
	ModelID  string
	Flow     *flow.Flow
	Executor *wfagent.Executor
	Store    *checkpoint.Store

	// LLMs resolves the LLM adapters any wfagent.Agent or PromptExecutionStep
	// in Flow names by id. Left nil, a flow with no LLM-backed steps (like
	// this package's own echo-flow tests) still runs fine.
	LLMs flow.LLMResolver
}

// Worker serves one or more agents over the Responses API. A response
// without previous_response_id starts a fresh conversation; one that names
// a previous_response_id continues that response's conversation, resolved
// through the in-memory response registry rather than a separate
// conversation-id wire field — the Responses API exposes only response
// ids to clients, so continuity has to thread through them.
type Worker struct {
	Agents map[string]AgentBinding // model id -> binding

	mu        sync.Mutex
	responses map[string]*responseRun
}

type responseRun struct {
	mu             sync.Mutex
	response       Response
	modelID        string
	conversationID string
}

// NewWorker builds a Worker serving the given agent bindings, keyed by
// AgentBinding.ModelID.
func NewWorker(bindings ...AgentBinding) *Worker {
	agents := make(map[string]AgentBinding, len(bindings))
	for _, b := range bindings {
		agents[b.ModelID] = b
	}
	return &Worker{Agents: agents, responses: make(map[string]*responseRun)}
}

// Models lists the agents this worker serves as Responses API models.
func (w *Worker) Models() []Model {
	out := make([]Model, 0, len(w.Agents))
	for id := range w.Agents {
		out = append(out, Model{ID: id, Object: "model", OwnedBy: "wayflow"})
	}
	return out
}

// errUnknownModel reports that req.Model names no registered agent.
func errUnknownModel(model string) error {
	return fmt.Errorf("responsesserver: unknown model %q", model)
}

// notFoundError is a typed error so server.go can map a missing response to
// a 404 via errors.As rather than string-matching.
type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return fmt.Sprintf("responsesserver: response %q not found", e.id) }

func errUnknownResponse(id string) error { return &notFoundError{id: id} }

// conversationFor resolves the conversation id a previous response was
// backed by, so a follow-up response continues the same conversation
// regardless of how many responses have chained before it. Returns "" if
// previousResponseID is empty or names no known response.
func (w *Worker) conversationFor(previousResponseID string) string {
	if previousResponseID == "" {
		return ""
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.responses[previousResponseID]
	if !ok {
		return ""
	}
	return run.conversationID
}

// CreateResponse runs req against its named model's agent and returns the
// full sequence of stream events describing the turn: response.created,
// response.in_progress, one response.output_text.delta carrying the full
// reply (this engine produces text turn-at-a-time, not token-by-token, so
// there is exactly one delta event per turn), and a terminal
// response.completed, response.incomplete (the run suspended) or
// response.failed. If loading, running or checkpointing the conversation
// fails, only response.created and response.failed are returned. Sequence
// numbers are left at zero
// here; the caller (server.go, for SSE) or the test assigns them, mirroring
// the distilled source's own counter-at-the-transport-boundary design.
func (w *Worker) CreateResponse(ctx context.Context, req CreateResponse) ([]ResponseStreamEvent, error) {
	binding, ok := w.Agents[req.Model]
	if !ok {
		return nil, errUnknownModel(req.Model)
	}

	conversationID := w.conversationFor(req.PreviousResponseID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	responseID := uuid.NewString()

	userText := flattenInput(req.Input)

	conv, _, ok, err := binding.Store.LoadLatest(ctx, conversationID, binding.Flow)
	if err != nil {
		return w.fail(responseID, conversationID, req.Model, err), nil
	}

	var status wfagent.ExecutionStatus
	if !ok {
		conv = wfagent.New(conversationID, binding.Flow, map[string]any{"user_provided_input": userText})
		conv.RC.LLMs = binding.LLMs
		conv.RC.AppendMessage(message.NewText(message.RoleUser, message.TypeUser, userText))
		status, err = binding.Executor.Run(ctx, conv)
	} else {
		conv.RC.LLMs = binding.LLMs
		msg := message.NewText(message.RoleUser, message.TypeUser, userText)
		status, err = binding.Executor.Resume(ctx, conv, wfagent.ResumeInput{UserMessage: &msg})
	}
	if err != nil {
		return w.fail(responseID, conversationID, req.Model, err), nil
	}

	if _, err := binding.Store.Save(ctx, req.Model, conv); err != nil {
		return w.fail(responseID, conversationID, req.Model, err), nil
	}

	return w.publish(responseID, conversationID, req.Model, conv, status), nil
}

func flattenInput(items []InputItem) string {
	var b strings.Builder
	for _, item := range items {
		for _, part := range item.Content {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func (w *Worker) fail(responseID, conversationID, model string, err error) []ResponseStreamEvent {
	resp := Response{
		ID:     responseID,
		Object: "response",
		Status: "failed",
		Model:  model,
		Error:  &ResponseError{Code: "internal_error", Message: err.Error()},
	}
	w.store(responseID, conversationID, model, resp)
	return []ResponseStreamEvent{
		{Type: EventResponseCreated, Response: &resp},
		{Type: EventResponseFailed, Response: &resp},
	}
}

func (w *Worker) publish(responseID, conversationID, model string, conv *wfagent.Conversation, status wfagent.ExecutionStatus) []ResponseStreamEvent {
	text, respStatus := responseOutput(status, conv)
	outputItem := OutputItem{
		ID:      uuid.NewString(),
		Type:    "message",
		Role:    "assistant",
		Status:  "completed",
		Content: []ContentPart{{Type: "output_text", Text: text}},
	}
	resp := Response{
		ID:     responseID,
		Object: "response",
		Status: respStatus,
		Model:  model,
		Output: []OutputItem{outputItem},
	}
	w.store(responseID, conversationID, model, resp)

	terminal := EventResponseCompleted
	switch respStatus {
	case "failed":
		terminal = EventResponseFailed
	case "incomplete":
		terminal = EventResponseIncomplete
	}

	return []ResponseStreamEvent{
		{Type: EventResponseCreated, Response: &resp},
		{Type: EventResponseInProgress, Response: &resp},
		{Type: EventOutputTextDelta, Delta: text, ItemID: outputItem.ID},
		{Type: terminal, Response: &resp},
	}
}

// responseOutput reads the last assistant message out of conv and maps the
// run's ExecutionStatus onto a Responses API status: a suspended status
// ("input required", mid-tool-call) is reported as "incomplete" since the
// Responses API has no direct equivalent of A2A's input-required state.
func responseOutput(status wfagent.ExecutionStatus, conv *wfagent.Conversation) (text string, respStatus string) {
	msgs := conv.Messages()
	if len(msgs) > 0 {
		text = msgs[len(msgs)-1].Text()
	}
	switch status.(type) {
	case wfagent.FinishedStatus:
		return text, "completed"
	case wfagent.FailedStatus:
		return text, "failed"
	default:
		return text, "incomplete"
	}
}

func (w *Worker) store(responseID, conversationID, modelID string, resp Response) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.responses[responseID] = &responseRun{response: resp, modelID: modelID, conversationID: conversationID}
}

// Get implements GET /v1/responses/{id}.
func (w *Worker) Get(id string) (Response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.responses[id]
	if !ok {
		return Response{}, errUnknownResponse(id)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.response, nil
}

// Delete implements DELETE /v1/responses/{id}.
func (w *Worker) Delete(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.responses[id]; !ok {
		return errUnknownResponse(id)
	}
	delete(w.responses, id)
	return nil
}

// Cancel implements POST /v1/responses/{id}/cancel. As with
// pkg/a2aserver.Worker.Cancel, this marks the stored status without
// interrupting an in-flight run: CreateResponse runs synchronously to
// completion before a response id even becomes visible to Cancel, so there
// is never an in-flight run to interrupt under the current executor.
func (w *Worker) Cancel(id string) (Response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.responses[id]
	if !ok {
		return Response{}, errUnknownResponse(id)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	run.response.Status = "cancelled"
	return run.response, nil
}
