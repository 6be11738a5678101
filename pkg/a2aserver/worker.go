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

package a2aserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/oracle/wayflow-sub001/pkg/checkpoint"
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/wfagent"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// BlockingTimeout is spec §6's _BLOCKING_REQUESTS_MAX_TIME_SECONDS: how
// long a blocking message/send waits for the run to reach a terminal or
// suspend state before giving up.
const BlockingTimeout = 10 * time.Second

// Worker drives one agent's flow for the A2A server. A context's task id
// and context id are the same value: this server keeps exactly one active
// task per conversation rather than layering a separate task registry on
// top of the conversation store (an Open Question the spec leaves
// unresolved, decided here in favor of the simpler 1:1 mapping).
type Worker struct {
	AgentID  string
	Flow     *flow.Flow
	Executor *wfagent.Executor
	Store    *checkpoint.Store

	// LLMs resolves the LLM adapters any wfagent.Agent or PromptExecutionStep
	// in Flow names by id. Left nil, a flow with no LLM-backed steps (like
	// this package's own echo-flow tests) still runs fine.
	LLMs flow.LLMResolver

	mu    sync.Mutex
	tasks map[string]*taskRun
}

type taskRun struct {
	mu     sync.Mutex
	status Task
	done   chan struct{} // closed once the current run reaches a resting state
}

// NewWorker builds a Worker that executes f through executor and persists
// turns through store.
func NewWorker(agentID string, f *flow.Flow, executor *wfagent.Executor, store *checkpoint.Store) *Worker {
	return &Worker{AgentID: agentID, Flow: f, Executor: executor, Store: store, tasks: make(map[string]*taskRun)}
}

// SendMessage implements message/send: it loads or starts the conversation
// named by msg.ContextID (generating a fresh id if absent), resumes or
// begins the flow with msg's content, and persists the resulting
// checkpoint. The task is marked submitted before the run starts. If
// cfg.Blocking is set it waits up to BlockingTimeout for the run to settle
// before returning the task in whatever state it has reached; non-blocking
// requests return immediately, normally still in the submitted state.
func (w *Worker) SendMessage(ctx context.Context, msg Message, cfg *Configuration) (Task, error) {
	contextID := msg.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	taskID := contextID

	internalMsg, err := toInternalMessage(msg)
	if err != nil {
		return Task{}, fmt.Errorf("a2aserver: decoding message: %w", err)
	}

	run := w.runFor(taskID)
	run.mu.Lock()
	run.done = make(chan struct{})
	done := run.done
	run.status.ID = taskID
	run.status.ContextID = contextID
	run.status.Status = TaskStatus{State: a2a.TaskStateSubmitted}
	run.mu.Unlock()

	go w.execute(taskID, contextID, internalMsg, run, done)

	if cfg != nil && cfg.Blocking {
		select {
		case <-done:
		case <-time.After(BlockingTimeout):
			return Task{}, &wferrors.TimeoutError{Operation: "blocking message/send"}
		case <-ctx.Done():
			return Task{}, ctx.Err()
		}
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.status, nil
}

func (w *Worker) runFor(taskID string) *taskRun {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.tasks[taskID]
	if !ok {
		r = &taskRun{}
		w.tasks[taskID] = r
	}
	return r
}

// execute loads the conversation (from checkpoint if one exists, fresh
// otherwise), feeds it msg, runs the executor to its next resting state,
// checkpoints the result, and publishes the A2A task view.
func (w *Worker) execute(taskID, contextID string, msg message.Message, run *taskRun, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	conv, _, ok, err := w.Store.LoadLatest(ctx, contextID, w.Flow)
	if err != nil {
		w.publishFailure(run, taskID, contextID, err)
		return
	}

	var status wfagent.ExecutionStatus
	if !ok {
		conv = wfagent.New(contextID, w.Flow, map[string]any{"user_provided_input": msg.Text()})
		conv.RC.LLMs = w.LLMs
		conv.RC.AppendMessage(msg)
		st, runErr := w.Executor.Run(ctx, conv)
		if runErr != nil {
			w.publishFailure(run, taskID, contextID, runErr)
			return
		}
		status = st
	} else {
		conv.RC.LLMs = w.LLMs
		st, runErr := w.Executor.Resume(ctx, conv, wfagent.ResumeInput{UserMessage: &msg})
		if runErr != nil {
			w.publishFailure(run, taskID, contextID, runErr)
			return
		}
		status = st
	}

	if _, err := w.Store.Save(ctx, w.AgentID, conv); err != nil {
		w.publishFailure(run, taskID, contextID, err)
		return
	}

	task := w.toTask(taskID, contextID, conv, status)
	run.mu.Lock()
	run.status = task
	run.mu.Unlock()
}

func (w *Worker) publishFailure(run *taskRun, taskID, contextID string, err error) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.status = Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: a2a.TaskStateFailed, Message: &Message{Role: "agent", Parts: []Part{{Kind: PartKindText, Text: err.Error()}}}},
	}
}

func (w *Worker) toTask(taskID, contextID string, conv *wfagent.Conversation, status wfagent.ExecutionStatus) Task {
	history := make([]Message, 0, len(conv.Messages()))
	for _, m := range conv.Messages() {
		history = append(history, fromInternalMessage(m))
	}

	state, statusMsg := taskState(status, history)
	return Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: state, Message: statusMsg},
		History:   history,
	}
}

// taskState maps an ExecutionStatus onto one of a2a-go's six TaskState
// values, following the teacher's Executor.Execute event-translation rule
// set (per-yield suspend state or terminal state). The submitted state is
// set by SendMessage before the run starts; working is never reported.
func taskState(status wfagent.ExecutionStatus, history []Message) (a2a.TaskState, *Message) {
	switch st := status.(type) {
	case wfagent.FinishedStatus:
		return a2a.TaskStateCompleted, nil
	case wfagent.UserMessageRequestStatus:
		return a2a.TaskStateInputRequired, lastMessagePtr(history)
	case wfagent.ToolRequestStatus:
		return a2a.TaskStateInputRequired, lastMessagePtr(history)
	case wfagent.ToolExecutionConfirmationStatus:
		return a2a.TaskStateInputRequired, lastMessagePtr(history)
	case wfagent.AuthChallengeStatus:
		return a2a.TaskStateInputRequired, &Message{Role: "agent", Parts: []Part{{Kind: PartKindText, Text: "authorization required: " + st.AuthorizationURL}}}
	case wfagent.InterruptedExecutionStatus:
		return a2a.TaskStateFailed, &Message{Role: "agent", Parts: []Part{{Kind: PartKindText, Text: "interrupted: " + st.Reason}}}
	case wfagent.FailedStatus:
		msg := ""
		if st.Err != nil {
			msg = st.Err.Error()
		}
		return a2a.TaskStateFailed, &Message{Role: "agent", Parts: []Part{{Kind: PartKindText, Text: msg}}}
	default:
		return a2a.TaskStateFailed, nil
	}
}

func lastMessagePtr(history []Message) *Message {
	if len(history) == 0 {
		return nil
	}
	m := history[len(history)-1]
	return &m
}

// Cancel implements tasks/cancel. Worker-side cooperative cancellation of
// an in-flight run is not implemented: the executor's step loop has no
// cancellation hook wired into it yet, matching the spec's own note that
// this is an open question in the source this module was distilled from.
func (w *Worker) Cancel(ctx context.Context, taskID string) (Task, error) {
	run, ok := w.taskIfExists(taskID)
	if !ok {
		return Task{}, errTaskNotFound(taskID)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	run.status.Status = TaskStatus{State: a2a.TaskStateCanceled}
	return run.status, nil
}

// Get implements tasks/get.
func (w *Worker) Get(ctx context.Context, taskID string) (Task, error) {
	run, ok := w.taskIfExists(taskID)
	if !ok {
		return Task{}, errTaskNotFound(taskID)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.status, nil
}

func (w *Worker) taskIfExists(taskID string) (*taskRun, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.tasks[taskID]
	return r, ok
}

type taskNotFoundError struct{ taskID string }

func (e *taskNotFoundError) Error() string { return fmt.Sprintf("a2aserver: task %q not found", e.taskID) }

func errTaskNotFound(taskID string) error { return &taskNotFoundError{taskID: taskID} }
