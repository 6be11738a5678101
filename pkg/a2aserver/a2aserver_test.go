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
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/checkpoint"
	"github.com/oracle/wayflow-sub001/pkg/datastore"
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/observability"
	"github.com/oracle/wayflow-sub001/pkg/wfagent"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// echoFlow is a start -> done flow with no outputs that finishes
// immediately, leaving only the incoming message in the history: just
// enough to drive a full message/send -> tasks/get round trip without a
// real LLM step.
func echoFlow() *flow.Flow {
	start := &flow.StartStep{StepName: "start"}
	complete := &flow.CompleteStep{StepName: "done"}
	return &flow.Flow{
		Name:      "echo",
		BeginStep: "start",
		Steps:     map[string]flow.Step{"start": start, "done": complete},
		ControlEdges: []flow.ControlEdge{
			{Src: "start", SourceBranch: flow.DefaultBranch, Dst: "done"},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db := openTestDB(t)
	cstore, err := datastore.NewConversationStore(db, "sqlite")
	require.NoError(t, err)

	f := echoFlow()
	executor := wfagent.NewExecutor()
	executor.Metrics = observability.NewMetrics()
	worker := NewWorker("agent-1", f, executor, checkpoint.NewStore(cstore))
	card := AgentCard{
		Name:               "echo-agent",
		Version:            "0.1.0",
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
	return NewServer(worker, card, executor.Metrics)
}

func rpcCall(t *testing.T, srv *Server, method string, params any) rpcResponse {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	req := rpcRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: paramsJSON}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestMessageSendBlockingThenTasksGetRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	sendResp := rpcCall(t, srv, "message/send", MessageSendParams{
		Message: Message{
			Role:  "user",
			Parts: []Part{{Kind: PartKindText, Text: "hello"}},
		},
		Configuration: &Configuration{Blocking: true},
	})
	require.Nil(t, sendResp.Error)

	resultJSON, err := json.Marshal(sendResp.Result)
	require.NoError(t, err)
	var task Task
	require.NoError(t, json.Unmarshal(resultJSON, &task))

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	require.Len(t, task.History, 1)
	assert.Equal(t, "hello", task.History[0].Parts[0].Text)

	getResp := rpcCall(t, srv, "tasks/get", TaskIDParams{ID: task.ID})
	require.Nil(t, getResp.Error)

	getJSON, err := json.Marshal(getResp.Result)
	require.NoError(t, err)
	var fetched Task
	require.NoError(t, json.Unmarshal(getJSON, &fetched))
	assert.Equal(t, task.ID, fetched.ID)
	assert.Equal(t, a2a.TaskStateCompleted, fetched.Status.State)
}

func TestTasksGetUnknownTaskReturnsTaskNotFoundError(t *testing.T) {
	srv := newTestServer(t)

	resp := rpcCall(t, srv, "tasks/get", TaskIDParams{ID: "does-not-exist"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeTaskNotFound, resp.Error.Code)
}

func TestTasksCancelMarksTaskCanceled(t *testing.T) {
	srv := newTestServer(t)

	sendResp := rpcCall(t, srv, "message/send", MessageSendParams{
		Message:       Message{Role: "user", Parts: []Part{{Kind: PartKindText, Text: "hi"}}},
		Configuration: &Configuration{Blocking: true},
	})
	require.Nil(t, sendResp.Error)
	resultJSON, err := json.Marshal(sendResp.Result)
	require.NoError(t, err)
	var task Task
	require.NoError(t, json.Unmarshal(resultJSON, &task))

	cancelResp := rpcCall(t, srv, "tasks/cancel", TaskIDParams{ID: task.ID})
	require.Nil(t, cancelResp.Error)

	cancelJSON, err := json.Marshal(cancelResp.Result)
	require.NoError(t, err)
	var canceled Task
	require.NoError(t, json.Unmarshal(cancelJSON, &canceled))
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, "tasks/list", struct{}{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestAgentCardEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent-card.json", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var card AgentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.Equal(t, "echo-agent", card.Name)
}

func TestMetricsEndpointRecordsStepInvocations(t *testing.T) {
	srv := newTestServer(t)

	sendResp := rpcCall(t, srv, "message/send", MessageSendParams{
		Message:       Message{Role: "user", Parts: []Part{{Kind: PartKindText, Text: "hi"}}},
		Configuration: &Configuration{Blocking: true},
	})
	require.Nil(t, sendResp.Error)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wayflow_steps_total")
}
