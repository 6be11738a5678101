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
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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
	srv, _ := newTestServerWithMetrics(t)
	return srv
}

func newTestServerWithMetrics(t *testing.T) (*Server, *observability.Metrics) {
	t.Helper()
	db := openTestDB(t)
	cstore, err := datastore.NewConversationStore(db, "sqlite")
	require.NoError(t, err)

	executor := wfagent.NewExecutor()
	metrics := observability.NewMetrics()
	executor.Metrics = metrics
	binding := AgentBinding{
		ModelID:  "echo-agent",
		Flow:     echoFlow(),
		Executor: executor,
		Store:    checkpoint.NewStore(cstore),
	}
	return NewServer(NewWorker(binding), metrics), metrics
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body ListModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "echo-agent", body.Data[0].ID)
}

func TestCreateResponseBlockingReturnsCompletedResponse(t *testing.T) {
	srv := newTestServer(t)

	reqBody, err := json.Marshal(CreateResponse{
		Model: "echo-agent",
		Input: []InputItem{{Role: "user", Content: []ContentPart{{Type: "input_text", Text: "hello"}}}},
	})
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "hello", resp.OutputText())
	assert.NotEmpty(t, resp.ID)
}

func TestCreateResponseStreamingEmitsSequencedSSEFrames(t *testing.T) {
	srv := newTestServer(t)

	reqBody, err := json.Marshal(CreateResponse{
		Model:  "echo-agent",
		Input:  []InputItem{{Role: "user", Content: []ContentPart{{Type: "input_text", Text: "hi"}}}},
		Stream: true,
	})
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "\"sequence_number\":0")
	assert.Contains(t, body, "response.completed")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestGetResponseAfterCreate(t *testing.T) {
	srv := newTestServer(t)

	reqBody, err := json.Marshal(CreateResponse{
		Model: "echo-agent",
		Input: []InputItem{{Role: "user", Content: []ContentPart{{Type: "input_text", Text: "hi"}}}},
	})
	require.NoError(t, err)
	createReq := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	var created Response
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	getReq := httptest.NewRequest(http.MethodGet, "/v1/responses/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	srv.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var fetched Response
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestGetResponseUnknownIDReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/responses/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteThenGetReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)

	reqBody, err := json.Marshal(CreateResponse{
		Model: "echo-agent",
		Input: []InputItem{{Role: "user", Content: []ContentPart{{Type: "input_text", Text: "hi"}}}},
	})
	require.NoError(t, err)
	createReq := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	var created Response
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/responses/"+created.ID, nil)
	delRec := httptest.NewRecorder()
	srv.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusNoContent, delRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/responses/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	srv.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestCancelResponseMarksCancelled(t *testing.T) {
	srv := newTestServer(t)

	reqBody, err := json.Marshal(CreateResponse{
		Model: "echo-agent",
		Input: []InputItem{{Role: "user", Content: []ContentPart{{Type: "input_text", Text: "hi"}}}},
	})
	require.NoError(t, err)
	createReq := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	var created Response
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	cancelReq := httptest.NewRequest(http.MethodPost, "/v1/responses/"+created.ID+"/cancel", nil)
	cancelRec := httptest.NewRecorder()
	srv.ServeHTTP(cancelRec, cancelReq)
	require.Equal(t, http.StatusOK, cancelRec.Code)

	var canceled Response
	require.NoError(t, json.Unmarshal(cancelRec.Body.Bytes(), &canceled))
	assert.Equal(t, "cancelled", canceled.Status)
}

func TestCreateResponseUnknownModelReturnsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	reqBody, err := json.Marshal(CreateResponse{
		Model: "not-a-real-agent",
		Input: []InputItem{{Role: "user", Content: []ContentPart{{Type: "input_text", Text: "hi"}}}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointRecordsStepInvocations(t *testing.T) {
	srv, _ := newTestServerWithMetrics(t)

	reqBody, err := json.Marshal(CreateResponse{
		Model: "echo-agent",
		Input: []InputItem{{Role: "user", Content: []ContentPart{{Type: "input_text", Text: "hi"}}}},
	})
	require.NoError(t, err)
	createReq := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusOK, createRec.Code)

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	srv.ServeHTTP(metricsRec, metricsReq)
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "wayflow_steps_total")
}
