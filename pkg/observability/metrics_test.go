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

package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesRecordedValues(t *testing.T) {
	m := NewMetrics()
	m.ObserveStep("AgentExecutionStep", "ok", 10*time.Millisecond)
	m.ObserveToolCall("search", "ok")
	m.ObserveLLMCall("gpt-4", "ok", 20*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "wayflow_steps_total")
	assert.Contains(t, body, "wayflow_tool_calls_total")
	assert.Contains(t, body, "wayflow_llm_calls_total")
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStep("x", "ok", time.Millisecond)
		m.ObserveToolCall("x", "ok")
		m.ObserveLLMCall("x", "ok", time.Millisecond)
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}
