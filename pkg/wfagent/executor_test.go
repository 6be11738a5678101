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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/property"
)

func linearFlow() *flow.Flow {
	return &flow.Flow{
		Name: "greet",
		Steps: map[string]flow.Step{
			"start":  &flow.StartStep{StepName: "start"},
			"output": &flow.OutputMessageStep{StepName: "output", Template: "Hello {{.name}}", Inputs: map[string]property.Property{
				"name": property.New("name", property.KindString, ""),
			}},
			"done":   &flow.CompleteStep{StepName: "done", BranchName: "ok"},
		},
		BeginStep: "start",
		ControlEdges: []flow.ControlEdge{
			{Src: "start", SourceBranch: flow.DefaultBranch, Dst: "output"},
			{Src: "output", SourceBranch: flow.DefaultBranch, Dst: "done"},
			{Src: "done", SourceBranch: "ok", Dst: ""},
		},
		OutputDescriptors: map[string]property.Property{
			"message": property.New("message", property.KindString, ""),
		},
	}
}

func TestExecutorRunReachesFinished(t *testing.T) {
	conv := New("c1", linearFlow(), map[string]any{"name": "Ada"})
	exec := NewExecutor()
	status, err := exec.Run(context.Background(), conv)
	require.NoError(t, err)
	finished, ok := status.(FinishedStatus)
	require.True(t, ok)
	assert.Equal(t, "Hello Ada", finished.OutputValues["message"])
	assert.Equal(t, "c1", finished.ConversationID())
}

func suspendingFlow() *flow.Flow {
	return &flow.Flow{
		Name: "ask",
		Steps: map[string]flow.Step{
			"start": &flow.StartStep{StepName: "start"},
			"ask":   &flow.InputMessageStep{StepName: "ask", Template: "What is your name?"},
			"done":  &flow.CompleteStep{StepName: "done"},
		},
		BeginStep: "start",
		ControlEdges: []flow.ControlEdge{
			{Src: "start", SourceBranch: flow.DefaultBranch, Dst: "ask"},
			{Src: "ask", SourceBranch: flow.DefaultBranch, Dst: "done"},
			{Src: "done", SourceBranch: flow.DefaultBranch, Dst: ""},
		},
	}
}

func TestExecutorSuspendsAndResumes(t *testing.T) {
	conv := New("c2", suspendingFlow(), nil)
	exec := NewExecutor()
	status, err := exec.Run(context.Background(), conv)
	require.NoError(t, err)
	_, ok := status.(UserMessageRequestStatus)
	require.True(t, ok)

	status, err = exec.Resume(context.Background(), conv, ResumeInput{})
	require.NoError(t, err)
	_, ok = status.(FinishedStatus)
	assert.True(t, ok)
}

func TestExecutorUnknownStepFails(t *testing.T) {
	f := &flow.Flow{Name: "broken", Steps: map[string]flow.Step{}, BeginStep: "missing"}
	conv := New("c3", f, nil)
	exec := NewExecutor()
	status, err := exec.Run(context.Background(), conv)
	require.Error(t, err)
	_, ok := status.(FailedStatus)
	assert.True(t, ok)
}
