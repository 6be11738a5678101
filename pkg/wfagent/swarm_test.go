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
	"github.com/oracle/wayflow-sub001/pkg/llmadapter"
	"github.com/oracle/wayflow-sub001/pkg/tool"
)

func TestNewSwarmWiresSendMessageTool(t *testing.T) {
	addition := &Agent{AgentName: "addition", LLMName: "gpt", CallerInputMode: CallerInputNever, NoCallerReminderLimit: 1}
	router := &Agent{AgentName: "router", LLMName: "gpt", CallerInputMode: CallerInputNever, NoCallerReminderLimit: 1}

	swarm, err := NewSwarm("s1", []*Agent{router, addition}, []Relationship{{Caller: "router", Recipient: "addition"}}, HandoffNever, "router", NewExecutor())
	require.NoError(t, err)

	require.Len(t, router.Tools, 1)
	assert.Equal(t, "send_message_addition", router.Tools[0].Definition().Name)
	assert.Empty(t, addition.Tools)
	assert.Equal(t, "router", swarm.ActiveAgent)
}

func TestSwarmSendMessageRunsIsolatedSubConversation(t *testing.T) {
	addition := &Agent{AgentName: "addition", LLMName: "gpt", CallerInputMode: CallerInputNever, NoCallerReminderLimit: 1}
	router := &Agent{AgentName: "router", LLMName: "gpt", CallerInputMode: CallerInputNever, NoCallerReminderLimit: 1}

	swarm, err := NewSwarm("s1", []*Agent{router, addition}, []Relationship{{Caller: "router", Recipient: "addition"}}, HandoffNever, "router", NewExecutor())
	require.NoError(t, err)

	parentRC := flow.NewRunContext("parent")
	parentRC.LLMs = &resolver{adapter: &scriptedAdapter{completions: []llmadapter.Completion{
		textCompletion("4"),
	}}}
	swarm.rc = parentRC

	sendTool := router.Tools[0]
	out, err := sendTool.Run(context.Background(), map[string]any{"message": "what is 2+2?"})
	require.NoError(t, err)
	assert.Equal(t, "4", out)
	assert.Empty(t, parentRC.Messages(), "sub-conversation must not write into the parent's message history")
}

func TestSwarmHandoffChangesActiveAgent(t *testing.T) {
	a := &Agent{AgentName: "a"}
	b := &Agent{AgentName: "b"}
	swarm, err := NewSwarm("s2", []*Agent{a, b}, []Relationship{{Caller: "a", Recipient: "b"}}, HandoffAlways, "a", NewExecutor())
	require.NoError(t, err)
	require.Len(t, a.Tools, 2) // send_message_b + handoff_to_b

	var handoff tool.Tool
	for _, tl := range a.Tools {
		if tl.Definition().Name == "handoff_to_b" {
			handoff = tl
		}
	}
	require.NotNil(t, handoff)

	_, err = handoff.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "b", swarm.ActiveAgent)
}

func TestNewSwarmRejectsSelfRelationship(t *testing.T) {
	a := &Agent{AgentName: "a"}
	_, err := NewSwarm("s3", []*Agent{a}, []Relationship{{Caller: "a", Recipient: "a"}}, HandoffNever, "a", NewExecutor())
	require.Error(t, err)
}

func TestNewSwarmRejectsUnknownEntryAgent(t *testing.T) {
	a := &Agent{AgentName: "a"}
	_, err := NewSwarm("s4", []*Agent{a}, nil, HandoffNever, "missing", NewExecutor())
	require.Error(t, err)
}

func TestNewSwarmRejectsDuplicateAgentNames(t *testing.T) {
	a1 := &Agent{AgentName: "a"}
	a2 := &Agent{AgentName: "a"}
	_, err := NewSwarm("s5", []*Agent{a1, a2}, nil, HandoffNever, "a", NewExecutor())
	require.Error(t, err)
}

func TestNewManagerWorkersWiresSendMessagePerWorker(t *testing.T) {
	manager := &Agent{AgentName: "manager"}
	w1 := &Agent{AgentName: "worker1"}
	w2 := &Agent{AgentName: "worker2"}
	mw, err := NewManagerWorkers("mw", manager, []*Agent{w1, w2}, NewExecutor())
	require.NoError(t, err)
	require.Len(t, manager.Tools, 2)
	assert.Equal(t, "manager", mw.ActiveAgent)

	var runner flow.AgentRunner = mw
	assert.Equal(t, "mw", runner.Name())
}
