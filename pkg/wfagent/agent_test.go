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
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/tool"
)

// scriptedAdapter returns one queued completion per Send call.
type scriptedAdapter struct {
	completions []llmadapter.Completion
	calls       int
}

func (s *scriptedAdapter) Send(ctx context.Context, p llmadapter.Prompt) (llmadapter.Completion, error) {
	c := s.completions[s.calls]
	s.calls++
	return c, nil
}
func (s *scriptedAdapter) Stream(ctx context.Context, p llmadapter.Prompt) (<-chan llmadapter.Chunk, error) {
	return nil, nil
}
func (s *scriptedAdapter) Name() string { return "scripted" }

type resolver struct{ adapter llmadapter.Adapter }

func (r *resolver) ResolveLLM(name string) (llmadapter.Adapter, error) { return r.adapter, nil }

func textCompletion(text string) llmadapter.Completion {
	return llmadapter.Completion{Message: message.NewText(message.RoleAssistant, message.TypeAgent, text)}
}

func toolCallCompletion(reqID, toolName string, args map[string]any, requiresConfirmation bool) llmadapter.Completion {
	m := message.MustNew(message.RoleAssistant, message.TypeToolRequest, nil, message.WithToolRequests([]message.ToolRequest{
		{Name: toolName, Args: args, ToolRequestID: reqID, RequiresConfirmation: requiresConfirmation},
	}))
	return llmadapter.Completion{Message: m}
}

type echoTool struct {
	def tool.Definition
}

func (e *echoTool) Definition() tool.Definition { return e.def }
func (e *echoTool) Run(ctx context.Context, args map[string]any) (any, error) {
	return args["text"], nil
}

func TestAgentRunTurnServerToolThenFinal(t *testing.T) {
	rc := flow.NewRunContext("c1")
	rc.LLMs = &resolver{adapter: &scriptedAdapter{completions: []llmadapter.Completion{
		toolCallCompletion("r1", "echo", map[string]any{"text": "hi"}, false),
		textCompletion("the result was hi"),
	}}}
	agent := &Agent{AgentName: "assistant", LLMName: "gpt", CallerInputMode: CallerInputDefault, Tools: []tool.Tool{
		&echoTool{def: tool.Definition{Name: "echo", Kind: tool.KindServer}},
	}}

	outputs, yield, err := agent.RunTurn(rc, map[string]any{"user_provided_input": "echo hi please"})
	require.NoError(t, err)
	require.NotNil(t, yield)
	assert.Equal(t, flow.YieldUserMessageRequest, yield.Kind)
	assert.Equal(t, "the result was hi", outputs["response"])
}

func TestAgentRunTurnClientToolYieldsAndResumes(t *testing.T) {
	rc := flow.NewRunContext("c1")
	adapter := &scriptedAdapter{completions: []llmadapter.Completion{
		toolCallCompletion("r1", "confirm_email", nil, false),
		textCompletion("done"),
	}}
	rc.LLMs = &resolver{adapter: adapter}
	agent := &Agent{AgentName: "assistant", LLMName: "gpt", CallerInputMode: CallerInputNever, NoCallerReminderLimit: 1, Tools: []tool.Tool{
		&echoTool{def: tool.Definition{Name: "confirm_email", Kind: tool.KindClient}},
	}}

	_, yield, err := agent.RunTurn(rc, map[string]any{"user_provided_input": "send it"})
	require.NoError(t, err)
	require.NotNil(t, yield)
	assert.Equal(t, flow.YieldToolRequest, yield.Kind)
	require.Len(t, yield.ToolRequests, 1)
	assert.Equal(t, "r1", yield.ToolRequests[0].ToolRequestID)

	rc.AppendMessage(message.MustNew(message.RoleUser, message.TypeToolResult, nil,
		message.WithToolResult(&message.ToolResult{ToolRequestID: "r1", Content: "sent"})))

	outputs, yield, err := agent.RunTurn(rc, nil)
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "done", outputs["response"])
}

func TestAgentRunTurnRequiresConfirmation(t *testing.T) {
	rc := flow.NewRunContext("c1")
	adapter := &scriptedAdapter{completions: []llmadapter.Completion{
		toolCallCompletion("r1", "delete_account", nil, true),
		textCompletion("account deleted"),
	}}
	rc.LLMs = &resolver{adapter: adapter}
	agent := &Agent{AgentName: "assistant", LLMName: "gpt", CallerInputMode: CallerInputNever, NoCallerReminderLimit: 1, Tools: []tool.Tool{
		&echoTool{def: tool.Definition{Name: "delete_account", Kind: tool.KindServer, RequiresConfirmation: true}},
	}}

	_, yield, err := agent.RunTurn(rc, map[string]any{"user_provided_input": "delete my account"})
	require.NoError(t, err)
	require.NotNil(t, yield)
	assert.Equal(t, flow.YieldToolExecutionConfirmation, yield.Kind)

	rc.SetVariable(confirmationVariableKey("r1"), true)
	outputs, yield, err := agent.RunTurn(rc, nil)
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "account deleted", outputs["response"])
}
