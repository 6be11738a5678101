package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextMessage(t *testing.T) {
	m := NewText(RoleUser, TypeUser, "hello there")
	assert.Equal(t, "hello there", m.Text())
	assert.NotEmpty(t, m.ID)
}

func TestToolRequestsRequireTextOnlyContents(t *testing.T) {
	_, err := New(RoleAssistant, TypeToolRequest, []Content{ImageContent{Base64Data: "x"}},
		WithToolRequests([]ToolRequest{{Name: "search", ToolRequestID: "1"}}))
	assert.Error(t, err)

	m, err := New(RoleAssistant, TypeToolRequest, []Content{TextContent{Text: "let me check"}},
		WithToolRequests([]ToolRequest{{Name: "search", ToolRequestID: "1"}}))
	require.NoError(t, err)
	assert.Len(t, m.ToolRequests, 1)
}

func TestToolResultRequiresEmptyContents(t *testing.T) {
	_, err := New(RoleUser, TypeToolResult, []Content{TextContent{Text: "oops"}},
		WithToolResult(&ToolResult{Content: "7", ToolRequestID: "1"}))
	assert.Error(t, err)

	m, err := New(RoleUser, TypeToolResult, nil, WithToolResult(&ToolResult{Content: "7", ToolRequestID: "1"}))
	require.NoError(t, err)
	assert.Equal(t, "7", m.ToolResult.Content)
}

func TestRecipientsAndReasoning(t *testing.T) {
	m := MustNew(RoleAssistant, TypeAgent, []Content{TextContent{Text: "ok"}},
		WithRecipients("agent-a", "agent-b"),
		WithReasoning(ReasoningContent{Text: "thinking..."}))
	_, hasA := m.Recipients["agent-a"]
	assert.True(t, hasA)
	r, ok := m.ReasoningContent()
	require.True(t, ok)
	assert.Equal(t, "thinking...", r.Text)
}
