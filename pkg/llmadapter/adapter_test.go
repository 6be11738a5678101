package llmadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/message"
)

func TestChatCompletionsAdapterSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ccRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ccResponse{
			Choices: []ccChoice{{Message: ccMessage{Role: "assistant", Content: "hi there"}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	adapter := NewChatCompletionsAdapter(srv.URL, "key", "test-model", VendorGeneric)
	completion, err := adapter.Send(context.Background(), Prompt{
		Messages: []message.Message{message.NewText(message.RoleUser, message.TypeUser, "hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", completion.Message.Text())
}

func TestChatCompletionsAdapterRetriesOn5xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ccResponse{Choices: []ccChoice{{Message: ccMessage{Content: "ok"}}}})
	}))
	defer srv.Close()

	adapter := NewChatCompletionsAdapter(srv.URL, "", "m", VendorGeneric)
	adapter.RetryPolicy = RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Factor: 2}
	completion, err := adapter.Send(context.Background(), Prompt{Messages: []message.Message{message.NewText(message.RoleUser, message.TypeUser, "x")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Message.Text())
	assert.Equal(t, 2, calls)
}

func TestChatCompletionsAdapterDoesNotRetry4xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	adapter := NewChatCompletionsAdapter(srv.URL, "", "m", VendorGeneric)
	adapter.RetryPolicy = RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Factor: 2}
	_, err := adapter.Send(context.Background(), Prompt{Messages: []message.Message{message.NewText(message.RoleUser, message.TypeUser, "x")}})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCohereFrequencyPenaltyClamp(t *testing.T) {
	fp := 1.9
	cfg, _ := applyVendorQuirks(VendorCohere, GenerationConfig{FrequencyPenalty: &fp}, nil)
	assert.Equal(t, 1.0, *cfg.FrequencyPenalty)
}

func TestGeminiInsertsSystemPlaceholder(t *testing.T) {
	msgs := []message.Message{message.NewText(message.RoleUser, message.TypeUser, "hi")}
	_, out := applyVendorQuirks(VendorGemini, GenerationConfig{}, msgs)
	require.Len(t, out, 2)
	assert.Equal(t, message.RoleSystem, out[0].Role)
}

func TestResponsesAdapterSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(respResponse{
			Output: []respItem{{Type: "message", Role: "assistant", Content: []respContent{{Type: "output_text", Text: "done"}}}},
		})
	}))
	defer srv.Close()

	adapter := NewResponsesAdapter(srv.URL, "key", "test-model")
	completion, err := adapter.Send(context.Background(), Prompt{
		Messages: []message.Message{message.NewText(message.RoleUser, message.TypeUser, "hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", completion.Message.Text())
}

func TestResolvePromptCacheKeyFallsBackToFreshUUID(t *testing.T) {
	key := ResolvePromptCacheKey([]message.Message{message.NewText(message.RoleUser, message.TypeUser, "hi")})
	assert.NotEmpty(t, key)
}

func TestResolvePromptCacheKeyReusesAssistantKey(t *testing.T) {
	m := message.NewText(message.RoleAssistant, message.TypeAgent, "hi", message.WithPromptCacheKey("cache-1"))
	key := ResolvePromptCacheKey([]message.Message{m})
	assert.Equal(t, "cache-1", key)
}
