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

// Package llmadapter sends Prompts to a language model and returns a
// Completion or a stream of tagged chunks, normalizing two wire shapes
// (Chat Completions and Responses) and a handful of vendor quirks behind a
// single Adapter interface.
package llmadapter

import (
	"context"

	"github.com/google/uuid"

	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/tool"
)

// GenerationConfig controls sampling and stop behavior for a single call.
type GenerationConfig struct {
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	Stop             []string
	FrequencyPenalty *float64
	ExtraArgs        map[string]any
}

// Prompt is everything needed to make one LLM call.
type Prompt struct {
	Messages         []message.Message
	Tools            []tool.Definition
	ResponseFormat   *property.Property // structured-output schema, optional
	GenerationConfig GenerationConfig
	SystemInstruction string
}

// TokenUsage is normalized token accounting across providers.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates usage from another call into the receiver, used for
// conversation-level aggregation (spec §9 open question: partial-stream
// accounting is provider-dependent and may under-report; this engine only
// aggregates on completion, matching the spec).
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Completion is a non-streamed LLM response.
type Completion struct {
	Message    message.Message
	TokenUsage TokenUsage
}

// ChunkTag classifies a streamed chunk.
type ChunkTag string

const (
	ChunkStart ChunkTag = "START"
	ChunkText  ChunkTag = "TEXT"
	ChunkEnd   ChunkTag = "END"
)

// Chunk is one element of a streamed completion. TokenUsage is populated
// only on the final ChunkEnd.
type Chunk struct {
	Tag          ChunkTag
	TextDelta    string
	Message      *message.Message // set on ChunkEnd: the final assembled message
	TokenUsage   *TokenUsage
}

// Adapter sends a Prompt to a specific model/provider.
type Adapter interface {
	// Send performs a single-shot (non-streaming) completion call.
	Send(ctx context.Context, p Prompt) (Completion, error)

	// Stream performs a streaming completion call, delivering chunks on the
	// returned channel. A failure while setting up the stream is returned
	// as the error. Once streaming has started, the channel is closed after
	// ChunkEnd, or without a ChunkEnd if the stream fails; Chunk carries no
	// error, so a mid-stream failure is visible only as the missing
	// ChunkEnd.
	Stream(ctx context.Context, p Prompt) (<-chan Chunk, error)

	// Name identifies the provider/model this adapter targets, used for
	// vendor-quirk dispatch and logging.
	Name() string
}

// newPromptCacheKey returns a fresh cache key used when the last assistant
// message in the prompt carries none (spec §4.5's prompt-cache fallback).
func newPromptCacheKey() string { return uuid.NewString() }

// ResolvePromptCacheKey returns the last assistant message's cache key, or a
// fresh UUID if that message carries none or there is no assistant message.
// Earlier assistant messages are not consulted.
func ResolvePromptCacheKey(messages []message.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != message.RoleAssistant {
			continue
		}
		if key := messages[i].PromptCacheKey(); key != "" {
			return key
		}
		break
	}
	return newPromptCacheKey()
}
