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

package llmadapter

import (
	"github.com/oracle/wayflow-sub001/pkg/message"
)

// Vendor names the provider-specific wire quirks a Chat Completions-shaped
// adapter must normalize before sending, or after receiving, a request.
type Vendor string

const (
	VendorGeneric Vendor = ""
	VendorCohere  Vendor = "cohere"
	VendorGemini  Vendor = "gemini"
	VendorLlama   Vendor = "llama"
)

// applyVendorQuirks mutates a copy of the generation config and message list
// to satisfy provider-specific constraints observed in production, returning
// the adjusted values. Nothing here changes the semantics of the prompt,
// only its wire encoding.
func applyVendorQuirks(vendor Vendor, cfg GenerationConfig, messages []message.Message) (GenerationConfig, []message.Message) {
	switch vendor {
	case VendorCohere:
		return clampCohereFrequencyPenalty(cfg), messages
	case VendorGemini:
		return cfg, insertGeminiSystemPlaceholder(messages)
	default:
		return cfg, messages
	}
}

// clampCohereFrequencyPenalty restricts frequency_penalty to Cohere's
// supported [0, 1] range; the Chat Completions convention allows [-2, 2].
func clampCohereFrequencyPenalty(cfg GenerationConfig) GenerationConfig {
	if cfg.FrequencyPenalty == nil {
		return cfg
	}
	clamped := *cfg.FrequencyPenalty
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	cfg.FrequencyPenalty = &clamped
	return cfg
}

// insertGeminiSystemPlaceholder works around Gemini's chat-completions
// compatibility layer rejecting a request whose first message is not a
// system message: when the prompt has no leading system message, one empty
// placeholder is inserted so the vendor's validator is satisfied without
// altering the conversation's actual instructions.
func insertGeminiSystemPlaceholder(messages []message.Message) []message.Message {
	if len(messages) > 0 && messages[0].Role == message.RoleSystem {
		return messages
	}
	placeholder := message.NewText(message.RoleSystem, message.TypeSystem, "")
	out := make([]message.Message, 0, len(messages)+1)
	out = append(out, placeholder)
	out = append(out, messages...)
	return out
}

// usesLlamaCustomToolTemplate reports whether model identifies one of the
// Llama 3.x family that requires tool calls to be rendered as an inline
// <|python_tag|>-prefixed JSON block in the assistant text rather than the
// structured tool_calls field, because the Chat Completions-compatible
// endpoints for these models do not support structured tool calling.
func usesLlamaCustomToolTemplate(model string) bool {
	switch model {
	case "llama-3.1-8b", "llama-3.1-70b", "llama-3.1-405b", "llama-3.2-11b", "llama-3.2-90b":
		return true
	default:
		return false
	}
}

const llamaPythonTag = "<|python_tag|>"
