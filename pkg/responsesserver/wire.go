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

// Package responsesserver exposes a wfagent conversation as an
// OpenAI-Responses-compatible HTTP API (spec §4.7/§6): GET /v1/models,
// POST /v1/responses (blocking or SSE-streamed), GET/DELETE
// /v1/responses/{id}, and POST /v1/responses/{id}/cancel.
//
// The wire shapes here (CreateResponse, Response, ResponseStreamEvent, and
// its ResponseCompleted/ResponseFailed/ResponseIncomplete variants) mirror
// the field names OpenAI's own Responses API uses — output, output_text,
// response.output_text.delta — the same vocabulary the distilled source's
// _responses_processor.py normalizes against. No third-party Responses SDK
// is imported: github.com/sashabaranov/go-openai's Go bindings target the
// client side of this API, and this package is the server side of it, so
// its value here is informing field names, not supplying a dependency (see
// DESIGN.md).
package responsesserver

import "encoding/json"

// Model is one served agent, listed at GET /v1/models the way a hosted
// agent behaves like a selectable model.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ListModelsResponse is GET /v1/models' body.
type ListModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// InputItem is one element of CreateResponse.Input: a role plus a list of
// content parts, matching the Responses API's input-message shape.
type InputItem struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one piece of message content on the wire.
type ContentPart struct {
	Type string `json:"type"` // "input_text", "output_text", "refusal"
	Text string `json:"text,omitempty"`
}

// CreateResponse is POST /v1/responses' request body.
type CreateResponse struct {
	Model             string      `json:"model"`
	Input             []InputItem `json:"input"`
	PreviousResponseID string     `json:"previous_response_id,omitempty"`
	Stream            bool        `json:"stream,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
}

// OutputItem is one element of Response.Output: a role plus the content the
// model (or, here, the agent's conversation turn) produced.
type OutputItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"` // "message"
	Role    string        `json:"role"`
	Status  string        `json:"status"`
	Content []ContentPart `json:"content"`
}

// ResponseError carries a failed response's error detail.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the terminal object returned from a non-streaming
// POST /v1/responses, GET /v1/responses/{id}, and
// POST /v1/responses/{id}/cancel.
type Response struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	Status    string         `json:"status"` // "completed", "failed", "incomplete", "in_progress", "cancelled"
	Model     string         `json:"model"`
	Output    []OutputItem   `json:"output"`
	Error     *ResponseError `json:"error,omitempty"`
}

// OutputText returns the concatenated text of every "output_text" content
// part across Output, the common case callers want without walking the
// item/content nesting themselves.
func (r Response) OutputText() string {
	var out string
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Type == "output_text" {
				out += part.Text
			}
		}
	}
	return out
}

// StreamEventType discriminates a ResponseStreamEvent.
type StreamEventType string

const (
	EventResponseCreated      StreamEventType = "response.created"
	EventResponseInProgress   StreamEventType = "response.in_progress"
	EventOutputTextDelta      StreamEventType = "response.output_text.delta"
	EventResponseCompleted    StreamEventType = "response.completed"
	EventResponseFailed       StreamEventType = "response.failed"
	EventResponseIncomplete   StreamEventType = "response.incomplete"
)

// ResponseStreamEvent is one SSE frame of a streamed POST /v1/responses.
// SequenceNumber is assigned by the server as events are emitted (spec §6:
// "monotonically increasing sequence_number"), not by whatever produced the
// event internally.
type ResponseStreamEvent struct {
	Type           StreamEventType `json:"type"`
	SequenceNumber int             `json:"sequence_number"`
	Response       *Response       `json:"response,omitempty"`
	Delta          string          `json:"delta,omitempty"`
	ItemID         string          `json:"item_id,omitempty"`
}

// isTerminal reports whether this event carries the final Response:
// response.completed, response.failed, or response.incomplete.
func (e ResponseStreamEvent) isTerminal() bool {
	switch e.Type {
	case EventResponseCompleted, EventResponseFailed, EventResponseIncomplete:
		return true
	default:
		return false
	}
}

func (e ResponseStreamEvent) marshal() ([]byte, error) {
	return json.Marshal(e)
}
