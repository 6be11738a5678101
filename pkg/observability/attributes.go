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

// Package observability carries the engine's step/tool/LLM-call metrics,
// exposed as Prometheus counters and histograms at /metrics on the A2A and
// Responses servers (spec §4.7's ambient observability, not excluded by
// the offline-evaluation non-goal, which concerns scoring harnesses, not
// live metrics).
package observability

// Structured log attribute keys, adapted from the teacher's GenAI
// semantic-convention naming (gen_ai.*, hector.* -> wayflow.*). The
// executor's and servers' log calls use literal key strings and do not
// reference these constants.
const (
	AttrConversationID = "conversation_id"
	AttrStepName        = "step_name"
	AttrStepType        = "step_type"
	AttrToolName        = "tool_name"
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMOperation    = "gen_ai.operation.name"
)
