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
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/message"
)

// Conversation is the durable state of one flow run: which step is next,
// the flat io_values namespace every step reads and writes, and the
// RunContext (message history, variables, resolvers) threaded through step
// bodies.
type Conversation struct {
	ID          string
	Flow        *flow.Flow
	CurrentStep string
	IOValues    map[string]any
	Status      ExecutionStatus

	RC *flow.RunContext
}

// New builds a fresh Conversation ready to run f from its begin step, with
// callerInputs seeded into the shared io_values namespace (the values
// StartStep exposes as flow inputs).
func New(id string, f *flow.Flow, callerInputs map[string]any) *Conversation {
	io := make(map[string]any, len(callerInputs))
	for k, v := range callerInputs {
		io[k] = v
	}
	return &Conversation{
		ID:          id,
		Flow:        f,
		CurrentStep: f.BeginStep,
		IOValues:    io,
		RC:          flow.NewRunContext(id),
	}
}

// Messages returns the conversation's message history so far.
func (c *Conversation) Messages() []message.Message { return c.RC.Messages() }
