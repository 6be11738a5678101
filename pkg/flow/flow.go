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

// Package flow defines the step library and the compiled Flow graph the
// executor drives: a directed graph of Steps connected by control-flow
// branches and (optionally explicit) data-flow edges.
package flow

import (
	"context"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

// DefaultBranch is the implicit branch name a step takes when it does not
// name one explicitly.
const DefaultBranch = "default"

// YieldKind enumerates the five suspend kinds a Step.Run may raise instead
// of returning normally.
type YieldKind string

const (
	YieldUserMessageRequest          YieldKind = "user_message_request"
	YieldToolRequest                 YieldKind = "tool_request"
	YieldToolExecutionConfirmation   YieldKind = "tool_execution_confirmation"
	YieldInterruptedExecution        YieldKind = "interrupted_execution"
	YieldAuthChallenge                YieldKind = "auth_challenge"
)

// Yield is raised by a Step.Run body instead of completing, suspending the
// owning conversation until the caller resumes it with matching input.
type Yield struct {
	Kind YieldKind

	// ToolRequests is populated for YieldToolRequest and
	// YieldToolExecutionConfirmation.
	ToolRequests []ToolRequestRef

	// Reason is populated for YieldInterruptedExecution.
	Reason string

	// AuthorizationURL is populated for YieldAuthChallenge.
	AuthorizationURL string
}

// ToolRequestRef names a pending tool call by id, mirroring
// message.ToolRequest without importing the message package's full value
// (steps build the message.ToolRequest themselves; this is just the part
// the yield needs to carry).
type ToolRequestRef struct {
	ToolRequestID string
	Name          string
	Args          map[string]any
}

// Step is the unit of execution in a Flow. Implementations are typically
// stateless: all per-run state lives in the inputs map and RunContext.
type Step interface {
	// Name uniquely identifies this step within its flow.
	Name() string

	// InputDescriptors declares this step's typed inputs.
	InputDescriptors() map[string]property.Property

	// OutputDescriptors declares this step's typed outputs.
	OutputDescriptors() map[string]property.Property

	// Branches lists every branch name this step may produce. Used by the
	// compiler to validate edge coverage (I2).
	Branches() []string

	// MightYield reports whether Run can return a non-nil *Yield. Steps
	// that never yield let the compiler and executor skip suspend-handling
	// bookkeeping for them.
	MightYield() bool

	// Run executes the step. Exactly one of (outputs, err, yield) applies:
	// a normal completion returns a branch name and outputs; a suspend
	// returns a non-nil Yield; a failure returns a non-nil error.
	Run(ctx context.Context, rc *RunContext, inputs map[string]any) (branch string, outputs map[string]any, yield *Yield, err error)
}

// ControlEdge connects one step's named branch to a destination step. A nil
// destination (Dst == "") marks flow completion along that branch.
type ControlEdge struct {
	Src          string
	SourceBranch string
	Dst          string // "" = exit
}

// DataEdge explicitly wires one step's output to another step's input,
// overriding the compiler's automatic same-name wiring.
type DataEdge struct {
	SrcStep   string
	SrcOutput string
	DstStep   string
	DstInput  string
}

// ContextProvider supplies ambient outputs available to every step without
// an explicit data edge (e.g. conversation-level constants injected by the
// caller). Outputs declares the provider's shape for compile-time
// resolution; Resolve supplies the actual values, re-evaluated lazily by
// the executor on every step invocation per §4.2.
type ContextProvider struct {
	Name    string
	Outputs map[string]property.Property
	Resolve func(ctx context.Context, rc *RunContext) (map[string]any, error)
}

// Flow is a compiled graph: the output of pkg/compiler, ready to execute.
// Flow never mutates once compiled; RunContext carries all execution state.
type Flow struct {
	Name        string
	Steps       map[string]Step
	BeginStep   string
	ControlEdges []ControlEdge
	DataEdges    []DataEdge
	Providers    []ContextProvider
	Variables    map[string]property.Property

	InputDescriptors  map[string]property.Property
	StepInputSources   map[string]map[string]InputSource
	OutputDescriptors map[string]property.Property
}

// InputSource records, for one step input, where its value comes from at
// run time: an explicit data edge, a context provider, a default value, or
// (if none of those apply) the flow's own declared input of the same name.
type InputSource struct {
	FromDataEdge        bool
	FromStep            string
	FromOutput          string
	FromContextProvider string
	FromDefault         bool
	DefaultValue        any
	FromFlowInput       bool
}
