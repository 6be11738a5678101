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

// Package tool provides the uniform tool abstraction the executor dispatches
// through: server-local callables, client-yielding tools, templated HTTP
// endpoints, and (via pkg/mcptool) MCP tools.
package tool

import (
	"context"
	"regexp"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

// Kind identifies how a Tool is actually dispatched.
type Kind string

const (
	KindServer Kind = "server" // local callable, runs inside the executor process
	KindClient Kind = "client" // yields to the caller, who submits a ToolResult
	KindRemote Kind = "remote" // templated HTTP endpoint
	KindMCP    Kind = "mcp"    // Model Context Protocol session
)

// nameRE is the allowed tool name pattern from the spec; component names may
// additionally contain spaces, but Tool names may not.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name matches the tool naming convention.
func ValidName(name string) bool {
	return nameRE.MatchString(name)
}

// UnnamedOutputSentinel is the name a tool's sole unnamed output is rewritten
// to, per spec §3.
const UnnamedOutputSentinel = "tool_output"

// Definition is a tool's static shape: identity plus typed I/O descriptors.
// It is what gets serialized into an LLM's tool-calling request and is
// independent of how the tool is actually dispatched.
type Definition struct {
	ID                   string
	Name                 string
	Description          string
	InputDescriptors     map[string]property.Property
	RequiredInputs       []string
	OutputDescriptors    map[string]property.Property
	RequiresConfirmation bool
	SupportsStreaming    bool
	Kind                 Kind
}

// InputSchema renders the definition's input descriptors as a JSON Schema
// object, the shape an LLM function-calling API expects.
func (d Definition) InputSchema() map[string]any {
	return property.ObjectJSONSchema(d.InputDescriptors, d.RequiredInputs)
}

// Normalize applies the spec's single-unnamed-output renaming rule and
// validates the tool name, returning an error if raiseOnInvalid is set and
// the name doesn't match the allowed pattern.
func (d *Definition) Normalize(raiseOnInvalid bool) error {
	if len(d.OutputDescriptors) == 1 {
		for name, p := range d.OutputDescriptors {
			if name == "" {
				p.Name = UnnamedOutputSentinel
				d.OutputDescriptors = map[string]property.Property{UnnamedOutputSentinel: p}
			}
		}
	}
	if !ValidName(d.Name) {
		if raiseOnInvalid {
			return &invalidNameError{Name: d.Name}
		}
	}
	return nil
}

type invalidNameError struct{ Name string }

func (e *invalidNameError) Error() string {
	return "tool name " + e.Name + " does not match allowed pattern ^[A-Za-z0-9_-]+$"
}

// StreamChunk is one incremental output emitted by a streaming server tool.
type StreamChunk struct {
	Index   int
	Content any
	Final   bool
}

// Tool is the uniform dispatch surface the executor invokes. Exactly one of
// the "kind" behaviors described in package docs applies to a given Tool:
// a KindServer tool is run synchronously or via its Stream method; a
// KindClient tool is never Run by the executor at all (the executor yields
// instead); KindRemote and KindMCP tools implement Run by making a network
// call.
type Tool interface {
	Definition() Definition

	// Run executes the tool and returns its single output value. For
	// KindServer tools with SupportsStreaming, Run still returns the final
	// aggregated value; callers that want intermediate chunks use Stream.
	Run(ctx context.Context, args map[string]any) (any, error)
}

// StreamingTool is implemented by server tools whose execution emits
// intermediate chunks before a final value.
type StreamingTool interface {
	Tool
	Stream(ctx context.Context, args map[string]any, emit func(StreamChunk)) (any, error)
}

// Box is a dynamic collection of tools (spec §4.4's ToolBox): each Tools
// call returns the tools currently available. The default static box is
// backed by a fixed slice; toolsets such as the MCP toolset resolve their
// tool list lazily on the first call. Neither the Executor nor an Agent
// queries a Box: an Agent dispatches from its fixed Tools slice.
type Box interface {
	// Tools returns the tools currently available. May perform I/O (e.g. an
	// MCP toolset connecting lazily on first call).
	Tools(ctx context.Context) ([]Tool, error)
	Name() string
}

// StaticBox is a Box over a fixed, pre-resolved tool list.
type StaticBox struct {
	BoxName string
	Items   []Tool

	// ConfirmationOverride, when non-nil, forces RequiresConfirmation for
	// every tool the box returns, regardless of each tool's own setting.
	ConfirmationOverride *bool
}

func (b *StaticBox) Name() string { return b.BoxName }

func (b *StaticBox) Tools(ctx context.Context) ([]Tool, error) {
	if b.ConfirmationOverride == nil {
		return b.Items, nil
	}
	out := make([]Tool, len(b.Items))
	for i, t := range b.Items {
		out[i] = &overriddenConfirmationTool{Tool: t, confirm: *b.ConfirmationOverride}
	}
	return out, nil
}

type overriddenConfirmationTool struct {
	Tool
	confirm bool
}

func (o *overriddenConfirmationTool) Definition() Definition {
	d := o.Tool.Definition()
	d.RequiresConfirmation = o.confirm
	return d
}
