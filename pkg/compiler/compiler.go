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

// Package compiler implements the I/O resolver: it takes the raw pieces of a
// flow graph (steps, control edges, data edges, context providers,
// variables) and produces a compiled *flow.Flow with every step input bound
// to a source, or fails with one of a fixed set of named errors.
package compiler

import (
	"fmt"

	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/property"
)

// Spec is the raw, uncompiled description of a flow graph.
type Spec struct {
	Name        string
	Steps       []flow.Step
	BeginStep   string
	ControlEdges []flow.ControlEdge
	DataEdges    []flow.DataEdge
	Providers    []flow.ContextProvider
	Variables    map[string]property.Property

	// DeclaredInputDescriptors and DeclaredOutputDescriptors, when set,
	// override the resolver's inferred descriptors by name (§4.1's
	// user-declared-descriptors override rule).
	DeclaredInputDescriptors  map[string]property.Property
	DeclaredOutputDescriptors map[string]property.Property
}

// Error is a compile-time failure, named per one of the §4.1 failure modes.
type Error struct {
	Kind    string
	Detail  string
}

func (e *Error) Error() string { return fmt.Sprintf("compiler: %s: %s", e.Kind, e.Detail) }

const (
	KindMissingRequiredInput            = "MissingRequiredInput"
	KindConflictingInputType            = "ConflictingInputType"
	KindDuplicateStepName               = "DuplicateStepName"
	KindDanglingEdge                    = "DanglingEdge"
	KindForbiddenStartStepAsDestination = "ForbiddenStartStepAsDestination"
	KindDuplicateBranch                 = "DuplicateBranch"
)

func fail(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Compile validates spec and produces a ready-to-run *flow.Flow.
func Compile(spec Spec) (*flow.Flow, error) {
	steps, err := indexSteps(spec.Steps)
	if err != nil {
		return nil, err
	}
	if _, ok := steps[spec.BeginStep]; !ok {
		return nil, fail(KindDanglingEdge, "begin step %q is not declared", spec.BeginStep)
	}
	if err := validateControlEdges(steps, spec.BeginStep, spec.ControlEdges); err != nil {
		return nil, err
	}
	if err := validateDataEdges(steps, spec.DataEdges); err != nil {
		return nil, err
	}

	produced, order, err := traverseAndAccumulate(steps, spec.BeginStep, spec.ControlEdges)
	if err != nil {
		return nil, err
	}

	sources, flowInputs, err := resolveInputs(steps, spec, produced)
	if err != nil {
		return nil, err
	}

	flowOutputs := resolveOutputs(steps, spec, produced, order)

	if spec.DeclaredInputDescriptors != nil {
		flowInputs = mergeDeclared(flowInputs, spec.DeclaredInputDescriptors)
	}
	if spec.DeclaredOutputDescriptors != nil {
		flowOutputs = mergeDeclared(flowOutputs, spec.DeclaredOutputDescriptors)
	}

	return &flow.Flow{
		Name:              spec.Name,
		Steps:             steps,
		BeginStep:         spec.BeginStep,
		ControlEdges:      spec.ControlEdges,
		DataEdges:         spec.DataEdges,
		Providers:         spec.Providers,
		Variables:         spec.Variables,
		InputDescriptors:  flowInputs,
		StepInputSources:  sources,
		OutputDescriptors: flowOutputs,
	}, nil
}

func indexSteps(stepList []flow.Step) (map[string]flow.Step, error) {
	steps := make(map[string]flow.Step, len(stepList))
	for _, s := range stepList {
		if _, exists := steps[s.Name()]; exists {
			return nil, fail(KindDuplicateStepName, "step name %q is used more than once", s.Name())
		}
		steps[s.Name()] = s
	}
	return steps, nil
}

func validateControlEdges(steps map[string]flow.Step, beginStep string, edges []flow.ControlEdge) error {
	seenBranch := make(map[string]map[string]bool)
	for _, e := range edges {
		if _, ok := steps[e.Src]; !ok {
			return fail(KindDanglingEdge, "control edge source %q is not a declared step", e.Src)
		}
		if e.Dst != "" {
			if _, ok := steps[e.Dst]; !ok {
				return fail(KindDanglingEdge, "control edge destination %q is not a declared step", e.Dst)
			}
			if e.Dst == beginStep {
				return fail(KindForbiddenStartStepAsDestination, "edge from %q targets the begin step %q", e.Src, e.Dst)
			}
		}
		if seenBranch[e.Src] == nil {
			seenBranch[e.Src] = make(map[string]bool)
		}
		if seenBranch[e.Src][e.SourceBranch] {
			return fail(KindDuplicateBranch, "step %q declares branch %q more than once", e.Src, e.SourceBranch)
		}
		seenBranch[e.Src][e.SourceBranch] = true
	}
	return nil
}

func validateDataEdges(steps map[string]flow.Step, edges []flow.DataEdge) error {
	for _, e := range edges {
		if _, ok := steps[e.SrcStep]; !ok {
			return fail(KindDanglingEdge, "data edge source step %q is not declared", e.SrcStep)
		}
		if _, ok := steps[e.DstStep]; !ok {
			return fail(KindDanglingEdge, "data edge destination step %q is not declared", e.DstStep)
		}
	}
	return nil
}

func mergeDeclared(inferred, declared map[string]property.Property) map[string]property.Property {
	out := make(map[string]property.Property, len(inferred)+len(declared))
	for k, v := range inferred {
		out[k] = v
	}
	for k, v := range declared {
		out[k] = v
	}
	return out
}
