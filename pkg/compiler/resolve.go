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

package compiler

import (
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/property"
)

// resolveInputs determines, for every step input, where its value comes
// from at run time, and collects the names left unsatisfied into the
// compiled flow's own input descriptors.
//
// Satisfaction order (§4.1): an explicit data edge; a context provider
// output of the same name; a value already guaranteed present in the
// shared io_values namespace by an earlier step on every path (the
// produced set); a configured default; otherwise the name becomes a flow
// input, delivered through StartStep like any other caller-supplied value.
func resolveInputs(steps map[string]flow.Step, spec Spec, produced map[string]producedSet) (map[string]map[string]flow.InputSource, map[string]property.Property, error) {
	dataEdgeFor := make(map[string]map[string]flow.DataEdge)
	for _, e := range spec.DataEdges {
		if dataEdgeFor[e.DstStep] == nil {
			dataEdgeFor[e.DstStep] = make(map[string]flow.DataEdge)
		}
		dataEdgeFor[e.DstStep][e.DstInput] = e
	}

	providerOutput := make(map[string]flow.ContextProvider)
	for _, p := range spec.Providers {
		for name := range p.Outputs {
			providerOutput[name] = p
		}
	}

	sources := make(map[string]map[string]flow.InputSource)
	flowInputs := make(map[string]property.Property)

	for name, step := range steps {
		inputs := step.InputDescriptors()
		if len(inputs) == 0 {
			continue
		}
		stepSources := make(map[string]flow.InputSource, len(inputs))
		avail := produced[name]

		for inName, inProp := range inputs {
			if e, ok := dataEdgeFor[name][inName]; ok {
				stepSources[inName] = flow.InputSource{FromDataEdge: true, FromStep: e.SrcStep, FromOutput: e.SrcOutput}
				continue
			}
			if provider, ok := providerOutput[inName]; ok {
				stepSources[inName] = flow.InputSource{FromContextProvider: provider.Name}
				continue
			}
			if avail != nil {
				if producedProp, ok := avail[inName]; ok {
					if producedProp.Kind != inProp.Kind {
						return nil, nil, fail(KindConflictingInputType, "step %q input %q expects %s but upstream produces %s", name, inName, inProp.Kind, producedProp.Kind)
					}
					stepSources[inName] = flow.InputSource{}
					continue
				}
			}
			if inProp.HasDefault() {
				stepSources[inName] = flow.InputSource{FromDefault: true, DefaultValue: inProp.Default}
				continue
			}
			if existing, ok := flowInputs[inName]; ok && existing.Kind != inProp.Kind {
				return nil, nil, fail(KindConflictingInputType, "flow input %q requested with incompatible types (%s vs %s)", inName, existing.Kind, inProp.Kind)
			}
			flowInputs[inName] = inProp
			stepSources[inName] = flow.InputSource{FromFlowInput: true}
		}
		sources[name] = stepSources
	}

	if spec.DeclaredInputDescriptors != nil {
		for name := range flowInputs {
			if _, ok := spec.DeclaredInputDescriptors[name]; !ok {
				return nil, nil, fail(KindMissingRequiredInput, "flow requires input %q but it is not in the declared input descriptors", name)
			}
		}
	}

	return sources, flowInputs, nil
}

// resolveOutputs computes the flow's output descriptors: the intersection
// of produced-after-exit sets across every exit node. Start-step-only values
// never appear here, because StartStep declares no output descriptors; a
// flow input that a later step also outputs is not excluded.
func resolveOutputs(steps map[string]flow.Step, spec Spec, before map[string]producedSet, order []string) map[string]property.Property {
	exits := exitSteps(steps, spec.ControlEdges)
	if len(exits) == 0 {
		return map[string]property.Property{}
	}

	var merged producedSet
	for _, name := range exits {
		step, ok := steps[name]
		if !ok {
			continue
		}
		after := unionOutputs(before[name], step.OutputDescriptors())
		if merged == nil {
			merged = after
			continue
		}
		// Divergent exit types degrade to "no guaranteed output" for
		// that name rather than failing compilation; output inference
		// is best-effort past the point every edge/type check already
		// ran in resolveInputs.
		next := make(producedSet)
		for n, pa := range merged {
			if pb, ok := after[n]; ok && pa.Kind == pb.Kind {
				next[n] = pa
			}
		}
		merged = next
	}

	out := make(map[string]property.Property, len(merged))
	for name, prop := range merged {
		out[name] = prop
	}
	return out
}

func exitSteps(steps map[string]flow.Step, edges []flow.ControlEdge) []string {
	var exits []string
	seen := make(map[string]bool)
	for _, e := range edges {
		if e.Dst == "" && !seen[e.Src] {
			seen[e.Src] = true
			exits = append(exits, e.Src)
		}
	}
	for name := range steps {
		if _, ok := steps[name].(*flow.CompleteStep); ok && !seen[name] {
			seen[name] = true
			exits = append(exits, name)
		}
	}
	return exits
}
