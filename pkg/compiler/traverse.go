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

// producedSet maps an output name to the type every path agrees on. A
// producedSet is the set of values guaranteed to exist in io_values by the
// time a step runs.
type producedSet map[string]property.Property

// traverseAndAccumulate performs the breadth traversal described in §4.1:
// for every step reachable from beginStep, it computes the producedSet
// guaranteed available immediately before that step runs, by intersecting
// the producedSet-after-predecessor across every incoming control edge.
// Because a step is only revisited when its incoming set would shrink
// (monotone contraction), the worklist is guaranteed to reach a fixed
// point: each revision strictly shrinks a finite set.
//
// It returns the fixed-point producedSet-before map and the order in which
// steps were first discovered (resolveOutputs receives this order but does
// not use it).
func traverseAndAccumulate(steps map[string]flow.Step, beginStep string, edges []flow.ControlEdge) (map[string]producedSet, []string, error) {
	successors := make(map[string][]flow.ControlEdge)
	for _, e := range edges {
		successors[e.Src] = append(successors[e.Src], e)
	}

	before := make(map[string]producedSet)
	visited := make(map[string]bool)
	var order []string

	before[beginStep] = producedSet{}
	queue := []string{beginStep}
	visited[beginStep] = true
	order = append(order, beginStep)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		step := steps[name]
		after := unionOutputs(before[name], step.OutputDescriptors())

		for _, e := range successors[name] {
			if e.Dst == "" {
				continue
			}
			existing, seen := before[e.Dst]
			var next producedSet
			if !seen {
				next = after
			} else {
				merged, err := intersect(existing, after)
				if err != nil {
					return nil, nil, err
				}
				next = merged
			}
			if !seen {
				before[e.Dst] = next
				if !visited[e.Dst] {
					visited[e.Dst] = true
					order = append(order, e.Dst)
				}
				queue = append(queue, e.Dst)
				continue
			}
			if shrunk(existing, next) {
				before[e.Dst] = next
				queue = append(queue, e.Dst)
			}
		}
	}

	return before, order, nil
}

func unionOutputs(before producedSet, outputs map[string]property.Property) producedSet {
	out := make(producedSet, len(before)+len(outputs))
	for k, v := range before {
		out[k] = v
	}
	for k, v := range outputs {
		out[k] = v
	}
	return out
}

// intersect keeps only the names present (with compatible Kind) in both
// sets, per §4.1's "produced on every path" rule. A same name with
// incompatible Kind across two paths is a compile-time ConflictingInputType
// failure.
func intersect(a, b producedSet) (producedSet, error) {
	out := make(producedSet)
	for name, pa := range a {
		pb, ok := b[name]
		if !ok {
			continue
		}
		if pa.Kind != pb.Kind {
			return nil, fail(KindConflictingInputType, "output %q has incompatible types (%s vs %s) on different paths", name, pa.Kind, pb.Kind)
		}
		out[name] = pa
	}
	return out, nil
}

// shrunk reports whether next has strictly fewer names than existing,
// which is the only way a revisit can occur under monotone contraction.
func shrunk(existing, next producedSet) bool {
	if len(next) >= len(existing) {
		return false
	}
	for name := range next {
		if _, ok := existing[name]; !ok {
			return false // next introduced a name existing lacked: not a contraction
		}
	}
	return true
}
