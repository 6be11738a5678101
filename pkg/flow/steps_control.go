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

package flow

import (
	"context"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

// StartStep is every flow's unique entry point (ForbiddenStartStepAsDestination:
// the compiler rejects any edge whose destination is a StartStep). It has no
// inputs of its own and passes the flow's declared inputs through unchanged.
type StartStep struct {
	StepName string
}

func (s *StartStep) Name() string                                   { return s.StepName }
func (s *StartStep) InputDescriptors() map[string]property.Property  { return nil }
func (s *StartStep) OutputDescriptors() map[string]property.Property { return nil }
func (s *StartStep) Branches() []string                             { return []string{DefaultBranch} }
func (s *StartStep) MightYield() bool                                { return false }

func (s *StartStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	return DefaultBranch, inputs, nil, nil
}

// CompleteStep is a terminal step: reaching it ends the flow along the named
// branch (empty BranchName uses DefaultBranch), making its outputs the
// flow's outputs.
type CompleteStep struct {
	StepName   string
	BranchName string
	Outputs    map[string]property.Property
}

func (s *CompleteStep) Name() string { return s.StepName }
func (s *CompleteStep) InputDescriptors() map[string]property.Property {
	return s.Outputs
}
func (s *CompleteStep) OutputDescriptors() map[string]property.Property { return s.Outputs }
func (s *CompleteStep) Branches() []string                              { return nil }
func (s *CompleteStep) MightYield() bool                                 { return false }

func (s *CompleteStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	branch := s.BranchName
	if branch == "" {
		branch = DefaultBranch
	}
	return branch, inputs, nil, nil
}

// BranchCondition is one arm of a BranchingStep: When is evaluated against
// the step's inputs in declaration order, and the first arm whose condition
// returns true determines the outgoing branch.
type BranchCondition struct {
	Branch string
	When   func(inputs map[string]any) bool
}

// BranchingStep routes control flow to one of several named branches by
// evaluating a caller-supplied predicate list in order, falling back to
// DefaultBranch if none match.
type BranchingStep struct {
	StepName   string
	Inputs     map[string]property.Property
	Conditions []BranchCondition
}

func (s *BranchingStep) Name() string                                  { return s.StepName }
func (s *BranchingStep) InputDescriptors() map[string]property.Property { return s.Inputs }
func (s *BranchingStep) OutputDescriptors() map[string]property.Property {
	return nil
}

func (s *BranchingStep) Branches() []string {
	out := make([]string, 0, len(s.Conditions)+1)
	for _, c := range s.Conditions {
		out = append(out, c.Branch)
	}
	out = append(out, DefaultBranch)
	return out
}

func (s *BranchingStep) MightYield() bool { return false }

func (s *BranchingStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	for _, c := range s.Conditions {
		if c.When(inputs) {
			return c.Branch, inputs, nil, nil
		}
	}
	return DefaultBranch, inputs, nil, nil
}

// RegexExtractionStep matches Pattern against its single text input and
// exposes the named capture groups as outputs. A non-matching input routes
// to the "no_match" branch instead of erroring, so flows can branch on
// extraction failure instead of aborting.
type RegexExtractionStep struct {
	StepName string
	Input    string // input name holding the text to match
	Pattern  regexpMatcher
	Groups   []string // capture group names, in pattern order
}

func (s *RegexExtractionStep) Name() string { return s.StepName }

func (s *RegexExtractionStep) InputDescriptors() map[string]property.Property {
	return map[string]property.Property{s.Input: property.New(s.Input, property.KindString, "")}
}

func (s *RegexExtractionStep) OutputDescriptors() map[string]property.Property {
	out := make(map[string]property.Property, len(s.Groups))
	for _, g := range s.Groups {
		out[g] = property.New(g, property.KindString, "")
	}
	return out
}

func (s *RegexExtractionStep) Branches() []string { return []string{"matched", "no_match"} }
func (s *RegexExtractionStep) MightYield() bool   { return false }

func (s *RegexExtractionStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	text, _ := inputs[s.Input].(string)
	match := s.Pattern.FindStringSubmatch(text)
	if match == nil {
		return "no_match", nil, nil, nil
	}
	outputs := make(map[string]any, len(s.Groups))
	for i, g := range s.Groups {
		if i+1 < len(match) {
			outputs[g] = match[i+1]
		} else {
			outputs[g] = ""
		}
	}
	return "matched", outputs, nil, nil
}

// regexpMatcher is the minimal surface RegexExtractionStep needs from
// *regexp.Regexp, declared as an interface so tests can supply a fake.
type regexpMatcher interface {
	FindStringSubmatch(s string) []string
}
