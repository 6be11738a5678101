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
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/datastore"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// Variable names one RunContext-scoped binding, shared by VariableReadStep
// and VariableWriteStep.
type Variable struct {
	Name string
	Type property.Property
}

// VariableReadStep exposes a conversation-scoped variable as a step output.
// Reading an unset variable falls back to Var.Type's configured default, if
// any, rather than erroring.
type VariableReadStep struct {
	StepName string
	Var      Variable
}

func (s *VariableReadStep) Name() string                                  { return s.StepName }
func (s *VariableReadStep) InputDescriptors() map[string]property.Property { return nil }
func (s *VariableReadStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{s.Var.Name: s.Var.Type}
}
func (s *VariableReadStep) Branches() []string { return []string{DefaultBranch} }
func (s *VariableReadStep) MightYield() bool   { return false }

func (s *VariableReadStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	v, ok := rc.Variable(s.Var.Name)
	if !ok && s.Var.Type.HasDefault() {
		v = s.Var.Type.Default
	}
	return DefaultBranch, map[string]any{s.Var.Name: v}, nil, nil
}

// VariableWriteStep binds its single input to a conversation-scoped
// variable, visible to every later step (including sub-flows and
// sub-agents, which share the same RunContext).
type VariableWriteStep struct {
	StepName string
	Var      Variable
}

func (s *VariableWriteStep) Name() string { return s.StepName }
func (s *VariableWriteStep) InputDescriptors() map[string]property.Property {
	return map[string]property.Property{s.Var.Name: s.Var.Type}
}
func (s *VariableWriteStep) OutputDescriptors() map[string]property.Property { return nil }
func (s *VariableWriteStep) Branches() []string                             { return []string{DefaultBranch} }
func (s *VariableWriteStep) MightYield() bool                                { return false }

func (s *VariableWriteStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	rc.SetVariable(s.Var.Name, inputs[s.Var.Name])
	return DefaultBranch, nil, nil, nil
}

// SearchStep runs a nearest-neighbour query against a named datastore
// collection, requiring the resolved store to implement
// datastore.VectorSearcher.
type SearchStep struct {
	StepName      string
	DatastoreName string
	Collection    string
	K             int
	Metric        datastore.Metric
}

func (s *SearchStep) Name() string { return s.StepName }
func (s *SearchStep) InputDescriptors() map[string]property.Property {
	return map[string]property.Property{
		"query": property.Vector("query", 0, ""),
		"where": property.Dict("where", property.New("", property.KindAny, ""), ""),
	}
}
func (s *SearchStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{
		"results": property.List("results", property.New("", property.KindObject, ""), ""),
	}
}
func (s *SearchStep) Branches() []string { return []string{"success", "error"} }
func (s *SearchStep) MightYield() bool   { return false }

func (s *SearchStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	if rc.Datastores == nil {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: "no datastore resolver configured"}
	}
	store, err := rc.Datastores.ResolveDatastore(s.DatastoreName)
	if err != nil {
		return "", nil, nil, err
	}
	searcher, ok := store.(datastore.VectorSearcher)
	if !ok {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: "datastore " + s.DatastoreName + " does not support vector search"}
	}
	query, _ := inputs["query"].([]float64)
	var where datastore.Where
	if w, ok := inputs["where"].(map[string]any); ok {
		where = datastore.Where(w)
	}
	k := s.K
	if k <= 0 {
		k = 10
	}
	results, err := searcher.Search(ctx, s.Collection, query, k, s.Metric, where)
	if err != nil {
		return "error", map[string]any{"error": err.Error()}, nil, nil
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = map[string]any{"row": r.Row, "score": r.Score}
	}
	return "success", map[string]any{"results": out}, nil, nil
}

// MapStep runs SubflowName once per element of its list input (UnpackInput
// names which input is iterated), merging each element into the sub-flow's
// own inputs under ItemKey. Parallel runs every element concurrently;
// otherwise elements run in order. A sub-flow yield on any element aborts
// the whole map and propagates that yield, since the spec does not define
// partial-suspend semantics for a fan-out step.
type MapStep struct {
	StepName    string
	SubflowName string
	UnpackInput string
	ItemKey     string
	Parallel    bool
	runner      FlowRunner
}

// NewMapStep builds a MapStep that drives its sub-flow via runner.
func NewMapStep(stepName, subflowName, unpackInput, itemKey string, parallel bool, runner FlowRunner) *MapStep {
	return &MapStep{StepName: stepName, SubflowName: subflowName, UnpackInput: unpackInput, ItemKey: itemKey, Parallel: parallel, runner: runner}
}

func (s *MapStep) Name() string { return s.StepName }
func (s *MapStep) InputDescriptors() map[string]property.Property {
	return map[string]property.Property{
		s.UnpackInput: property.List(s.UnpackInput, property.New("", property.KindAny, ""), ""),
	}
}
func (s *MapStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{
		"results": property.List("results", property.New("", property.KindAny, ""), ""),
	}
}
func (s *MapStep) Branches() []string { return []string{"success", "error"} }
func (s *MapStep) MightYield() bool   { return true }

func (s *MapStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	sub, ok := rc.Flows[s.SubflowName]
	if !ok {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: "flow " + s.SubflowName + " is not registered"}
	}
	if s.runner == nil {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: "no flow runner configured"}
	}
	items, _ := inputs[s.UnpackInput].([]any)
	results := make([]any, len(items))

	run := func(i int) (*Yield, error) {
		itemInputs := map[string]any{s.ItemKey: items[i]}
		out, yield, err := s.runner.RunFlow(ctx, rc, sub, itemInputs)
		if err != nil {
			return nil, err
		}
		if yield != nil {
			return yield, nil
		}
		results[i] = out
		return nil, nil
	}

	if !s.Parallel {
		for i := range items {
			yield, err := run(i)
			if err != nil {
				return "error", map[string]any{"error": err.Error()}, nil, nil
			}
			if yield != nil {
				return "", nil, yield, nil
			}
		}
		return "success", map[string]any{"results": results}, nil, nil
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		firstErr   error
		firstYield *Yield
	)
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			yield, err := run(i)
			if err == nil && yield == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if firstErr == nil && firstYield == nil {
				firstErr, firstYield = err, yield
			}
		}(i)
	}
	wg.Wait()
	if firstErr != nil {
		return "error", map[string]any{"error": firstErr.Error()}, nil, nil
	}
	if firstYield != nil {
		return "", nil, firstYield, nil
	}
	return "success", map[string]any{"results": results}, nil, nil
}

// RetryStep re-runs Body up to MaxRetries additional times (so MaxRetries=0
// means one attempt, no retry) on failure, waiting with exponential backoff
// and jitter between attempts.
type RetryStep struct {
	StepName    string
	Body        Step
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
}

func (s *RetryStep) Name() string                                  { return s.StepName }
func (s *RetryStep) InputDescriptors() map[string]property.Property { return s.Body.InputDescriptors() }
func (s *RetryStep) OutputDescriptors() map[string]property.Property {
	return s.Body.OutputDescriptors()
}
func (s *RetryStep) Branches() []string { return append(s.Body.Branches(), "exhausted") }
func (s *RetryStep) MightYield() bool   { return s.Body.MightYield() }

func (s *RetryStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	factor := s.Factor
	if factor <= 0 {
		factor = 2.0
	}
	initial := s.InitialWait
	if initial <= 0 {
		initial = time.Second
	}
	maxWait := s.MaxWait
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		branch, outputs, yield, err := s.Body.Run(ctx, rc, inputs)
		if err == nil {
			return branch, outputs, yield, nil
		}
		lastErr = err
		if attempt == s.MaxRetries {
			break
		}
		wait := float64(initial) * math.Pow(factor, float64(attempt))
		if wait > float64(maxWait) {
			wait = float64(maxWait)
		}
		jittered := time.Duration(wait * (0.5 + rand.Float64()))
		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", nil, nil, ctx.Err()
		case <-timer.C:
		}
	}
	return "exhausted", map[string]any{"error": lastErr.Error()}, nil, nil
}
