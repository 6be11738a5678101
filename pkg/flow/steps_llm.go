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
	"fmt"
	"strings"

	"github.com/oracle/wayflow-sub001/pkg/llmadapter"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// PromptExecutionStep renders PromptTemplate, sends it to a named LLM as a
// single-shot completion, and exposes the assistant's reply text.
type PromptExecutionStep struct {
	StepName       string
	LLMName        string
	PromptTemplate string
	Inputs         map[string]property.Property
	Config         llmadapter.GenerationConfig
}

func (s *PromptExecutionStep) Name() string { return s.StepName }
func (s *PromptExecutionStep) InputDescriptors() map[string]property.Property {
	return s.Inputs
}
func (s *PromptExecutionStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{"response": property.New("response", property.KindString, "")}
}
func (s *PromptExecutionStep) Branches() []string { return []string{"success", "error"} }
func (s *PromptExecutionStep) MightYield() bool   { return false }

func (s *PromptExecutionStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	if rc.LLMs == nil {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: "no LLM resolver configured"}
	}
	adapter, err := rc.LLMs.ResolveLLM(s.LLMName)
	if err != nil {
		return "", nil, nil, err
	}
	rendered, err := renderTemplate(s.StepName, s.PromptTemplate, inputs)
	if err != nil {
		return "", nil, nil, err
	}
	completion, err := adapter.Send(ctx, llmadapter.Prompt{
		Messages:         []message.Message{message.NewText(message.RoleUser, message.TypeUser, rendered)},
		GenerationConfig: s.Config,
	})
	if err != nil {
		return "error", map[string]any{"error": err.Error()}, nil, nil
	}
	rc.AppendMessage(completion.Message)
	return "success", map[string]any{"response": completion.Message.Text()}, nil, nil
}

// ChoiceSelectionStep asks an LLM to pick one of a fixed set of labelled
// Choices given the rendered PromptTemplate, then branches on the selected
// label. A reply that matches none of the choices routes to the
// "unresolved" branch instead of erroring.
type ChoiceSelectionStep struct {
	StepName       string
	LLMName        string
	PromptTemplate string
	Inputs         map[string]property.Property
	Choices        []string
}

func (s *ChoiceSelectionStep) Name() string { return s.StepName }
func (s *ChoiceSelectionStep) InputDescriptors() map[string]property.Property {
	return s.Inputs
}
func (s *ChoiceSelectionStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{"choice": property.New("choice", property.KindString, "")}
}

func (s *ChoiceSelectionStep) Branches() []string {
	return append(append([]string{}, s.Choices...), "unresolved")
}

func (s *ChoiceSelectionStep) MightYield() bool { return false }

func (s *ChoiceSelectionStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	if rc.LLMs == nil {
		return "", nil, nil, &wferrors.ValidationError{Component: s.StepName, Reason: "no LLM resolver configured"}
	}
	adapter, err := rc.LLMs.ResolveLLM(s.LLMName)
	if err != nil {
		return "", nil, nil, err
	}
	rendered, err := renderTemplate(s.StepName, s.PromptTemplate, inputs)
	if err != nil {
		return "", nil, nil, err
	}
	prompt := fmt.Sprintf("%s\n\nRespond with exactly one of: %s", rendered, strings.Join(s.Choices, ", "))
	completion, err := adapter.Send(ctx, llmadapter.Prompt{
		Messages: []message.Message{message.NewText(message.RoleUser, message.TypeUser, prompt)},
	})
	if err != nil {
		return "", nil, nil, err
	}
	reply := strings.TrimSpace(completion.Message.Text())
	for _, choice := range s.Choices {
		if strings.EqualFold(reply, choice) {
			return choice, map[string]any{"choice": choice}, nil, nil
		}
	}
	return "unresolved", map[string]any{"choice": reply}, nil, nil
}
