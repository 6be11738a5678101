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
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/property"
)

// InputMessageStep yields control to the caller with a rendered prompt,
// suspending the conversation until a user message arrives. Its single
// output is the text of that message.
type InputMessageStep struct {
	StepName string
	Template string // text/template source, rendered against inputs
	Inputs   map[string]property.Property
	Output   string // defaults to "user_message" if empty
}

func (s *InputMessageStep) Name() string { return s.StepName }
func (s *InputMessageStep) InputDescriptors() map[string]property.Property {
	return s.Inputs
}

func (s *InputMessageStep) outputName() string {
	if s.Output == "" {
		return "user_message"
	}
	return s.Output
}

func (s *InputMessageStep) OutputDescriptors() map[string]property.Property {
	name := s.outputName()
	return map[string]property.Property{name: property.New(name, property.KindString, "")}
}

func (s *InputMessageStep) Branches() []string { return []string{DefaultBranch} }
func (s *InputMessageStep) MightYield() bool   { return true }

// Run renders the prompt and yields YieldUserMessageRequest. The executor is
// responsible for resuming with the caller's reply bound to Output; Run is
// never expected to be called a second time for the same suspend — the
// executor's Resume binds the reply as the step's output and advances past
// the step without calling Run again, so this body only ever produces the
// yield.
func (s *InputMessageStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	rendered, err := renderTemplate(s.StepName, s.Template, inputs)
	if err != nil {
		return "", nil, nil, err
	}
	rc.AppendMessage(message.NewText(message.RoleAssistant, message.TypeAgent, rendered))
	return DefaultBranch, nil, &Yield{Kind: YieldUserMessageRequest}, nil
}

// OutputMessageStep renders Template against its inputs and appends the
// result as an assistant message, without suspending.
type OutputMessageStep struct {
	StepName string
	Template string
	Inputs   map[string]property.Property
	Output   string // defaults to "message" if empty
}

func (s *OutputMessageStep) Name() string { return s.StepName }
func (s *OutputMessageStep) InputDescriptors() map[string]property.Property {
	return s.Inputs
}

func (s *OutputMessageStep) outputName() string {
	if s.Output == "" {
		return "message"
	}
	return s.Output
}

func (s *OutputMessageStep) OutputDescriptors() map[string]property.Property {
	name := s.outputName()
	return map[string]property.Property{name: property.New(name, property.KindString, "")}
}

func (s *OutputMessageStep) Branches() []string { return []string{DefaultBranch} }
func (s *OutputMessageStep) MightYield() bool   { return false }

func (s *OutputMessageStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	rendered, err := renderTemplate(s.StepName, s.Template, inputs)
	if err != nil {
		return "", nil, nil, err
	}
	rc.AppendMessage(message.NewText(message.RoleAssistant, message.TypeAgent, rendered))
	return DefaultBranch, map[string]any{s.outputName(): rendered}, nil, nil
}

func renderTemplate(stepName, src string, inputs map[string]any) (string, error) {
	tmpl, err := template.New(stepName).Parse(src)
	if err != nil {
		return "", fmt.Errorf("flow: step %q: parsing template: %w", stepName, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, inputs); err != nil {
		return "", fmt.Errorf("flow: step %q: rendering template: %w", stepName, err)
	}
	return buf.String(), nil
}
