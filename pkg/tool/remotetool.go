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

package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

// templateVarRE matches Jinja-style {{var}} placeholders in a URL or method
// template.
var templateVarRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RemoteTool calls a templated HTTP endpoint. The URL (and, unusually,
// optionally the method) may contain {{var}} placeholders; every referenced
// variable becomes an inferred input parameter unless explicitly declared
// otherwise.
type RemoteTool struct {
	Def               Definition
	URLTemplate       string
	MethodTemplate    string // defaults to "GET"
	Headers           map[string]string
	SensitiveHeaders  map[string]string // disjoint from Headers; redacted from logs
	OutputJQQuery     string            // restricted dot/bracket path, see extractJQPath
	Client            *http.Client
	Timeout           time.Duration
}

// InferredParameters returns the set of template variable names referenced
// by the URL and method templates, used by NewRemoteTool to populate
// InputDescriptors.
func InferredParameters(urlTemplate, methodTemplate string) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, tmpl := range []string{urlTemplate, methodTemplate} {
		for _, m := range templateVarRE.FindAllStringSubmatch(tmpl, -1) {
			if _, ok := seen[m[1]]; !ok {
				seen[m[1]] = struct{}{}
				names = append(names, m[1])
			}
		}
	}
	return names
}

// NewRemoteTool builds a RemoteTool whose input descriptors are always
// inferred from the URL/method templates: one required string input per
// template variable.
func NewRemoteTool(name, description, urlTemplate, methodTemplate string, requiresConfirmation bool) *RemoteTool {
	if methodTemplate == "" {
		methodTemplate = "GET"
	}
	inputs := map[string]property.Property{}
	var required []string
	for _, v := range InferredParameters(urlTemplate, methodTemplate) {
		inputs[v] = property.New(v, property.KindString, "templated from URL")
		required = append(required, v)
	}
	def := Definition{
		Name:                 name,
		Description:          description,
		InputDescriptors:     inputs,
		RequiredInputs:       required,
		OutputDescriptors:    map[string]property.Property{UnnamedOutputSentinel: property.New(UnnamedOutputSentinel, property.KindAny, "")},
		RequiresConfirmation: requiresConfirmation,
		Kind:                 KindRemote,
	}
	return &RemoteTool{
		Def:            def,
		URLTemplate:    urlTemplate,
		MethodTemplate: methodTemplate,
		Client:         http.DefaultClient,
		Timeout:        30 * time.Second,
	}
}

func (t *RemoteTool) Definition() Definition { return t.Def }

func render(tmpl string, args map[string]any) (string, error) {
	var missing error
	out := templateVarRE.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := templateVarRE.FindStringSubmatch(match)[1]
		v, ok := args[name]
		if !ok {
			missing = fmt.Errorf("remote tool: missing template variable %q", name)
			return match
		}
		return fmt.Sprintf("%v", v)
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

func (t *RemoteTool) Run(ctx context.Context, args map[string]any) (any, error) {
	url, err := render(t.URLTemplate, args)
	if err != nil {
		return nil, err
	}
	method, err := render(t.MethodTemplate, args)
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(strings.TrimSpace(method))

	ctx, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote tool %q: building request: %w", t.Def.Name, err)
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range t.SensitiveHeaders {
		req.Header.Set(k, v)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote tool %q: request failed: %w", t.Def.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote tool %q: reading response: %w", t.Def.Name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("remote tool %q: http %d: %s", t.Def.Name, resp.StatusCode, string(bytes.TrimSpace(body)))
	}

	if t.OutputJQQuery == "" {
		return decodeBody(body)
	}

	decoded, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	return extractJQPath(decoded, t.OutputJQQuery)
}

func (t *RemoteTool) timeout() time.Duration {
	if t.Timeout <= 0 {
		return 30 * time.Second
	}
	return t.Timeout
}

func decodeBody(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body), nil
	}
	return v, nil
}

// extractJQPath applies a restricted dot/bracket-index path expression
// (".field", ".list[0]", ".a.b[2].c") against a decoded JSON value. Full jq
// query support is out of scope: no jq engine is available in the reference
// corpus (see DESIGN.md), so only the common "pluck a field" case the spec
// calls out is implemented.
func extractJQPath(v any, path string) (any, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return v, nil
	}
	cur := v
	for _, segment := range strings.Split(path, ".") {
		field, indices, err := parseSegment(segment)
		if err != nil {
			return nil, fmt.Errorf("output_jq_query: %w", err)
		}
		if field != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("output_jq_query: %q is not an object", field)
			}
			cur, ok = m[field]
			if !ok {
				return nil, fmt.Errorf("output_jq_query: field %q not found", field)
			}
		}
		for _, idx := range indices {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, fmt.Errorf("output_jq_query: index %d out of range", idx)
			}
			cur = arr[idx]
		}
	}
	return cur, nil
}

func parseSegment(segment string) (field string, indices []int, err error) {
	for {
		open := strings.IndexByte(segment, '[')
		if open == -1 {
			if field == "" {
				field = segment
			}
			return field, indices, nil
		}
		if field == "" {
			field = segment[:open]
		}
		close := strings.IndexByte(segment[open:], ']')
		if close == -1 {
			return "", nil, fmt.Errorf("malformed index in %q", segment)
		}
		close += open
		idx, convErr := strconv.Atoi(segment[open+1 : close])
		if convErr != nil {
			return "", nil, fmt.Errorf("malformed index in %q: %w", segment, convErr)
		}
		indices = append(indices, idx)
		segment = segment[close+1:]
		if segment == "" {
			return field, indices, nil
		}
	}
}
