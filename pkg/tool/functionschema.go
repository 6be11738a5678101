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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

// SchemaFromType reflects a Go struct type into a JSON Schema object and
// then into property descriptors, for registering a statically-typed Go
// function as a server tool without hand-writing its Definition.
//
// Supported struct tags mirror the usual jsonschema reflection convention:
// json:"name", json:",omitempty", jsonschema:"required", jsonschema:"description=...".
func SchemaFromType[T any]() (map[string]property.Property, []string, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("reflecting schema: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decoding reflected schema: %w", err)
	}
	delete(raw, "$schema")
	delete(raw, "$id")

	propsRaw, _ := raw["properties"].(map[string]any)
	props := map[string]property.Property{}
	for name, fieldRaw := range propsRaw {
		fieldMap, ok := fieldRaw.(map[string]any)
		if !ok {
			continue
		}
		p, err := property.FromJSONSchema(name, fieldMap)
		if err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", name, err)
		}
		props[name] = p
	}

	var required []string
	if reqRaw, ok := raw["required"].([]any); ok {
		for _, r := range reqRaw {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required, nil
}
