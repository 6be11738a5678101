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

// Package property implements WayFlow's typed value descriptor system: the
// leaf layer every other package (message, tool, flow, datastore) builds
// typed I/O on top of. A Property names a value, describes its type, and
// can validate, coerce, and round-trip a runtime value to/from JSON Schema.
package property

import (
	"fmt"
	"sort"
)

// Kind enumerates the supported property types.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindDict   Kind = "dict"
	KindUnion  Kind = "union"
	KindVector Kind = "vector"
	KindAny    Kind = "any"
	KindObject Kind = "object"
)

// emptyT is the type of the sentinel used for "no default value configured", distinct
// from a property whose default is the Go zero value for its kind.
type emptyT struct{}

// Empty is the sentinel default value meaning "no default".
var Empty any = emptyT{}

func isEmpty(v any) bool {
	_, ok := v.(emptyT)
	return ok
}

// Property is a typed descriptor for a single named value: a step input, a
// step output, a tool parameter, or a datastore column.
type Property struct {
	Name        string
	Description string
	Kind        Kind
	Default     any // Empty sentinel when unset

	// ItemType is populated when Kind == KindList.
	ItemType *Property
	// ValueType is populated when Kind == KindDict (values; keys are always string).
	ValueType *Property
	// AnyOf is populated when Kind == KindUnion.
	AnyOf []Property
	// Fields is populated when Kind == KindObject.
	Fields map[string]Property
	// Required lists the Fields names that must be present (KindObject only).
	Required []string
	// Dimension is populated when Kind == KindVector (embedding length, 0 = unspecified).
	Dimension int
}

// New builds a scalar property of the given kind with no default.
func New(name string, kind Kind, description string) Property {
	return Property{Name: name, Description: description, Kind: kind, Default: Empty}
}

// WithDefault returns a copy of p with the given default value attached.
func (p Property) WithDefault(v any) Property {
	p.Default = v
	return p
}

// HasDefault reports whether a default value has been configured.
func (p Property) HasDefault() bool {
	return !isEmpty(p.Default)
}

// List builds a property of kind list with the given item type.
func List(name string, item Property, description string) Property {
	item.Name = ""
	return Property{Name: name, Description: description, Kind: KindList, Default: Empty, ItemType: &item}
}

// Dict builds a property of kind dict with the given value type.
func Dict(name string, value Property, description string) Property {
	value.Name = ""
	return Property{Name: name, Description: description, Kind: KindDict, Default: Empty, ValueType: &value}
}

// Union builds a property that accepts any of the given alternative types.
func Union(name string, anyOf []Property, description string) Property {
	return Property{Name: name, Description: description, Kind: KindUnion, Default: Empty, AnyOf: anyOf}
}

// Object builds a property describing a fixed-shape nested structure.
func Object(name string, fields map[string]Property, required []string, description string) Property {
	return Property{
		Name: name, Description: description, Kind: KindObject, Default: Empty,
		Fields: fields, Required: append([]string(nil), required...),
	}
}

// Vector builds a property describing a fixed- or variable-dimension embedding.
func Vector(name string, dimension int, description string) Property {
	return Property{Name: name, Description: description, Kind: KindVector, Default: Empty, Dimension: dimension}
}

// IsValueOfExpectedType reports whether v is assignable to p without coercion.
func (p Property) IsValueOfExpectedType(v any) bool {
	if v == nil {
		return p.Kind == KindAny
	}
	switch p.Kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindInt:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case KindFloat:
		switch v.(type) {
		case float32, float64, int, int64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindList:
		_, ok := v.([]any)
		return ok
	case KindDict:
		_, ok := v.(map[string]any)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindVector:
		_, ok := v.([]float64)
		return ok
	case KindUnion:
		for _, alt := range p.AnyOf {
			if alt.IsValueOfExpectedType(v) {
				return true
			}
		}
		return false
	case KindAny:
		return true
	default:
		return false
	}
}

// CastValueInto coerces v into the representation expected by p, e.g. an
// int literal decoded from JSON as float64 into a KindInt property.
func (p Property) CastValueInto(v any) (any, error) {
	if p.IsValueOfExpectedType(v) {
		return normalizeNumeric(p.Kind, v), nil
	}
	switch p.Kind {
	case KindInt:
		switch n := v.(type) {
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		case float32:
			if n == float32(int64(n)) {
				return int64(n), nil
			}
		}
	case KindFloat:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case KindString:
		if v == nil {
			return "", fmt.Errorf("property %q: cannot cast nil to string", p.Name)
		}
	case KindUnion:
		for _, alt := range p.AnyOf {
			if cast, err := alt.CastValueInto(v); err == nil {
				return cast, nil
			}
		}
	}
	return nil, fmt.Errorf("property %q: value %v (%T) is not of expected type %s", p.Name, v, v, p.Kind)
}

func normalizeNumeric(kind Kind, v any) any {
	if kind == KindInt {
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		}
	}
	if kind == KindFloat {
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case float32:
			return float64(n)
		}
	}
	return v
}

// SortedNames returns the names of a property map in stable (sorted) order,
// for callers that iterate descriptors and need deterministic output. JSON
// Schema generation (ToJSONSchema, ObjectJSONSchema) does not use it.
func SortedNames(props map[string]Property) []string {
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
