package property

import "fmt"

// ToJSONSchema renders p as a JSON-Schema-compatible map, suitable for
// embedding in a tool's input schema or an LLM structured-output contract.
func (p Property) ToJSONSchema() map[string]any {
	schema := map[string]any{}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	switch p.Kind {
	case KindString:
		schema["type"] = "string"
	case KindInt:
		schema["type"] = "integer"
	case KindFloat:
		schema["type"] = "number"
	case KindBool:
		schema["type"] = "boolean"
	case KindAny:
		// no "type" constrains nothing, matching JSON Schema's any-value semantics
	case KindList:
		schema["type"] = "array"
		if p.ItemType != nil {
			schema["items"] = p.ItemType.ToJSONSchema()
		}
	case KindDict:
		schema["type"] = "object"
		if p.ValueType != nil {
			schema["additionalProperties"] = p.ValueType.ToJSONSchema()
		}
	case KindObject:
		schema["type"] = "object"
		props := map[string]any{}
		for name, field := range p.Fields {
			props[name] = field.ToJSONSchema()
		}
		schema["properties"] = props
		if len(p.Required) > 0 {
			schema["required"] = append([]string(nil), p.Required...)
		}
		schema["additionalProperties"] = false
	case KindVector:
		schema["type"] = "array"
		schema["items"] = map[string]any{"type": "number"}
		if p.Dimension > 0 {
			schema["minItems"] = p.Dimension
			schema["maxItems"] = p.Dimension
		}
	case KindUnion:
		anyOf := make([]map[string]any, 0, len(p.AnyOf))
		for _, alt := range p.AnyOf {
			anyOf = append(anyOf, alt.ToJSONSchema())
		}
		schema["anyOf"] = anyOf
	}
	if p.HasDefault() {
		schema["default"] = p.Default
	}
	return schema
}

// FromJSONSchema reconstructs a Property named `name` from a JSON Schema
// fragment, e.g. one reported by an MCP server's tools/list response or a
// user-declared flow input descriptor.
func FromJSONSchema(name string, schema map[string]any) (Property, error) {
	p := Property{Name: name, Default: Empty}
	if desc, ok := schema["description"].(string); ok {
		p.Description = desc
	}
	if raw, ok := schema["default"]; ok {
		p.Default = raw
	}

	anyOfRaw, ok := schema["anyOf"].([]any)
	if alts, isMaps := schema["anyOf"].([]map[string]any); isMaps {
		// ToJSONSchema writes anyOf as []map[string]any.
		anyOfRaw, ok = make([]any, 0, len(alts)), true
		for _, alt := range alts {
			anyOfRaw = append(anyOfRaw, alt)
		}
	}
	if ok {
		var alts []Property
		hasNull := false
		for _, altRaw := range anyOfRaw {
			altMap, ok := altRaw.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := altMap["type"].(string); t == "null" {
				hasNull = true
				continue
			}
			alt, err := FromJSONSchema("", altMap)
			if err != nil {
				return Property{}, err
			}
			alts = append(alts, alt)
		}
		if len(alts) == 1 && hasNull {
			p = alts[0]
			p.Name = name
			if !p.HasDefault() {
				p.Default = nil
			}
			return p, nil
		}
		p.Kind = KindUnion
		p.AnyOf = alts
		return p, nil
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "string":
		p.Kind = KindString
	case "integer":
		p.Kind = KindInt
	case "number":
		p.Kind = KindFloat
	case "boolean":
		p.Kind = KindBool
	case "array":
		p.Kind = KindList
		if itemsRaw, ok := schema["items"].(map[string]any); ok {
			item, err := FromJSONSchema("", itemsRaw)
			if err != nil {
				return Property{}, err
			}
			p.ItemType = &item
		} else {
			any_ := New("", KindAny, "")
			p.ItemType = &any_
		}
	case "object":
		if propsRaw, ok := schema["properties"].(map[string]any); ok {
			fields := map[string]Property{}
			for fname, fraw := range propsRaw {
				fmap, ok := fraw.(map[string]any)
				if !ok {
					return Property{}, fmt.Errorf("field %q: malformed schema", fname)
				}
				field, err := FromJSONSchema(fname, fmap)
				if err != nil {
					return Property{}, err
				}
				fields[fname] = field
			}
			p.Kind = KindObject
			p.Fields = fields
			switch reqRaw := schema["required"].(type) {
			case []any:
				for _, r := range reqRaw {
					if s, ok := r.(string); ok {
						p.Required = append(p.Required, s)
					}
				}
			case []string: // as written by ToJSONSchema
				p.Required = append(p.Required, reqRaw...)
			}
		} else if addl, ok := schema["additionalProperties"].(map[string]any); ok {
			val, err := FromJSONSchema("", addl)
			if err != nil {
				return Property{}, err
			}
			p.Kind = KindDict
			p.ValueType = &val
		} else {
			p.Kind = KindDict
			any_ := New("", KindAny, "")
			p.ValueType = &any_
		}
	case "":
		p.Kind = KindAny
	default:
		return Property{}, fmt.Errorf("unsupported JSON schema type %q for property %q", typ, name)
	}
	return p, nil
}

// ObjectJSONSchema renders a named set of properties as a single JSON Schema
// "object" document, used for a tool's full input schema or a flow's
// declared input/output descriptor set.
func ObjectJSONSchema(props map[string]Property, required []string) map[string]any {
	properties := map[string]any{}
	for name, p := range props {
		properties[name] = p.ToJSONSchema()
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = append([]string(nil), required...)
	}
	return schema
}
