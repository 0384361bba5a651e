package schema

// JSONSchema renders the shape as a JSON Schema object. Model backends use it
// to request structured output and the API publishes it in the flow catalog.
func (s *Shape) JSONSchema() map[string]any {
	return objectSchema("", s.Fields)
}

// JSONSchema renders a single field.
func (f Field) JSONSchema() map[string]any {
	var out map[string]any
	switch f.Kind {
	case KindObject:
		out = objectSchema(f.Description, f.Fields)
	case KindArray:
		out = map[string]any{"type": "array"}
		if f.Items != nil {
			out["items"] = f.Items.JSONSchema()
		}
		if f.MinItems != nil {
			out["minItems"] = *f.MinItems
		}
		if f.MaxItems != nil {
			out["maxItems"] = *f.MaxItems
		}
	default:
		out = map[string]any{"type": string(f.Kind)}
	}

	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.MinLength != nil {
		out["minLength"] = *f.MinLength
	}
	if f.Pattern != nil {
		out["pattern"] = f.Pattern.String()
	}
	if len(f.Enum) > 0 {
		out["enum"] = f.Enum
	}
	if f.Format != "" {
		out["format"] = string(f.Format)
	}
	if f.Minimum != nil {
		out["minimum"] = *f.Minimum
	}
	if f.Maximum != nil {
		out["maximum"] = *f.Maximum
	}
	return out
}

func objectSchema(description string, fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = f.JSONSchema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	if description != "" {
		out["description"] = description
	}
	return out
}
