package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"cropguide/backend/internal/media"
)

// Rule identifies the constraint a value violated.
type Rule string

const (
	RuleRequired Rule = "required"
	RuleType     Rule = "type"
	RuleRange    Rule = "range"
	RuleLength   Rule = "length"
	RulePattern  Rule = "pattern"
	RuleEnum     Rule = "enum"
	RuleFormat   Rule = "format"
	RuleItems    Rule = "items"
)

// Violation is a single failed constraint.
type Violation struct {
	Path    string `json:"path"`
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

// ValidationError enumerates every violation found in a payload.
type ValidationError struct {
	Shape      string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Path+": "+v.Message)
	}
	return fmt.Sprintf("%s does not match its shape: %s", e.Shape, strings.Join(parts, "; "))
}

// Paths returns the offending field paths in the order they were found.
func (e *ValidationError) Paths() []string {
	paths := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if !slices.Contains(paths, v.Path) {
			paths = append(paths, v.Path)
		}
	}
	return paths
}

// Validate checks value against the shape. On success it returns a new record
// holding only the declared fields, with numbers normalised to float64 or
// int64. A null value on an optional field is treated as absent.
func (s *Shape) Validate(value any) (map[string]any, error) {
	v := &validator{}
	out := v.object(s.Fields, "", value)
	if len(v.violations) > 0 {
		return nil, &ValidationError{Shape: s.Name, Violations: v.violations}
	}
	return out, nil
}

type validator struct {
	violations []Violation
}

func (v *validator) add(path string, rule Rule, format string, args ...any) {
	if path == "" {
		path = "$"
	}
	v.violations = append(v.violations, Violation{Path: path, Rule: rule, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) object(fields []Field, path string, value any) map[string]any {
	obj, ok := value.(map[string]any)
	if !ok {
		v.add(path, RuleType, "expected object, got %s", describe(value))
		return nil
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		p := join(path, f.Name)
		raw, present := obj[f.Name]
		if !present || raw == nil {
			if f.Required {
				v.add(p, RuleRequired, "is required")
			}
			continue
		}
		if coerced, ok := v.field(f, p, raw); ok {
			out[f.Name] = coerced
		}
	}
	return out
}

func (v *validator) field(f Field, path string, value any) (any, bool) {
	before := len(v.violations)

	switch f.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			v.add(path, RuleType, "expected string, got %s", describe(value))
			return nil, false
		}
		v.checkString(f, path, s)
		return s, len(v.violations) == before

	case KindNumber, KindInteger:
		n, ok := toFloat(value)
		if !ok {
			v.add(path, RuleType, "expected %s, got %s", f.Kind, describe(value))
			return nil, false
		}
		if f.Kind == KindInteger && n != math.Trunc(n) {
			v.add(path, RuleType, "expected integer, got %v", n)
			return nil, false
		}
		if f.Minimum != nil && n < *f.Minimum {
			v.add(path, RuleRange, "must be >= %v, got %v", *f.Minimum, n)
		}
		if f.Maximum != nil && n > *f.Maximum {
			v.add(path, RuleRange, "must be <= %v, got %v", *f.Maximum, n)
		}
		if f.Kind == KindInteger {
			return int64(n), len(v.violations) == before
		}
		return n, len(v.violations) == before

	case KindBoolean:
		b, ok := value.(bool)
		if !ok {
			v.add(path, RuleType, "expected boolean, got %s", describe(value))
			return nil, false
		}
		return b, true

	case KindObject:
		out := v.object(f.Fields, path, value)
		return out, out != nil && len(v.violations) == before

	case KindArray:
		items, ok := value.([]any)
		if !ok {
			v.add(path, RuleType, "expected array, got %s", describe(value))
			return nil, false
		}
		if f.MinItems != nil && len(items) < *f.MinItems {
			v.add(path, RuleItems, "must hold at least %d items, got %d", *f.MinItems, len(items))
		}
		if f.MaxItems != nil && len(items) > *f.MaxItems {
			v.add(path, RuleItems, "must hold at most %d items, got %d", *f.MaxItems, len(items))
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			p := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				v.add(p, RuleRequired, "is required")
				continue
			}
			if coerced, ok := v.field(*f.Items, p, item); ok {
				out = append(out, coerced)
			}
		}
		return out, len(v.violations) == before
	}

	v.add(path, RuleType, "unsupported kind %q", f.Kind)
	return nil, false
}

func (v *validator) checkString(f Field, path, s string) {
	if f.MinLength != nil && utf8.RuneCountInString(s) < *f.MinLength {
		if *f.MinLength == 1 {
			v.add(path, RuleLength, "must not be empty")
		} else {
			v.add(path, RuleLength, "must hold at least %d characters", *f.MinLength)
		}
	}
	if f.Pattern != nil && !f.Pattern.MatchString(s) {
		v.add(path, RulePattern, "must match %s", f.Pattern.String())
	}
	if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
		v.add(path, RuleEnum, "must be one of %s", strings.Join(f.Enum, ", "))
	}
	switch f.Format {
	case FormatDataURI, FormatImage:
		in, err := media.Parse(s)
		if err != nil {
			v.add(path, RuleFormat, "must be a data URI of the form data:<media-type>;base64,<data>: %v", err)
			return
		}
		if f.Format == FormatImage && !in.IsImage() {
			v.add(path, RuleFormat, "must carry an image media type, got %s", in.MIMEType)
		}
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", value)
}
