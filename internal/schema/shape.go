// Package schema declares record shapes and validates payloads against them.
//
// A Shape is evaluated the same way for inbound requests and for the
// structured responses returned by the model, so both directions report
// violations with the same field-level detail.
package schema

import (
	"regexp"
)

// Kind is the JSON type of a field.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Format names an additional string constraint.
type Format string

const (
	// FormatDataURI requires a data:<media-type>;base64,<bytes> string.
	FormatDataURI Format = "data-uri"
	// FormatImage requires a data URI carrying an image/* media type.
	FormatImage Format = "image-data-uri"
)

// Field describes one member of a record.
type Field struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool

	MinLength *int
	Pattern   *regexp.Regexp
	Enum      []string
	Format    Format

	Minimum *float64
	Maximum *float64

	Fields []Field // object members
	Items  *Field  // array element

	MinItems *int
	MaxItems *int
}

// String declares a required string field.
func String(name, description string) Field {
	return Field{Name: name, Kind: KindString, Description: description, Required: true}
}

// Number declares a required floating point field.
func Number(name, description string) Field {
	return Field{Name: name, Kind: KindNumber, Description: description, Required: true}
}

// Integer declares a required whole number field.
func Integer(name, description string) Field {
	return Field{Name: name, Kind: KindInteger, Description: description, Required: true}
}

// Boolean declares a required boolean field.
func Boolean(name, description string) Field {
	return Field{Name: name, Kind: KindBoolean, Description: description, Required: true}
}

// Object declares a required nested record.
func Object(name, description string, fields ...Field) Field {
	return Field{Name: name, Kind: KindObject, Description: description, Required: true, Fields: fields}
}

// Array declares a required list whose elements match item.
func Array(name, description string, item Field) Field {
	return Field{Name: name, Kind: KindArray, Description: description, Required: true, Items: &item}
}

// Optional marks the field as not required.
func (f Field) Optional() Field {
	f.Required = false
	return f
}

// WithMinLength requires strings to hold at least n characters.
func (f Field) WithMinLength(n int) Field {
	f.MinLength = &n
	return f
}

// WithPattern requires strings to match expr. It panics on an invalid expression.
func (f Field) WithPattern(expr string) Field {
	f.Pattern = regexp.MustCompile(expr)
	return f
}

// WithEnum restricts strings to the given values.
func (f Field) WithEnum(values ...string) Field {
	f.Enum = values
	return f
}

// WithFormat applies a named string format.
func (f Field) WithFormat(format Format) Field {
	f.Format = format
	return f
}

// WithRange bounds numbers to [min, max].
func (f Field) WithRange(min, max float64) Field {
	f.Minimum = &min
	f.Maximum = &max
	return f
}

// WithMinimum bounds numbers from below.
func (f Field) WithMinimum(min float64) Field {
	f.Minimum = &min
	return f
}

// WithItems bounds the number of array elements. A negative max means unbounded.
func (f Field) WithItems(min, max int) Field {
	f.MinItems = &min
	if max >= 0 {
		f.MaxItems = &max
	} else {
		f.MaxItems = nil
	}
	return f
}

// Shape is a named record description.
type Shape struct {
	Name   string
	Fields []Field
}

// New creates a shape from its top-level fields.
func New(name string, fields ...Field) *Shape {
	return &Shape{Name: name, Fields: fields}
}

// Field looks up a top-level field by name.
func (s *Shape) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
