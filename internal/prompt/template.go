// Package prompt renders flow prompt templates.
//
// Templates substitute {{field}} with the value of an input field and
// {{media field}} with an inline media reference decoded from a data URI
// field. Placeholders are checked against the input shape when the template
// is compiled, so rendering a validated record never meets a missing field.
package prompt

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"

	"cropguide/backend/internal/media"
	"cropguide/backend/internal/schema"
)

const (
	startTag = "{{"
	endTag   = "}}"

	mediaDirective = "media "
)

// Payload is a rendered prompt ready to be sent to a model.
type Payload struct {
	Text  string
	Media []media.Inline
}

// Template is a compiled prompt template.
type Template struct {
	name string
	text string
	tmpl *fasttemplate.Template

	fields []string
	media  []string
}

type placeholder struct {
	field string
	media bool
}

func parseTag(tag string) placeholder {
	tag = strings.TrimSpace(tag)
	if strings.HasPrefix(tag, mediaDirective) {
		return placeholder{field: strings.TrimSpace(strings.TrimPrefix(tag, mediaDirective)), media: true}
	}
	return placeholder{field: tag}
}

// Compile parses text and checks every placeholder against the input shape.
func Compile(name, text string, input *schema.Shape) (*Template, error) {
	tmpl, err := fasttemplate.NewTemplate(text, startTag, endTag)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}

	t := &Template{name: name, text: text, tmpl: tmpl}

	var problems []string
	tmpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		p := parseTag(tag)
		field, ok := input.Field(p.field)
		switch {
		case p.field == "":
			problems = append(problems, fmt.Sprintf("empty placeholder %q", tag))
		case !ok:
			problems = append(problems, fmt.Sprintf("placeholder %q references undeclared field", p.field))
		case p.media && field.Format != schema.FormatDataURI && field.Format != schema.FormatImage:
			problems = append(problems, fmt.Sprintf("media placeholder %q references a field without a data URI format", p.field))
		case p.media:
			t.media = append(t.media, p.field)
		default:
			t.fields = append(t.fields, p.field)
		}
		return 0, nil
	})
	if len(problems) > 0 {
		return nil, fmt.Errorf("template %s: %s", name, strings.Join(problems, "; "))
	}
	return t, nil
}

// MustCompile is like Compile but panics on authoring errors.
func MustCompile(name, text string, input *schema.Shape) *Template {
	t, err := Compile(name, text, input)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Text returns the unrendered template text.
func (t *Template) Text() string { return t.text }

// Fields lists the text placeholders in order of appearance.
func (t *Template) Fields() []string { return t.fields }

// MediaFields lists the media placeholders in order of appearance.
func (t *Template) MediaFields() []string { return t.media }

// Render substitutes record values into the template. Media placeholders are
// replaced by "[image N]" markers and their decoded content is appended to
// the payload in the same order.
func (t *Template) Render(record map[string]any) (*Payload, error) {
	payload := &Payload{}
	var renderErr error

	text := t.tmpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		p := parseTag(tag)
		value := record[p.field]

		if !p.media {
			return io.WriteString(w, format(value))
		}

		uri, _ := value.(string)
		in, err := media.Parse(uri)
		if err != nil {
			if renderErr == nil {
				renderErr = fmt.Errorf("template %s: field %s: %w", t.name, p.field, err)
			}
			return 0, nil
		}
		payload.Media = append(payload.Media, in)
		return fmt.Fprintf(w, "[image %d]", len(payload.Media))
	})
	if renderErr != nil {
		return nil, renderErr
	}

	payload.Text = text
	return payload, nil
}

func format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}
