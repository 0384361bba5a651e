package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyResponse is returned when the service answered with no content.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrMalformedResponse is returned when the answer is not valid JSON.
	ErrMalformedResponse = errors.New("model returned malformed JSON")
)

const maxQuoted = 200

// Decode parses the raw model answer into a generic JSON value. Markdown code
// fences around the JSON are tolerated.
func Decode(raw string) (any, error) {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return nil, ErrEmptyResponse
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(text))
	}
	return gjson.Parse(text).Value(), nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// drop the info string, e.g. ```json
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncate(s string) string {
	if len(s) <= maxQuoted {
		return s
	}
	return s[:maxQuoted] + "..."
}
