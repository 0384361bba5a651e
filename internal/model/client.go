// Package model talks to the external generative-model service.
//
// Every backend implements the same narrow Client interface: one request with
// prompt text, optional inline media and a declared output shape, answered by
// one structured JSON response. Calls are stateless; nothing is carried from
// one call to the next.
package model

import (
	"context"
	"time"

	"cropguide/backend/internal/media"
	"cropguide/backend/internal/schema"
)

// Request is a single structured generation call.
type Request struct {
	// Flow names the calling flow; backends use it to label the output schema.
	Flow   string
	System string
	Prompt string
	Media  []media.Inline
	// Output is the shape the response must follow. Backends forward it so the
	// service answers with conforming JSON rather than free text.
	Output *schema.Shape
}

// Response is the decoded structured answer.
type Response struct {
	Raw   string
	Value any
	Model string
}

// Client sends a rendered request to the model service.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// WithTimeout bounds every call made through next.
func WithTimeout(next Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return next
	}
	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return next.Generate(ctx, req)
	})
}
