package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"cropguide/backend/internal/schema"
)

const (
	// DefaultGeminiModel is used when no model name is configured.
	DefaultGeminiModel = "gemini-2.0-flash"
	// GoogleAPIKeyEnv is consulted when no API key is configured.
	GoogleAPIKeyEnv = "GOOGLE_API_KEY"

	jsonMIMEType = "application/json"
)

// GeminiClient calls the Gemini API through google.golang.org/genai.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// GeminiOption customises the genai client configuration.
type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client at a different endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = url
	}
}

// NewGeminiClient creates a client for the named model. An empty apiKey falls
// back to the GOOGLE_API_KEY environment variable.
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv(GoogleAPIKeyEnv)
	}
	if apiKey == "" {
		return nil, errors.New("gemini API key is not configured")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	// Remove the `models/` prefix from the model id if it exists.
	return &GeminiClient{client: client, model: strings.TrimPrefix(model, "models/")}, nil
}

// Generate implements Client.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, m := range req.Media {
		parts = append(parts, genai.NewPartFromBytes(m.Data, m.MIMEType))
	}

	config := &genai.GenerateContentConfig{ResponseMIMEType: jsonMIMEType}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Output != nil {
		config.ResponseSchema = geminiSchema(req.Output)
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	value, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return &Response{Raw: raw, Value: value, Model: c.model}, nil
}

// geminiSchema converts a shape into the OpenAPI subset Gemini accepts.
// Pattern and format constraints are left to local validation.
func geminiSchema(shape *schema.Shape) *genai.Schema {
	return geminiObject("", shape.Fields)
}

func geminiObject(description string, fields []schema.Field) *genai.Schema {
	s := &genai.Schema{
		Type:        genai.TypeObject,
		Description: description,
		Properties:  make(map[string]*genai.Schema, len(fields)),
	}
	for _, f := range fields {
		s.Properties[f.Name] = geminiField(f)
		s.PropertyOrdering = append(s.PropertyOrdering, f.Name)
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

func geminiField(f schema.Field) *genai.Schema {
	var s *genai.Schema
	switch f.Kind {
	case schema.KindObject:
		return geminiObject(f.Description, f.Fields)
	case schema.KindArray:
		s = &genai.Schema{Type: genai.TypeArray}
		if f.Items != nil {
			s.Items = geminiField(*f.Items)
		}
		if f.MinItems != nil {
			n := int64(*f.MinItems)
			s.MinItems = &n
		}
		if f.MaxItems != nil {
			n := int64(*f.MaxItems)
			s.MaxItems = &n
		}
	case schema.KindNumber:
		s = &genai.Schema{Type: genai.TypeNumber, Minimum: f.Minimum, Maximum: f.Maximum}
	case schema.KindInteger:
		s = &genai.Schema{Type: genai.TypeInteger, Minimum: f.Minimum, Maximum: f.Maximum}
	case schema.KindBoolean:
		s = &genai.Schema{Type: genai.TypeBoolean}
	default:
		s = &genai.Schema{Type: genai.TypeString, Enum: f.Enum}
	}
	s.Description = f.Description
	return s
}
