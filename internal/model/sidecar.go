package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SidecarClient is an HTTP implementation of the Client interface for a
// model gateway running next to the service.
type SidecarClient struct {
	url        string
	httpClient *http.Client
}

// NewSidecarClient creates a new SidecarClient. A nil httpClient uses
// http.DefaultClient.
func NewSidecarClient(url string, httpClient *http.Client) *SidecarClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SidecarClient{url: strings.TrimRight(url, "/"), httpClient: httpClient}
}

type sidecarMedia struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type sidecarRequest struct {
	Flow         string         `json:"flow"`
	System       string         `json:"system,omitempty"`
	Prompt       string         `json:"prompt"`
	Media        []sidecarMedia `json:"media,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
}

type sidecarResponse struct {
	Output json.RawMessage `json:"output"`
	Model  string          `json:"model"`
}

// Generate posts the request to {url}/generate.
func (c *SidecarClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	body := sidecarRequest{Flow: req.Flow, System: req.System, Prompt: req.Prompt}
	for _, m := range req.Media {
		body.Media = append(body.Media, sidecarMedia{
			MIMEType: m.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(m.Data),
		})
	}
	if req.Output != nil {
		body.OutputSchema = req.Output.JSONSchema()
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/generate", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to generate: status code %d", resp.StatusCode)
	}

	var out sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	raw := string(out.Output)
	value, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return &Response{Raw: raw, Value: value, Model: out.Model}, nil
}
