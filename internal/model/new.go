package model

import (
	"context"
	"fmt"

	"cropguide/backend/internal/config"
)

// Provider names accepted in model.provider.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderSidecar = "sidecar"
)

// New builds the configured backend wrapped with the configured timeout and
// rate limit.
func New(ctx context.Context, cfg config.Model) (Client, error) {
	var client Client
	switch cfg.Provider {
	case ProviderGemini, "":
		var opts []GeminiOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithGeminiBaseURL(cfg.BaseURL))
		}
		gemini, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Name, opts...)
		if err != nil {
			return nil, err
		}
		client = gemini
	case ProviderOpenAI:
		client = NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Name, nil)
	case ProviderSidecar:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("model.base_url is required for the %s provider", ProviderSidecar)
		}
		client = NewSidecarClient(cfg.BaseURL, nil)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	client = WithTimeout(client, cfg.Timeout)
	return WithRateLimit(client, cfg.RequestsPerSecond, cfg.Burst), nil
}
