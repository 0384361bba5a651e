package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient spaces calls to the model service.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// WithRateLimit wraps next so that at most rps calls per second start, with
// bursts of up to burst calls. A non-positive rps disables limiting.
func WithRateLimit(next Client, rps float64, burst int) Client {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Generate waits for a token and forwards the call.
func (c *RateLimitedClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.next.Generate(ctx, req)
}
