// File: internal/llmclient/ratelimit.go
package llmclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// RateLimited paces requests to an inner client.
type RateLimited struct {
	inner   schemas.LLMClient
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute requests per minute with a burst of one.
// A non-positive rate returns inner unchanged.
func NewRateLimited(inner schemas.LLMClient, perMinute float64) schemas.LLMClient {
	if perMinute <= 0 {
		return inner
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perMinute/60), 1)}
}

// Generate waits for a token, then delegates.
func (r *RateLimited) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return r.inner.Generate(ctx, req)
}

// Close closes the inner client.
func (r *RateLimited) Close() error { return r.inner.Close() }
