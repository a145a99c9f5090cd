package ai

import (
	"context"

	"github.com/deusflow/docassist/internal/ratelimit"
	"github.com/deusflow/docassist/internal/retry"
)

// Guard applies the daily quota and the retry policy to upstream calls.
// A nil Guard calls straight through.
type Guard struct {
	Limiter *ratelimit.AIRateLimiter
	Retry   retry.RetryConfig
}

// Do takes one unit of provider quota and runs fn with retries.
func (g *Guard) Do(ctx context.Context, provider string, fn func() error) error {
	if g == nil {
		return fn()
	}
	if g.Limiter != nil {
		if err := g.Limiter.Use(provider); err != nil {
			return err
		}
	}
	return retry.WithRetry(ctx, g.Retry, fn)
}
