package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimitedGenerator struct {
	inner   Generator
	limiter *rate.Limiter
}

// WithRateLimit caps outbound requests to the provider. A nil limiter disables the cap.
func WithRateLimit(g Generator, limiter *rate.Limiter) Generator {
	if limiter == nil {
		return g
	}
	return &rateLimitedGenerator{inner: g, limiter: limiter}
}

// PerMinute builds a limiter allowing n requests per minute with a burst of n.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
}

func (g *rateLimitedGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("wait for generator quota: %w", err)
	}
	return g.inner.Generate(ctx, req)
}

func (g *rateLimitedGenerator) Model() string {
	return g.inner.Model()
}
