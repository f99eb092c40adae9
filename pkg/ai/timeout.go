package ai

import (
	"context"
	"fmt"
	"time"
)

type timeoutGenerator struct {
	inner   Generator
	timeout time.Duration
}

// WithTimeout bounds every call to the inner generator. Placed under WithRetry
// the bound applies per attempt.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return &timeoutGenerator{inner: g, timeout: timeout}
}

// Generate reports an attempt that ran out of time as UnavailableError so the
// retry layer may try again; the caller's own deadline is passed through.
func (g *timeoutGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.inner.Generate(attemptCtx, req)
	if err != nil && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
		return Response{}, &UnavailableError{Err: fmt.Errorf("%s: attempt timed out after %s", g.inner.Model(), g.timeout)}
	}
	return resp, err
}

func (g *timeoutGenerator) Model() string {
	return g.inner.Model()
}
