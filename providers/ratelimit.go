package providers

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token-bucket limiter so bursts
// of concurrent calls cannot exceed the backend's request quota.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter allowing rps requests per
// second and the given burst size.
func NewRateLimited(inner Provider, rps float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// ID returns the wrapped provider's identifier.
func (r *RateLimited) ID() string { return r.inner.ID() }

// GenerateTurn waits for limiter admission, then delegates. A context
// deadline shorter than the wait surfaces as the context error, so the
// per-turn budget still bounds total time spent.
func (r *RateLimited) GenerateTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return TurnResponse{}, NewProviderError(r.inner.ID(), "rate limit wait", err, false)
	}
	return r.inner.GenerateTurn(ctx, req)
}

// Close delegates to the wrapped provider.
func (r *RateLimited) Close() error { return r.inner.Close() }
