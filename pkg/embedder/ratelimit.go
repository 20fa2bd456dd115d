package embedder

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a Provider with a token-bucket rate limiter.
// Calls block until a token is available or the context is cancelled, which
// keeps request bursts within an upstream API's quota.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps a provider with a limiter allowing reqPerSec requests
// per second with the given burst size.
func WithRateLimit(inner Provider, reqPerSec float64, burst int) *RateLimitedProvider {
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

// EmbedText waits for a token, then delegates.
func (p *RateLimitedProvider) EmbedText(ctx context.Context, text string) ([]float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.EmbedText(ctx, text)
}

// EmbedImage waits for a token, then delegates.
func (p *RateLimitedProvider) EmbedImage(ctx context.Context, data []byte) ([]float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.EmbedImage(ctx, data)
}

// EmbedBatch waits for a single token, then delegates. A batch counts as one
// request against the upstream quota.
func (p *RateLimitedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.EmbedBatch(ctx, texts)
}

// Dimensions delegates to the inner provider.
func (p *RateLimitedProvider) Dimensions(modality string) int {
	return p.inner.Dimensions(modality)
}

// Close closes the inner provider.
func (p *RateLimitedProvider) Close() error {
	return p.inner.Close()
}
