package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is in open state
// and rejects embedding requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("embedder circuit breaker is open")

// BreakerConfig holds the configuration for the embedding circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning
	// to half-open. Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2
	HalfOpenMaxSuccesses uint32
}

// BreakerProvider wraps a Provider with a circuit breaker.
//
// When closed, requests pass through normally. After MaxFailures consecutive
// failures the circuit opens and requests fail fast with ErrCircuitOpen.
// After Timeout the circuit goes half-open and allows test requests through.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps a provider with a circuit breaker. A zero-valued config
// field falls back to its default.
func WithBreaker(inner Provider, config BreakerConfig) *BreakerProvider {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        "EmbedderCircuitBreaker",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
	}

	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// EmbedText runs the inner provider's EmbedText through the breaker.
func (p *BreakerProvider) EmbedText(ctx context.Context, text string) ([]float64, error) {
	result, err := p.execute(ctx, func() (interface{}, error) {
		return p.inner.EmbedText(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

// EmbedImage runs the inner provider's EmbedImage through the breaker.
func (p *BreakerProvider) EmbedImage(ctx context.Context, data []byte) ([]float64, error) {
	result, err := p.execute(ctx, func() (interface{}, error) {
		return p.inner.EmbedImage(ctx, data)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

// EmbedBatch runs the inner provider's EmbedBatch through the breaker.
func (p *BreakerProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	result, err := p.execute(ctx, func() (interface{}, error) {
		return p.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float64), nil
}

// Dimensions delegates to the inner provider.
func (p *BreakerProvider) Dimensions(modality string) int {
	return p.inner.Dimensions(modality)
}

// Close closes the inner provider.
func (p *BreakerProvider) Close() error {
	return p.inner.Close()
}

func (p *BreakerProvider) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := p.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}
