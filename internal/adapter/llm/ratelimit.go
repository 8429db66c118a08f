package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
)

// RateLimitedProvider caps the request rate to one backend with a token
// bucket. Callers wait for a token; a wait that cannot finish before the
// context deadline fails with ErrRateLimit without reaching the backend.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner. RequestsPerMin <= 0 means unlimited.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	limit := rate.Inf
	if cfg.RequestsPerMin > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMin) / 60.0)
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (p *RateLimitedProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("provider %q: %w: %v", p.inner.Name(), domain.ErrRateLimit, err)
	}
	return nil
}

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.StreamingLLMProvider when the inner provider streams.
func (p *RateLimitedProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	sp, ok := p.inner.(domain.StreamingLLMProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support streaming: %w", p.inner.Name(), domain.ErrProviderError)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return sp.ChatStream(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

// Unwrap returns the limited provider.
func (p *RateLimitedProvider) Unwrap() domain.LLMProvider { return p.inner }
