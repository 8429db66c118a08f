package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

var (
	_ domain.LLMProvider          = (*FailoverProvider)(nil)
	_ domain.StreamingLLMProvider = (*FailoverProvider)(nil)
)

// FailoverProvider wraps a primary LLM provider with fallback providers.
// If the primary fails, it tries each fallback in order. A cancelled context
// stops the chain.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, log *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger.OrDiscard(log),
	}
}

func (f *FailoverProvider) chain() []domain.LLMProvider {
	return append([]domain.LLMProvider{f.primary}, f.fallbacks...)
}

// Chat tries the primary provider first, then each fallback on failure.
// The returned error joins every provider's failure.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var errs []error
	for i, p := range f.chain() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover succeeded", "provider", p.Name())
			}
			return resp, nil
		}
		f.logger.Warn("model backend failed", "provider", p.Name(), "error", err, "remaining", len(f.fallbacks)-i)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// ChatStream tries streaming from the primary, then each fallback that
// implements StreamingLLMProvider.
func (f *FailoverProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	var errs []error
	for _, p := range f.chain() {
		sp, ok := p.(domain.StreamingLLMProvider)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ch, err := sp.ChatStream(ctx, req)
		if err == nil {
			return ch, nil
		}
		f.logger.Warn("streaming model backend failed", "provider", p.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("no streaming-capable providers available: %w", domain.ErrProviderError)
	}
	return nil, fmt.Errorf("all streaming providers failed: %w", errors.Join(errs...))
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}

// Unwrap returns the primary provider.
func (f *FailoverProvider) Unwrap() domain.LLMProvider { return f.primary }
