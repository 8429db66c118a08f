package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
)

var (
	_ domain.LLMProvider          = (*AnthropicProvider)(nil)
	_ domain.StreamingLLMProvider = (*AnthropicProvider)(nil)
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements domain.LLMProvider on the Anthropic Messages
// API through the official SDK.
type AnthropicProvider struct {
	name      string
	model     string
	maxTokens int
	client    *anthropic.Client
	logger    *slog.Logger
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
// SDK retries are disabled; the circuit breaker and failover own retry policy.
func NewAnthropicProvider(cfg config.ProviderConfig, log *slog.Logger) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(NewHTTPClient(cfg)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    &client,
		logger:    logger.OrDiscard(log),
	}
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.name }

// Model returns the configured default model.
func (p *AnthropicProvider) Model() string { return p.model }

// Chat implements domain.LLMProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (result *domain.ChatResponse, err error) {
	req = defaultModel(req, p.model)
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer func() { tracer.Finish(span, err) }()

	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, domain.ErrEmptyResponse)
	}

	now := time.Now()
	result = &domain.ChatResponse{
		ID:    msg.ID,
		Model: string(msg.Model),
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   text.String(),
			Timestamp: now,
		},
		Usage: domain.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		CreatedAt: now,
	}
	setUsageAttrs(span, result.Usage)
	logChatCompleted(p.logger, p.name, result)
	return result, nil
}

// ChatStream implements domain.StreamingLLMProvider. The channel ends with a
// Done delta carrying usage; a mid-stream failure is logged and ends it early.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	req = defaultModel(req, p.model)
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))
	if err := stream.Err(); err != nil {
		return nil, mapAnthropicError(err)
	}

	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		var usage domain.Usage
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.PromptTokens = int(ev.Message.Usage.InputTokens)
			case anthropic.MessageDeltaEvent:
				usage.CompletionTokens = int(ev.Usage.OutputTokens)
			case anthropic.ContentBlockDeltaEvent:
				d, ok := ev.Delta.AsAny().(anthropic.TextDelta)
				if !ok || d.Text == "" {
					continue
				}
				select {
				case ch <- domain.StreamDelta{Content: d.Text}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			p.logger.Warn("anthropic stream ended early", "provider", p.name, "error", mapAnthropicError(err))
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		select {
		case ch <- domain.StreamDelta{Done: true, Usage: &usage}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// buildParams maps a ChatRequest onto Messages API params. System messages
// are lifted into the system prompt.
func (p *AnthropicProvider) buildParams(req domain.ChatRequest) anthropic.MessageNewParams {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	var system []anthropic.TextBlockParam
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case domain.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages:  msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

// mapAnthropicError converts SDK errors into the same domain sentinels the
// HTTP backends produce.
func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.StatusCode, []byte(apiErr.RawJSON()))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}
