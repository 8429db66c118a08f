package agent

import (
	"context"
	"strings"
	"time"

	"conductor/internal/domain"
	"conductor/internal/usecase/sanctuary"
)

// PromptComposer builds the room-aware prompt for an agent.
type PromptComposer interface {
	ComposePrompt(ctx context.Context, agent, room, message string, msgCtx *domain.Context, modulations []string) (string, error)
}

// LLMOptions configures LLMStrategy.
type LLMOptions struct {
	Provider    domain.LLMProvider
	Composer    PromptComposer // optional when no agent has a room
	MaxTokens   int
	Temperature float64
}

// LLMStrategy returns a ProcessFunc that prompts a model backend. Agents with
// a room get the full composition; others get the essence-only baseline
// built from their resolved essence. The reply passes through ApplyConstraints.
func LLMStrategy(opts LLMOptions) ProcessFunc {
	return func(ctx context.Context, a *Agent, message string, msgCtx *domain.Context) (string, error) {
		if opts.Provider == nil {
			return "", domain.NewSubSystemError("agent", "agent.LLMStrategy", domain.ErrProviderNotFound, a.Name())
		}

		merged := a.Context()
		merged.Merge(msgCtx)

		prompt, err := buildPrompt(ctx, opts.Composer, a, message, merged)
		if err != nil {
			return "", err
		}

		resp, err := opts.Provider.Chat(ctx, domain.ChatRequest{
			Model: a.Identity().Model,
			Messages: []domain.Message{
				{Role: domain.RoleUser, Content: prompt, Timestamp: time.Now()},
			},
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		})
		if err != nil {
			return "", domain.WrapOp("agent."+a.Name(), err)
		}

		reply := strings.TrimSpace(resp.Message.Content)
		if reply == "" {
			return "", domain.NewSubSystemError("agent", "agent."+a.Name(), domain.ErrEmptyResponse, opts.Provider.Name())
		}
		return a.ApplyConstraints(reply), nil
	}
}

func buildPrompt(ctx context.Context, composer PromptComposer, a *Agent, message string, msgCtx *domain.Context) (string, error) {
	id := a.Identity()
	if id.Room == "" || composer == nil {
		return sanctuary.BaselinePrompt(a.Name(), a.Essence(), message, msgCtx), nil
	}
	return composer.ComposePrompt(ctx, a.Name(), id.Room, message, msgCtx, id.Modulations)
}

// StaticStrategy replies with a fixed text, constrained. Useful for agents
// that only acknowledge, and in tests.
func StaticStrategy(reply string) ProcessFunc {
	return func(_ context.Context, a *Agent, _ string, _ *domain.Context) (string, error) {
		return a.ApplyConstraints(reply), nil
	}
}
