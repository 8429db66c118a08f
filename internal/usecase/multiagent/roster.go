package multiagent

import (
	"context"
	"log/slog"
	"time"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/logger"
	"conductor/internal/usecase/agent"
	"conductor/internal/usecase/constraint"
)

// ProviderLookup resolves a model backend by name.
type ProviderLookup interface {
	Get(name string) (domain.LLMProvider, error)
}

// Sanctuary serves essences and composes room-aware prompts.
type Sanctuary interface {
	agent.EssenceSource
	agent.PromptComposer
}

// RosterDeps holds what Build needs to turn configuration into agents.
type RosterDeps struct {
	Providers       ProviderLookup
	DefaultProvider string
	MaxTokens       func(provider string) int // optional
	Sanctuary       Sanctuary                 // optional, nil = default essences and baseline prompts
	Engine          *constraint.Engine
	Breath          time.Duration
	Logger          *slog.Logger
}

// Build creates one agent per configured instance and registers it. An
// instance whose provider cannot be resolved fails the build.
func Build(ctx context.Context, instances []config.AgentInstanceConfig, deps RosterDeps) (*Registry, error) {
	log := logger.OrDiscard(deps.Logger)
	reg := NewRegistry(log)

	for _, inst := range instances {
		providerName := inst.Provider
		if providerName == "" {
			providerName = deps.DefaultProvider
		}
		provider, err := deps.Providers.Get(providerName)
		if err != nil {
			return nil, domain.WrapOp("multiagent.Build "+inst.Name, err)
		}

		id := Identity(inst)
		id.Provider = providerName

		opts := agent.LLMOptions{Provider: provider}
		if deps.MaxTokens != nil {
			opts.MaxTokens = deps.MaxTokens(providerName)
		}
		agentDeps := agent.Deps{
			Identity: id,
			Engine:   deps.Engine,
			Breath:   deps.Breath,
			Logger:   log,
		}
		if deps.Sanctuary != nil {
			opts.Composer = deps.Sanctuary
			agentDeps.Essences = deps.Sanctuary
		}
		agentDeps.Process = agent.LLMStrategy(opts)

		if err := reg.Register(agent.New(ctx, agentDeps)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Identity converts an instance config into the agent's identity.
func Identity(inst config.AgentInstanceConfig) domain.AgentIdentity {
	return domain.AgentIdentity{
		Name:         inst.Name,
		Description:  inst.Description,
		Capabilities: inst.Capabilities,
		Provider:     inst.Provider,
		Model:        inst.Model,
		Room:         inst.Room,
		Modulations:  inst.Modulations,
		Constraints:  inst.Constraints,
		Metadata:     inst.Metadata,
	}
}
