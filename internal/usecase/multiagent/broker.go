package multiagent

import (
	"context"
	"fmt"
	"log/slog"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

// DelegateRequest addresses one agent directly.
type DelegateRequest struct {
	FromAgent string          `json:"from_agent,omitempty"`
	ToAgent   string          `json:"to_agent"`
	Message   string          `json:"message"`
	Context   *domain.Context `json:"-"`
}

// DelegateResponse is the result of a delegation.
type DelegateResponse struct {
	FromAgent string `json:"from_agent"`
	Content   string `json:"content"`
}

// Broker sends messages straight to a named agent, outside the coordinator's
// intent routing. The agent still breathes and applies its own constraints.
type Broker struct {
	registry *Registry
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewBroker creates a Broker over registry. bus may be nil.
func NewBroker(registry *Registry, bus domain.EventBus, log *slog.Logger) *Broker {
	return &Broker{
		registry: registry,
		bus:      bus,
		logger:   logger.OrDiscard(log),
	}
}

// Delegate runs req.Message through the target agent.
func (b *Broker) Delegate(ctx context.Context, req DelegateRequest) (*DelegateResponse, error) {
	a, err := b.registry.Get(req.ToAgent)
	if err != nil {
		return nil, fmt.Errorf("broker: target agent %q: %w", req.ToAgent, err)
	}

	if b.bus != nil {
		b.bus.Publish(ctx, domain.NewEvent(domain.EventAgentRouted, "", domain.RoutingDecision{
			PrimaryAgent: req.ToAgent,
			Confidence:   1.0,
			Constraints:  a.Identity().Constraints,
		}))
	}
	b.logger.Info("delegating", "from", req.FromAgent, "to", req.ToAgent)

	content, err := a.Process(ctx, req.Message, req.Context)
	if err != nil {
		return nil, fmt.Errorf("broker: agent %q: %w", req.ToAgent, err)
	}
	return &DelegateResponse{FromAgent: req.ToAgent, Content: content}, nil
}
