// Package multiagent builds and holds the agent roster handed to the coordinator.
package multiagent

import (
	"log/slog"
	"sort"
	"sync"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
	"conductor/internal/usecase/agent"
)

// Registry holds the roster's agent instances by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*agent.Agent),
		logger: logger.OrDiscard(log),
	}
}

// Register adds an agent. A second agent with the same name is rejected.
func (r *Registry) Register(a *agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.agents[name]; exists {
		return domain.NewSubSystemError("agent", "multiagent.Register", domain.ErrDuplicate, name)
	}
	r.agents[name] = a
	r.logger.Info("agent registered", "agent", name, "essence", a.Essence().Tag)
	return nil
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, domain.NewSubSystemError("agent", "multiagent.Get", domain.ErrAgentNotFound, name)
	}
	return a, nil
}

// List returns a state snapshot of every agent, sorted by name.
func (r *Registry) List() []domain.AgentState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]domain.AgentState, 0, len(r.agents))
	for _, a := range r.agents {
		states = append(states, a.State())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Name < states[j].Name
	})
	return states
}

// Remove unregisters an agent.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[name]; !ok {
		return domain.NewSubSystemError("agent", "multiagent.Remove", domain.ErrAgentNotFound, name)
	}
	delete(r.agents, name)
	r.logger.Info("agent removed", "agent", name)
	return nil
}

// Handles returns the roster as the map the coordinator routes over.
func (r *Registry) Handles() map[string]domain.AgentHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.AgentHandle, len(r.agents))
	for name, a := range r.agents {
		out[name] = a
	}
	return out
}
