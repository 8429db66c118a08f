package llm

import (
	"context"
	"sort"
	"sync"

	"conductor/internal/domain"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider under its own name.
func (r *Registry) Register(provider domain.LLMProvider) error {
	return r.RegisterAs(provider.Name(), provider)
}

// RegisterAs adds a provider under an explicit name, so a wrapped provider
// can take the slot of the backend it protects.
func (r *Registry) RegisterAs(name string, provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return domain.NewSubSystemError("provider", "Registry.Register", domain.ErrDuplicate, name)
	}
	r.providers[name] = provider
	return nil
}

// Replace swaps the provider registered under name.
func (r *Registry) Replace(name string, provider domain.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Lifecycle returns the model lifecycle of the named provider.
func (r *Registry) Lifecycle(name string) (domain.ModelLifecycle, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return LifecycleOf(p)
}

// Availability reports IsAvailable for every provider that has a lifecycle.
// Providers without one are omitted.
func (r *Registry) Availability(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	for _, name := range r.List() {
		lc, err := r.Lifecycle(name)
		if err != nil {
			continue
		}
		out[name] = lc.IsAvailable(ctx)
	}
	return out
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
