package llm

import (
	"fmt"

	"conductor/internal/domain"
)

// unwrapper is implemented by decorators that wrap another provider.
type unwrapper interface {
	Unwrap() domain.LLMProvider
}

// LifecycleOf finds the domain.ModelLifecycle behind p, looking through
// circuit breaker, rate limiter and failover decorators.
func LifecycleOf(p domain.LLMProvider) (domain.ModelLifecycle, error) {
	name := p.Name()
	for p != nil {
		if lc, ok := p.(domain.ModelLifecycle); ok {
			return lc, nil
		}
		u, ok := p.(unwrapper)
		if !ok {
			break
		}
		p = u.Unwrap()
	}
	return nil, fmt.Errorf("provider %q: %w", name, domain.ErrLifecycleSupport)
}

// BreakerOf finds the circuit breaker wrapping p, if any.
func BreakerOf(p domain.LLMProvider) (*CircuitBreakerProvider, bool) {
	for p != nil {
		if cb, ok := p.(*CircuitBreakerProvider); ok {
			return cb, true
		}
		u, ok := p.(unwrapper)
		if !ok {
			break
		}
		p = u.Unwrap()
	}
	return nil, false
}
