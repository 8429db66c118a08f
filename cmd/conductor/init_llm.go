package main

import (
	"fmt"
	"log/slog"

	"conductor/internal/adapter/llm"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/logger"
)

// LLMComponents holds all model backend components.
type LLMComponents struct {
	Registry   *llm.Registry
	DefaultLLM domain.LLMProvider
}

// initLLM creates every configured backend, wraps each with rate limiting
// and a circuit breaker when enabled, and puts failover in front of the
// default backend.
func initLLM(cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	log = logger.OrDiscard(log)
	registry := llm.NewRegistry()

	cbCfg := cfg.LLM.CircuitBreaker
	rlCfg := cfg.LLM.RateLimit
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}

		if rlCfg.Enabled {
			provider = llm.NewRateLimitedProvider(provider, rlCfg)
		}
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, log)
		}

		if err := registry.RegisterAs(pc.Name, provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}
	if rlCfg.Enabled {
		log.Info("llm rate limit enabled", "requests_per_min", rlCfg.RequestsPerMin, "burst", rlCfg.BurstSize)
	}

	defaultLLM, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}

	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 {
		var fallbacks []domain.LLMProvider
		for _, name := range cfg.LLM.Failover.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, fb)
		}
		defaultLLM = llm.NewFailoverProvider(defaultLLM, fallbacks, log)
		registry.Replace(cfg.LLM.DefaultProvider, defaultLLM)
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}

	return &LLMComponents{
		Registry:   registry,
		DefaultLLM: defaultLLM,
	}, nil
}

// createLLMProvider builds one backend. An empty type falls back to the name.
func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	typ := pc.Type
	if typ == "" {
		typ = pc.Name
	}
	switch typ {
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	case "ollama":
		return llm.NewOllamaProvider(pc, log), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", typ)
	}
}
