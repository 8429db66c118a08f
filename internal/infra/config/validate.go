package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSanctuary(cfg, ve)
	validateAgents(cfg, ve)
	validateCoordinator(cfg, ve)
	validateIntent(cfg, ve)
	validateConstraints(cfg, ve)
	validateLLM(cfg, ve)
	validateJournal(cfg, ve)
	validateServer(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateSanctuary(cfg *Config, ve *ValidationError) {
	if cfg.Sanctuary.Dir == "" {
		ve.Add("sanctuary.dir must not be empty")
	}
	if cfg.Sanctuary.CacheSize <= 0 {
		ve.Add("sanctuary.cache_size must be > 0")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if cfg.Agents.Breath < 0 {
		ve.Add("agents.breath must be >= 0")
	}
	if cfg.Agents.Breath > time.Minute {
		ve.Add("agents.breath %s is longer than 1m", cfg.Agents.Breath)
	}

	seen := make(map[string]bool)
	for i, a := range cfg.Agents.Instances {
		if a.Name == "" {
			ve.Add("agents.instances[%d].name must not be empty", i)
			continue
		}
		if seen[a.Name] {
			ve.Add("agents.instances[%d]: duplicate agent name %q", i, a.Name)
		}
		seen[a.Name] = true

		if a.Provider != "" && len(cfg.LLM.Providers) > 0 {
			if _, ok := cfg.ProviderByName(a.Provider); !ok {
				ve.Add("agents.instances[%d] (%s): provider %q is not configured", i, a.Name, a.Provider)
			}
		}
		for j, c := range a.Constraints {
			if !knownConstraints[c] {
				ve.Add("agents.instances[%d] (%s).constraints[%d]: unknown constraint %q", i, a.Name, j, c)
			}
		}
	}
	if len(cfg.Agents.Instances) > 0 && !seen["assistant"] {
		ve.Add("agents.instances must include \"assistant\" (routing fallback target)")
	}
}

func validateCoordinator(cfg *Config, ve *ValidationError) {
	if cfg.Coordinator.InvokeTimeout <= 0 {
		ve.Add("coordinator.invoke_timeout must be > 0")
	}
}

var validMessageTypes = map[string]bool{
	"conversational": true,
	"analytical":     true,
	"security":       true,
	"reasoning":      true,
	"system":         true,
}

func validateIntent(cfg *Config, ve *ValidationError) {
	for typ, words := range cfg.Intent.Keywords {
		if !validMessageTypes[typ] {
			ve.Add("intent.keywords: unknown message type %q (want: conversational, analytical, security, reasoning, system)", typ)
		}
		for _, w := range words {
			if strings.TrimSpace(w) == "" {
				ve.Add("intent.keywords[%s]: empty keyword", typ)
			}
		}
	}
	for cat, words := range cfg.Intent.Categories {
		if cat == "" {
			ve.Add("intent.categories: empty category name")
		}
		if len(words) == 0 {
			ve.Add("intent.categories[%s]: no keywords", cat)
		}
	}
}

var knownConstraints = map[string]bool{
	"basic_safety":        true,
	"human_grounded_lock": true,
	"security_review":     true,
	"privacy_protection":  true,
	"code_safety":         true,
}

func validateConstraints(cfg *Config, ve *ValidationError) {
	for _, name := range cfg.Constraints.Disabled {
		if !knownConstraints[name] {
			ve.Add("constraints.disabled: unknown constraint %q", name)
		}
	}
	for i, rw := range cfg.Constraints.Rewrites {
		from := strings.TrimSpace(strings.ToLower(rw.From))
		if from == "" {
			ve.Add("constraints.rewrites[%d].from must not be empty", i)
			continue
		}
		// A replacement that re-contains its phrase would rewrite forever.
		if strings.Contains(strings.ToLower(rw.To), from) {
			ve.Add("constraints.rewrites[%d]: replacement %q contains %q", i, rw.To, rw.From)
		}
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"ollama":    true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic, ollama)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via CONDUCTOR_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.KeepAlive != "" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): keep_alive only applies to ollama", i, p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !seen[fb] {
				ve.Add("llm.failover.fallbacks: provider %q is not configured", fb)
			}
		}
	}
	if cfg.LLM.RateLimit.Enabled {
		if cfg.LLM.RateLimit.RequestsPerMin <= 0 {
			ve.Add("llm.rate_limit.requests_per_min must be > 0 when enabled")
		}
		if cfg.LLM.RateLimit.BurstSize <= 0 {
			ve.Add("llm.rate_limit.burst_size must be > 0 when enabled")
		}
	}
}

func validateJournal(cfg *Config, ve *ValidationError) {
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		ve.Add("journal.path is required when the journal is enabled")
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr is required")
	}
	if cfg.Server.RequestsPerMin < 0 {
		ve.Add("server.requests_per_min must be >= 0")
	}
	if cfg.Server.RequestsPerMin > 0 && cfg.Server.BurstSize < 1 {
		ve.Add("server.burst_size must be >= 1 when rate limiting is on")
	}
	if cfg.Server.WriteTimeout < 0 {
		ve.Add("server.write_timeout must be >= 0")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
