package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationErrors(t *testing.T, cfg *Config) []string {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		return nil
	}
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want *ValidationError, got %T", err)
	return ve.Errors
}

func containsErr(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Sanctuary.Dir = ""
	cfg.Sanctuary.CacheSize = 0
	cfg.Coordinator.InvokeTimeout = 0

	errs := validationErrors(t, cfg)
	assert.Len(t, errs, 3)
	assert.True(t, containsErr(errs, "sanctuary.dir"))
	assert.True(t, containsErr(errs, "sanctuary.cache_size"))
	assert.True(t, containsErr(errs, "coordinator.invoke_timeout"))
}

func TestValidateAgents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative breath", func(c *Config) { c.Agents.Breath = -time.Second }, "agents.breath must be >= 0"},
		{"long breath", func(c *Config) { c.Agents.Breath = 2 * time.Minute }, "longer than 1m"},
		{"empty name", func(c *Config) { c.Agents.Instances[1].Name = "" }, "name must not be empty"},
		{"duplicate", func(c *Config) { c.Agents.Instances[1].Name = "assistant" }, "duplicate agent name"},
		{"unknown provider", func(c *Config) { c.Agents.Instances[0].Provider = "ghost" }, `provider "ghost" is not configured`},
		{"unknown constraint", func(c *Config) { c.Agents.Instances[2].Constraints = []string{"be_nice"} }, `unknown constraint "be_nice"`},
		{"no assistant", func(c *Config) { c.Agents.Instances[0].Name = "helper" }, "must include \"assistant\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			errs := validationErrors(t, cfg)
			assert.True(t, containsErr(errs, tt.want), "errors %v missing %q", errs, tt.want)
		})
	}
}

func TestValidateIntent(t *testing.T) {
	cfg := Defaults()
	cfg.Intent.Keywords = map[string][]string{"creative": {"story"}, "security": {" "}}
	cfg.Intent.Categories = map[string][]string{"poetry": nil}

	errs := validationErrors(t, cfg)
	assert.True(t, containsErr(errs, `unknown message type "creative"`))
	assert.True(t, containsErr(errs, "intent.keywords[security]: empty keyword"))
	assert.True(t, containsErr(errs, "intent.categories[poetry]: no keywords"))
}

func TestValidateConstraintRewrites(t *testing.T) {
	cfg := Defaults()
	cfg.Constraints.Disabled = []string{"basic_safety", "mystery"}
	cfg.Constraints.Rewrites = []RewriteConfig{
		{From: "you have to", To: "you could"},
		{From: "do it", To: "maybe do it now"},
		{From: "  ", To: "x"},
	}

	errs := validationErrors(t, cfg)
	assert.Len(t, errs, 3)
	assert.True(t, containsErr(errs, `unknown constraint "mystery"`))
	assert.True(t, containsErr(errs, `replacement "maybe do it now" contains "do it"`))
	assert.True(t, containsErr(errs, "rewrites[2].from must not be empty"))
}

func TestValidateLLM(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty default", func(c *Config) { c.LLM.DefaultProvider = "" }, "default_provider must not be empty"},
		{"bad type", func(c *Config) { c.LLM.Providers[0].Type = "bedrock" }, `type "bedrock" is invalid`},
		{"missing key", func(c *Config) { c.LLM.Providers[0].Type = "openai" }, "CONDUCTOR_LLM_PROVIDER_OLLAMA_API_KEY"},
		{"duplicate", func(c *Config) { c.LLM.Providers = append(c.LLM.Providers, c.LLM.Providers[0]) }, "duplicate provider name"},
		{"unknown default", func(c *Config) { c.LLM.DefaultProvider = "openai" }, `"openai" does not match`},
		{"bad fallback", func(c *Config) {
			c.LLM.Failover = FailoverConfig{Enabled: true, Fallbacks: []string{"ghost"}}
		}, `fallbacks: provider "ghost"`},
		{"rate limit", func(c *Config) { c.LLM.RateLimit.Enabled = true }, "requests_per_min must be > 0"},
		{"keep alive on openai", func(c *Config) {
			c.LLM.Providers = append(c.LLM.Providers, ProviderConfig{Name: "oa", Type: "openai", APIKey: "k", KeepAlive: "5m"})
		}, "keep_alive only applies to ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			errs := validationErrors(t, cfg)
			assert.True(t, containsErr(errs, tt.want), "errors %v missing %q", errs, tt.want)
		})
	}
}

func TestValidateJournalAndTracer(t *testing.T) {
	cfg := Defaults()
	cfg.Journal.Path = ""
	cfg.Tracer.Exporter = "jaeger"

	errs := validationErrors(t, cfg)
	assert.True(t, containsErr(errs, "journal.path is required"))
	assert.True(t, containsErr(errs, `tracer.exporter "jaeger" is invalid`))

	cfg.Journal.Enabled = false
	cfg.Tracer.Exporter = "stdout"
	assert.NoError(t, Validate(cfg))
}

func TestValidateServer(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Addr = ""
	cfg.Server.BurstSize = 0
	errs := validationErrors(t, cfg)
	assert.True(t, containsErr(errs, "server.addr"), "%v", errs)
	assert.True(t, containsErr(errs, "server.burst_size"), "%v", errs)

	cfg = Defaults()
	cfg.Server.RequestsPerMin = 0
	cfg.Server.BurstSize = 0
	assert.Empty(t, validationErrors(t, cfg))
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	assert.False(t, ve.HasErrors())
	ve.Add("first %d", 1)
	ve.Add("second")
	assert.True(t, ve.HasErrors())
	assert.Equal(t, "config validation failed:\n  - first 1\n  - second", ve.Error())
}
