package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/adapter/llm"
	"conductor/internal/infra/config"
)

func TestCreateLLMProviderTypes(t *testing.T) {
	tests := []struct {
		pc   config.ProviderConfig
		want string
	}{
		{config.ProviderConfig{Name: "openai", Model: "gpt-4o-mini"}, "openai"},
		{config.ProviderConfig{Name: "local", Type: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"}, "local"},
		{config.ProviderConfig{Name: "claude", Type: "anthropic", Model: "claude-sonnet"}, "claude"},
	}
	for _, tt := range tests {
		p, err := createLLMProvider(tt.pc, nil)
		require.NoError(t, err, tt.pc.Name)
		assert.Equal(t, tt.want, p.Name())
	}
}

func TestCreateLLMProviderUnsupported(t *testing.T) {
	_, err := createLLMProvider(config.ProviderConfig{Name: "x", Type: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestInitLLMFailoverReplacesDefault(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = "main"
	cfg.LLM.Providers = []config.ProviderConfig{
		{Name: "main", Type: "openai", Model: "gpt-4o-mini"},
		{Name: "backup", Type: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"},
	}
	cfg.LLM.Failover = config.FailoverConfig{Enabled: true, Fallbacks: []string{"backup"}}

	comps, err := initLLM(cfg, nil)
	require.NoError(t, err)

	if _, ok := comps.DefaultLLM.(*llm.FailoverProvider); !ok {
		t.Fatalf("expected failover default, got %T", comps.DefaultLLM)
	}
	got, err := comps.Registry.Get("main")
	require.NoError(t, err)
	assert.Same(t, comps.DefaultLLM, got)
	assert.Equal(t, []string{"backup", "main"}, comps.Registry.List())
}

func TestInitLLMUnknownDefault(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = "missing"
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "openai", Model: "gpt-4o-mini"}}
	cfg.LLM.Failover.Enabled = false

	_, err := initLLM(cfg, nil)
	require.Error(t, err)
}
