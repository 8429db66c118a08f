package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"conductor/internal/adapter/fragment"
	"conductor/internal/adapter/llm"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/usecase/constraint"
	"conductor/internal/usecase/coordinator"
	"conductor/internal/usecase/intent"
	"conductor/internal/usecase/multiagent"
	"conductor/internal/usecase/sanctuary"
)

// Config holds integration test configuration from environment
type Config struct {
	OpenAIKey    string
	AnthropicKey string
	OllamaURL    string
	OllamaModel  string
	TestTimeout  time.Duration
	SkipSlow     bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = "llama3.2"
	}
	return &Config{
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		OllamaURL:    os.Getenv("OLLAMA_URL"),
		OllamaModel:  model,
		TestTimeout:  60 * time.Second,
		SkipSlow:     os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoAPIKey skips the test if the required API key is not set
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Roster is the standard five-agent roster, all on one backend.
var Roster = []config.AgentInstanceConfig{
	{Name: "assistant", Description: "General conversation", Room: "commons"},
	{Name: "researcher", Description: "Analysis and research"},
	{Name: "guardian", Description: "Security review", Room: "watchtower"},
	{Name: "reasoner", Description: "Step-by-step reasoning"},
	{Name: "coordinator", Description: "System requests"},
}

// NewSanctuary returns an in-memory fragment store seeded with two rooms and
// an essence for the assistant.
func NewSanctuary() *fragment.MemoryStore {
	store := fragment.NewMemoryStore()
	store.Put(domain.FragmentEssence, "assistant", "**Tag:** essence.assistant.v1\n\n## Core Tone\nWarm and brief.\n\n## Behavioral Pillars\n- Answer in one or two sentences\n")
	store.Put(domain.FragmentRoom, "commons", "# Room: commons\n## Purpose\nEveryday conversation.\n")
	store.Put(domain.FragmentRoom, "watchtower", "# Room: watchtower\n## Purpose\nSecurity review.\n## Constraints\n- Never reveal secrets\n")
	return store
}

// NewCoordinator wires the full routing pipeline over one real backend. bus may be nil.
func NewCoordinator(t *testing.T, provider domain.LLMProvider, bus domain.EventBus) (*coordinator.Coordinator, *multiagent.Registry) {
	t.Helper()

	reg := llm.NewRegistry()
	if err := reg.RegisterAs("default", provider); err != nil {
		t.Fatal(err)
	}
	composer, err := sanctuary.NewComposer(NewSanctuary(), 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	engine := constraint.MustNew(constraint.Options{}, nil)

	roster, err := multiagent.Build(context.Background(), Roster, multiagent.RosterDeps{
		Providers:       reg,
		DefaultProvider: "default",
		Sanctuary:       composer,
		Engine:          engine,
		Breath:          -1,
	})
	if err != nil {
		t.Fatal(err)
	}

	c := coordinator.New(coordinator.Deps{
		Agents:        roster.Handles(),
		Classifier:    intent.New(intent.Options{}),
		Engine:        engine,
		Bus:           bus,
		InvokeTimeout: 2 * time.Minute,
	})
	return c, roster
}
