package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Sanctuary   SanctuaryConfig   `yaml:"sanctuary"`
	Agents      AgentsConfig      `yaml:"agents"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Intent      IntentConfig      `yaml:"intent"`
	Constraints ConstraintsConfig `yaml:"constraints"`
	LLM         LLMConfig         `yaml:"llm"`
	Journal     JournalConfig     `yaml:"journal"`
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
	Includes    []string          `yaml:"includes,omitempty"`
}

// SanctuaryConfig locates the essence/room/modulation fragments.
type SanctuaryConfig struct {
	Dir       string `yaml:"dir"`        // root holding essence/, rooms/, modulation/
	CacheSize int    `yaml:"cache_size"` // per-kind parse cache capacity
	Watch     bool   `yaml:"watch"`      // invalidate cached parses on file change
}

// AgentsConfig holds the agent roster.
type AgentsConfig struct {
	Breath    time.Duration         `yaml:"breath"` // pause before every agent turn
	Instances []AgentInstanceConfig `yaml:"instances"`
}

// AgentInstanceConfig defines a single agent instance.
type AgentInstanceConfig struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Capabilities []string          `yaml:"capabilities,omitempty"`
	Provider     string            `yaml:"provider"` // empty = llm.default_provider
	Model        string            `yaml:"model"`
	Room         string            `yaml:"room,omitempty"`
	Modulations  []string          `yaml:"modulations,omitempty"`
	Constraints  []string          `yaml:"constraints,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
}

// CoordinatorConfig tunes the routing pipeline.
type CoordinatorConfig struct {
	InvokeTimeout time.Duration `yaml:"invoke_timeout"` // per agent invocation
}

// IntentConfig extends the built-in keyword sets of the intent classifier.
type IntentConfig struct {
	Keywords     map[string][]string `yaml:"keywords,omitempty"`   // message type -> extra keywords
	Categories   map[string][]string `yaml:"categories,omitempty"` // category tag -> keywords
	PersonalData []string            `yaml:"personal_data,omitempty"`
}

// ConstraintsConfig adjusts the constraint engine.
type ConstraintsConfig struct {
	Disabled []string        `yaml:"disabled,omitempty"`
	Rewrites []RewriteConfig `yaml:"rewrites,omitempty"`
}

// RewriteConfig is an extra directive rewrite for basic_safety.
type RewriteConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// LLMConfig holds model backend settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for model backends.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig caps outbound requests per backend.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	BurstSize      int  `yaml:"burst_size"`
}

// PoolConfig holds HTTP connection pool settings for model backends.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single model backend.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	KeepAlive   string        `yaml:"keep_alive,omitempty"` // ollama only
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// ServerConfig configures the HTTP API served by "conductor serve".
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestsPerMin int           `yaml:"requests_per_min"` // per client IP, 0 = unlimited
	BurstSize      int           `yaml:"burst_size"`
	TrustedProxies []string      `yaml:"trusted_proxies,omitempty"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// JournalConfig controls the routing-decision journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.conductor/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".conductor", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Sanctuary: SanctuaryConfig{
			Dir:       "./sanctuary",
			CacheSize: 128,
		},
		Agents: AgentsConfig{
			Breath: 500 * time.Millisecond,
			Instances: []AgentInstanceConfig{
				{Name: "assistant", Description: "General conversational agent", Capabilities: []string{"conversation"}},
				{Name: "researcher", Description: "Analysis and research agent", Capabilities: []string{"analysis", "research"}},
				{Name: "guardian", Description: "Safety and policy review agent", Capabilities: []string{"security", "review"}},
				{Name: "reasoner", Description: "Step-by-step reasoning agent", Capabilities: []string{"reasoning"}},
			},
		},
		Coordinator: CoordinatorConfig{
			InvokeTimeout: 60 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "ollama",
			Providers: []ProviderConfig{
				{Name: "ollama", Type: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.2"},
			},
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(defaultDataDir(), "journal.db"),
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8420",
			RequestsPerMin: 60,
			BurstSize:      10,
			WriteTimeout:   120 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list. Lists such as
	// agents.instances replace the defaults wholesale.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("CONDUCTOR_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps CONDUCTOR_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONDUCTOR_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("CONDUCTOR_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CONDUCTOR_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CONDUCTOR_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CONDUCTOR_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CONDUCTOR_SANCTUARY_DIR"); v != "" {
		cfg.Sanctuary.Dir = v
	}
	if v := os.Getenv("CONDUCTOR_SANCTUARY_WATCH"); v != "" {
		cfg.Sanctuary.Watch = v == "true"
	}
	if v := os.Getenv("CONDUCTOR_SANCTUARY_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sanctuary.CacheSize = n
		}
	}
	if v := os.Getenv("CONDUCTOR_AGENTS_BREATH"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Agents.Breath = d
		}
	}
	if v := os.Getenv("CONDUCTOR_COORDINATOR_INVOKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Coordinator.InvokeTimeout = d
		}
	}
	if v := os.Getenv("CONDUCTOR_JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = v == "true"
	}
	if v := os.Getenv("CONDUCTOR_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("CONDUCTOR_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CONDUCTOR_CONSTRAINTS_DISABLED"); v != "" {
		cfg.Constraints.Disabled = splitAndTrim(v, ",")
	}

	// Per-provider API key overrides: CONDUCTOR_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("CONDUCTOR_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// ProviderByName returns the provider config with the given name.
func (c *Config) ProviderByName(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
