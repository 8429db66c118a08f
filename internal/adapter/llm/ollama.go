package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/logger"
)

var (
	_ domain.LLMProvider          = (*OllamaProvider)(nil)
	_ domain.StreamingLLMProvider = (*OllamaProvider)(nil)
	_ domain.ModelLifecycle       = (*OllamaProvider)(nil)
)

// Default Ollama timeouts: short connect (local), long response (model loading).
const (
	ollamaDefaultConnTimeout = 5 * time.Second
	ollamaDefaultRespTimeout = 300 * time.Second
	ollamaDefaultKeepAlive   = "5m"
)

// OllamaProvider serves chat through Ollama's OpenAI-compatible /v1 endpoint
// and drives model residency through the native API.
type OllamaProvider struct {
	inner     *OpenAIProvider
	baseURL   string // native API base, without /v1
	keepAlive string
	client    *http.Client
	logger    *slog.Logger
}

// OllamaModel describes a locally available Ollama model.
type OllamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(cfg config.ProviderConfig, log *slog.Logger) *OllamaProvider {
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = ollamaDefaultConnTimeout
	}
	if cfg.RespTimeout == 0 {
		cfg.RespTimeout = ollamaDefaultRespTimeout
	}
	keepAlive := cfg.KeepAlive
	if keepAlive == "" {
		keepAlive = ollamaDefaultKeepAlive
	}

	client := NewHTTPClient(cfg)
	log = logger.OrDiscard(log)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		inner: &OpenAIProvider{
			name:      cfg.Name,
			model:     cfg.Model,
			baseURL:   baseURL + "/v1",
			maxTokens: cfg.MaxTokens,
			client:    client,
			logger:    log,
		},
		baseURL:   baseURL,
		keepAlive: keepAlive,
		client:    client,
		logger:    log,
	}
}

// Chat implements domain.LLMProvider.
func (p *OllamaProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.StreamingLLMProvider.
func (p *OllamaProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return p.inner.ChatStream(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *OllamaProvider) Name() string { return p.inner.Name() }

// Model returns the model this provider loads and serves by default.
func (p *OllamaProvider) Model() string { return p.inner.model }

// ListModels returns the locally available Ollama models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	body, err := doJSONRequest(ctx, p.client, http.MethodGet, p.baseURL+"/api/tags", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Models []OllamaModel `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.Models, nil
}

// IsAvailable implements domain.ModelLifecycle. It reports whether the
// server answers its root endpoint.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	_, err := doJSONRequest(ctx, p.client, http.MethodGet, p.baseURL+"/", nil, nil)
	return err == nil
}

// LoadModel implements domain.ModelLifecycle. An empty generate request
// makes Ollama load the model and keep it resident for keep_alive.
func (p *OllamaProvider) LoadModel(ctx context.Context) error {
	if !p.IsAvailable(ctx) {
		return fmt.Errorf("ollama at %s: %w", p.baseURL, domain.ErrBackendUnavailable)
	}

	p.logger.Info("loading model", "provider", p.Name(), "model", p.inner.model, "keep_alive", p.keepAlive)
	if err := p.generate(ctx, p.keepAlive); err != nil {
		return fmt.Errorf("load model %s: %w", p.inner.model, err)
	}
	p.logger.Info("model loaded", "provider", p.Name(), "model", p.inner.model)
	return nil
}

// UnloadModel implements domain.ModelLifecycle. A keep_alive of zero evicts
// the model immediately.
func (p *OllamaProvider) UnloadModel(ctx context.Context) error {
	if err := p.generate(ctx, 0); err != nil {
		return fmt.Errorf("unload model %s: %w", p.inner.model, err)
	}
	p.logger.Info("model unloaded", "provider", p.Name(), "model", p.inner.model)
	return nil
}

type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	KeepAlive any    `json:"keep_alive"`
}

func (p *OllamaProvider) generate(ctx context.Context, keepAlive any) error {
	payload, err := json.Marshal(ollamaGenerateRequest{Model: p.inner.model, KeepAlive: keepAlive})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = doJSONRequest(ctx, p.client, http.MethodPost, p.baseURL+"/api/generate", payload, nil)
	return err
}
