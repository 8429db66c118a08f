package domain

import "context"

// LLMProvider is the interface for any model backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "ollama").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming response.
type StreamDelta struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}

// ModelLifecycle is implemented by backends that host their own model processes.
type ModelLifecycle interface {
	// IsAvailable reports whether the backend answers and can serve requests.
	IsAvailable(ctx context.Context) bool
	// LoadModel asks the backend to bring its configured model into memory.
	LoadModel(ctx context.Context) error
	// UnloadModel asks the backend to release its configured model.
	UnloadModel(ctx context.Context) error
}
