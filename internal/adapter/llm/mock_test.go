package llm

import (
	"context"

	"conductor/internal/domain"
)

type mockProvider struct {
	name     string
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return m.chatFunc(ctx, req)
}
func (m *mockProvider) Name() string { return m.name }

type mockStreamProvider struct {
	mockProvider
	streamFunc func(context.Context, domain.ChatRequest) (<-chan domain.StreamDelta, error)
}

func (m *mockStreamProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return m.streamFunc(ctx, req)
}

type mockLifecycleProvider struct {
	mockProvider
	available bool
	loads     int
	unloads   int
}

func (m *mockLifecycleProvider) IsAvailable(context.Context) bool { return m.available }
func (m *mockLifecycleProvider) LoadModel(context.Context) error  { m.loads++; return nil }
func (m *mockLifecycleProvider) UnloadModel(context.Context) error {
	m.unloads++
	return nil
}

func okChat(content string) func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{Message: domain.Message{Content: content}}, nil
	}
}

func failChat(err error) func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, err
	}
}
