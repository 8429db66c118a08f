package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
)

func newAnthropicTestProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAnthropicProvider(config.ProviderConfig{
		Name:    "claude",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "claude-test",
	}, nil)
}

func TestAnthropicProviderChat(t *testing.T) {
	var body map[string]any
	provider := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("X-Api-Key"))
		}
		json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Hello "}, {"type": "text", "text": "there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	})

	req := domain.ChatRequest{Messages: []domain.Message{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hi"},
	}}
	resp, err := provider.Chat(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", resp.Message.Content)
	assert.Equal(t, domain.RoleAssistant, resp.Message.Role)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "msg_1", resp.ID)

	assert.Equal(t, "claude-test", body["model"])
	assert.Equal(t, float64(defaultAnthropicMaxTokens), body["max_tokens"])
	msgs, _ := body["messages"].([]any)
	assert.Len(t, msgs, 1, "system message is lifted out of messages")
	assert.NotNil(t, body["system"])
}

func TestAnthropicProviderEmptyContent(t *testing.T) {
	provider := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"m","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	})

	_, err := provider.Chat(context.Background(), userRequest("hi"))
	assert.True(t, errors.Is(err, domain.ErrEmptyResponse), "got %v", err)
}

func TestAnthropicProviderHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusInternalServerError, domain.ErrServerFailure},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			provider := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"nope"}}`)
			})
			_, err := provider.Chat(context.Background(), userRequest("hi"))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnthropicProviderChatStream(t *testing.T) {
	provider := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_3","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":7,"output_tokens":0}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, ev := range events {
			io.WriteString(w, "event: "+ev.name+"\ndata: "+ev.data+"\n\n")
		}
	})

	ch, err := provider.ChatStream(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	deltas := collect(ch)
	require.NotEmpty(t, deltas)
	last := deltas[len(deltas)-1]
	assert.True(t, last.Done)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 9, last.Usage.TotalTokens)

	var text string
	for _, d := range deltas {
		text += d.Content
	}
	assert.Equal(t, "Hello", text)
}

func TestAnthropicProviderBuildParams(t *testing.T) {
	p := NewAnthropicProvider(config.ProviderConfig{Name: "c", Model: "m", MaxTokens: 100}, nil)

	req := domain.ChatRequest{
		Model:       "m",
		MaxTokens:   50,
		Temperature: 0.2,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "q"},
			{Role: domain.RoleAssistant, Content: "a"},
			{Role: domain.RoleUser, Content: "q2"},
		},
	}
	params := p.buildParams(req)
	assert.Equal(t, int64(50), params.MaxTokens)
	assert.Len(t, params.Messages, 3)
	assert.Empty(t, params.System)
	assert.Equal(t, "m", p.Model())
}
