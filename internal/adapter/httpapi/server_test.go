package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
	"conductor/internal/usecase/coordinator"
)

type fakePipeline struct {
	mu      sync.Mutex
	err     error
	lastCtx *domain.Context
}

func (p *fakePipeline) Handle(_ context.Context, message string, msgCtx *domain.Context) (*domain.AgentResponse, domain.RoutingDecision, error) {
	p.mu.Lock()
	p.lastCtx = msgCtx
	p.mu.Unlock()
	if p.err != nil {
		return nil, domain.RoutingDecision{}, p.err
	}
	return &domain.AgentResponse{
		Content:            "echo: " + message,
		AppliedConstraints: []string{domain.ConstraintBasicSafety},
		Metadata:           map[string]string{"primary": "true"},
	}, p.Decide(message, msgCtx), nil
}

func (p *fakePipeline) Decide(string, *domain.Context) domain.RoutingDecision {
	return domain.RoutingDecision{
		PrimaryAgent: "assistant",
		MessageType:  domain.MessageConversational,
		Confidence:   0.8,
		Constraints:  []string{domain.ConstraintBasicSafety},
	}
}

func (p *fakePipeline) Stats() domain.RoutingStats {
	return domain.RoutingStats{TotalRequests: 7, RoutingDecisions: map[string]int{"assistant": 7}}
}

func (p *fakePipeline) ListAvailableAgents() []string { return []string{"assistant", "guardian"} }

func (p *fakePipeline) AgentInfo(name string) (domain.AgentInfo, bool) {
	return domain.AgentInfo{Name: name, Description: "test", Capabilities: []string{}, Status: "active"}, true
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ts := httptest.NewServer(New(opts).Handler(ctx))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestMessageRoutesThroughPipeline(t *testing.T) {
	p := &fakePipeline{}
	ts := newTestServer(t, Options{Pipeline: p})

	resp, out := post(t, ts.URL+"/api/v1/messages", `{"content":"hello","context":{"zeta":"1","alpha":"2","mid":"3"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "echo: hello", out["content"])
	assert.Equal(t, "assistant", out["agent"])
	assert.Equal(t, []any{"basic_safety"}, out["applied_constraints"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	// Context keys keep request order.
	require.NotNil(t, p.lastCtx)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, p.lastCtx.Keys())
}

func TestMessageDirectAgent(t *testing.T) {
	var gotAgent string
	ts := newTestServer(t, Options{
		Pipeline: &fakePipeline{},
		Delegate: func(_ context.Context, agent, message string, _ *domain.Context) (string, error) {
			gotAgent = agent
			return "direct: " + message, nil
		},
	})

	resp, out := post(t, ts.URL+"/api/v1/messages", `{"content":"hi","agent":"guardian"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "guardian", gotAgent)
	assert.Equal(t, "direct: hi", out["content"])
	assert.Nil(t, out["decision"])
}

func TestMessageDirectAgentDisabled(t *testing.T) {
	ts := newTestServer(t, Options{Pipeline: &fakePipeline{}})
	resp, _ := post(t, ts.URL+"/api/v1/messages", `{"content":"hi","agent":"guardian"}`)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestMessageValidation(t *testing.T) {
	ts := newTestServer(t, Options{Pipeline: &fakePipeline{}})

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"content":`},
		{"empty content", `{"content":""}`},
		{"non-string context", `{"content":"x","context":{"a":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := post(t, ts.URL+"/api/v1/messages", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INVALID_INPUT", out["code"])
		})
	}
}

func TestMessageErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewSubSystemError("agent", "coordinator.route", domain.ErrAgentNotFound, "x"), http.StatusNotFound},
		{domain.ErrTimeout, http.StatusGatewayTimeout},
		{domain.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{domain.ErrProviderError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		ts := newTestServer(t, Options{Pipeline: &fakePipeline{err: tt.err}})
		resp, out := post(t, ts.URL+"/api/v1/messages", `{"content":"x"}`)
		if resp.StatusCode != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, resp.StatusCode, tt.want)
		}
		assert.Equal(t, string(domain.ErrorCodeOf(tt.err)), out["code"])
	}
}

func TestMessageErrorHidesBackendDetail(t *testing.T) {
	const secret = "sk-live-abc123 for org-internal-42"
	backendErr := fmt.Errorf("%w: API error 401: {\"error\":\"Incorrect API key provided: %s\"}", domain.ErrAuthInvalid, secret)

	ts := newTestServer(t, Options{
		Pipeline: &fakePipeline{err: backendErr},
		Delegate: func(context.Context, string, string, *domain.Context) (string, error) {
			return "", backendErr
		},
	})

	for _, body := range []string{`{"content":"x"}`, `{"content":"x","agent":"guardian"}`} {
		resp, out := post(t, ts.URL+"/api/v1/messages", body)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, body)
		assert.Equal(t, coordinator.ApologyMessage, out["error"], body)
		assert.Equal(t, string(domain.ErrorCodeOf(domain.ErrAuthInvalid)), out["code"], body)
		assert.NotContains(t, fmt.Sprint(out), "sk-live", body)
	}
}

func TestRouteStatsAgentsHealth(t *testing.T) {
	ts := newTestServer(t, Options{Pipeline: &fakePipeline{}})

	resp, out := post(t, ts.URL+"/api/v1/route", `{"content":"tell me a story"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "assistant", out["primary_agent"])

	for path, check := range map[string]func(body []byte){
		"/api/v1/stats": func(body []byte) {
			var s domain.RoutingStats
			require.NoError(t, json.Unmarshal(body, &s))
			assert.Equal(t, 7, s.TotalRequests)
		},
		"/api/v1/agents": func(body []byte) {
			var infos []domain.AgentInfo
			require.NoError(t, json.Unmarshal(body, &infos))
			require.Len(t, infos, 2)
			assert.Equal(t, "guardian", infos[1].Name)
		},
		"/api/v1/health": func(body []byte) {
			assert.JSONEq(t, `{"status":"ok"}`, string(body))
		},
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		check(raw)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Options{Pipeline: &fakePipeline{}})
	resp, err := http.Get(ts.URL + "/api/v1/messages")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{
		Pipeline:  &fakePipeline{},
		RateLimit: RateLimitConfig{RequestsPerMin: 1, BurstSize: 2},
	})

	codes := make([]int, 0, 3)
	for range 3 {
		resp, err := http.Get(ts.URL + "/api/v1/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "10.0.0.1", clientIP(r, nil), "untrusted peer must not be able to spoof")
	assert.Equal(t, "203.0.113.9", clientIP(r, []string{"10.0.0.1"}))
}

func TestStartStop(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0", Pipeline: &fakePipeline{}})
	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
