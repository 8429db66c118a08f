package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{name: "zeta"}))
	require.NoError(t, r.Register(&mockProvider{name: "alpha"}))

	err := r.Register(&mockProvider{name: "zeta"})
	assert.True(t, errors.Is(err, domain.ErrDuplicate))

	p, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())

	_, err = r.Get("missing")
	assert.True(t, errors.Is(err, domain.ErrProviderNotFound))

	assert.Equal(t, []string{"alpha", "zeta"}, r.List())

	r.Replace("alpha", &mockProvider{name: "alpha-v2"})
	p, _ = r.Get("alpha")
	assert.Equal(t, "alpha-v2", p.Name())
}

func TestLifecycleOfLooksThroughDecorators(t *testing.T) {
	backend := &mockLifecycleProvider{mockProvider: mockProvider{name: "local"}, available: true}
	var wrapped domain.LLMProvider = NewCircuitBreakerProvider(
		NewRateLimitedProvider(backend, config.RateLimitConfig{}),
		config.CircuitBreakerConfig{}, nil)
	wrapped = NewFailoverProvider(wrapped, nil, nil)

	lc, err := LifecycleOf(wrapped)
	require.NoError(t, err)
	require.NoError(t, lc.LoadModel(context.Background()))
	require.NoError(t, lc.UnloadModel(context.Background()))
	assert.Equal(t, 1, backend.loads)
	assert.Equal(t, 1, backend.unloads)
}

func TestLifecycleOfUnsupported(t *testing.T) {
	_, err := LifecycleOf(&mockProvider{name: "remote"})
	assert.True(t, errors.Is(err, domain.ErrLifecycleSupport))
	assert.Contains(t, err.Error(), `"remote"`)
}

func TestBreakerOf(t *testing.T) {
	cb := NewCircuitBreakerProvider(&mockProvider{name: "remote"}, config.CircuitBreakerConfig{}, nil)
	found, ok := BreakerOf(NewFailoverProvider(NewRateLimitedProvider(cb, config.RateLimitConfig{}), nil, nil))
	require.True(t, ok)
	assert.Same(t, cb, found)
	assert.Equal(t, "closed", found.State().String())

	_, ok = BreakerOf(&mockProvider{name: "bare"})
	assert.False(t, ok)
}

func TestRegistryAvailability(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockLifecycleProvider{mockProvider: mockProvider{name: "up"}, available: true})
	r.Register(&mockLifecycleProvider{mockProvider: mockProvider{name: "down"}})
	r.Register(&mockProvider{name: "remote"})

	assert.Equal(t, map[string]bool{"up": true, "down": false}, r.Availability(context.Background()))

	_, err := r.Lifecycle("remote")
	assert.ErrorIs(t, err, domain.ErrLifecycleSupport)
}

func TestNewPooledTransportDefaults(t *testing.T) {
	tr := NewPooledTransport(0, 0, config.PoolConfig{})
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultMaxConnsPerHost, tr.MaxConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
}

func TestNewHTTPClientCustomPool(t *testing.T) {
	client := NewHTTPClient(config.ProviderConfig{
		ConnTimeout: time.Second,
		RespTimeout: 4 * time.Second,
		Pool:        config.PoolConfig{MaxIdleConns: 3, MaxConnsPerHost: 7, IdleConnTimeout: time.Minute},
	})
	assert.Equal(t, 5*time.Second, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 3, tr.MaxIdleConns)
	assert.Equal(t, 7, tr.MaxConnsPerHost)
	assert.Equal(t, time.Minute, tr.IdleConnTimeout)
}
