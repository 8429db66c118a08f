package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
)

type probeProvider struct {
	reply string
	err   error
}

func (p *probeProvider) Name() string { return "probe" }

func (p *probeProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: p.reply}}, nil
}

type probeStreamProvider struct {
	probeProvider
	chunks []string
	gotReq domain.ChatRequest
}

func (p *probeStreamProvider) ChatStream(_ context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	p.gotReq = req
	ch := make(chan domain.StreamDelta, len(p.chunks)+1)
	for _, c := range p.chunks {
		ch <- domain.StreamDelta{Content: c}
	}
	ch <- domain.StreamDelta{Done: true}
	close(ch)
	return ch, nil
}

func TestProbeStreams(t *testing.T) {
	p := &probeStreamProvider{chunks: []string{"hel", "lo"}}
	var out bytes.Buffer

	require.NoError(t, probe(context.Background(), &out, p, domain.ChatRequest{}))
	assert.Equal(t, "hello\n", out.String())
	assert.True(t, p.gotReq.Stream)
}

func TestProbeFallsBackToChat(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, probe(context.Background(), &out, &probeProvider{reply: "pong"}, domain.ChatRequest{}))
	assert.Equal(t, "pong\n", out.String())

	err := probe(context.Background(), &out, &probeProvider{err: domain.ErrBackendUnavailable}, domain.ChatRequest{})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
}
