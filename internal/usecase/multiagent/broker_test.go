package multiagent

import (
	"context"
	"errors"
	"testing"

	"conductor/internal/domain"
)

func TestBrokerDelegate(t *testing.T) {
	reg := NewRegistry(nil)
	_ = reg.Register(makeAgent("guardian", "All clear."))
	bus := &mockEventBus{}
	b := NewBroker(reg, bus, nil)

	resp, err := b.Delegate(context.Background(), DelegateRequest{
		FromAgent: "cli",
		ToAgent:   "guardian",
		Message:   "is this safe?",
	})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if resp.Content != "All clear." || resp.FromAgent != "guardian" {
		t.Errorf("resp = %+v", resp)
	}

	a, _ := reg.Get("guardian")
	if n := a.State().BreathCount; n != 1 {
		t.Errorf("BreathCount = %d, want 1", n)
	}

	if len(bus.events) != 1 || bus.events[0].Type != domain.EventAgentRouted {
		t.Errorf("events = %+v, want one agent.routed", bus.events)
	}
}

func TestBrokerDelegateUnknownAgent(t *testing.T) {
	b := NewBroker(NewRegistry(nil), nil, nil)
	_, err := b.Delegate(context.Background(), DelegateRequest{ToAgent: "ghost", Message: "hi"})
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestBrokerDelegateAgentError(t *testing.T) {
	reg := NewRegistry(nil)
	_ = reg.Register(makeAgent("guardian", "x"))
	b := NewBroker(reg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Delegate(ctx, DelegateRequest{ToAgent: "guardian", Message: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
