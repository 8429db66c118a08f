package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventRequestReceived   EventType = "request.received"
	EventRequestCompleted  EventType = "request.completed"
	EventRequestFailed     EventType = "request.failed"
	EventAgentRouted       EventType = "agent.routed"
	EventAgentFallback     EventType = "agent.fallback"
	EventSecondaryFailed   EventType = "agent.secondary_failed"
	EventSecurityOverride  EventType = "agent.security_override"
	EventConstraintApplied EventType = "constraint.applied"
	EventFragmentChanged   EventType = "fragment.changed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event, marshalling payload to JSON. A payload that
// cannot be marshalled is dropped rather than failing the publisher.
func NewEvent(typ EventType, requestID string, payload any) Event {
	ev := Event{Type: typ, Timestamp: time.Now(), RequestID: requestID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// RequestCompletedPayload is the payload of EventRequestCompleted and EventRequestFailed.
type RequestCompletedPayload struct {
	Decision     RoutingDecision `json:"decision"`
	Applied      []string        `json:"applied_constraints,omitempty"`
	Modified     bool            `json:"modified"`
	DurationMS   int64           `json:"duration_ms"`
	Error        string          `json:"error,omitempty"`
	MessageChars int             `json:"message_chars"`
}

// AgentFallbackPayload is the payload of EventAgentFallback.
type AgentFallbackPayload struct {
	MessageType MessageType `json:"message_type"`
	Wanted      string      `json:"wanted"`
	Chosen      string      `json:"chosen"`
}

// SecondaryFailedPayload is the payload of EventSecondaryFailed.
type SecondaryFailedPayload struct {
	Agent string `json:"agent"`
	Error string `json:"error"`
}

// FragmentChangedPayload is the payload of EventFragmentChanged.
type FragmentChangedPayload struct {
	Kind FragmentKind `json:"kind"`
	Name string       `json:"name"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
