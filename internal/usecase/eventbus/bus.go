package eventbus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

var _ domain.EventBus = (*Bus)(nil)

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Handlers run
// asynchronously on a context detached from the publisher's cancellation,
// so a finished request can still be journaled.
type Bus struct {
	mu       sync.RWMutex
	typed    map[domain.EventType][]subscription
	wildcard []subscription
	nextID   atomic.Uint64
	logger   *slog.Logger
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// New creates an event bus.
func New(log *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		logger: logger.OrDiscard(log),
	}
}

// Publish fans an event out to typed subscribers, then wildcard subscribers.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.typed[event.Type])+len(b.wildcard))
	subs = append(subs, b.typed[event.Type]...)
	subs = append(subs, b.wildcard...)
	b.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, sub := range subs {
		b.dispatch(ctx, event, sub)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"request_id", event.RequestID,
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = slices.DeleteFunc(b.typed[eventType], func(s subscription) bool { return s.id == id })
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.wildcard = append(b.wildcard, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = slices.DeleteFunc(b.wildcard, func(s subscription) bool { return s.id == id })
	}
}

// Drain waits for every handler dispatched so far without closing the bus.
func (b *Bus) Drain() {
	b.inflight.Wait()
}

// Close prevents new publishes and waits for in-flight handlers.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.inflight.Wait()
}
