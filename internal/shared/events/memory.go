package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryBus is the in-process event bus used to decouple the case lifecycle
// manager from the follow-up scheduler. Handlers run synchronously in
// publish order, so events for the same case are never reordered.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
	logger   zerolog.Logger
}

// NewMemoryBus creates an in-process event bus
func NewMemoryBus(logger zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Publish delivers the event to every matching subscriber. A failing handler
// is logged and does not stop delivery to the rest.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}

	var matched []Handler
	for pattern, hs := range b.handlers {
		if matchPattern(pattern, event.Type) {
			matched = append(matched, hs...)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		if err := h(ctx, event); err != nil {
			b.logger.Warn().
				Str("event_type", event.Type).
				Str("event_id", event.ID).
				Err(err).
				Msg("event handler failed")
		}
	}

	return nil
}

// Subscribe registers a handler for events matching the pattern
func (b *MemoryBus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

// Close stops delivery of further events
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// matchPattern matches an event type against a subscription pattern.
// "*" matches everything; "followup.*" matches any followup event.
func matchPattern(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

var _ Bus = (*MemoryBus)(nil)
