// Package audit maintains a durable trail of platform events. It listens
// to everything on the in-process bus and appends to the configured
// event stream; the bus stays the coordination path and the trail is an
// observer, so append failures never affect case handling.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/shared/events"
)

// Appender is the durable sink for audit records. Satisfied by
// events.StreamPublisher.
type Appender interface {
	Append(ctx context.Context, event events.Event) error
}

// Subscriber copies bus events to the durable stream.
type Subscriber struct {
	sink   Appender
	logger zerolog.Logger
}

// NewSubscriber creates the audit subscriber.
func NewSubscriber(sink Appender, logger zerolog.Logger) *Subscriber {
	return &Subscriber{sink: sink, logger: logger}
}

// Attach subscribes to every event on the bus.
func (s *Subscriber) Attach(bus events.Bus) {
	bus.Subscribe("*", s.record)
}

func (s *Subscriber) record(ctx context.Context, event events.Event) error {
	if err := s.sink.Append(ctx, event); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Msg("failed to append event to audit trail")
	}
	// Audit is best effort; never fail the publishing path.
	return nil
}
