package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/shared/events"
)

type memorySink struct {
	mu       sync.Mutex
	appended []events.Event
	err      error
}

func (s *memorySink) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, event)
	return nil
}

func TestSubscriberRecordsAllEvents(t *testing.T) {
	bus := events.NewMemoryBus(zerolog.Nop())
	sink := &memorySink{}
	NewSubscriber(sink, zerolog.Nop()).Attach(bus)
	ctx := context.Background()

	bus.Publish(ctx, events.NewEvent(events.TypeCaseCreated, "case-manager", map[string]interface{}{"case_id": "x"}))
	bus.Publish(ctx, events.NewEvent(events.TypeFollowupScheduled, "scheduler", nil))
	bus.Publish(ctx, events.NewEvent(events.TypeTriageAssessed, "triage", nil))

	if len(sink.appended) != 3 {
		t.Fatalf("appended = %d, want every published event", len(sink.appended))
	}
	if sink.appended[0].Type != events.TypeCaseCreated {
		t.Errorf("first appended = %s, want case.created", sink.appended[0].Type)
	}
}

func TestSubscriberSwallowsSinkFailures(t *testing.T) {
	bus := events.NewMemoryBus(zerolog.Nop())
	sink := &memorySink{err: errors.New("stream unreachable")}
	NewSubscriber(sink, zerolog.Nop()).Attach(bus)

	if err := bus.Publish(context.Background(), events.NewEvent(events.TypeCaseCreated, "case-manager", nil)); err != nil {
		t.Fatalf("publish must not fail when the audit sink is down: %v", err)
	}
}
