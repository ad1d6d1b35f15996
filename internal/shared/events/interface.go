package events

import (
	"context"
	"time"

	"github.com/carebridge/platform/internal/shared/types"
	"github.com/google/uuid"
)

// Event types published on the bus. The lifecycle manager and the follow-up
// scheduler communicate exclusively through these; neither holds the other's
// locks.
const (
	TypeCaseCreated        = "case.created"
	TypeCaseStatusChanged  = "case.status_changed"
	TypeCaseEscalated      = "case.escalated"
	TypeTriageAssessed     = "triage.assessed"
	TypeTriageFallback     = "triage.inference_fallback"
	TypeFollowupScheduled  = "followup.scheduled"
	TypeFollowupReminder   = "followup.reminder_sent"
	TypeFollowupOverdue    = "followup.overdue"
	TypeFollowupEscalation = "followup.escalation"
	TypeFollowupCompleted  = "followup.completed"
	TypePatientResponded   = "patient.responded"
)

// Event represents a domain event
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// Actor information
	ActorID   types.ID `json:"actor_id,omitempty"`
	ActorRole string   `json:"actor_role,omitempty"` // patient, staff, system

	// Event data
	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID types.ID, actorRole string) Event {
	e.ActorID = actorID
	e.ActorRole = actorRole
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event publishing and subscription
type Bus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for events matching a pattern.
	// Patterns use a trailing wildcard, e.g. "followup.*".
	Subscribe(pattern string, handler Handler)

	// Close shuts down the bus
	Close()
}
