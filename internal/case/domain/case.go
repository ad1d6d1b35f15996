// Package domain holds the case aggregate and its lifecycle rules. All
// status transitions go through methods on Case so invalid moves are
// rejected in one place regardless of the caller.
package domain

import (
	"fmt"
	"time"

	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// Status is the lifecycle state of a case.
type Status string

const (
	StatusOpen            Status = "open"
	StatusAssigned        Status = "assigned"
	StatusInProgress      Status = "in_progress"
	StatusAwaitingPatient Status = "awaiting_patient"
	StatusResolved        Status = "resolved"
	StatusEscalated       Status = "escalated"
	StatusClosed          Status = "closed"
	StatusCancelled       Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Priority defines case priority, derived from severity at creation.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityFromSeverity maps the 1 to 5 severity scale onto priorities.
func PriorityFromSeverity(severity int) Priority {
	switch {
	case severity >= 5:
		return PriorityCritical
	case severity == 4:
		return PriorityHigh
	case severity >= 2:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Capability names used for staff gating.
const (
	CapabilityMedical   = "medical"
	CapabilityEmergency = "emergency"
)

// Event is a domain change recorded on the aggregate, drained by the
// manager for publishing after a successful save.
type Event struct {
	Type   string
	CaseID types.ID
	Data   map[string]interface{}
}

// Case is the aggregate root for patient case management.
type Case struct {
	ID         types.ID `json:"id"`
	CaseNumber string   `json:"case_number"`
	SubjectID  types.ID `json:"subject_id"`

	Severity int      `json:"severity"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	AssignedStaffID types.ID     `json:"assigned_staff_id,omitempty"`
	Source          TriageSource `json:"-"`

	Notes []Note `json:"notes"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	domainEvents []Event
}

// NewCase creates an open case from a completed triage.
func NewCase(subjectID types.ID, severity int, source TriageSource) (*Case, error) {
	if subjectID.IsZero() {
		return nil, fmt.Errorf("subject is required")
	}
	if severity < 1 || severity > 5 {
		return nil, fmt.Errorf("severity must be between 1 and 5, got %d", severity)
	}
	if source == nil {
		return nil, fmt.Errorf("triage source is required")
	}

	now := time.Now().UTC()
	c := &Case{
		ID:             types.NewID(),
		CaseNumber:     generateCaseNumber(),
		SubjectID:      subjectID,
		Severity:       severity,
		Status:         StatusOpen,
		Priority:       PriorityFromSeverity(severity),
		Source:         source,
		Notes:          []Note{},
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}

	c.addEvent("created", map[string]interface{}{
		"severity": severity,
		"priority": string(c.Priority),
		"source":   string(source.Kind()),
	})
	return c, nil
}

// RequiredCapability returns the staff capability needed to work this case.
func (c *Case) RequiredCapability() string {
	if c.Severity >= 4 {
		return CapabilityEmergency
	}
	return CapabilityMedical
}

// Claim assigns an unassigned case to a staff member. Escalated cases
// sit back in the shared queue, so they are claimable like open ones.
func (c *Case) Claim(staffID types.ID) error {
	if c.Status != StatusOpen && c.Status != StatusEscalated {
		return apperrors.InvalidTransition(string(c.Status), "claim")
	}
	if !c.AssignedStaffID.IsZero() {
		return apperrors.Conflict("case is already assigned")
	}

	old := c.Status
	c.AssignedStaffID = staffID
	c.Status = StatusAssigned
	c.touch()
	c.addEvent("status_changed", statusChange(old, StatusAssigned, map[string]interface{}{
		"staff_id": staffID.String(),
	}))
	return nil
}

// Start moves an assigned case into active work by its assignee.
func (c *Case) Start(staffID types.ID) error {
	if c.Status != StatusAssigned {
		return apperrors.InvalidTransition(string(c.Status), "start")
	}
	if c.AssignedStaffID != staffID {
		return apperrors.Forbidden("only the assigned staff member can start this case")
	}

	c.Status = StatusInProgress
	c.touch()
	c.addEvent("status_changed", statusChange(StatusAssigned, StatusInProgress, nil))
	return nil
}

// AwaitPatient parks an in-progress case pending patient input. A note
// explaining what is awaited is mandatory.
func (c *Case) AwaitPatient(staffID types.ID, note string) error {
	if c.Status != StatusInProgress {
		return apperrors.InvalidTransition(string(c.Status), "await_patient")
	}
	if c.AssignedStaffID != staffID {
		return apperrors.Forbidden("only the assigned staff member can update this case")
	}
	if note == "" {
		return apperrors.Validation("a note describing the awaited input is required", nil)
	}

	c.appendNote(staffID, "staff", note, true)
	c.Status = StatusAwaitingPatient
	c.touch()
	c.addEvent("status_changed", statusChange(StatusInProgress, StatusAwaitingPatient, nil))
	return nil
}

// Resume returns an awaiting-patient case to active work, typically when
// the patient responds.
func (c *Case) Resume() error {
	if c.Status != StatusAwaitingPatient {
		return apperrors.InvalidTransition(string(c.Status), "resume")
	}

	c.Status = StatusInProgress
	c.touch()
	c.addEvent("status_changed", statusChange(StatusAwaitingPatient, StatusInProgress, nil))
	return nil
}

// Resolve completes the clinical work on a case. A resolution note is
// mandatory.
func (c *Case) Resolve(staffID types.ID, note string) error {
	if c.Status != StatusInProgress && c.Status != StatusAwaitingPatient {
		return apperrors.InvalidTransition(string(c.Status), "resolve")
	}
	if c.AssignedStaffID != staffID {
		return apperrors.Forbidden("only the assigned staff member can resolve this case")
	}
	if note == "" {
		return apperrors.Validation("a resolution note is required", nil)
	}

	old := c.Status
	now := time.Now().UTC()
	c.appendNote(staffID, "staff", note, true)
	c.Status = StatusResolved
	c.ResolvedAt = &now
	c.touch()
	c.addEvent("status_changed", statusChange(old, StatusResolved, nil))
	return nil
}

// Escalate forces the case to escalated and clears the assignee so it
// returns to the shared queue at elevated priority. Idempotent for a case
// already escalated.
func (c *Case) Escalate(reason string) error {
	if c.Status == StatusEscalated {
		return nil
	}
	if c.Status.IsTerminal() {
		return apperrors.InvalidTransition(string(c.Status), "escalate")
	}

	old := c.Status
	c.Status = StatusEscalated
	c.AssignedStaffID = ""
	if c.Priority != PriorityCritical {
		c.Priority = PriorityHigh
	}
	c.touch()
	c.addEvent("escalated", statusChange(old, StatusEscalated, map[string]interface{}{
		"reason": reason,
	}))
	return nil
}

// CloseCase archives a resolved case.
func (c *Case) CloseCase(actorID types.ID) error {
	if c.Status != StatusResolved {
		return apperrors.InvalidTransition(string(c.Status), "close")
	}

	c.Status = StatusClosed
	c.touch()
	c.addEvent("status_changed", statusChange(StatusResolved, StatusClosed, map[string]interface{}{
		"actor_id": actorID.String(),
	}))
	return nil
}

// Cancel abandons a case from any non-terminal status. A reason is
// mandatory.
func (c *Case) Cancel(actorID types.ID, reason string) error {
	if c.Status.IsTerminal() {
		return apperrors.InvalidTransition(string(c.Status), "cancel")
	}
	if reason == "" {
		return apperrors.Validation("a cancellation reason is required", nil)
	}

	old := c.Status
	c.appendNote(actorID, "staff", "Cancelled: "+reason, true)
	c.Status = StatusCancelled
	c.touch()
	c.addEvent("status_changed", statusChange(old, StatusCancelled, map[string]interface{}{
		"reason": reason,
	}))
	return nil
}

// AddNote appends a note without changing status. Notes are append-only.
func (c *Case) AddNote(authorID types.ID, authorRole, content string, visibleToPatient bool) error {
	if c.Status.IsTerminal() {
		return apperrors.Conflict("cannot add notes to a " + string(c.Status) + " case")
	}
	if content == "" {
		return apperrors.Validation("note content is required", nil)
	}

	c.appendNote(authorID, authorRole, content, visibleToPatient)
	c.touch()
	return nil
}

// RecordActivity bumps the activity timestamp without a status change,
// used when a patient message or follow-up response touches the case.
func (c *Case) RecordActivity() {
	c.LastActivityAt = time.Now().UTC()
	c.UpdatedAt = c.LastActivityAt
}

// PatientView returns a copy of the case with staff-only notes removed.
// Serve this to patient actors; the stored aggregate keeps every note.
func (c *Case) PatientView() *Case {
	view := *c
	view.domainEvents = nil
	view.Notes = make([]Note, 0, len(c.Notes))
	for _, n := range c.Notes {
		if n.VisibleToPatient {
			view.Notes = append(view.Notes, n)
		}
	}
	return &view
}

// DrainEvents returns and clears accumulated domain events.
func (c *Case) DrainEvents() []Event {
	drained := c.domainEvents
	c.domainEvents = nil
	return drained
}

func (c *Case) appendNote(authorID types.ID, authorRole, content string, visible bool) {
	c.Notes = append(c.Notes, Note{
		ID:               types.NewID(),
		CaseID:           c.ID,
		AuthorID:         authorID,
		AuthorRole:       authorRole,
		Content:          content,
		VisibleToPatient: visible,
		CreatedAt:        time.Now().UTC(),
	})
}

func (c *Case) touch() {
	now := time.Now().UTC()
	c.UpdatedAt = now
	c.LastActivityAt = now
}

func (c *Case) addEvent(eventType string, data map[string]interface{}) {
	c.domainEvents = append(c.domainEvents, Event{
		Type:   eventType,
		CaseID: c.ID,
		Data:   data,
	})
}

func statusChange(from, to Status, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"old_status": string(from),
		"new_status": string(to),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// generateCaseNumber builds a human-readable case reference.
// Format: TRI-YEAR-SEQUENCE.
func generateCaseNumber() string {
	now := time.Now()
	seq := now.UnixNano() % 1000000
	return fmt.Sprintf("TRI-%d-%06d", now.Year(), seq)
}
