// Package followup schedules and tracks post-triage check-ins with
// patients: reminders while pending, escalation when critical check-ins
// go unanswered, and response intake that can trigger a re-triage.
package followup

import (
	"time"

	"github.com/carebridge/platform/internal/case/domain"
	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// Type is the kind of follow-up owed to the patient.
type Type string

const (
	TypeCriticalFollowUp   Type = "critical_follow_up"
	TypeRecoveryAssessment Type = "recovery_assessment"
	TypeMedicationReview   Type = "medication_review"
	TypeSymptomCheck       Type = "symptom_check"
)

// Valid reports whether the type is one of the known kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeCriticalFollowUp, TypeRecoveryAssessment, TypeMedicationReview, TypeSymptomCheck:
		return true
	}
	return false
}

// Status of a follow-up. Overdue is not a status: it is derived from the
// clock, so a follow-up needs no state change to become overdue.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// OffsetDays returns how many days after the trigger the check-in is due,
// by case severity.
func OffsetDays(severity int) int {
	switch severity {
	case 5:
		return 1
	case 4:
		return 2
	case 3:
		return 3
	case 2:
		return 7
	default:
		return 14
	}
}

// WindowDays returns the response window per follow-up type. The
// follow-up is overdue once the window past the scheduled date elapses.
func WindowDays(t Type) int {
	switch t {
	case TypeCriticalFollowUp:
		return 1
	case TypeRecoveryAssessment, TypeMedicationReview:
		return 3
	default:
		return 2
	}
}

// MaxReminders returns the reminder budget per priority.
func MaxReminders(p domain.Priority) int {
	switch p {
	case domain.PriorityCritical:
		return 5
	case domain.PriorityHigh:
		return 3
	case domain.PriorityMedium:
		return 2
	default:
		return 1
	}
}

// TypeForSeverity picks the default check-in kind for a case severity.
func TypeForSeverity(severity int) Type {
	switch {
	case severity >= 4:
		return TypeCriticalFollowUp
	case severity >= 2:
		return TypeRecoveryAssessment
	default:
		return TypeSymptomCheck
	}
}

// Followup is one scheduled patient check-in.
type Followup struct {
	ID        types.ID `json:"id"`
	CaseID    types.ID `json:"case_id"`
	SubjectID types.ID `json:"subject_id"`

	Type     Type            `json:"type"`
	Priority domain.Priority `json:"priority"`
	Status   Status          `json:"status"`

	ScheduledDate time.Time `json:"scheduled_date"`
	OverdueDate   time.Time `json:"overdue_date"`
	WindowDays    int       `json:"timeframe_window_days"`

	RemindersSent     int  `json:"reminders_sent"`
	EscalationEmitted bool `json:"escalation_emitted"`
	Superseded        bool `json:"superseded"`

	CompletedDate *time.Time `json:"completed_date,omitempty"`
	Response      *Response  `json:"response,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New builds a pending follow-up based at the trigger time. The scheduled
// date is base plus the severity offset; the overdue date adds the type's
// response window.
func New(caseID, subjectID types.ID, t Type, severity int, base time.Time) *Followup {
	scheduled := base.AddDate(0, 0, OffsetDays(severity))
	window := WindowDays(t)
	now := time.Now().UTC()

	return &Followup{
		ID:            types.NewID(),
		CaseID:        caseID,
		SubjectID:     subjectID,
		Type:          t,
		Priority:      domain.PriorityFromSeverity(severity),
		Status:        StatusPending,
		ScheduledDate: scheduled,
		OverdueDate:   scheduled.AddDate(0, 0, window),
		WindowDays:    window,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsOverdue reports whether the clock has passed the overdue date. The
// predicate ignores status: it is purely time-derived.
func (f *Followup) IsOverdue(now time.Time) bool {
	return now.After(f.OverdueDate)
}

// IsDue reports whether a reminder may be sent.
func (f *Followup) IsDue(now time.Time) bool {
	return now.After(f.ScheduledDate)
}

// Complete records the patient response and closes the follow-up.
func (f *Followup) Complete(resp *Response) error {
	if f.Status == StatusCompleted {
		return apperrors.Conflict("follow-up is already completed")
	}
	now := time.Now().UTC()
	f.Status = StatusCompleted
	f.Response = resp
	f.CompletedDate = &now
	f.UpdatedAt = now
	return nil
}

// Supersede closes the follow-up without a response because a newer
// check-in of the same kind replaced it.
func (f *Followup) Supersede() {
	now := time.Now().UTC()
	f.Status = StatusCompleted
	f.Superseded = true
	f.CompletedDate = &now
	f.UpdatedAt = now
}

// Response is the patient's answer to a follow-up.
type Response struct {
	FollowupID           types.ID  `json:"followup_id"`
	SubjectID            types.ID  `json:"subject_id"`
	SymptomUpdate        string    `json:"symptom_update"`
	FeelingBetter        bool      `json:"feeling_better"`
	NewSymptoms          []string  `json:"new_symptoms,omitempty"`
	MedicationCompliance *bool     `json:"medication_compliance,omitempty"`
	AdditionalConcerns   string    `json:"additional_concerns,omitempty"`
	RequiresFurtherCare  bool      `json:"requires_further_care"`
	ResponseDate         time.Time `json:"response_date"`
}

// Validate rejects malformed responses before any lookup happens.
func (r *Response) Validate() error {
	details := map[string]string{}
	if r.FollowupID.IsZero() {
		details["followup_id"] = "required"
	}
	if r.SubjectID.IsZero() {
		details["subject_id"] = "required"
	}
	if r.SymptomUpdate == "" {
		details["symptom_update"] = "required"
	}
	if len(details) > 0 {
		return apperrors.Validation("invalid follow-up response", details)
	}
	return nil
}
