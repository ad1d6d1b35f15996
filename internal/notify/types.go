// Package notify delivers best-effort notifications to patients and staff
// through a pluggable provider behind a worker pool. Delivery failures are
// logged and counted but never surfaced as hard errors to callers.
package notify

import (
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// Template identifiers for outgoing notifications.
const (
	TemplateEmergencyAlert   = "emergency_alert"
	TemplateFollowupReminder = "followup_reminder"
	TemplateCaseEscalated    = "case_escalated"
	TemplateCaseClosed       = "case_closed"
	TemplateStaffAssignment  = "staff_assignment"
)

// Outcome is the result of a dispatch attempt. It reports whether the
// message was accepted for delivery, not whether it arrived.
type Outcome struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Accepted returns a successful outcome.
func Accepted() Outcome {
	return Outcome{OK: true}
}

// Failed returns a failed outcome with the given reason.
func Failed(reason string) Outcome {
	return Outcome{OK: false, Reason: reason}
}

// Message is one notification to deliver.
type Message struct {
	ID            types.ID               `json:"id"`
	RecipientID   types.ID               `json:"recipient_id"`
	RecipientRole string                 `json:"recipient_role"`
	TemplateID    string                 `json:"template_id"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewMessage builds a message for dispatch.
func NewMessage(recipientID types.ID, recipientRole, templateID string, payload map[string]interface{}) *Message {
	return &Message{
		ID:            types.NewID(),
		RecipientID:   recipientID,
		RecipientRole: recipientRole,
		TemplateID:    templateID,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}
