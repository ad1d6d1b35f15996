package domain

import (
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// Note is an append-only annotation on a case.
type Note struct {
	ID               types.ID  `json:"id"`
	CaseID           types.ID  `json:"case_id"`
	AuthorID         types.ID  `json:"author_id"`
	AuthorRole       string    `json:"author_role"`
	Content          string    `json:"content"`
	VisibleToPatient bool      `json:"visible_to_patient"`
	CreatedAt        time.Time `json:"created_at"`
}

// SourceKind discriminates how a case was triaged.
type SourceKind string

const (
	SourceAuto   SourceKind = "auto"
	SourceManual SourceKind = "manual"
)

// TriageSource records the origin of a case. It is a closed set: cases
// come either from the automated triage pipeline or from manual intake
// by staff. Callers switch on the concrete type.
type TriageSource interface {
	Kind() SourceKind
}

// AutoSource marks a case created by the triage engine.
type AutoSource struct {
	AssessedBy   string   `json:"assessed_by"`
	AssessmentID types.ID `json:"assessment_id,omitempty"`
}

func (AutoSource) Kind() SourceKind { return SourceAuto }

// ManualSource marks a case entered by staff, carrying their own
// severity judgement and the patient's medical record number when known.
type ManualSource struct {
	Severity int       `json:"severity"`
	Urgency  string    `json:"urgency"`
	Notes    string    `json:"notes,omitempty"`
	MRN      types.MRN `json:"mrn,omitempty"`
}

func (ManualSource) Kind() SourceKind { return SourceManual }
