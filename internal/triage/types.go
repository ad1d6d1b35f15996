package triage

import (
	"time"

	"github.com/carebridge/platform/internal/classifier"
	"github.com/carebridge/platform/internal/shared/types"
)

// Tier is the assessed severity band of a complaint.
type Tier string

const (
	TierGreen Tier = "GREEN"
	TierAmber Tier = "AMBER"
	TierRed   Tier = "RED"
)

// Valid reports whether the tier is one of the known bands.
func (t Tier) Valid() bool {
	switch t {
	case TierGreen, TierAmber, TierRed:
		return true
	}
	return false
}

// Action is the recommended next step for the patient.
type Action string

const (
	ActionSelfCare  Action = "self_care"
	ActionReferral  Action = "referral"
	ActionEmergency Action = "emergency"
)

// ActionForTier maps a severity tier to its recommended action.
func ActionForTier(t Tier) Action {
	switch t {
	case TierRed:
		return ActionEmergency
	case TierAmber:
		return ActionReferral
	default:
		return ActionSelfCare
	}
}

// Assessment is the outcome of evaluating one patient complaint.
type Assessment struct {
	ID                types.ID          `json:"id"`
	CaseID            types.ID          `json:"caseId,omitempty"`
	SubjectID         types.ID          `json:"subjectId"`
	Tier              Tier              `json:"severityTier"`
	RecommendedAction Action            `json:"recommendedAction"`
	RedFlags          []string          `json:"redFlags"`
	CareInstructions  []string          `json:"careInstructions"`
	Confidence        float64           `json:"confidence"`
	Rationale         string            `json:"rationale"`
	Signal            classifier.Signal `json:"signal"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Severity maps the assessment to the 1 to 5 case severity scale. RED is
// always 5. AMBER splits on the keyword hint so that high-intensity
// complaints land at 4 and the rest at 3. GREEN maps to 1.
func (a *Assessment) Severity() int {
	switch a.Tier {
	case TierRed:
		return 5
	case TierAmber:
		if a.Signal.SeverityHint == classifier.SeverityHigh {
			return 4
		}
		return 3
	default:
		return 1
	}
}
