// Package triage turns classified symptom signals into severity
// assessments with recommended actions and care instructions.
package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/classifier"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/metrics"
	"github.com/carebridge/platform/internal/shared/types"
)

// redFlagKeywords raise an otherwise GREEN assessment to AMBER when matched.
var redFlagKeywords = []string{
	"coughing blood", "coughing up blood", "vomiting blood",
	"blood in stool", "blood in urine",
	"high fever", "stiff neck", "severe dehydration",
	"persistent vomiting", "fainting", "vision loss",
	"sudden numbness", "slurred speech", "pregnant",
}

// chestSymptoms and breathingSymptoms together form the combination that
// always assesses RED, even when no single emergency phrase matched.
var chestSymptoms = []string{"chest pain", "chest tightness", "chest pressure"}

var breathingSymptoms = []string{
	"difficulty breathing", "shortness of breath", "breathing difficulty",
}

// Engine evaluates complaints with deterministic rules, optionally refined
// by an inference service. When inference fails the rule-based result is
// used unchanged and the patient never sees an error.
type Engine struct {
	inference Inferencer
	bus       events.Bus
	logger    zerolog.Logger
}

// NewEngine creates a triage engine. A nil inferencer disables refinement.
func NewEngine(inference Inferencer, bus events.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		inference: inference,
		bus:       bus,
		logger:    logger,
	}
}

// Evaluate assesses one complaint. History carries signals from the
// subject's earlier complaints and feeds the confidence score.
func (e *Engine) Evaluate(ctx context.Context, subjectID types.ID, complaint string, history []classifier.Signal) *Assessment {
	sig := classifier.Classify(complaint)

	tier, redFlags, rationale := e.applyRules(sig, strings.ToLower(complaint))
	confidence := e.scoreConfidence(sig, history)

	// Inference refines non-emergency assessments only. A rule-based RED
	// is final: no model output may downgrade it.
	if e.inference != nil && tier != TierRed {
		result, err := e.inference.Assess(ctx, complaint, sig)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("subject_id", subjectID.String()).
				Msg("inference unavailable, using rule-based assessment")
			metrics.RecordInferenceFallback()
			e.publish(ctx, events.NewEvent(events.TypeTriageFallback, "triage", map[string]interface{}{
				"subject_id": subjectID.String(),
				"reason":     err.Error(),
			}))
		} else {
			tier = result.Tier
			rationale = result.Rationale
			redFlags = mergeFlags(redFlags, result.RedFlags)
			confidence = clampConfidence(result.Confidence)
			if len(redFlags) > 0 && tier == TierGreen {
				tier = TierAmber
			}
		}
	}

	if tier == TierRed {
		confidence = 1.0
	}

	assessment := &Assessment{
		ID:                types.NewID(),
		SubjectID:         subjectID,
		Tier:              tier,
		RecommendedAction: ActionForTier(tier),
		RedFlags:          redFlags,
		CareInstructions:  careInstructions(tier, sig),
		Confidence:        confidence,
		Rationale:         rationale,
		Signal:            sig,
		CreatedAt:         time.Now().UTC(),
	}

	metrics.RecordTriageAssessment(string(tier), string(assessment.RecommendedAction))
	e.publish(ctx, events.NewEvent(events.TypeTriageAssessed, "triage", map[string]interface{}{
		"assessment_id": assessment.ID.String(),
		"subject_id":    subjectID.String(),
		"severity_tier": string(tier),
		"action":        string(assessment.RecommendedAction),
		"confidence":    confidence,
	}))

	return assessment
}

// applyRules runs the three tiering rules in order: emergency override,
// red-flag upgrade, then the keyword intensity mapping.
func (e *Engine) applyRules(sig classifier.Signal, lowerText string) (Tier, []string, string) {
	// Rule 1: emergency hard override.
	if sig.SeverityHint == classifier.SeverityEmergency {
		flags := emergencyFlags(sig)
		return TierRed, flags, fmt.Sprintf("emergency indicators detected: %s", strings.Join(flags, ", "))
	}
	if chest, breathing := matchSymptom(sig, chestSymptoms), matchSymptom(sig, breathingSymptoms); chest != "" && breathing != "" {
		flags := []string{chest, breathing}
		return TierRed, flags, fmt.Sprintf("emergency combination detected: %s with %s", chest, breathing)
	}

	// Rule 2: red-flag keywords raise the floor to AMBER.
	var flags []string
	for _, kw := range redFlagKeywords {
		if strings.Contains(lowerText, kw) {
			flags = append(flags, kw)
		}
	}

	// Rule 3: keyword intensity mapping.
	tier := TierGreen
	if sig.SeverityHint == classifier.SeverityHigh || sig.SeverityHint == classifier.SeverityModerate {
		tier = TierAmber
	}
	if len(flags) > 0 && tier == TierGreen {
		tier = TierAmber
	}

	rationale := fmt.Sprintf("keyword severity hint %q", sig.SeverityHint)
	if len(sig.Symptoms) > 0 {
		rationale += fmt.Sprintf(" with symptoms: %s", strings.Join(sig.Symptoms, ", "))
	}
	if len(flags) > 0 {
		rationale += fmt.Sprintf("; red flags present: %s", strings.Join(flags, ", "))
	}
	return tier, flags, rationale
}

// scoreConfidence starts at 0.5 and adds 0.2 for extracted symptoms plus
// 0.1 each for duration, body regions, and prior signal history, capped
// at 0.9. RED assessments are forced to 1.0 by the caller.
func (e *Engine) scoreConfidence(sig classifier.Signal, history []classifier.Signal) float64 {
	confidence := 0.5
	if len(sig.Symptoms) > 0 {
		confidence += 0.2
	}
	if sig.Duration != "" {
		confidence += 0.1
	}
	if len(sig.BodyRegions) > 0 {
		confidence += 0.1
	}
	if len(history) > 0 {
		confidence += 0.1
	}
	return clampConfidence(confidence)
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish triage event")
	}
}

func clampConfidence(c float64) float64 {
	if c > 0.9 {
		return 0.9
	}
	if c < 0 {
		return 0
	}
	return c
}

// emergencyFlags returns the emergency-family symptoms from the signal,
// falling back to the raw symptom set when only the hint matched.
func emergencyFlags(sig classifier.Signal) []string {
	var flags []string
	for _, sym := range sig.Symptoms {
		if classifier.IsEmergencyPhrase(sym) {
			flags = append(flags, sym)
		}
	}
	if len(flags) == 0 {
		flags = append(flags, sig.Symptoms...)
	}
	if len(flags) == 0 {
		flags = []string{"emergency keywords detected"}
	}
	return flags
}

func matchSymptom(sig classifier.Signal, candidates []string) string {
	for _, c := range candidates {
		if sig.HasSymptom(c) {
			return c
		}
	}
	return ""
}

func mergeFlags(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	merged := make([]string, 0, len(a)+len(b))
	for _, f := range a {
		if !seen[f] {
			seen[f] = true
			merged = append(merged, f)
		}
	}
	for _, f := range b {
		if !seen[f] {
			seen[f] = true
			merged = append(merged, f)
		}
	}
	return merged
}
