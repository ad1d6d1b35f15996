package triage

import (
	"fmt"

	"github.com/carebridge/platform/internal/classifier"
)

// careInstructions builds the patient-facing guidance for a tier,
// personalized with the leading symptom and body region when present.
func careInstructions(tier Tier, sig classifier.Signal) []string {
	switch tier {
	case TierRed:
		return []string{
			"Call emergency services or go to the nearest emergency department immediately.",
			"Do not drive yourself; have someone take you or wait for the ambulance.",
			"If symptoms change while waiting, tell the emergency operator right away.",
		}
	case TierAmber:
		instructions := []string{
			"Book an appointment with your care provider within the next 24 to 48 hours.",
		}
		if len(sig.Symptoms) > 0 {
			instructions = append(instructions,
				fmt.Sprintf("Keep a record of your %s and note any changes until you are seen.", sig.Symptoms[0]))
		}
		if len(sig.BodyRegions) > 0 {
			instructions = append(instructions,
				fmt.Sprintf("Avoid straining your %s in the meantime.", sig.BodyRegions[0]))
		}
		instructions = append(instructions,
			"Seek urgent care immediately if symptoms worsen suddenly.")
		return instructions
	default:
		instructions := []string{
			"Rest and stay hydrated.",
		}
		if len(sig.Symptoms) > 0 {
			instructions = append(instructions,
				fmt.Sprintf("Monitor your %s over the next few days.", sig.Symptoms[0]),
				fmt.Sprintf("Over-the-counter remedies may help relieve %s.", sig.Symptoms[0]))
		}
		instructions = append(instructions,
			"Contact us again if symptoms persist beyond a week or get worse.")
		return instructions
	}
}
