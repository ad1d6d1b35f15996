// Package classifier extracts a structured symptom signal from free-text
// patient complaints using fixed keyword vocabularies. Classification is
// pure and deterministic: the same input text always yields the same signal.
package classifier

import (
	"regexp"
	"strings"
)

// Sentiment is the emotional register detected in a complaint.
type Sentiment string

const (
	SentimentCalm      Sentiment = "calm"
	SentimentConcerned Sentiment = "concerned"
	SentimentAnxious   Sentiment = "anxious"
	SentimentUrgent    Sentiment = "urgent"
)

// SeverityHint is the keyword-derived severity estimate. Once an emergency
// phrase matches the hint never drops below emergency.
type SeverityHint string

const (
	SeverityLow       SeverityHint = "low"
	SeverityModerate  SeverityHint = "moderate"
	SeverityHigh      SeverityHint = "high"
	SeverityEmergency SeverityHint = "emergency"
)

// Signal is the structured output of a classification pass.
type Signal struct {
	Symptoms     []string     `json:"symptoms"`
	BodyRegions  []string     `json:"bodyRegions"`
	Duration     string       `json:"duration,omitempty"`
	Triggers     []string     `json:"triggers,omitempty"`
	Sentiment    Sentiment    `json:"sentiment"`
	SeverityHint SeverityHint `json:"severityHint"`
}

// HasSymptom reports whether the matched phrase is in the symptom set.
func (s Signal) HasSymptom(phrase string) bool {
	for _, sym := range s.Symptoms {
		if sym == phrase {
			return true
		}
	}
	return false
}

// IsEmergencyPhrase reports whether the phrase belongs to the emergency
// vocabulary rather than one of the symptom families.
func IsEmergencyPhrase(phrase string) bool {
	for _, p := range emergencyPhrases {
		if p == phrase {
			return true
		}
	}
	return false
}

var durationPattern = regexp.MustCompile(
	`(?:for\s+)?(?:the\s+(?:past|last)\s+)?` +
		`((?:a\s+few|a\s+couple\s+of|several|\d+)\s+(?:minute|hour|day|week|month|year)s?)`)

var relativeDurationPattern = regexp.MustCompile(
	`since\s+(?:yesterday|last\s+(?:night|week|month)|this\s+morning)|all\s+(?:day|night|week)`)

// Classify scans the complaint text against the fixed vocabularies and
// returns the extracted signal. The scan order is deterministic: symptom
// families, emergency phrases, regions, duration, triggers, sentiment,
// then the severity hint with emergency phrases taking priority over
// intensity words.
func Classify(text string) Signal {
	lower := strings.ToLower(text)

	sig := Signal{
		Sentiment:    SentimentCalm,
		SeverityHint: SeverityLow,
	}

	seen := make(map[string]bool)
	for _, family := range symptomFamilies {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) && !seen[kw] {
				seen[kw] = true
				sig.Symptoms = append(sig.Symptoms, kw)
			}
		}
	}

	emergency := false
	for _, phrase := range emergencyPhrases {
		if strings.Contains(lower, phrase) {
			emergency = true
			if !seen[phrase] {
				seen[phrase] = true
				sig.Symptoms = append(sig.Symptoms, phrase)
			}
		}
	}

	for _, region := range bodyRegions {
		if strings.Contains(lower, region) {
			sig.BodyRegions = append(sig.BodyRegions, region)
		}
	}

	if m := durationPattern.FindStringSubmatch(lower); m != nil {
		sig.Duration = normalizeSpaces(m[1])
	} else if m := relativeDurationPattern.FindString(lower); m != "" {
		sig.Duration = normalizeSpaces(m)
	}

	for _, trigger := range triggerPhrases {
		if strings.Contains(lower, trigger) {
			sig.Triggers = append(sig.Triggers, trigger)
		}
	}

	for _, bucket := range sentimentBuckets {
		if containsAny(lower, bucket.keywords) {
			sig.Sentiment = bucket.sentiment
			break
		}
	}

	if emergency {
		sig.SeverityHint = SeverityEmergency
		return sig
	}
	for _, family := range intensityFamilies {
		if containsAny(lower, family.keywords) {
			sig.SeverityHint = family.hint
			break
		}
	}
	return sig
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
