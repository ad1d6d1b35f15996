package classifier

import "testing"

func TestClassifySymptomFamilies(t *testing.T) {
	sig := Classify("I have a persistent cough and some nausea")

	if !sig.HasSymptom("cough") {
		t.Errorf("expected cough in symptoms, got %v", sig.Symptoms)
	}
	if !sig.HasSymptom("nausea") {
		t.Errorf("expected nausea in symptoms, got %v", sig.Symptoms)
	}
}

func TestClassifyEmergencyHint(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"cannot breathe", "help, I cannot breathe"},
		{"unconscious", "my father is unconscious on the floor"},
		{"severe bleeding", "there is severe bleeding from the wound"},
		{"loss of consciousness", "brief loss of consciousness an hour ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Classify(tt.text)
			if sig.SeverityHint != SeverityEmergency {
				t.Errorf("severity hint = %s, want %s", sig.SeverityHint, SeverityEmergency)
			}
		})
	}
}

func TestClassifyEmergencyBeatsIntensity(t *testing.T) {
	// A mild-sounding complaint still classifies as emergency when an
	// emergency phrase is present.
	sig := Classify("just a slight issue but he passed out twice")
	if sig.SeverityHint != SeverityEmergency {
		t.Errorf("severity hint = %s, want %s", sig.SeverityHint, SeverityEmergency)
	}
}

func TestClassifyIntensityHints(t *testing.T) {
	tests := []struct {
		text string
		want SeverityHint
	}{
		{"I have severe back pain", SeverityHigh},
		{"persistent cough and mild fever for 3 days", SeverityModerate},
		{"I have a mild headache", SeverityLow},
		{"my knee hurts", SeverityLow},
	}

	for _, tt := range tests {
		sig := Classify(tt.text)
		if sig.SeverityHint != tt.want {
			t.Errorf("Classify(%q) hint = %s, want %s", tt.text, sig.SeverityHint, tt.want)
		}
	}
}

func TestClassifyBodyRegions(t *testing.T) {
	sig := Classify("sharp pain in my chest and left shoulder")

	want := map[string]bool{"chest": false, "shoulder": false}
	for _, region := range sig.BodyRegions {
		if _, ok := want[region]; ok {
			want[region] = true
		}
	}
	for region, found := range want {
		if !found {
			t.Errorf("expected region %s in %v", region, sig.BodyRegions)
		}
	}
}

func TestClassifyDuration(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"chest pain for 30 minutes", "30 minutes"},
		{"headache for the past 2 days", "2 days"},
		{"feeling dizzy since yesterday", "since yesterday"},
		{"sore throat for a few days", "a few days"},
		{"my arm hurts", ""},
	}

	for _, tt := range tests {
		sig := Classify(tt.text)
		if sig.Duration != tt.want {
			t.Errorf("Classify(%q) duration = %q, want %q", tt.text, sig.Duration, tt.want)
		}
	}
}

func TestClassifyTriggers(t *testing.T) {
	sig := Classify("stomach pain after eating, worse at night")

	found := map[string]bool{}
	for _, trig := range sig.Triggers {
		found[trig] = true
	}
	if !found["after eating"] || !found["at night"] {
		t.Errorf("triggers = %v, want after eating and at night", sig.Triggers)
	}
}

func TestClassifySentimentPrecedence(t *testing.T) {
	tests := []struct {
		text string
		want Sentiment
	}{
		{"please help me now, this is an emergency", SentimentUrgent},
		{"I am scared and worried about this pain", SentimentAnxious},
		{"a bit worried about this rash", SentimentConcerned},
		{"noticed a small bruise on my leg", SentimentCalm},
	}

	for _, tt := range tests {
		sig := Classify(tt.text)
		if sig.Sentiment != tt.want {
			t.Errorf("Classify(%q) sentiment = %s, want %s", tt.text, sig.Sentiment, tt.want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	text := "severe chest pain and difficulty breathing for 30 minutes"
	first := Classify(text)

	for i := 0; i < 5; i++ {
		again := Classify(text)
		if len(again.Symptoms) != len(first.Symptoms) {
			t.Fatalf("symptom count changed between runs: %v vs %v", first.Symptoms, again.Symptoms)
		}
		for j := range first.Symptoms {
			if again.Symptoms[j] != first.Symptoms[j] {
				t.Fatalf("symptom order changed between runs: %v vs %v", first.Symptoms, again.Symptoms)
			}
		}
	}
}
