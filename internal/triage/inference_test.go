package triage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carebridge/platform/internal/classifier"
	"github.com/carebridge/platform/internal/shared/config"
)

func TestHTTPInferenceAssess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/assess" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req inferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if req.Complaint == "" {
			t.Error("expected complaint text in request")
		}

		json.NewEncoder(w).Encode(inferenceResponse{
			SeverityTier: "AMBER",
			Confidence:   0.82,
			RedFlags:     []string{"recurring pattern"},
			Rationale:    "symptom recurrence over multiple reports",
		})
	}))
	defer server.Close()

	client := NewHTTPInference(config.InferenceConfig{URL: server.URL, Timeout: time.Second})

	result, err := client.Assess(context.Background(), "recurring stomach pain",
		classifier.Classify("recurring stomach pain"))
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if result.Tier != TierAmber {
		t.Errorf("tier = %s, want %s", result.Tier, TierAmber)
	}
	if result.Confidence != 0.82 {
		t.Errorf("confidence = %v, want 0.82", result.Confidence)
	}
}

func TestHTTPInferenceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPInference(config.InferenceConfig{URL: server.URL, Timeout: time.Second})

	if _, err := client.Assess(context.Background(), "test", classifier.Signal{}); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestHTTPInferenceUnknownTier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inferenceResponse{SeverityTier: "PURPLE", Confidence: 0.5})
	}))
	defer server.Close()

	client := NewHTTPInference(config.InferenceConfig{URL: server.URL, Timeout: time.Second})

	if _, err := client.Assess(context.Background(), "test", classifier.Signal{}); err == nil {
		t.Error("expected error for unknown severity tier")
	}
}

func TestHTTPInferenceTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewHTTPInference(config.InferenceConfig{URL: server.URL, Timeout: 20 * time.Millisecond})

	if _, err := client.Assess(context.Background(), "test", classifier.Signal{}); err == nil {
		t.Error("expected timeout error")
	}
}
