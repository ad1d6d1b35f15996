package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/carebridge/platform/internal/classifier"
	"github.com/carebridge/platform/internal/shared/config"
)

// InferenceResult is the refined assessment returned by the model service.
type InferenceResult struct {
	Tier       Tier     `json:"severityTier"`
	Confidence float64  `json:"confidence"`
	RedFlags   []string `json:"redFlags"`
	Rationale  string   `json:"rationale"`
}

// Inferencer refines a rule-based signal with a model-backed assessment.
// Implementations must honor the context deadline; the engine treats any
// error as a signal to fall back to the rule-based result.
type Inferencer interface {
	Assess(ctx context.Context, complaint string, signal classifier.Signal) (*InferenceResult, error)
}

// HTTPInference calls an external inference service over HTTP.
type HTTPInference struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPInference creates an inference client from config.
func NewHTTPInference(cfg config.InferenceConfig) *HTTPInference {
	return &HTTPInference{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type inferenceRequest struct {
	Complaint string            `json:"complaint"`
	Signal    classifier.Signal `json:"signal"`
}

type inferenceResponse struct {
	SeverityTier string   `json:"severity_tier"`
	Confidence   float64  `json:"confidence"`
	RedFlags     []string `json:"red_flags"`
	Rationale    string   `json:"rationale"`
}

// Assess posts the complaint and extracted signal to the inference service.
func (c *HTTPInference) Assess(ctx context.Context, complaint string, signal classifier.Signal) (*InferenceResult, error) {
	payload, err := json.Marshal(inferenceRequest{Complaint: complaint, Signal: signal})
	if err != nil {
		return nil, fmt.Errorf("failed to encode inference request: %w", err)
	}

	url := c.baseURL + "/v1/assess"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from inference service: %d", resp.StatusCode)
	}

	var apiResp inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}

	result := &InferenceResult{
		Tier:       Tier(apiResp.SeverityTier),
		Confidence: apiResp.Confidence,
		RedFlags:   apiResp.RedFlags,
		Rationale:  apiResp.Rationale,
	}
	if !result.Tier.Valid() {
		return nil, fmt.Errorf("inference returned unknown severity tier: %q", apiResp.SeverityTier)
	}
	return result, nil
}
