package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// LogProvider writes notifications to the log. Default in development.
type LogProvider struct {
	logger zerolog.Logger
}

// NewLogProvider creates a log-only provider.
func NewLogProvider(logger zerolog.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Send(_ context.Context, msg *Message) error {
	p.logger.Info().
		Str("recipient", msg.RecipientID.String()).
		Str("recipient_role", msg.RecipientRole).
		Str("template", msg.TemplateID).
		Interface("payload", msg.Payload).
		Msg("notification")
	return nil
}

// WebhookProvider posts notifications as JSON to an external endpoint,
// typically a messaging gateway.
type WebhookProvider struct {
	url        string
	httpClient *http.Client
}

// NewWebhookProvider creates a webhook provider.
func NewWebhookProvider(url string) *WebhookProvider {
	return &WebhookProvider{
		url:        url,
		httpClient: &http.Client{},
	}
}

func (p *WebhookProvider) Name() string { return "webhook" }

func (p *WebhookProvider) Send(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MockProvider records sent messages for tests.
type MockProvider struct {
	mu   sync.Mutex
	sent []*Message
	err  error
}

// NewMockProvider creates a capturing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Send(_ context.Context, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

// Sent returns a snapshot of delivered messages.
func (p *MockProvider) Sent() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Message, len(p.sent))
	copy(out, p.sent)
	return out
}

// FailWith makes subsequent sends return err.
func (p *MockProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}
