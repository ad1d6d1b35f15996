package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/shared/config"
	"github.com/carebridge/platform/internal/shared/metrics"
)

// Dispatcher accepts messages for best-effort delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *Message) Outcome
}

// Provider performs the actual delivery of one message.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// sendTimeout bounds one provider call so a stuck provider cannot wedge
// a worker.
const sendTimeout = 10 * time.Second

// Service is a worker-pool dispatcher over a single provider.
type Service struct {
	provider Provider
	queue    chan *Message
	workers  int
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

var _ Dispatcher = (*Service)(nil)

// NewService creates a dispatcher from config.
func NewService(provider Provider, cfg config.NotificationConfig, logger zerolog.Logger) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1000
	}
	return &Service{
		provider: provider,
		queue:    make(chan *Message, buffer),
		workers:  workers,
		logger:   logger,
	}
}

// Start launches the worker pool.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("dispatcher already started")
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return nil
}

// Stop drains the queue and waits for workers to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// Dispatch enqueues a message. The outcome reports acceptance only;
// delivery happens asynchronously on the worker pool.
func (s *Service) Dispatch(_ context.Context, msg *Message) Outcome {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return Failed("dispatcher not running")
	}
	s.mu.Unlock()

	select {
	case s.queue <- msg:
		return Accepted()
	default:
		s.logger.Warn().
			Str("template", msg.TemplateID).
			Str("recipient", msg.RecipientID.String()).
			Msg("notification queue full, dropping message")
		metrics.RecordNotificationOutcome(msg.TemplateID, false)
		return Failed("queue full")
	}
}

func (s *Service) worker() {
	defer s.wg.Done()

	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := s.provider.Send(ctx, msg)
		cancel()

		if err != nil {
			s.logger.Warn().Err(err).
				Str("provider", s.provider.Name()).
				Str("template", msg.TemplateID).
				Str("recipient", msg.RecipientID.String()).
				Msg("notification delivery failed")
			metrics.RecordNotificationOutcome(msg.TemplateID, false)
			continue
		}

		s.logger.Debug().
			Str("provider", s.provider.Name()).
			Str("template", msg.TemplateID).
			Str("recipient", msg.RecipientID.String()).
			Msg("notification delivered")
		metrics.RecordNotificationOutcome(msg.TemplateID, true)
	}
}
