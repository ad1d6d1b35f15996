package followup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/notify"
	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/metrics"
	"github.com/carebridge/platform/internal/shared/types"
)

// Scheduler creates follow-ups from case lifecycle events and runs the
// periodic pass that sends reminders and emits escalations. A pass that
// would overlap a still-running one is skipped, never queued.
type Scheduler struct {
	repo     Repository
	notifier notify.Dispatcher
	bus      events.Bus
	logger   zerolog.Logger
	interval time.Duration

	running atomic.Bool
	stopCh  chan struct{}

	// overdueSeen deduplicates the informational overdue event within
	// this process. The escalation event uses the persisted flag instead
	// and survives restarts.
	overdueMu   sync.Mutex
	overdueSeen map[types.ID]bool
}

// NewScheduler creates the follow-up scheduler.
func NewScheduler(repo Repository, notifier notify.Dispatcher, bus events.Bus, logger zerolog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		repo:        repo,
		notifier:    notifier,
		bus:         bus,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
		overdueSeen: make(map[types.ID]bool),
	}
}

// SubscribeToEvents wires scheduling to the case lifecycle: a new case
// gets its default check-in immediately, and a resolution re-bases it on
// the resolution time.
func (s *Scheduler) SubscribeToEvents() {
	s.bus.Subscribe(events.TypeCaseCreated, func(ctx context.Context, event events.Event) error {
		caseID, subjectID, severity, ok := caseEventFields(event)
		if !ok {
			return fmt.Errorf("case.created event missing fields")
		}
		_, err := s.Schedule(ctx, caseID, subjectID, severity, TypeForSeverity(severity), event.Timestamp)
		return err
	})

	s.bus.Subscribe(events.TypeCaseStatusChanged, func(ctx context.Context, event events.Event) error {
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			return nil
		}
		if newStatus, _ := data["new_status"].(string); newStatus != string(domain.StatusResolved) {
			return nil
		}
		caseID, subjectID, severity, ok := caseEventFields(event)
		if !ok {
			return fmt.Errorf("case.status_changed event missing fields")
		}
		_, err := s.Schedule(ctx, caseID, subjectID, severity, TypeForSeverity(severity), event.Timestamp)
		return err
	})
}

// Schedule creates a pending follow-up of the given type, based at the
// trigger time. An existing pending follow-up of the same type on the
// case is superseded so the case never carries two open check-ins of one
// kind.
func (s *Scheduler) Schedule(ctx context.Context, caseID, subjectID types.ID, severity int, t Type, base time.Time) (*Followup, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown follow-up type: %q", t)
	}
	if base.IsZero() {
		base = time.Now().UTC()
	}

	pending, err := s.repo.FindPendingByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	for _, prior := range pending {
		if prior.Type != t {
			continue
		}
		if t == TypeCriticalFollowUp {
			dup := apperrors.DuplicateFollowup(caseID.String())
			s.logger.Warn().
				Err(dup).
				Str("code", dup.Code).
				Str("superseded_id", prior.ID.String()).
				Msg("superseding the earlier critical follow-up")
		}
		prior.Supersede()
		if err := s.repo.Update(ctx, prior); err != nil {
			return nil, err
		}
	}

	f := New(caseID, subjectID, t, severity, base)
	if err := s.repo.Save(ctx, f); err != nil {
		return nil, err
	}

	metrics.RecordFollowupScheduled(string(t), string(f.Priority))
	s.publish(ctx, events.NewEvent(events.TypeFollowupScheduled, "scheduler", map[string]interface{}{
		"followup_id":    f.ID.String(),
		"case_id":        caseID.String(),
		"subject_id":     subjectID.String(),
		"type":           string(t),
		"priority":       string(f.Priority),
		"scheduled_date": f.ScheduledDate,
		"overdue_date":   f.OverdueDate,
	}))

	s.logger.Info().
		Str("followup_id", f.ID.String()).
		Str("case_id", caseID.String()).
		Str("type", string(t)).
		Time("scheduled_date", f.ScheduledDate).
		Msg("follow-up scheduled")
	return f, nil
}

// Start runs the periodic pass until the context ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				metrics.RecordSchedulerTickSkipped()
				s.logger.Debug().Msg("scheduler pass still running, skipping tick")
				continue
			}
			go func() {
				defer s.running.Store(false)
				s.RunPass(ctx)
			}()
		}
	}
}

// Stop terminates the periodic loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// RunPass examines every pending follow-up once: due ones get at most one
// reminder per pass up to their budget, and overdue critical ones emit
// their escalation exactly once over the follow-up's lifetime.
func (s *Scheduler) RunPass(ctx context.Context) {
	started := time.Now()
	defer func() {
		metrics.RecordSchedulerTick(time.Since(started))
	}()

	pending, err := s.repo.ListPending(ctx, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler pass failed to list follow-ups")
		return
	}

	now := time.Now().UTC()
	for _, f := range pending {
		if f.IsDue(now) && f.RemindersSent < MaxReminders(f.Priority) {
			s.sendReminder(ctx, f)
		}
		if f.IsOverdue(now) {
			s.handleOverdue(ctx, f)
		}
	}
}

func (s *Scheduler) sendReminder(ctx context.Context, f *Followup) {
	outcome := notify.Outcome{OK: true}
	if s.notifier != nil {
		outcome = s.notifier.Dispatch(ctx, notify.NewMessage(f.SubjectID, "patient", notify.TemplateFollowupReminder, map[string]interface{}{
			"followup_id": f.ID.String(),
			"case_id":     f.CaseID.String(),
			"type":        string(f.Type),
		}))
	}
	if !outcome.OK {
		s.logger.Warn().
			Str("followup_id", f.ID.String()).
			Str("reason", outcome.Reason).
			Msg("reminder not accepted for delivery")
		return
	}

	f.RemindersSent++
	f.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, f); err != nil {
		s.logger.Error().Err(err).Str("followup_id", f.ID.String()).Msg("failed to record reminder")
		return
	}

	metrics.RecordReminderSent(string(f.Priority))
	s.publish(ctx, events.NewEvent(events.TypeFollowupReminder, "scheduler", map[string]interface{}{
		"followup_id":    f.ID.String(),
		"case_id":        f.CaseID.String(),
		"subject_id":     f.SubjectID.String(),
		"reminders_sent": f.RemindersSent,
	}))
}

func (s *Scheduler) handleOverdue(ctx context.Context, f *Followup) {
	s.overdueMu.Lock()
	seen := s.overdueSeen[f.ID]
	s.overdueSeen[f.ID] = true
	s.overdueMu.Unlock()

	if !seen {
		s.publish(ctx, events.NewEvent(events.TypeFollowupOverdue, "scheduler", map[string]interface{}{
			"followup_id": f.ID.String(),
			"case_id":     f.CaseID.String(),
			"subject_id":  f.SubjectID.String(),
			"type":        string(f.Type),
			"priority":    string(f.Priority),
		}))
	}

	if f.Priority != domain.PriorityCritical || f.EscalationEmitted {
		return
	}

	// Persist the flag before publishing so a crash cannot double-emit
	// the escalation.
	f.EscalationEmitted = true
	f.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, f); err != nil {
		s.logger.Error().Err(err).Str("followup_id", f.ID.String()).Msg("failed to record escalation flag")
		return
	}

	metrics.RecordEscalation()
	s.publish(ctx, events.NewEvent(events.TypeFollowupEscalation, "scheduler", map[string]interface{}{
		"followup_id": f.ID.String(),
		"case_id":     f.CaseID.String(),
		"subject_id":  f.SubjectID.String(),
	}))

	s.logger.Warn().
		Str("followup_id", f.ID.String()).
		Str("case_id", f.CaseID.String()).
		Msg("critical follow-up overdue, escalation emitted")
}

func (s *Scheduler) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish follow-up event")
	}
}

func caseEventFields(event events.Event) (caseID, subjectID types.ID, severity int, ok bool) {
	data, isMap := event.Data.(map[string]interface{})
	if !isMap {
		return "", "", 0, false
	}
	rawCase, _ := data["case_id"].(string)
	rawSubject, _ := data["subject_id"].(string)
	if rawCase == "" || rawSubject == "" {
		return "", "", 0, false
	}

	switch v := data["severity"].(type) {
	case int:
		severity = v
	case float64:
		severity = int(v)
	default:
		return "", "", 0, false
	}
	return types.ID(rawCase), types.ID(rawSubject), severity, true
}
