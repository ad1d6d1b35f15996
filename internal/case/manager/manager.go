// Package manager coordinates case lifecycle operations: it serializes
// writes per case, enforces role and capability gating, persists the
// aggregate, and publishes the resulting domain events on the bus.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/notify"
	"github.com/carebridge/platform/internal/shared/auth"
	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/metrics"
	"github.com/carebridge/platform/internal/shared/types"
)

// Transition actions accepted by the manager.
const (
	ActionClaim        = "claim"
	ActionStart        = "start"
	ActionAwaitPatient = "await_patient"
	ActionResume       = "resume"
	ActionResolve      = "resolve"
	ActionClose        = "close"
	ActionCancel       = "cancel"
	ActionEscalate     = "escalate"
)

// Config holds lifecycle tuning.
type Config struct {
	// ResolvedGracePeriod is how long a resolved case stays open to
	// patient responses before auto-close.
	ResolvedGracePeriod time.Duration

	// AutoCloseInterval is how often the auto-close pass runs.
	AutoCloseInterval time.Duration
}

// Manager owns case lifecycle operations.
type Manager struct {
	repo     domain.Repository
	bus      events.Bus
	notifier notify.Dispatcher
	logger   zerolog.Logger
	config   Config

	locksMu sync.Mutex
	locks   map[types.ID]*sync.Mutex

	stopCh chan struct{}
}

// New creates a case manager.
func New(repo domain.Repository, bus events.Bus, notifier notify.Dispatcher, logger zerolog.Logger, config Config) *Manager {
	if config.ResolvedGracePeriod <= 0 {
		config.ResolvedGracePeriod = 72 * time.Hour
	}
	if config.AutoCloseInterval <= 0 {
		config.AutoCloseInterval = time.Hour
	}
	return &Manager{
		repo:     repo,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
		config:   config,
		locks:    make(map[types.ID]*sync.Mutex),
		stopCh:   make(chan struct{}),
	}
}

// SubscribeToEvents wires the manager to the bus: overdue critical
// follow-ups escalate their case, and patient responses resume cases
// parked on awaiting_patient.
func (m *Manager) SubscribeToEvents() {
	m.bus.Subscribe(events.TypeFollowupEscalation, func(ctx context.Context, event events.Event) error {
		caseID, ok := eventCaseID(event)
		if !ok {
			return fmt.Errorf("escalation event without case_id")
		}
		return m.EscalateCase(ctx, caseID, "critical follow-up overdue")
	})

	m.bus.Subscribe(events.TypePatientResponded, func(ctx context.Context, event events.Event) error {
		caseID, ok := eventCaseID(event)
		if !ok {
			return fmt.Errorf("patient response event without case_id")
		}
		return m.resumeIfAwaiting(ctx, caseID)
	})
}

// Create opens a new case from a triage outcome or manual intake.
func (m *Manager) Create(ctx context.Context, subjectID types.ID, severity int, source domain.TriageSource, actor *auth.Actor) (*domain.Case, error) {
	if source != nil && source.Kind() == domain.SourceManual {
		if actor == nil || actor.Role != auth.RoleStaff {
			return nil, apperrors.Forbidden("manual intake requires a staff actor")
		}
	}

	c, err := domain.NewCase(subjectID, severity, source)
	if err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	if err := m.repo.Save(ctx, c); err != nil {
		return nil, err
	}

	metrics.RecordCaseCreated(string(c.Priority))
	m.publishDomainEvents(ctx, c, actor)

	m.logger.Info().
		Str("case_id", c.ID.String()).
		Str("case_number", c.CaseNumber).
		Int("severity", c.Severity).
		Str("priority", string(c.Priority)).
		Msg("case created")
	return c, nil
}

// Get loads a case. Patients may only see their own cases, with
// staff-only notes stripped.
func (m *Manager) Get(ctx context.Context, id types.ID, actor *auth.Actor) (*domain.Case, error) {
	c, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role == auth.RolePatient {
		if actor.ID != c.SubjectID {
			return nil, apperrors.NotFound("case", id.String())
		}
		return c.PatientView(), nil
	}
	return c, nil
}

// List lists cases for staff and dashboards.
func (m *Manager) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Case, error) {
	return m.repo.List(ctx, filter)
}

// Transition applies one lifecycle action under the case's lock. The
// returned case reflects the state after the transition.
func (m *Manager) Transition(ctx context.Context, id types.ID, action, note string, actor *auth.Actor) (*domain.Case, error) {
	if actor == nil {
		return nil, apperrors.Unauthorized("authentication required")
	}

	unlock := m.lockCase(id)
	defer unlock()

	c, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := m.authorize(c, action, actor); err != nil {
		return nil, err
	}

	from := c.Status
	if err := m.apply(c, action, note, actor); err != nil {
		return nil, err
	}

	if err := m.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	metrics.RecordCaseStatusChange(string(from), string(c.Status))
	m.publishDomainEvents(ctx, c, actor)
	m.notifyTransition(ctx, c, action)

	m.logger.Info().
		Str("case_id", c.ID.String()).
		Str("action", action).
		Str("from", string(from)).
		Str("to", string(c.Status)).
		Str("actor_id", actor.ID.String()).
		Msg("case transitioned")
	return c, nil
}

// EscalateCase is the system path used when a critical follow-up goes
// overdue. Already escalated cases are left untouched.
func (m *Manager) EscalateCase(ctx context.Context, id types.ID, reason string) error {
	unlock := m.lockCase(id)
	defer unlock()

	c, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == domain.StatusEscalated || c.Status.IsTerminal() {
		return nil
	}

	from := c.Status
	if err := c.Escalate(reason); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, c); err != nil {
		return err
	}

	metrics.RecordCaseStatusChange(string(from), string(c.Status))
	m.publishDomainEvents(ctx, c, nil)
	m.notifyTransition(ctx, c, ActionEscalate)

	m.logger.Warn().
		Str("case_id", c.ID.String()).
		Str("reason", reason).
		Msg("case escalated")
	return nil
}

// AddNote appends a note to the case. Patients may only annotate their
// own cases and always write patient-visible notes. A patient note on an
// awaiting_patient case counts as the awaited input and resumes the case.
func (m *Manager) AddNote(ctx context.Context, id types.ID, content string, visibleToPatient bool, actor *auth.Actor) (*domain.Case, error) {
	if actor == nil {
		return nil, apperrors.Unauthorized("authentication required")
	}

	unlock := m.lockCase(id)
	defer unlock()

	c, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RolePatient {
		if actor.ID != c.SubjectID {
			return nil, apperrors.NotFound("case", id.String())
		}
		visibleToPatient = true
	}

	if err := c.AddNote(actor.ID, actor.Role, content, visibleToPatient); err != nil {
		return nil, err
	}

	resumed := false
	if actor.Role == auth.RolePatient && c.Status == domain.StatusAwaitingPatient {
		if err := c.Resume(); err != nil {
			return nil, err
		}
		resumed = true
	}

	if err := m.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	if resumed {
		metrics.RecordCaseStatusChange(string(domain.StatusAwaitingPatient), string(c.Status))
		m.publishDomainEvents(ctx, c, actor)
		m.logger.Info().
			Str("case_id", c.ID.String()).
			Msg("case resumed by patient note")
	}
	return c, nil
}

// RecordPatientActivity bumps the case activity clock, used when a
// follow-up response arrives for a case that is not awaiting the patient.
func (m *Manager) RecordPatientActivity(ctx context.Context, id types.ID) error {
	unlock := m.lockCase(id)
	defer unlock()

	c, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status.IsTerminal() {
		return nil
	}
	c.RecordActivity()
	return m.repo.Update(ctx, c)
}

// Run executes the auto-close loop until the context ends or Stop is
// called. Resolved cases older than the grace period are closed.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.AutoCloseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case <-ticker.C:
			if n, err := m.AutoCloseResolved(ctx); err != nil {
				m.logger.Error().Err(err).Msg("auto-close pass failed")
			} else if n > 0 {
				m.logger.Info().Int("closed", n).Msg("auto-closed resolved cases")
			}
		}
	}
}

// Stop terminates the auto-close loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// AutoCloseResolved closes every case resolved longer ago than the grace
// period and returns how many were closed.
func (m *Manager) AutoCloseResolved(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.config.ResolvedGracePeriod)
	expired, err := m.repo.ListResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, stale := range expired {
		unlock := m.lockCase(stale.ID)

		c, err := m.repo.FindByID(ctx, stale.ID)
		if err != nil {
			unlock()
			continue
		}
		// Re-check under the lock; a patient response may have reopened
		// activity since the listing.
		if c.Status != domain.StatusResolved || c.ResolvedAt == nil || c.ResolvedAt.After(cutoff) {
			unlock()
			continue
		}

		if err := c.CloseCase(""); err != nil {
			unlock()
			continue
		}
		if err := m.repo.Update(ctx, c); err != nil {
			unlock()
			m.logger.Error().Err(err).Str("case_id", c.ID.String()).Msg("failed to auto-close case")
			continue
		}

		metrics.RecordCaseStatusChange(string(domain.StatusResolved), string(domain.StatusClosed))
		m.publishDomainEvents(ctx, c, nil)
		m.notifyTransition(ctx, c, ActionClose)
		closed++
		unlock()
	}
	return closed, nil
}

func (m *Manager) resumeIfAwaiting(ctx context.Context, id types.ID) error {
	unlock := m.lockCase(id)
	defer unlock()

	c, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.StatusAwaitingPatient {
		if !c.Status.IsTerminal() {
			c.RecordActivity()
			return m.repo.Update(ctx, c)
		}
		return nil
	}

	if err := c.Resume(); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, c); err != nil {
		return err
	}
	metrics.RecordCaseStatusChange(string(domain.StatusAwaitingPatient), string(c.Status))
	m.publishDomainEvents(ctx, c, nil)
	return nil
}

// authorize enforces role and capability gating before the state machine
// runs. Working a case at severity 4 or above requires the emergency
// capability; lower severities require medical. Reclaiming an escalated
// case always requires emergency regardless of the stored severity.
func (m *Manager) authorize(c *domain.Case, action string, actor *auth.Actor) error {
	switch action {
	case ActionClaim, ActionStart, ActionAwaitPatient, ActionResolve:
		if actor.Role != auth.RoleStaff {
			return apperrors.Forbidden("staff role required")
		}
		required := c.RequiredCapability()
		if action == ActionClaim && c.Status == domain.StatusEscalated {
			required = domain.CapabilityEmergency
		}
		if !actor.HasCapability(required) {
			return apperrors.Forbidden(
				fmt.Sprintf("capability %q required to work this case", required))
		}
	case ActionResume, ActionClose, ActionEscalate:
		if actor.Role != auth.RoleStaff && actor.Role != auth.RoleSystem {
			return apperrors.Forbidden("staff or system role required")
		}
	case ActionCancel:
		if actor.Role == auth.RolePatient && actor.ID != c.SubjectID {
			return apperrors.Forbidden("patients may only cancel their own cases")
		}
		if actor.Role != auth.RoleStaff && actor.Role != auth.RoleSystem && actor.Role != auth.RolePatient {
			return apperrors.Forbidden("unknown role")
		}
	default:
		return apperrors.BadRequest(fmt.Sprintf("unknown transition action: %q", action))
	}
	return nil
}

func (m *Manager) apply(c *domain.Case, action, note string, actor *auth.Actor) error {
	switch action {
	case ActionClaim:
		return c.Claim(actor.ID)
	case ActionStart:
		return c.Start(actor.ID)
	case ActionAwaitPatient:
		return c.AwaitPatient(actor.ID, note)
	case ActionResume:
		return c.Resume()
	case ActionResolve:
		return c.Resolve(actor.ID, note)
	case ActionClose:
		return c.CloseCase(actor.ID)
	case ActionCancel:
		return c.Cancel(actor.ID, note)
	case ActionEscalate:
		return c.Escalate(note)
	default:
		return apperrors.BadRequest(fmt.Sprintf("unknown transition action: %q", action))
	}
}

func (m *Manager) publishDomainEvents(ctx context.Context, c *domain.Case, actor *auth.Actor) {
	for _, domainEvent := range c.DrainEvents() {
		data := map[string]interface{}{
			"case_id":    c.ID.String(),
			"subject_id": c.SubjectID.String(),
			"severity":   c.Severity,
			"priority":   string(c.Priority),
		}
		for k, v := range domainEvent.Data {
			data[k] = v
		}

		event := events.NewEvent(busEventType(domainEvent.Type), "case-manager", data)
		if actor != nil {
			event = event.WithActor(actor.ID, actor.Role)
		}
		if err := m.bus.Publish(ctx, event); err != nil {
			m.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish case event")
		}
	}
}

func (m *Manager) notifyTransition(ctx context.Context, c *domain.Case, action string) {
	if m.notifier == nil {
		return
	}

	var template string
	switch action {
	case ActionEscalate:
		template = notify.TemplateCaseEscalated
	case ActionClose:
		template = notify.TemplateCaseClosed
	default:
		return
	}

	outcome := m.notifier.Dispatch(ctx, notify.NewMessage(c.SubjectID, auth.RolePatient, template, map[string]interface{}{
		"case_id":     c.ID.String(),
		"case_number": c.CaseNumber,
		"status":      string(c.Status),
	}))
	if !outcome.OK {
		m.logger.Warn().
			Str("case_id", c.ID.String()).
			Str("template", template).
			Str("reason", outcome.Reason).
			Msg("case notification not accepted")
	}
}

func (m *Manager) lockCase(id types.ID) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

func busEventType(domainType string) string {
	switch domainType {
	case "created":
		return events.TypeCaseCreated
	case "escalated":
		return events.TypeCaseEscalated
	default:
		return events.TypeCaseStatusChanged
	}
}

func eventCaseID(event events.Event) (types.ID, bool) {
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return "", false
	}
	raw, ok := data["case_id"].(string)
	if !ok || raw == "" {
		return "", false
	}
	return types.ID(raw), true
}
