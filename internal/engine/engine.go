// Package engine is the public facade over the triage pipeline: it runs
// complaints through classification and assessment, opens or escalates
// cases, takes follow-up responses, and serves statistics. HTTP handlers
// and internal callers go through here rather than the parts directly.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/case/manager"
	"github.com/carebridge/platform/internal/classifier"
	"github.com/carebridge/platform/internal/followup"
	"github.com/carebridge/platform/internal/notify"
	"github.com/carebridge/platform/internal/shared/auth"
	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
	"github.com/carebridge/platform/internal/staff"
	"github.com/carebridge/platform/internal/stats"
	"github.com/carebridge/platform/internal/triage"
)

// historyLimit caps how many prior signals per subject feed confidence
// scoring.
const historyLimit = 5

// Engine wires the triage pipeline end to end.
type Engine struct {
	triage    *triage.Engine
	manager   *manager.Manager
	responses *followup.Service
	stats     *stats.Aggregator
	cases     domain.Repository
	staff     staff.Directory
	notifier  notify.Dispatcher
	logger    zerolog.Logger

	historyMu sync.Mutex
	history   map[types.ID][]classifier.Signal
}

// New creates the engine facade. The response service is attached
// afterwards with SetResponseService because it needs the engine as its
// retriager.
func New(
	triageEngine *triage.Engine,
	caseManager *manager.Manager,
	aggregator *stats.Aggregator,
	cases domain.Repository,
	directory staff.Directory,
	notifier notify.Dispatcher,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		triage:   triageEngine,
		manager:  caseManager,
		stats:    aggregator,
		cases:    cases,
		staff:    directory,
		notifier: notifier,
		logger:   logger,
		history:  make(map[types.ID][]classifier.Signal),
	}
}

// SetResponseService attaches the follow-up response service. Call once
// during wiring, before serving traffic.
func (e *Engine) SetResponseService(svc *followup.Service) {
	e.responses = svc
}

var _ followup.Retriager = (*Engine)(nil)

// SubmitComplaint assesses a complaint and opens or escalates a case.
// For a RED assessment the emergency alert goes out before any
// persistence, and a persistence failure never suppresses the decision:
// the assessment is returned with a nil case instead.
func (e *Engine) SubmitComplaint(ctx context.Context, subjectID types.ID, complaint string) (*triage.Assessment, *domain.Case, error) {
	if subjectID.IsZero() {
		return nil, nil, apperrors.Validation("invalid complaint", map[string]string{"subject_id": "required"})
	}
	if complaint == "" {
		return nil, nil, apperrors.Validation("invalid complaint", map[string]string{"complaint": "required"})
	}

	assessment := e.triage.Evaluate(ctx, subjectID, complaint, e.subjectHistory(subjectID))
	e.rememberSignal(subjectID, assessment.Signal)

	if assessment.Tier == triage.TierRed {
		e.sendEmergencyAlert(ctx, subjectID, assessment)
		c := e.persistEmergency(ctx, subjectID, assessment)
		return assessment, c, nil
	}

	c, err := e.openCase(ctx, subjectID, assessment)
	if err != nil {
		return nil, nil, err
	}
	assessment.CaseID = c.ID
	return assessment, c, nil
}

// Retriage feeds a follow-up response back through the pipeline.
func (e *Engine) Retriage(ctx context.Context, resp *followup.Response) (*triage.Assessment, error) {
	assessment, _, err := e.SubmitComplaint(ctx, resp.SubjectID, resp.ComplaintText())
	return assessment, err
}

// GetCase loads a case, scoped to the actor.
func (e *Engine) GetCase(ctx context.Context, id types.ID, actor *auth.Actor) (*domain.Case, error) {
	return e.manager.Get(ctx, id, actor)
}

// ListCases lists cases for staff views.
func (e *Engine) ListCases(ctx context.Context, filter domain.ListFilter) ([]*domain.Case, error) {
	return e.manager.List(ctx, filter)
}

// CreateCase opens a case from manual staff intake.
func (e *Engine) CreateCase(ctx context.Context, subjectID types.ID, severity int, source domain.TriageSource, actor *auth.Actor) (*domain.Case, error) {
	return e.manager.Create(ctx, subjectID, severity, source, actor)
}

// AddNote appends a note to a case on behalf of the actor.
func (e *Engine) AddNote(ctx context.Context, id types.ID, content string, visibleToPatient bool, actor *auth.Actor) (*domain.Case, error) {
	return e.manager.AddNote(ctx, id, content, visibleToPatient, actor)
}

// TransitionCase applies one lifecycle action on behalf of the actor.
func (e *Engine) TransitionCase(ctx context.Context, id types.ID, action, note string, actor *auth.Actor) (*domain.Case, error) {
	return e.manager.Transition(ctx, id, action, note, actor)
}

// SubmitFollowupResponse records a patient's answer to a follow-up and
// returns the completed follow-up plus any re-assessment it triggered.
func (e *Engine) SubmitFollowupResponse(ctx context.Context, resp *followup.Response) (*followup.Followup, *triage.Assessment, error) {
	return e.responses.SubmitResponse(ctx, resp)
}

// GetStatistics returns a snapshot, scoped to one subject when non-zero.
func (e *Engine) GetStatistics(ctx context.Context, subjectID types.ID) (*stats.Statistics, error) {
	return e.stats.Snapshot(ctx, subjectID)
}

// EligibleStaff returns on-duty staff cleared for the severity.
func (e *Engine) EligibleStaff(ctx context.Context, severity int) ([]staff.Member, error) {
	return e.staff.FindEligible(ctx, severity)
}

// persistEmergency attaches the RED assessment to the subject's existing
// open case, or opens a new one. Failures are logged, not returned.
func (e *Engine) persistEmergency(ctx context.Context, subjectID types.ID, assessment *triage.Assessment) *domain.Case {
	open, err := e.cases.FindOpenBySubject(ctx, subjectID)
	if err != nil {
		e.logger.Error().Err(err).
			Str("subject_id", subjectID.String()).
			Msg("emergency assessed but open-case lookup failed")
		return nil
	}

	if len(open) > 0 {
		existing := open[0]
		assessment.CaseID = existing.ID
		if err := e.manager.EscalateCase(ctx, existing.ID, "new emergency complaint"); err != nil {
			e.logger.Error().Err(err).
				Str("case_id", existing.ID.String()).
				Msg("emergency assessed but case escalation failed")
			return nil
		}
		return existing
	}

	c, err := e.openCase(ctx, subjectID, assessment)
	if err != nil {
		e.logger.Error().Err(err).
			Str("subject_id", subjectID.String()).
			Msg("emergency assessed but case creation failed")
		return nil
	}
	assessment.CaseID = c.ID
	return c
}

func (e *Engine) openCase(ctx context.Context, subjectID types.ID, assessment *triage.Assessment) (*domain.Case, error) {
	source := domain.AutoSource{AssessedBy: "triage-engine", AssessmentID: assessment.ID}
	return e.manager.Create(ctx, subjectID, assessment.Severity(), source, nil)
}

func (e *Engine) sendEmergencyAlert(ctx context.Context, subjectID types.ID, assessment *triage.Assessment) {
	if e.notifier == nil {
		return
	}
	outcome := e.notifier.Dispatch(ctx, notify.NewMessage(subjectID, auth.RolePatient, notify.TemplateEmergencyAlert, map[string]interface{}{
		"assessment_id": assessment.ID.String(),
		"red_flags":     assessment.RedFlags,
		"instructions":  assessment.CareInstructions,
	}))
	if !outcome.OK {
		e.logger.Warn().
			Str("subject_id", subjectID.String()).
			Str("reason", outcome.Reason).
			Msg("emergency alert not accepted for delivery")
	}
}

func (e *Engine) subjectHistory(subjectID types.ID) []classifier.Signal {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	return append([]classifier.Signal(nil), e.history[subjectID]...)
}

func (e *Engine) rememberSignal(subjectID types.ID, sig classifier.Signal) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	signals := append(e.history[subjectID], sig)
	if len(signals) > historyLimit {
		signals = signals[len(signals)-historyLimit:]
	}
	e.history[subjectID] = signals
}
