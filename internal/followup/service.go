package followup

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/triage"
)

// Retriager re-assesses a patient whose follow-up response indicates
// they are not improving. Implemented by the triage facade.
type Retriager interface {
	Retriage(ctx context.Context, resp *Response) (*triage.Assessment, error)
}

// Service handles patient responses to follow-ups.
type Service struct {
	repo      Repository
	bus       events.Bus
	retriager Retriager
	logger    zerolog.Logger
}

// NewService creates the response intake service. A nil retriager
// disables re-assessment.
func NewService(repo Repository, bus events.Bus, retriager Retriager, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		bus:       bus,
		retriager: retriager,
		logger:    logger,
	}
}

// SubmitResponse validates and records a patient response, then
// re-triages when the response signals no improvement or an explicit
// request for further care. Validation failures happen before any lookup
// and leave no trace.
func (s *Service) SubmitResponse(ctx context.Context, resp *Response) (*Followup, *triage.Assessment, error) {
	if err := resp.Validate(); err != nil {
		return nil, nil, err
	}

	f, err := s.repo.FindByID(ctx, resp.FollowupID)
	if err != nil {
		return nil, nil, err
	}
	if f.SubjectID != resp.SubjectID {
		return nil, nil, apperrors.Forbidden("response does not belong to this patient")
	}

	resp.ResponseDate = time.Now().UTC()
	if err := f.Complete(resp); err != nil {
		return nil, nil, err
	}
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.NewEvent(events.TypeFollowupCompleted, "followup", map[string]interface{}{
		"followup_id":    f.ID.String(),
		"case_id":        f.CaseID.String(),
		"subject_id":     f.SubjectID.String(),
		"feeling_better": resp.FeelingBetter,
	}))
	s.publish(ctx, events.NewEvent(events.TypePatientResponded, "followup", map[string]interface{}{
		"case_id":    f.CaseID.String(),
		"subject_id": f.SubjectID.String(),
	}))

	s.logger.Info().
		Str("followup_id", f.ID.String()).
		Str("case_id", f.CaseID.String()).
		Bool("feeling_better", resp.FeelingBetter).
		Msg("follow-up response recorded")

	var assessment *triage.Assessment
	if s.retriager != nil && (resp.RequiresFurtherCare || !resp.FeelingBetter) {
		assessment, err = s.retriager.Retriage(ctx, resp)
		if err != nil {
			// The response is already recorded; a failed re-assessment
			// must not undo that.
			s.logger.Error().Err(err).
				Str("followup_id", f.ID.String()).
				Msg("re-triage after follow-up response failed")
		}
	}

	return f, assessment, nil
}

// ComplaintText flattens the response into a complaint for re-triage.
func (r *Response) ComplaintText() string {
	parts := []string{r.SymptomUpdate}
	if len(r.NewSymptoms) > 0 {
		parts = append(parts, strings.Join(r.NewSymptoms, ", "))
	}
	if r.AdditionalConcerns != "" {
		parts = append(parts, r.AdditionalConcerns)
	}
	return strings.Join(parts, ". ")
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish follow-up event")
	}
}
