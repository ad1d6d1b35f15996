package followup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
	"github.com/carebridge/platform/internal/triage"
)

type stubRetriager struct {
	calls      int
	lastText   string
	assessment *triage.Assessment
	err        error
}

func (r *stubRetriager) Retriage(_ context.Context, resp *Response) (*triage.Assessment, error) {
	r.calls++
	r.lastText = resp.ComplaintText()
	if r.err != nil {
		return nil, r.err
	}
	return r.assessment, nil
}

func seedPending(t *testing.T, repo Repository, subject types.ID) *Followup {
	t.Helper()
	f := New(types.NewID(), subject, TypeRecoveryAssessment, 3, time.Now().AddDate(0, 0, -5))
	if err := repo.Save(context.Background(), f); err != nil {
		t.Fatalf("seed follow-up: %v", err)
	}
	return f
}

func TestSubmitResponseRecordsAnswer(t *testing.T) {
	repo := NewMemoryRepository()
	bus := newCapturingBus()
	svc := NewService(repo, bus, nil, zerolog.Nop())
	subject := types.NewID()
	f := seedPending(t, repo, subject)

	got, assessment, err := svc.SubmitResponse(context.Background(), &Response{
		FollowupID:    f.ID,
		SubjectID:     subject,
		SymptomUpdate: "feeling much better",
		FeelingBetter: true,
	})
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if assessment != nil {
		t.Error("a positive response must not trigger re-triage")
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	stored, _ := repo.FindByID(context.Background(), f.ID)
	if stored.Response == nil || stored.Response.SymptomUpdate != "feeling much better" {
		t.Error("response must be persisted with the follow-up")
	}
	if stored.CompletedDate == nil {
		t.Error("completed date must be set")
	}
	if bus.count("followup.completed") != 1 {
		t.Error("expected a followup.completed event")
	}
	if bus.count("patient.responded") != 1 {
		t.Error("expected a patient.responded event")
	}
}

func TestSubmitResponseValidationFailsFast(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, newCapturingBus(), nil, zerolog.Nop())

	_, _, err := svc.SubmitResponse(context.Background(), &Response{
		FollowupID: types.NewID(),
		SubjectID:  types.NewID(),
	})
	if err == nil {
		t.Fatal("expected validation error for missing symptom update")
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Details["symptom_update"] != "required" {
		t.Errorf("details = %v, want symptom_update flagged", appErr.Details)
	}
}

func TestSubmitResponseWrongSubject(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, newCapturingBus(), nil, zerolog.Nop())
	f := seedPending(t, repo, types.NewID())

	_, _, err := svc.SubmitResponse(context.Background(), &Response{
		FollowupID:    f.ID,
		SubjectID:     types.NewID(),
		SymptomUpdate: "still coughing",
	})
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("err = %v, want forbidden for another patient's follow-up", err)
	}

	stored, _ := repo.FindByID(context.Background(), f.ID)
	if stored.Status != StatusPending {
		t.Error("follow-up must stay pending after a rejected response")
	}
}

func TestSubmitResponseReplayRejected(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, newCapturingBus(), nil, zerolog.Nop())
	subject := types.NewID()
	f := seedPending(t, repo, subject)

	resp := &Response{FollowupID: f.ID, SubjectID: subject, SymptomUpdate: "better", FeelingBetter: true}
	if _, _, err := svc.SubmitResponse(context.Background(), resp); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	_, _, err := svc.SubmitResponse(context.Background(), &Response{
		FollowupID:    f.ID,
		SubjectID:     subject,
		SymptomUpdate: "changed my mind",
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("err = %v, want conflict on replay", err)
	}
}

func TestSubmitResponseTriggersRetriage(t *testing.T) {
	repo := NewMemoryRepository()
	retriager := &stubRetriager{assessment: &triage.Assessment{Tier: triage.TierAmber}}
	svc := NewService(repo, newCapturingBus(), retriager, zerolog.Nop())
	subject := types.NewID()

	tests := []struct {
		name     string
		response Response
		want     int
	}{
		{
			name:     "not feeling better",
			response: Response{SymptomUpdate: "cough is worse", FeelingBetter: false},
			want:     1,
		},
		{
			name:     "explicit care request despite improving",
			response: Response{SymptomUpdate: "improving", FeelingBetter: true, RequiresFurtherCare: true},
			want:     1,
		},
		{
			name:     "improving",
			response: Response{SymptomUpdate: "almost back to normal", FeelingBetter: true},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriager.calls = 0
			f := seedPending(t, repo, subject)
			resp := tt.response
			resp.FollowupID = f.ID
			resp.SubjectID = subject

			_, assessment, err := svc.SubmitResponse(context.Background(), &resp)
			if err != nil {
				t.Fatalf("SubmitResponse failed: %v", err)
			}
			if retriager.calls != tt.want {
				t.Errorf("retriage calls = %d, want %d", retriager.calls, tt.want)
			}
			if tt.want == 1 && assessment == nil {
				t.Error("expected the new assessment to be returned")
			}
		})
	}
}

func TestSubmitResponseRetriageFailureKeepsRecord(t *testing.T) {
	repo := NewMemoryRepository()
	retriager := &stubRetriager{err: errors.New("inference unavailable")}
	svc := NewService(repo, newCapturingBus(), retriager, zerolog.Nop())
	subject := types.NewID()
	f := seedPending(t, repo, subject)

	got, assessment, err := svc.SubmitResponse(context.Background(), &Response{
		FollowupID:    f.ID,
		SubjectID:     subject,
		SymptomUpdate: "getting worse",
	})
	if err != nil {
		t.Fatalf("a failed re-triage must not fail the submission: %v", err)
	}
	if assessment != nil {
		t.Error("no assessment expected when re-triage fails")
	}
	if got.Status != StatusCompleted {
		t.Error("response must remain recorded")
	}
}

func TestComplaintText(t *testing.T) {
	r := &Response{
		SymptomUpdate:      "cough is worse",
		NewSymptoms:        []string{"fever", "fatigue"},
		AdditionalConcerns: "worried about work",
	}
	want := "cough is worse. fever, fatigue. worried about work"
	if got := r.ComplaintText(); got != want {
		t.Errorf("ComplaintText() = %q, want %q", got, want)
	}

	bare := &Response{SymptomUpdate: "mild headache"}
	if got := bare.ComplaintText(); got != "mild headache" {
		t.Errorf("ComplaintText() = %q, want just the update", got)
	}
}
