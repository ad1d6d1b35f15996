package stats

import (
	"context"
	"testing"
	"time"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/case/infrastructure"
	"github.com/carebridge/platform/internal/followup"
	"github.com/carebridge/platform/internal/shared/types"
)

func seedCase(t *testing.T, repo domain.Repository, subject types.ID, severity int) *domain.Case {
	t.Helper()
	c, err := domain.NewCase(subject, severity, domain.AutoSource{AssessedBy: "triage-engine", AssessmentID: types.NewID()})
	if err != nil {
		t.Fatalf("NewCase: %v", err)
	}
	if err := repo.Save(context.Background(), c); err != nil {
		t.Fatalf("save case: %v", err)
	}
	return c
}

func seedFollowup(t *testing.T, repo followup.Repository, subject types.ID, severity int, base time.Time) *followup.Followup {
	t.Helper()
	f := followup.New(types.NewID(), subject, followup.TypeForSeverity(severity), severity, base)
	if err := repo.Save(context.Background(), f); err != nil {
		t.Fatalf("save follow-up: %v", err)
	}
	return f
}

func TestSnapshotCountsCases(t *testing.T) {
	cases := infrastructure.NewMemoryRepository()
	followups := followup.NewMemoryRepository()
	agg := NewAggregator(cases, followups)
	subject := types.NewID()

	seedCase(t, cases, subject, 3)
	seedCase(t, cases, subject, 5)
	seedCase(t, cases, types.NewID(), 1)

	stats, err := agg.Snapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if stats.TotalCases != 3 {
		t.Errorf("total = %d, want 3", stats.TotalCases)
	}
	if stats.CasesByStatus["open"] != 3 {
		t.Errorf("open = %d, want 3", stats.CasesByStatus["open"])
	}
}

func TestSnapshotSubjectScoped(t *testing.T) {
	cases := infrastructure.NewMemoryRepository()
	followups := followup.NewMemoryRepository()
	agg := NewAggregator(cases, followups)
	mine, theirs := types.NewID(), types.NewID()

	seedCase(t, cases, mine, 3)
	seedCase(t, cases, theirs, 3)
	seedFollowup(t, followups, mine, 3, time.Now())
	seedFollowup(t, followups, theirs, 3, time.Now())

	stats, err := agg.Snapshot(context.Background(), mine)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if stats.TotalCases != 1 {
		t.Errorf("total = %d, want only the subject's case", stats.TotalCases)
	}
	if stats.PendingFollowups != 1 {
		t.Errorf("pending = %d, want only the subject's follow-up", stats.PendingFollowups)
	}
}

func TestSnapshotOverdueBreakdown(t *testing.T) {
	cases := infrastructure.NewMemoryRepository()
	followups := followup.NewMemoryRepository()
	agg := NewAggregator(cases, followups)
	subject := types.NewID()

	// Overdue critical, overdue medium, and one not yet due.
	seedFollowup(t, followups, subject, 5, time.Now().AddDate(0, 0, -10))
	seedFollowup(t, followups, subject, 3, time.Now().AddDate(0, 0, -30))
	seedFollowup(t, followups, subject, 1, time.Now())

	stats, err := agg.Snapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if stats.PendingFollowups != 3 {
		t.Errorf("pending = %d, want 3", stats.PendingFollowups)
	}
	if stats.OverdueFollowups != 2 {
		t.Errorf("overdue = %d, want 2", stats.OverdueFollowups)
	}
	if stats.CriticalOverdue != 1 {
		t.Errorf("critical overdue = %d, want 1", stats.CriticalOverdue)
	}
	if stats.FollowupsByPriority["critical"] != 1 || stats.FollowupsByPriority["low"] != 1 {
		t.Errorf("priority breakdown = %v", stats.FollowupsByPriority)
	}
}

func TestSnapshotResponseRateExcludesSuperseded(t *testing.T) {
	cases := infrastructure.NewMemoryRepository()
	followups := followup.NewMemoryRepository()
	agg := NewAggregator(cases, followups)
	subject := types.NewID()
	ctx := context.Background()

	answered := seedFollowup(t, followups, subject, 3, time.Now().AddDate(0, 0, -5))
	if err := answered.Complete(&followup.Response{
		FollowupID:    answered.ID,
		SubjectID:     subject,
		SymptomUpdate: "better",
		FeelingBetter: true,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := followups.Update(ctx, answered); err != nil {
		t.Fatalf("update: %v", err)
	}

	seedFollowup(t, followups, subject, 3, time.Now())

	superseded := seedFollowup(t, followups, subject, 1, time.Now())
	superseded.Supersede()
	if err := followups.Update(ctx, superseded); err != nil {
		t.Fatalf("update: %v", err)
	}

	stats, err := agg.Snapshot(ctx, "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	// One answered of two counted; the superseded one is invisible.
	if stats.ResponseRate != 0.5 {
		t.Errorf("response rate = %v, want 0.5", stats.ResponseRate)
	}
}

func TestSnapshotEmptySystem(t *testing.T) {
	agg := NewAggregator(infrastructure.NewMemoryRepository(), followup.NewMemoryRepository())

	stats, err := agg.Snapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if stats.TotalCases != 0 || stats.PendingFollowups != 0 || stats.ResponseRate != 0 {
		t.Errorf("empty system stats = %+v, want zeros", stats)
	}
}
