package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/shared/types"
)

func mustCase(t *testing.T, subjectID types.ID, severity int) *domain.Case {
	t.Helper()
	c, err := domain.NewCase(subjectID, severity, domain.AutoSource{AssessedBy: "triage-engine"})
	if err != nil {
		t.Fatalf("NewCase failed: %v", err)
	}
	return c
}

func TestMemoryRepositorySaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	c := mustCase(t, types.NewID(), 3)

	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Save(ctx, c); err == nil {
		t.Error("expected conflict saving the same case twice")
	}

	found, err := repo.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.SubjectID != c.SubjectID || found.Severity != 3 {
		t.Errorf("loaded case does not match saved case")
	}

	if _, err := repo.FindByID(ctx, types.NewID()); err == nil {
		t.Error("expected not found for unknown id")
	}
}

func TestMemoryRepositoryIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	c := mustCase(t, types.NewID(), 3)

	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the stored state.
	c.Status = domain.StatusEscalated

	found, _ := repo.FindByID(ctx, c.ID)
	if found.Status != domain.StatusOpen {
		t.Errorf("stored status = %s, want %s", found.Status, domain.StatusOpen)
	}
}

func TestMemoryRepositoryFindOpenBySubject(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	subject := types.NewID()

	open := mustCase(t, subject, 3)
	repo.Save(ctx, open)

	cancelled := mustCase(t, subject, 2)
	cancelled.Cancel(types.NewID(), "duplicate")
	repo.Save(ctx, cancelled)

	other := mustCase(t, types.NewID(), 3)
	repo.Save(ctx, other)

	got, err := repo.FindOpenBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("FindOpenBySubject failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != open.ID {
		t.Errorf("expected only the open case for the subject, got %d cases", len(got))
	}
}

func TestMemoryRepositoryListFilters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	critical := mustCase(t, types.NewID(), 5)
	repo.Save(ctx, critical)
	low := mustCase(t, types.NewID(), 1)
	repo.Save(ctx, low)

	got, err := repo.List(ctx, domain.ListFilter{Priority: domain.PriorityCritical})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != critical.ID {
		t.Errorf("priority filter returned %d cases, want the critical one", len(got))
	}
}

func TestMemoryRepositoryListResolvedBefore(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	staff := types.NewID()

	c := mustCase(t, types.NewID(), 2)
	c.Claim(staff)
	c.Start(staff)
	if err := c.Resolve(staff, "symptoms cleared"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	repo.Save(ctx, c)

	got, err := repo.ListResolvedBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListResolvedBefore failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("resolved cases = %d, want 1", len(got))
	}

	got, _ = repo.ListResolvedBefore(ctx, time.Now().Add(-time.Hour))
	if len(got) != 0 {
		t.Errorf("cases resolved before an hour ago = %d, want 0", len(got))
	}
}

func TestMemoryRepositoryCountByStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	subject := types.NewID()

	repo.Save(ctx, mustCase(t, subject, 3))
	repo.Save(ctx, mustCase(t, subject, 2))
	repo.Save(ctx, mustCase(t, types.NewID(), 1))

	counts, err := repo.CountByStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[domain.StatusOpen] != 2 {
		t.Errorf("open count = %d, want 2", counts[domain.StatusOpen])
	}

	all, _ := repo.CountByStatus(ctx, "")
	if all[domain.StatusOpen] != 3 {
		t.Errorf("all open count = %d, want 3", all[domain.StatusOpen])
	}
}
