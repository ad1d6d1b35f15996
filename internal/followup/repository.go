package followup

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// Repository persists follow-ups.
type Repository interface {
	Save(ctx context.Context, f *Followup) error
	Update(ctx context.Context, f *Followup) error
	FindByID(ctx context.Context, id types.ID) (*Followup, error)

	// FindPendingByCase returns the case's pending follow-ups.
	FindPendingByCase(ctx context.Context, caseID types.ID) ([]*Followup, error)

	// ListPending returns pending follow-ups, optionally restricted to
	// one subject, ordered by scheduled date.
	ListPending(ctx context.Context, subjectID types.ID) ([]*Followup, error)

	// Counts returns total ever scheduled and completed-with-response
	// numbers, excluding superseded follow-ups. A zero subject counts all.
	Counts(ctx context.Context, subjectID types.ID) (total, completed int, err error)
}

// MemoryRepository implements Repository in memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	followups map[types.ID]*Followup
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{followups: make(map[types.ID]*Followup)}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Save(_ context.Context, f *Followup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.followups[f.ID]; exists {
		return apperrors.Conflict("follow-up already exists")
	}
	r.followups[f.ID] = cloneFollowup(f)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, f *Followup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.followups[f.ID]; !exists {
		return apperrors.NotFound("follow-up", f.ID.String())
	}
	r.followups[f.ID] = cloneFollowup(f)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id types.ID) (*Followup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.followups[id]
	if !ok {
		return nil, apperrors.NotFound("follow-up", id.String())
	}
	return cloneFollowup(f), nil
}

func (r *MemoryRepository) FindPendingByCase(_ context.Context, caseID types.ID) ([]*Followup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []*Followup
	for _, f := range r.followups {
		if f.CaseID == caseID && f.Status == StatusPending {
			pending = append(pending, cloneFollowup(f))
		}
	}
	sortByScheduled(pending)
	return pending, nil
}

func (r *MemoryRepository) ListPending(_ context.Context, subjectID types.ID) ([]*Followup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []*Followup
	for _, f := range r.followups {
		if f.Status != StatusPending {
			continue
		}
		if !subjectID.IsZero() && f.SubjectID != subjectID {
			continue
		}
		pending = append(pending, cloneFollowup(f))
	}
	sortByScheduled(pending)
	return pending, nil
}

func (r *MemoryRepository) Counts(_ context.Context, subjectID types.ID) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total, completed := 0, 0
	for _, f := range r.followups {
		if f.Superseded {
			continue
		}
		if !subjectID.IsZero() && f.SubjectID != subjectID {
			continue
		}
		total++
		if f.Status == StatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func cloneFollowup(f *Followup) *Followup {
	copied := *f
	if f.CompletedDate != nil {
		t := *f.CompletedDate
		copied.CompletedDate = &t
	}
	if f.Response != nil {
		resp := *f.Response
		resp.NewSymptoms = append([]string(nil), f.Response.NewSymptoms...)
		copied.Response = &resp
	}
	return &copied
}

func sortByScheduled(followups []*Followup) {
	sort.Slice(followups, func(i, j int) bool {
		if followups[i].ScheduledDate.Equal(followups[j].ScheduledDate) {
			return followups[i].CreatedAt.Before(followups[j].CreatedAt)
		}
		return followups[i].ScheduledDate.Before(followups[j].ScheduledDate)
	})
}
