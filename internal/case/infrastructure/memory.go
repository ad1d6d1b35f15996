package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// MemoryRepository implements domain.Repository in memory. Used for tests
// and for running the service without a database.
type MemoryRepository struct {
	mu    sync.RWMutex
	cases map[types.ID]*domain.Case
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cases: make(map[types.ID]*domain.Case)}
}

var _ domain.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Save(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cases[c.ID]; exists {
		return errors.Conflict("case already exists")
	}
	r.cases[c.ID] = clone(c)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cases[c.ID]; !exists {
		return errors.NotFound("case", c.ID.String())
	}
	r.cases[c.ID] = clone(c)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id types.ID) (*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[id]
	if !ok {
		return nil, errors.NotFound("case", id.String())
	}
	return clone(c), nil
}

func (r *MemoryRepository) List(_ context.Context, filter domain.ListFilter) ([]*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Case
	for _, c := range r.cases {
		if !filter.SubjectID.IsZero() && c.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && c.Priority != filter.Priority {
			continue
		}
		matched = append(matched, clone(c))
	}
	sortNewestFirst(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *MemoryRepository) FindOpenBySubject(_ context.Context, subjectID types.ID) ([]*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []*domain.Case
	for _, c := range r.cases {
		if c.SubjectID == subjectID && !c.Status.IsTerminal() {
			open = append(open, clone(c))
		}
	}
	sortNewestFirst(open)
	return open, nil
}

func (r *MemoryRepository) ListResolvedBefore(_ context.Context, cutoff time.Time) ([]*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var resolved []*domain.Case
	for _, c := range r.cases {
		if c.Status == domain.StatusResolved && c.ResolvedAt != nil && !c.ResolvedAt.After(cutoff) {
			resolved = append(resolved, clone(c))
		}
	}
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].ResolvedAt.Before(*resolved[j].ResolvedAt)
	})
	return resolved, nil
}

func (r *MemoryRepository) CountByStatus(_ context.Context, subjectID types.ID) (map[domain.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.Status]int)
	for _, c := range r.cases {
		if !subjectID.IsZero() && c.SubjectID != subjectID {
			continue
		}
		counts[c.Status]++
	}
	return counts, nil
}

// clone copies the aggregate so callers never share note slices or
// timestamps with the stored state.
func clone(c *domain.Case) *domain.Case {
	copied := *c
	copied.Notes = make([]domain.Note, len(c.Notes))
	copy(copied.Notes, c.Notes)
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		copied.ResolvedAt = &t
	}
	return &copied
}

func sortNewestFirst(cases []*domain.Case) {
	sort.Slice(cases, func(i, j int) bool {
		return cases[i].CreatedAt.After(cases[j].CreatedAt)
	})
}
