package domain

import (
	"context"
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// ListFilter narrows case listings. Zero values mean no constraint.
type ListFilter struct {
	SubjectID types.ID
	Status    Status
	Priority  Priority
	Limit     int
	Offset    int
}

// Repository persists case aggregates.
type Repository interface {
	Save(ctx context.Context, c *Case) error
	Update(ctx context.Context, c *Case) error
	FindByID(ctx context.Context, id types.ID) (*Case, error)
	List(ctx context.Context, filter ListFilter) ([]*Case, error)

	// FindOpenBySubject returns the subject's non-terminal cases,
	// newest first.
	FindOpenBySubject(ctx context.Context, subjectID types.ID) ([]*Case, error)

	// ListResolvedBefore returns cases resolved at or before the cutoff,
	// used by the auto-close pass.
	ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]*Case, error)

	// CountByStatus returns the number of cases per status, optionally
	// restricted to one subject.
	CountByStatus(ctx context.Context, subjectID types.ID) (map[Status]int, error)
}
