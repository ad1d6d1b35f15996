// Package stats aggregates operational counters across cases and
// follow-ups for dashboards and the stats endpoint.
package stats

import (
	"context"
	"time"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/followup"
	"github.com/carebridge/platform/internal/shared/types"
)

// Statistics is a point-in-time snapshot. ResponseRate is the fraction
// of follow-ups ever scheduled that received a patient response,
// superseded ones excluded from both sides.
type Statistics struct {
	TotalCases          int            `json:"total_cases"`
	CasesByStatus       map[string]int `json:"cases_by_status"`
	PendingFollowups    int            `json:"pending_followups"`
	OverdueFollowups    int            `json:"overdue_followups"`
	CriticalOverdue     int            `json:"critical_overdue"`
	ResponseRate        float64        `json:"response_rate"`
	FollowupsByPriority map[string]int `json:"followups_by_priority"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

// Aggregator computes statistics from the case and follow-up stores.
type Aggregator struct {
	cases     domain.Repository
	followups followup.Repository
}

// NewAggregator creates a statistics aggregator.
func NewAggregator(cases domain.Repository, followups followup.Repository) *Aggregator {
	return &Aggregator{cases: cases, followups: followups}
}

// Snapshot computes current statistics. A zero subject covers the whole
// system; a patient passes their own ID and sees only their numbers.
func (a *Aggregator) Snapshot(ctx context.Context, subjectID types.ID) (*Statistics, error) {
	byStatus, err := a.cases.CountByStatus(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		CasesByStatus:       make(map[string]int, len(byStatus)),
		FollowupsByPriority: make(map[string]int),
		GeneratedAt:         time.Now().UTC(),
	}
	for status, n := range byStatus {
		stats.CasesByStatus[string(status)] = n
		stats.TotalCases += n
	}

	pending, err := a.followups.ListPending(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stats.PendingFollowups = len(pending)
	for _, f := range pending {
		stats.FollowupsByPriority[string(f.Priority)]++
		if !f.IsOverdue(now) {
			continue
		}
		stats.OverdueFollowups++
		if f.Priority == domain.PriorityCritical {
			stats.CriticalOverdue++
		}
	}

	total, completed, err := a.followups.Counts(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		stats.ResponseRate = float64(completed) / float64(total)
	}
	return stats, nil
}
