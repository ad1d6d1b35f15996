// Package staff resolves which clinical staff may take a case. The
// directory abstracts the roster source: an in-memory roster for small
// deployments and tests, or the hospital information system over SQL
// Server for sites that already maintain one.
package staff

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// Member is one staff member in the roster.
type Member struct {
	ID           types.ID `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	OnDuty       bool     `json:"on_duty"`
}

// HasCapability reports whether the member carries the capability.
// Emergency clearance implies medical clearance.
func (m Member) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
		if capability == "medical" && c == "emergency" {
			return true
		}
	}
	return false
}

// Directory looks up staff eligible to handle cases.
type Directory interface {
	// FindEligible returns on-duty staff holding the capability a case of
	// the given severity requires.
	FindEligible(ctx context.Context, severity int) ([]Member, error)

	// Get returns one member by ID.
	Get(ctx context.Context, id types.ID) (Member, error)
}

// RequiredCapability maps severity to the clearance a handler needs.
func RequiredCapability(severity int) string {
	if severity >= 4 {
		return "emergency"
	}
	return "medical"
}

// MemoryDirectory implements Directory from a fixed roster.
type MemoryDirectory struct {
	mu      sync.RWMutex
	members map[types.ID]Member
}

// NewMemoryDirectory creates a directory seeded with the given roster.
func NewMemoryDirectory(members ...Member) *MemoryDirectory {
	d := &MemoryDirectory{members: make(map[types.ID]Member)}
	for _, m := range members {
		d.members[m.ID] = m
	}
	return d
}

var _ Directory = (*MemoryDirectory)(nil)

// Upsert adds or replaces a roster entry.
func (d *MemoryDirectory) Upsert(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
}

func (d *MemoryDirectory) FindEligible(_ context.Context, severity int) ([]Member, error) {
	required := RequiredCapability(severity)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var eligible []Member
	for _, m := range d.members {
		if m.OnDuty && m.HasCapability(required) {
			eligible = append(eligible, m)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Name < eligible[j].Name })
	return eligible, nil
}

func (d *MemoryDirectory) Get(_ context.Context, id types.ID) (Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.members[id]
	if !ok {
		return Member{}, apperrors.NotFound("staff member", id.String())
	}
	return m, nil
}
