package followup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/platform/internal/notify"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/types"
)

type capturingBus struct {
	*events.MemoryBus
	mu        sync.Mutex
	published []events.Event
}

func newCapturingBus() *capturingBus {
	return &capturingBus{MemoryBus: events.NewMemoryBus(zerolog.Nop())}
}

func (b *capturingBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	b.mu.Unlock()
	return b.MemoryBus.Publish(ctx, event)
}

func (b *capturingBus) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.published {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fakeDispatcher struct {
	mu       sync.Mutex
	messages []*notify.Message
	outcome  notify.Outcome
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{outcome: notify.Accepted()}
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg *notify.Message) notify.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outcome.OK {
		d.messages = append(d.messages, msg)
	}
	return d.outcome
}

func (d *fakeDispatcher) sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.messages)
}

func newTestScheduler(bus events.Bus, dispatcher notify.Dispatcher) (*Scheduler, *MemoryRepository) {
	repo := NewMemoryRepository()
	s := NewScheduler(repo, dispatcher, bus, zerolog.Nop(), time.Minute)
	return s, repo
}

func TestScheduleComputesDates(t *testing.T) {
	s, _ := newTestScheduler(newCapturingBus(), nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		severity   int
		ftype      Type
		wantOffset int
		wantWindow int
	}{
		{5, TypeCriticalFollowUp, 1, 1},
		{4, TypeCriticalFollowUp, 2, 1},
		{3, TypeRecoveryAssessment, 3, 3},
		{2, TypeMedicationReview, 7, 3},
		{1, TypeSymptomCheck, 14, 2},
	}

	for _, tt := range tests {
		f, err := s.Schedule(context.Background(), types.NewID(), types.NewID(), tt.severity, tt.ftype, base)
		if err != nil {
			t.Fatalf("Schedule(severity=%d) failed: %v", tt.severity, err)
		}

		wantScheduled := base.AddDate(0, 0, tt.wantOffset)
		if !f.ScheduledDate.Equal(wantScheduled) {
			t.Errorf("severity %d scheduled = %v, want %v", tt.severity, f.ScheduledDate, wantScheduled)
		}
		wantOverdue := wantScheduled.AddDate(0, 0, tt.wantWindow)
		if !f.OverdueDate.Equal(wantOverdue) {
			t.Errorf("type %s overdue = %v, want %v", tt.ftype, f.OverdueDate, wantOverdue)
		}
		if f.Status != StatusPending {
			t.Errorf("status = %s, want pending", f.Status)
		}
	}
}

func TestTypeForSeverity(t *testing.T) {
	tests := []struct {
		severity int
		want     Type
	}{
		{5, TypeCriticalFollowUp},
		{4, TypeCriticalFollowUp},
		{3, TypeRecoveryAssessment},
		{2, TypeRecoveryAssessment},
		{1, TypeSymptomCheck},
	}
	for _, tt := range tests {
		if got := TypeForSeverity(tt.severity); got != tt.want {
			t.Errorf("TypeForSeverity(%d) = %s, want %s", tt.severity, got, tt.want)
		}
	}
}

func TestScheduleSupersedesDuplicate(t *testing.T) {
	s, repo := newTestScheduler(newCapturingBus(), nil)
	ctx := context.Background()
	caseID, subject := types.NewID(), types.NewID()

	first, err := s.Schedule(ctx, caseID, subject, 5, TypeCriticalFollowUp, time.Now())
	if err != nil {
		t.Fatalf("first Schedule failed: %v", err)
	}
	second, err := s.Schedule(ctx, caseID, subject, 5, TypeCriticalFollowUp, time.Now())
	if err != nil {
		t.Fatalf("second Schedule failed: %v", err)
	}

	pending, _ := repo.FindPendingByCase(ctx, caseID)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want exactly one open critical follow-up", len(pending))
	}
	if pending[0].ID != second.ID {
		t.Error("the newer follow-up must be the open one")
	}

	stored, _ := repo.FindByID(ctx, first.ID)
	if !stored.Superseded || stored.Status != StatusCompleted {
		t.Errorf("first follow-up superseded=%v status=%s, want superseded and completed", stored.Superseded, stored.Status)
	}
}

func TestScheduleKeepsDistinctTypes(t *testing.T) {
	s, repo := newTestScheduler(newCapturingBus(), nil)
	ctx := context.Background()
	caseID, subject := types.NewID(), types.NewID()

	s.Schedule(ctx, caseID, subject, 2, TypeMedicationReview, time.Now())
	s.Schedule(ctx, caseID, subject, 2, TypeSymptomCheck, time.Now())

	pending, _ := repo.FindPendingByCase(ctx, caseID)
	if len(pending) != 2 {
		t.Errorf("pending = %d, want both distinct follow-up types open", len(pending))
	}
}

func TestScheduledOnCaseCreatedEvent(t *testing.T) {
	bus := newCapturingBus()
	s, repo := newTestScheduler(bus, nil)
	s.SubscribeToEvents()
	ctx := context.Background()

	caseID, subject := types.NewID(), types.NewID()
	bus.Publish(ctx, events.NewEvent(events.TypeCaseCreated, "case-manager", map[string]interface{}{
		"case_id":    caseID.String(),
		"subject_id": subject.String(),
		"severity":   3,
	}))

	pending, _ := repo.FindPendingByCase(ctx, caseID)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1 after case.created", len(pending))
	}
	if pending[0].Type != TypeRecoveryAssessment {
		t.Errorf("type = %s, want %s for severity 3", pending[0].Type, TypeRecoveryAssessment)
	}
}

func TestResolutionRebasesCheckIn(t *testing.T) {
	bus := newCapturingBus()
	s, repo := newTestScheduler(bus, nil)
	s.SubscribeToEvents()
	ctx := context.Background()

	caseID, subject := types.NewID(), types.NewID()
	data := map[string]interface{}{
		"case_id":    caseID.String(),
		"subject_id": subject.String(),
		"severity":   1,
	}

	created := events.NewEvent(events.TypeCaseCreated, "case-manager", data)
	created.Timestamp = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	bus.Publish(ctx, created)

	resolvedAt := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)
	resolvedData := map[string]interface{}{
		"case_id":    caseID.String(),
		"subject_id": subject.String(),
		"severity":   1,
		"old_status": "in_progress",
		"new_status": "resolved",
	}
	resolved := events.NewEvent(events.TypeCaseStatusChanged, "case-manager", resolvedData)
	resolved.Timestamp = resolvedAt
	bus.Publish(ctx, resolved)

	pending, _ := repo.FindPendingByCase(ctx, caseID)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want exactly one symptom check after resolution", len(pending))
	}
	f := pending[0]
	if f.Type != TypeSymptomCheck {
		t.Errorf("type = %s, want %s", f.Type, TypeSymptomCheck)
	}
	if want := resolvedAt.AddDate(0, 0, 14); !f.ScheduledDate.Equal(want) {
		t.Errorf("scheduled = %v, want resolution + 14 days = %v", f.ScheduledDate, want)
	}
	if f.WindowDays != 2 {
		t.Errorf("window = %d days, want 2", f.WindowDays)
	}
}

func TestNonResolvedStatusChangeIgnored(t *testing.T) {
	bus := newCapturingBus()
	s, repo := newTestScheduler(bus, nil)
	s.SubscribeToEvents()
	ctx := context.Background()

	caseID := types.NewID()
	bus.Publish(ctx, events.NewEvent(events.TypeCaseStatusChanged, "case-manager", map[string]interface{}{
		"case_id":    caseID.String(),
		"subject_id": types.NewID().String(),
		"severity":   3,
		"old_status": "open",
		"new_status": "assigned",
	}))

	pending, _ := repo.FindPendingByCase(ctx, caseID)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 for a non-resolution status change", len(pending))
	}
}

func TestRunPassSendsDueReminder(t *testing.T) {
	dispatcher := newFakeDispatcher()
	s, repo := newTestScheduler(newCapturingBus(), dispatcher)
	ctx := context.Background()

	f, _ := s.Schedule(ctx, types.NewID(), types.NewID(), 3, TypeRecoveryAssessment, time.Now().AddDate(0, 0, -4))

	s.RunPass(ctx)

	if dispatcher.sent() != 1 {
		t.Fatalf("reminders sent = %d, want 1", dispatcher.sent())
	}
	stored, _ := repo.FindByID(ctx, f.ID)
	if stored.RemindersSent != 1 {
		t.Errorf("reminders_sent = %d, want 1", stored.RemindersSent)
	}
}

func TestRunPassSkipsNotYetDue(t *testing.T) {
	dispatcher := newFakeDispatcher()
	s, _ := newTestScheduler(newCapturingBus(), dispatcher)
	ctx := context.Background()

	s.Schedule(ctx, types.NewID(), types.NewID(), 1, TypeSymptomCheck, time.Now())
	s.RunPass(ctx)

	if dispatcher.sent() != 0 {
		t.Errorf("reminders sent = %d, want 0 before the scheduled date", dispatcher.sent())
	}
}

func TestReminderBudgetByPriority(t *testing.T) {
	dispatcher := newFakeDispatcher()
	s, repo := newTestScheduler(newCapturingBus(), dispatcher)
	ctx := context.Background()

	// Severity 1 yields low priority with a budget of one reminder.
	f, _ := s.Schedule(ctx, types.NewID(), types.NewID(), 1, TypeSymptomCheck, time.Now().AddDate(0, 0, -20))

	for i := 0; i < 4; i++ {
		s.RunPass(ctx)
	}

	if dispatcher.sent() != 1 {
		t.Errorf("reminders sent = %d, want 1 for low priority", dispatcher.sent())
	}
	stored, _ := repo.FindByID(ctx, f.ID)
	if stored.RemindersSent != 1 {
		t.Errorf("reminders_sent = %d, want 1", stored.RemindersSent)
	}
}

func TestCriticalEscalationExactlyOnce(t *testing.T) {
	bus := newCapturingBus()
	s, repo := newTestScheduler(bus, nil)
	ctx := context.Background()

	// Critical follow-up well past its overdue date.
	f, _ := s.Schedule(ctx, types.NewID(), types.NewID(), 5, TypeCriticalFollowUp, time.Now().AddDate(0, 0, -10))

	for i := 0; i < 3; i++ {
		s.RunPass(ctx)
	}

	if got := bus.count(events.TypeFollowupEscalation); got != 1 {
		t.Errorf("escalation events = %d, want exactly 1 across repeated passes", got)
	}
	stored, _ := repo.FindByID(ctx, f.ID)
	if !stored.EscalationEmitted {
		t.Error("escalation_emitted flag must be persisted")
	}
}

func TestNonCriticalOverdueDoesNotEscalate(t *testing.T) {
	bus := newCapturingBus()
	s, _ := newTestScheduler(bus, nil)
	ctx := context.Background()

	s.Schedule(ctx, types.NewID(), types.NewID(), 3, TypeRecoveryAssessment, time.Now().AddDate(0, 0, -30))
	s.RunPass(ctx)

	if got := bus.count(events.TypeFollowupEscalation); got != 0 {
		t.Errorf("escalation events = %d, want 0 for non-critical follow-ups", got)
	}
	if got := bus.count(events.TypeFollowupOverdue); got != 1 {
		t.Errorf("overdue events = %d, want 1", got)
	}
}

func TestOverdueIsDerived(t *testing.T) {
	f := New(types.NewID(), types.NewID(), TypeSymptomCheck, 1, time.Now())

	if f.IsOverdue(time.Now()) {
		t.Error("fresh follow-up must not be overdue")
	}
	future := f.OverdueDate.Add(time.Minute)
	if !f.IsOverdue(future) {
		t.Error("follow-up past its overdue date must report overdue without any state change")
	}
}

func TestRunPassRemindersAfterDispatchFailureNotCounted(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.outcome = notify.Failed("queue full")
	s, repo := newTestScheduler(newCapturingBus(), dispatcher)
	ctx := context.Background()

	f, _ := s.Schedule(ctx, types.NewID(), types.NewID(), 3, TypeRecoveryAssessment, time.Now().AddDate(0, 0, -4))
	s.RunPass(ctx)

	stored, _ := repo.FindByID(ctx, f.ID)
	if stored.RemindersSent != 0 {
		t.Errorf("reminders_sent = %d, want 0 when dispatch was not accepted", stored.RemindersSent)
	}
}
