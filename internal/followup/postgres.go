package followup

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Save(ctx context.Context, f *Followup) error {
	responseJSON, err := marshalResponse(f.Response)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO triage.followups (
			id, case_id, subject_id, type, priority, status,
			scheduled_date, overdue_date, timeframe_window_days,
			reminders_sent, escalation_emitted, superseded,
			completed_date, response, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.pool.Exec(ctx, query,
		f.ID, f.CaseID, f.SubjectID, f.Type, f.Priority, f.Status,
		f.ScheduledDate, f.OverdueDate, f.WindowDays,
		f.RemindersSent, f.EscalationEmitted, f.Superseded,
		f.CompletedDate, responseJSON, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save follow-up")
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, f *Followup) error {
	responseJSON, err := marshalResponse(f.Response)
	if err != nil {
		return err
	}

	query := `
		UPDATE triage.followups SET
			status = $2, reminders_sent = $3, escalation_emitted = $4,
			superseded = $5, completed_date = $6, response = $7, updated_at = $8
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		f.ID, f.Status, f.RemindersSent, f.EscalationEmitted,
		f.Superseded, f.CompletedDate, responseJSON, f.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update follow-up")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("follow-up", f.ID.String())
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Followup, error) {
	query := followupSelect + ` WHERE id = $1`

	f, err := scanFollowup(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("follow-up", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find follow-up")
	}
	return f, nil
}

func (r *PostgresRepository) FindPendingByCase(ctx context.Context, caseID types.ID) ([]*Followup, error) {
	query := followupSelect + ` WHERE case_id = $1 AND status = 'pending' ORDER BY scheduled_date`
	return r.queryFollowups(ctx, query, caseID)
}

func (r *PostgresRepository) ListPending(ctx context.Context, subjectID types.ID) ([]*Followup, error) {
	if subjectID.IsZero() {
		query := followupSelect + ` WHERE status = 'pending' ORDER BY scheduled_date`
		return r.queryFollowups(ctx, query)
	}
	query := followupSelect + ` WHERE status = 'pending' AND subject_id = $1 ORDER BY scheduled_date`
	return r.queryFollowups(ctx, query, subjectID)
}

func (r *PostgresRepository) Counts(ctx context.Context, subjectID types.ID) (int, int, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		FROM triage.followups
		WHERE NOT superseded`
	var args []interface{}
	if !subjectID.IsZero() {
		query += ` AND subject_id = $1`
		args = append(args, subjectID)
	}

	var total, completed int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total, &completed); err != nil {
		return 0, 0, errors.Wrap(err, "failed to count follow-ups")
	}
	return total, completed, nil
}

const followupSelect = `
	SELECT id, case_id, subject_id, type, priority, status,
		scheduled_date, overdue_date, timeframe_window_days,
		reminders_sent, escalation_emitted, superseded,
		completed_date, response, created_at, updated_at
	FROM triage.followups`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFollowup(row rowScanner) (*Followup, error) {
	f := &Followup{}
	var responseJSON []byte

	err := row.Scan(
		&f.ID, &f.CaseID, &f.SubjectID, &f.Type, &f.Priority, &f.Status,
		&f.ScheduledDate, &f.OverdueDate, &f.WindowDays,
		&f.RemindersSent, &f.EscalationEmitted, &f.Superseded,
		&f.CompletedDate, &responseJSON, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(responseJSON) > 0 {
		var resp Response
		if err := json.Unmarshal(responseJSON, &resp); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal follow-up response")
		}
		f.Response = &resp
	}
	return f, nil
}

func (r *PostgresRepository) queryFollowups(ctx context.Context, query string, args ...interface{}) ([]*Followup, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query follow-ups")
	}
	defer rows.Close()

	var followups []*Followup
	for rows.Next() {
		f, err := scanFollowup(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan follow-up")
		}
		followups = append(followups, f)
	}
	return followups, nil
}

func marshalResponse(resp *Response) ([]byte, error) {
	if resp == nil {
		return nil, nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal follow-up response")
	}
	return data, nil
}
