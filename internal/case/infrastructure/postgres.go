// Package infrastructure provides the persistence implementations for the
// case repository.
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/platform/internal/case/domain"
	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save inserts a new case with its notes.
func (r *PostgresRepository) Save(ctx context.Context, c *domain.Case) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	kind, detail, err := sourceToRow(c.Source)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO triage.cases (
			id, case_number, subject_id, severity, status, priority,
			assigned_staff_id, source_kind, source_detail,
			created_at, updated_at, last_activity_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = tx.Exec(ctx, query,
		c.ID, c.CaseNumber, c.SubjectID, c.Severity, c.Status, c.Priority,
		c.AssignedStaffID, kind, detail,
		c.CreatedAt, c.UpdatedAt, c.LastActivityAt, c.ResolvedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("case already exists")
		}
		return errors.Wrap(err, "failed to save case")
	}

	for i := range c.Notes {
		if err := saveNote(ctx, tx, &c.Notes[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// Update writes the current aggregate state. New notes are inserted;
// existing notes are never modified.
func (r *PostgresRepository) Update(ctx context.Context, c *domain.Case) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE triage.cases SET
			severity = $2, status = $3, priority = $4, assigned_staff_id = $5,
			updated_at = $6, last_activity_at = $7, resolved_at = $8
		WHERE id = $1`

	result, err := tx.Exec(ctx, query,
		c.ID, c.Severity, c.Status, c.Priority, c.AssignedStaffID,
		c.UpdatedAt, c.LastActivityAt, c.ResolvedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update case")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("case", c.ID.String())
	}

	for i := range c.Notes {
		if err := saveNote(ctx, tx, &c.Notes[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// FindByID loads a case with its notes.
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.Case, error) {
	query := caseSelect + ` WHERE id = $1`

	c, err := scanCase(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find case")
	}

	notes, err := r.getNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Notes = notes
	return c, nil
}

// List lists cases with filters, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Case, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if !filter.SubjectID.IsZero() {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", argNum))
		args = append(args, filter.SubjectID)
		argNum++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", argNum))
		args = append(args, filter.Priority)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		caseSelect, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	return r.queryCases(ctx, query, args...)
}

// FindOpenBySubject returns the subject's non-terminal cases, newest first.
func (r *PostgresRepository) FindOpenBySubject(ctx context.Context, subjectID types.ID) ([]*domain.Case, error) {
	query := caseSelect + `
		WHERE subject_id = $1 AND status NOT IN ('closed', 'cancelled')
		ORDER BY created_at DESC`
	return r.queryCases(ctx, query, subjectID)
}

// ListResolvedBefore returns cases resolved at or before the cutoff.
func (r *PostgresRepository) ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Case, error) {
	query := caseSelect + `
		WHERE status = 'resolved' AND resolved_at <= $1
		ORDER BY resolved_at`
	return r.queryCases(ctx, query, cutoff)
}

// CountByStatus returns case counts per status.
func (r *PostgresRepository) CountByStatus(ctx context.Context, subjectID types.ID) (map[domain.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM triage.cases`
	var args []interface{}
	if !subjectID.IsZero() {
		query += ` WHERE subject_id = $1`
		args = append(args, subjectID)
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count cases")
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status domain.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan case count")
		}
		counts[status] = count
	}
	return counts, nil
}

const caseSelect = `
	SELECT id, case_number, subject_id, severity, status, priority,
		assigned_staff_id, source_kind, source_detail,
		created_at, updated_at, last_activity_at, resolved_at
	FROM triage.cases`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (*domain.Case, error) {
	c := &domain.Case{}
	var kind string
	var detail []byte
	var assignee *string

	err := row.Scan(
		&c.ID, &c.CaseNumber, &c.SubjectID, &c.Severity, &c.Status, &c.Priority,
		&assignee, &kind, &detail,
		&c.CreatedAt, &c.UpdatedAt, &c.LastActivityAt, &c.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignee != nil {
		c.AssignedStaffID = types.ID(*assignee)
	}
	source, err := rowToSource(kind, detail)
	if err != nil {
		return nil, err
	}
	c.Source = source
	return c, nil
}

func (r *PostgresRepository) queryCases(ctx context.Context, query string, args ...interface{}) ([]*domain.Case, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query cases")
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan case")
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func (r *PostgresRepository) getNotes(ctx context.Context, caseID types.ID) ([]domain.Note, error) {
	query := `
		SELECT id, case_id, author_id, author_role, content, visible_to_patient, created_at
		FROM triage.case_notes
		WHERE case_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get notes")
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		var n domain.Note
		err := rows.Scan(
			&n.ID, &n.CaseID, &n.AuthorID, &n.AuthorRole,
			&n.Content, &n.VisibleToPatient, &n.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan note")
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func saveNote(ctx context.Context, tx pgx.Tx, n *domain.Note) error {
	query := `
		INSERT INTO triage.case_notes (
			id, case_id, author_id, author_role, content, visible_to_patient, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		n.ID, n.CaseID, n.AuthorID, n.AuthorRole, n.Content, n.VisibleToPatient, n.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save note")
	}
	return nil
}

func sourceToRow(source domain.TriageSource) (string, []byte, error) {
	detail, err := json.Marshal(source)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to marshal triage source")
	}
	return string(source.Kind()), detail, nil
}

func rowToSource(kind string, detail []byte) (domain.TriageSource, error) {
	switch domain.SourceKind(kind) {
	case domain.SourceAuto:
		var s domain.AutoSource
		if err := json.Unmarshal(detail, &s); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal triage source")
		}
		return s, nil
	case domain.SourceManual:
		var s domain.ManualSource
		if err := json.Unmarshal(detail, &s); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal triage source")
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown triage source kind: %q", kind)
	}
}
