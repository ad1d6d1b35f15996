package staff

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/carebridge/platform/internal/shared/config"
	apperrors "github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// LegacyDirectory implements Directory against the hospital information
// system's staff roster on SQL Server. The roster table is expected to
// carry StaffID, FullName, Capabilities (comma-separated) and OnDuty
// columns.
type LegacyDirectory struct {
	db    *sql.DB
	table string
}

// NewLegacyDirectory opens a connection to the HIS roster.
func NewLegacyDirectory(cfg config.StaffDirConfig) (*LegacyDirectory, error) {
	if cfg.LegacyDSN == "" {
		return nil, fmt.Errorf("legacy staff directory requires a DSN")
	}

	db, err := sql.Open("sqlserver", cfg.LegacyDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open HIS roster: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	table := cfg.RosterTable
	if table == "" {
		table = "dbo.StaffRoster"
	}
	return &LegacyDirectory{db: db, table: table}, nil
}

var _ Directory = (*LegacyDirectory)(nil)

// Ping verifies HIS connectivity.
func (d *LegacyDirectory) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the connection pool.
func (d *LegacyDirectory) Close() error {
	return d.db.Close()
}

func (d *LegacyDirectory) FindEligible(ctx context.Context, severity int) ([]Member, error) {
	query := fmt.Sprintf(`
		SELECT StaffID, FullName, Capabilities, OnDuty
		FROM %s
		WHERE OnDuty = 1
		ORDER BY FullName
	`, d.table)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query HIS roster: %w", err)
	}
	defer rows.Close()

	required := RequiredCapability(severity)
	var eligible []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		// Capability filtering stays on our side: HIS schemas vary too
		// much to push the implication rule into SQL.
		if m.HasCapability(required) {
			eligible = append(eligible, m)
		}
	}
	return eligible, rows.Err()
}

func (d *LegacyDirectory) Get(ctx context.Context, id types.ID) (Member, error) {
	query := fmt.Sprintf(`
		SELECT StaffID, FullName, Capabilities, OnDuty
		FROM %s
		WHERE StaffID = @id
	`, d.table)

	m, err := scanMember(d.db.QueryRowContext(ctx, query, sql.Named("id", id.String())))
	if err == sql.ErrNoRows {
		return Member{}, apperrors.NotFound("staff member", id.String())
	}
	if err != nil {
		return Member{}, fmt.Errorf("failed to fetch staff member: %w", err)
	}
	return m, nil
}

type memberScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row memberScanner) (Member, error) {
	var m Member
	var rawID string
	var capabilities sql.NullString

	if err := row.Scan(&rawID, &m.Name, &capabilities, &m.OnDuty); err != nil {
		return Member{}, err
	}
	m.ID = types.ID(rawID)
	if capabilities.Valid {
		m.Capabilities = splitCapabilities(capabilities.String)
	}
	return m, nil
}

func splitCapabilities(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
