// Package journal records completed runs in an embedded sqlite
// database so past scores and modes can be reviewed.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Entry is one recorded run.
type Entry struct {
	RunID        string    `db:"run_id"`
	Mode         string    `db:"mode"`
	BusinessGoal string    `db:"business_goal"`
	ScopeValue   string    `db:"scope_value"`
	Confidence   int       `db:"confidence"`
	Completeness int       `db:"completeness"`
	FindingCount int       `db:"finding_count"`
	RiskCount    int       `db:"risk_count"`
	Degraded     bool      `db:"degraded"`
	CreatedAt    time.Time `db:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	business_goal TEXT NOT NULL,
	scope_value   TEXT NOT NULL,
	confidence    INTEGER NOT NULL,
	completeness  INTEGER NOT NULL,
	finding_count INTEGER NOT NULL,
	risk_count    INTEGER NOT NULL,
	degraded      INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Journal wraps the runs database.
type Journal struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens (and migrates) the journal at path.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing connection; tests use this with sqlmock.
func NewWithDB(db *sqlx.DB, logger *zap.Logger) *Journal {
	return &Journal{db: db, logger: logger}
}

// Record inserts one run entry.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	const insert = `INSERT INTO runs (
		run_id, mode, business_goal, scope_value,
		confidence, completeness, finding_count, risk_count, degraded, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, insert,
		e.RunID, e.Mode, e.BusinessGoal, e.ScopeValue,
		e.Confidence, e.Completeness, e.FindingCount, e.RiskCount, e.Degraded, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	j.logger.Debug("run journaled", zap.String("run_id", e.RunID), zap.String("mode", e.Mode))
	return nil
}

// Recent returns the latest n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries,
		`SELECT run_id, mode, business_goal, scope_value,
		        confidence, completeness, finding_count, risk_count, degraded, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }
