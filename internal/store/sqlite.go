package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sigma-trader/internal/errors"
	"sigma-trader/internal/models"
)

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based run journal.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		spot REAL,
		vol_index REAL,
		expiry DATETIME,
		provenance TEXT,
		strategy TEXT,
		sigma_mult REAL,
		decision_source TEXT,
		legs TEXT,
		risk TEXT,
		risk_reason TEXT,
		placed INTEGER DEFAULT 0,
		error_stage TEXT,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_symbol_started ON runs(symbol, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run == nil || run.ID == "" {
		return errors.NewValidationError("id", "", "run record requires an id")
	}
	legs, err := json.Marshal(run.Legs)
	if err != nil {
		return fmt.Errorf("failed to encode legs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, started_at, finished_at, symbol, spot, vol_index, expiry, provenance,
			strategy, sigma_mult, decision_source, legs, risk, risk_reason, placed, error_stage, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), strings.ToUpper(run.Symbol), run.Spot, run.VolIndex,
		run.Expiry.UTC(), string(run.Provenance), string(run.Strategy), run.SigmaMult, string(run.Source),
		string(legs), string(run.Risk), run.RiskReason, run.Placed, run.ErrStage, run.ErrMessage)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, fmt.Sprintf("failed to save run: %v", err))
	}
	return nil
}

const runColumns = `id, started_at, finished_at, symbol, COALESCE(spot, 0), COALESCE(vol_index, 0), expiry,
	COALESCE(provenance, ''), COALESCE(strategy, ''), COALESCE(sigma_mult, 0), COALESCE(decision_source, ''),
	COALESCE(legs, 'null'), COALESCE(risk, ''), COALESCE(risk_reason, ''), placed,
	COALESCE(error_stage, ''), COALESCE(error_message, '')`

// LastRun returns the most recent completed run for symbol.
func (s *SQLiteStore) LastRun(ctx context.Context, symbol string) (*RunRecord, error) {
	return s.last(ctx, RunFilter{Symbol: symbol, Completed: true, Limit: 1})
}

// LastPosition returns the most recent approved run whose order was placed.
func (s *SQLiteStore) LastPosition(ctx context.Context, symbol string) (*RunRecord, error) {
	return s.last(ctx, RunFilter{Symbol: symbol, Completed: true, Placed: true, Limit: 1})
}

func (s *SQLiteStore) last(ctx context.Context, filter RunFilter) (*RunRecord, error) {
	runs, err := s.ListRuns(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.ErrDataNotFound
	}
	return &runs[0], nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, strings.ToUpper(filter.Symbol))
	}
	if !filter.StartDate.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Completed {
		query += " AND COALESCE(error_stage, '') = '' AND COALESCE(error_message, '') = ''"
	}
	if filter.Placed {
		query += " AND placed = 1 AND risk = ?"
		args = append(args, string(models.RiskApproved))
	}

	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var provenance, strategy, source, legsJSON, risk string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Symbol, &r.Spot, &r.VolIndex, &r.Expiry,
			&provenance, &strategy, &r.SigmaMult, &source, &legsJSON, &risk, &r.RiskReason, &r.Placed,
			&r.ErrStage, &r.ErrMessage); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Provenance = models.Provenance(provenance)
		r.Strategy = models.Strategy(strategy)
		r.Source = models.DecisionSource(source)
		r.Risk = models.RiskDecision(risk)
		if err := json.Unmarshal([]byte(legsJSON), &r.Legs); err != nil {
			return nil, fmt.Errorf("failed to decode legs for run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

var _ Journal = (*SQLiteStore)(nil)
