package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run records to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the dashboard read while runs are written
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS poll_runs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id         TEXT NOT NULL,
			board          TEXT NOT NULL,
			chain_id       INTEGER,
			outcome        TEXT NOT NULL,
			attempts       INTEGER NOT NULL,
			strategy_count INTEGER NOT NULL,
			reason         TEXT,
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_poll_runs_finished ON poll_runs(finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_poll_runs_board ON poll_runs(board)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun inserts one record.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO poll_runs (job_id, board, chain_id, outcome, attempts, strategy_count, reason, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.JobID, run.Board, run.ChainID, run.Outcome, run.Attempts, run.StrategyCount, run.Reason,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert poll run: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id, board, chain_id, outcome, attempts, strategy_count, reason, started_at, finished_at
		 FROM poll_runs ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query poll runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []Run{}
	for rows.Next() {
		var (
			run               Run
			chainID           sql.NullInt64
			reason            sql.NullString
			started, finished int64
		)
		if err := rows.Scan(&run.JobID, &run.Board, &chainID, &run.Outcome, &run.Attempts,
			&run.StrategyCount, &reason, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan poll run: %w", err)
		}
		run.ChainID = chainID.Int64
		run.Reason = reason.String
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
