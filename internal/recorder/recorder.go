// Package recorder keeps an audit log of polling lifecycles.
//
// Only run metadata is stored (job, board, outcome, attempts, timing);
// strategy payloads are never persisted.
package recorder

import (
	"context"
	"time"
)

// DefaultRecentLimit bounds Recent when limit is not positive.
const DefaultRecentLimit = 50

// Run is the audit record of one terminal polling lifecycle.
type Run struct {
	JobID         string    `json:"job_id"`
	Board         string    `json:"board"`
	ChainID       int64     `json:"chain_id"`
	Outcome       string    `json:"outcome"`
	Attempts      int       `json:"attempts"`
	StrategyCount int       `json:"strategy_count"`
	Reason        string    `json:"reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Recorder persists run records.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// NoopRecorder discards all records.
type NoopRecorder struct{}

func (NoopRecorder) RecordRun(context.Context, Run) error { return nil }

func (NoopRecorder) Recent(context.Context, int) ([]Run, error) { return []Run{}, nil }

func (NoopRecorder) Close() error { return nil }
