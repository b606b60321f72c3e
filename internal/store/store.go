package store

import (
	"encoding/json"
	"time"
)

// Board phases.
const (
	PhaseIdle       = "idle"
	PhaseSubmitting = "submitting"
	PhasePolling    = "polling"
	PhaseCompleted  = "completed"
	PhaseFailed     = "failed"
	PhaseTimedOut   = "timed_out"
	PhaseCancelled  = "cancelled"
	PhaseError      = "error"
)

// BoardState is the dashboard's view of one board (normally one wallet).
//
// BoardState is the storage representation used by the REST API and SSE.
// Strategies are kept as raw JSON so the store never interprets them.
type BoardState struct {
	// Board identifies the dashboard slot.
	Board string `json:"board"`

	// Generation is the lifecycle that produced this state. Updates from an
	// older generation are rejected.
	Generation uint64 `json:"generation"`

	JobID   string `json:"job_id,omitempty"`
	Phase   string `json:"phase"`
	ChainID int64  `json:"chain_id,omitempty"`

	// Attempts and NextDelayMs mirror the latest progress event.
	Attempts    int   `json:"attempts"`
	NextDelayMs int64 `json:"next_delay_ms"`

	Strategies []json.RawMessage `json:"strategies"`

	// Message is a user-displayable status or error line.
	Message string `json:"message,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines storage and subscription for board state.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores state keyed by Board and notifies subscribers. It returns
	// false, storing nothing, when state.Generation is older than the stored
	// generation for the same board.
	Update(state BoardState) bool

	// Get returns the state of one board.
	Get(board string) (BoardState, bool)

	// GetAll returns a snapshot of every board, sorted by board name.
	GetAll() []BoardState

	// Subscribe returns a buffered channel of accepted updates. Slow
	// consumers may miss updates. Callers must Unsubscribe when done.
	Subscribe() <-chan BoardState

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan BoardState)
}
