package yieldboard

import (
	"encoding/json"
	"time"

	"github.com/jpalmerr/yieldboard/internal/chain"
	"github.com/jpalmerr/yieldboard/internal/recorder"
)

// OutcomeKind identifies how a strategy job ended.
//
// OutcomeKind is a string type so outcomes serialize and log readably.
type OutcomeKind string

const (
	// OutcomeCompleted indicates the job finished and strategies are available.
	OutcomeCompleted OutcomeKind = "completed"

	// OutcomeFailed indicates the strategy service reported a failure.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeTimedOut indicates the attempt budget ran out while the job was
	// still in flight. It is distinct from [OutcomeFailed].
	OutcomeTimedOut OutcomeKind = "timed_out"
)

// String returns the string representation of the kind.
func (k OutcomeKind) String() string {
	return string(k)
}

// Outcome is the terminal result of one strategy job.
//
// Exactly one Outcome is produced per job unless the job is cancelled, in
// which case none is.
type Outcome struct {
	// JobID is the handle issued by the submission service. Empty when the
	// service answered the submission with strategies directly.
	JobID string

	// Board is the dashboard slot the job belongs to.
	Board string

	// Generation orders jobs of the same board; newer jobs have larger values.
	Generation uint64

	Kind OutcomeKind

	// Strategies holds the decoded recommendations of a completed job. It is
	// non-nil (possibly empty) for completed jobs.
	Strategies []Strategy

	// RawStrategies holds the strategy items as returned by the service.
	RawStrategies []json.RawMessage

	// Reason is a user-displayable message for failed and timed out jobs.
	Reason string

	// Attempts is the number of status round trips made.
	Attempts int

	// Elapsed is the time from tracking start to the terminal state.
	Elapsed time.Duration
}

// Succeeded reports whether the job completed.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeCompleted
}

// ProgressEvent is published once per status attempt, before the wait that
// precedes it.
type ProgressEvent struct {
	JobID      string
	Board      string
	Generation uint64
	Attempt    int
	NextDelay  time.Duration
}

// Event is one notification from a [Run]. Exactly one field is set.
type Event struct {
	Progress *ProgressEvent
	Outcome  *Outcome
}

// Terminal reports whether e carries the run's outcome.
func (e Event) Terminal() bool {
	return e.Outcome != nil
}

// StatusExtractor reads the job status ("pending", "processing",
// "completed", "failed") from a status response body. An unrecognized or
// empty value keeps the job in flight.
//
// StatusExtractor functions are called within a panic recovery boundary. A
// panicking extractor counts as a transient failure of that attempt.
type StatusExtractor func(body []byte) string

// ResultExtractor reads the strategy items from a completed status body.
// Returning nil is treated as an empty result.
type ResultExtractor func(body []byte) []json.RawMessage

// Asset is one wallet holding. Address is "native" for the network's native
// coin.
type Asset = chain.Balance

// Network describes an EVM chain known to the advisor.
type Network = chain.Network

// Token is an ERC-20 contract checked when reading balances.
type Token = chain.Token

// ChainContext binds a network to an RPC connection for balance reads.
// Obtain one from [Advisor.ChainContext].
type ChainContext = chain.Context

// BalanceCache stores serialized balance snapshots.
type BalanceCache = chain.Cache

// RunRecord is the audit entry written when a job reaches a terminal state.
type RunRecord = recorder.Run

// RunRecorder persists [RunRecord] entries.
type RunRecorder = recorder.Recorder

// Portfolio is a submission: the holdings of one board on one chain.
type Portfolio struct {
	// Board identifies the dashboard slot, normally the wallet address.
	// Defaults to "default".
	Board   string
	ChainID int64
	Assets  []Asset
}

// Wallet is a wallet analysed when the advisor starts.
type Wallet struct {
	Address string
	ChainID int64

	// ProviderURL, when set, is polled for eth_chainId. A network switch
	// cancels the board's job, re-reads balances on the new chain and
	// resubmits.
	ProviderURL string
}
