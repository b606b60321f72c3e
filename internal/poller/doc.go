// Package poller drives asynchronous strategy jobs to a terminal outcome.
//
// This package is internal to yieldboard. It owns the HTTP client shared by
// the strategy backend and the chain RPC readers, the retry schedule, and
// the job polling state machine.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [Backoff]: capped exponential schedule with additive jitter
//   - [JobPoller]: polls one job until completed, failed or out of attempts
//   - [Supervisor]: runs pollers, supersedes stale jobs per board and
//     guarantees at most one terminal event per run
//
// Users of the yieldboard library should not need to interact with this
// package directly.
package poller
