package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job statuses reported by the status service. Anything other than
// completed or failed keeps the job in flight.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// User-facing reasons for terminal outcomes without a service message.
const (
	DefaultFailureReason = "The backend service reported a failure. Please try again later."
	TimeoutReason        = "The strategy generation process took too long. Please try again later."
)

// OutcomeKind identifies how a polling lifecycle ended.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeTimedOut  OutcomeKind = "timed_out"
	// OutcomeCancelled is returned by [JobPoller.Poll] when its context ends.
	// It is never delivered as a terminal event.
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the terminal result of one polling lifecycle.
type Outcome struct {
	JobID      string
	Kind       OutcomeKind
	Strategies []json.RawMessage
	Reason     string
	Attempts   int
	Elapsed    time.Duration
}

// Progress is emitted once per attempt, before the attempt's wait.
type Progress struct {
	JobID     string
	Attempt   int
	NextDelay time.Duration
}

// StatusFetcher performs one status round trip for a job. Any error,
// including a non-2xx response, is treated as transient.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) ([]byte, error)
}

// StatusFetcherFunc adapts a function to [StatusFetcher].
type StatusFetcherFunc func(ctx context.Context, jobID string) ([]byte, error)

// FetchStatus implements [StatusFetcher].
func (f StatusFetcherFunc) FetchStatus(ctx context.Context, jobID string) ([]byte, error) {
	return f(ctx, jobID)
}

// StatusExtractor reads the job status from a status response body.
type StatusExtractor func(body []byte) string

// ResultExtractor reads the strategy items from a completed status body.
// It must return a non-nil slice.
type ResultExtractor func(body []byte) []json.RawMessage

// Config holds the polling schedule. Zero fields take the package defaults.
type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
	// NoJitter disables jitter regardless of JitterFraction.
	NoJitter bool
	// ImmediateFirstAttempt skips the wait before attempt 1.
	ImmediateFirstAttempt bool
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = DefaultJitterFraction
	}
	if c.NoJitter {
		c.JitterFraction = 0
	}
	return c
}

// Backoff returns the schedule described by c.
func (c Config) Backoff() Backoff {
	c = c.WithDefaults()
	return Backoff{Base: c.BaseDelay, Max: c.MaxDelay, JitterFraction: c.JitterFraction}
}

// JobPollerOption customizes a [JobPoller].
type JobPollerOption func(*JobPoller)

// WithStatusExtractor overrides how the job status is read.
func WithStatusExtractor(fn StatusExtractor) JobPollerOption {
	return func(p *JobPoller) {
		if fn != nil {
			p.statusOf = fn
		}
	}
}

// WithResultExtractor overrides how strategies are read from a completed body.
func WithResultExtractor(fn ResultExtractor) JobPollerOption {
	return func(p *JobPoller) {
		if fn != nil {
			p.resultOf = fn
		}
	}
}

// WithRandom sets the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) JobPollerOption {
	return func(p *JobPoller) {
		if fn != nil {
			p.random = fn
		}
	}
}

// WithWait replaces the inter-attempt wait. The function must return
// ctx.Err() when ctx ends before d elapses.
func WithWait(fn func(ctx context.Context, d time.Duration) error) JobPollerOption {
	return func(p *JobPoller) {
		if fn != nil {
			p.wait = fn
		}
	}
}

// JobPoller drives a single asynchronous job to a terminal outcome.
//
// A JobPoller holds no per-job state; every [JobPoller.Poll] call owns its
// own attempt counter, so one JobPoller may serve many jobs concurrently.
type JobPoller struct {
	fetcher  StatusFetcher
	cfg      Config
	backoff  Backoff
	logger   *slog.Logger
	statusOf StatusExtractor
	resultOf ResultExtractor
	random   func() float64
	wait     func(ctx context.Context, d time.Duration) error
}

// NewJobPoller creates a [JobPoller] that queries fetcher on the schedule
// described by cfg.
func NewJobPoller(fetcher StatusFetcher, cfg Config, logger *slog.Logger, opts ...JobPollerOption) *JobPoller {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.WithDefaults()
	p := &JobPoller{
		fetcher:  fetcher,
		cfg:      cfg,
		backoff:  cfg.Backoff(),
		logger:   logger,
		statusOf: DefaultStatus,
		resultOf: DefaultResult,
		random:   rand.Float64,
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective schedule.
func (p *JobPoller) Config() Config {
	return p.cfg
}

// Poll queries the status of jobID until it completes, fails, runs out of
// attempts or ctx ends. onProgress may be nil.
//
// Every attempt waits first (unless ImmediateFirstAttempt is set), then
// issues exactly one status request. Transport errors, non-2xx responses
// and unreadable bodies count as attempts and are retried on the same
// schedule. When ctx ends, Poll returns an [OutcomeCancelled] outcome and
// issues no further requests.
func (p *JobPoller) Poll(ctx context.Context, jobID string, onProgress func(Progress)) Outcome {
	start := time.Now()
	attempts := 0
	log := p.logger.With("job_id", jobID)

	finish := func(o Outcome) Outcome {
		o.JobID = jobID
		o.Attempts = attempts
		o.Elapsed = time.Since(start)
		if o.Strategies == nil && o.Kind == OutcomeCompleted {
			o.Strategies = []json.RawMessage{}
		}
		switch o.Kind {
		case OutcomeCancelled:
			log.Debug("job polling cancelled", "attempts", attempts)
		default:
			log.Info("job polling finished",
				"outcome", string(o.Kind),
				"attempts", attempts,
				"strategies", len(o.Strategies),
				"elapsed_ms", o.Elapsed.Milliseconds(),
			)
		}
		return o
	}

	for {
		if attempts >= p.cfg.MaxAttempts {
			return finish(Outcome{Kind: OutcomeTimedOut, Reason: TimeoutReason})
		}
		attempts++

		var delay time.Duration
		if attempts > 1 || !p.cfg.ImmediateFirstAttempt {
			delay = p.backoff.Delay(attempts, p.random())
		}

		if onProgress != nil {
			onProgress(Progress{JobID: jobID, Attempt: attempts, NextDelay: delay})
		}
		log.Debug("waiting before status attempt", "attempt", attempts, "delay_ms", delay.Milliseconds())

		if delay > 0 {
			if err := p.wait(ctx, delay); err != nil {
				return finish(Outcome{Kind: OutcomeCancelled})
			}
		}
		if ctx.Err() != nil {
			return finish(Outcome{Kind: OutcomeCancelled})
		}

		body, err := p.fetcher.FetchStatus(ctx, jobID)
		if ctx.Err() != nil {
			return finish(Outcome{Kind: OutcomeCancelled})
		}
		if err != nil {
			log.Warn("status check failed, will retry", "attempt", attempts, "error", err)
			continue
		}

		status, err := p.extractStatus(body)
		if err != nil {
			log.Warn("status body unreadable, will retry", "attempt", attempts, "error", err)
			continue
		}

		switch status {
		case StatusCompleted:
			strategies, err := p.extractResult(body)
			if err != nil {
				log.Warn("strategy extraction failed, will retry", "attempt", attempts, "error", err)
				continue
			}
			return finish(Outcome{Kind: OutcomeCompleted, Strategies: strategies})
		case StatusFailed:
			return finish(Outcome{Kind: OutcomeFailed, Reason: failureReason(body)})
		default:
			log.Debug("job still in progress", "attempt", attempts, "status", status)
		}
	}
}

// extractStatus calls the status extractor with panic recovery.
func (p *JobPoller) extractStatus(body []byte) (status string, err error) {
	defer p.recoverExtractor("status", &err)
	return strings.ToLower(strings.TrimSpace(p.statusOf(body))), nil
}

// extractResult calls the result extractor with panic recovery.
func (p *JobPoller) extractResult(body []byte) (items []json.RawMessage, err error) {
	defer p.recoverExtractor("result", &err)
	items = p.resultOf(body)
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// recoverExtractor logs a panicking extractor with a correlation ID and
// turns the panic into an error so the attempt is treated as transient.
func (p *JobPoller) recoverExtractor(kind string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	correlationID := uuid.NewString()
	p.logger.Error("extractor panic",
		"extractor", kind,
		"correlation_id", correlationID,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()),
	)
	*err = fmt.Errorf("extractor panic (correlation_id: %s)", correlationID)
}

// DefaultStatus reads the top-level "status" string.
func DefaultStatus(body []byte) string {
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Status
}

// DefaultResult returns the "strategies" array, falling back to "data",
// falling back to an empty slice. A field that is not an array is skipped.
func DefaultResult(body []byte) []json.RawMessage {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return []json.RawMessage{}
	}
	for _, key := range []string{"strategies", "data"} {
		var items []json.RawMessage
		if raw, ok := payload[key]; ok && json.Unmarshal(raw, &items) == nil && items != nil {
			return items
		}
	}
	return []json.RawMessage{}
}

// failureReason prefers a service-supplied message over the default.
func failureReason(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return DefaultFailureReason
	}
	for _, key := range []string{"message", "error", "reason"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return DefaultFailureReason
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrEmptyJobID is returned when a job handle is empty.
var ErrEmptyJobID = errors.New("job id is empty")
