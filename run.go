package yieldboard

import (
	"context"
	"sync"
)

// runEventBuffer is the capacity of a run's event channel. The last slot is
// reserved for the outcome.
const runEventBuffer = 16

// Run is a handle to one submitted portfolio analysis.
//
// Progress events are dropped when the consumer falls behind; the outcome
// is always delivered unless the job is cancelled first. The event channel
// closes when the run ends.
type Run struct {
	jobID      string
	board      string
	generation uint64
	events     chan Event
	done       chan struct{}
	cancel     func() bool

	mu      sync.Mutex
	outcome *Outcome
}

func newRun(jobID, board string, generation uint64, cancel func() bool) *Run {
	return &Run{
		jobID:      jobID,
		board:      board,
		generation: generation,
		events:     make(chan Event, runEventBuffer),
		done:       make(chan struct{}),
		cancel:     cancel,
	}
}

// newCompletedRun returns a run that already holds o.
func newCompletedRun(o Outcome) *Run {
	r := newRun(o.JobID, o.Board, o.Generation, nil)
	r.publish(Event{Outcome: &o})
	r.finish()
	return r
}

// JobID returns the job handle, or "" when the service answered the
// submission immediately.
func (r *Run) JobID() string { return r.jobID }

// Board returns the board the run belongs to.
func (r *Run) Board() string { return r.board }

// Generation returns the run's generation. A newer submission for the same
// board has a larger generation.
func (r *Run) Generation() uint64 { return r.generation }

// Events returns the run's event stream.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed once the run has ended.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel stops polling. It is idempotent and returns true only for the call
// that cancelled a live run. Once Cancel returns true, no outcome is
// delivered.
func (r *Run) Cancel() bool {
	if r.cancel == nil {
		return false
	}
	return r.cancel()
}

// Outcome returns the run's outcome once delivered.
func (r *Run) Outcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome == nil {
		return Outcome{}, false
	}
	return *r.outcome, true
}

// Wait blocks until the run ends or ctx is done. A run that ended without
// an outcome returns [ErrCancelled].
func (r *Run) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		if o, ok := r.Outcome(); ok {
			return o, nil
		}
		return Outcome{}, ErrCancelled
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// publish is called from a single goroutine per run.
func (r *Run) publish(e Event) {
	if e.Outcome != nil {
		r.mu.Lock()
		o := *e.Outcome
		r.outcome = &o
		r.mu.Unlock()
		r.events <- e
		return
	}
	if len(r.events) < cap(r.events)-1 {
		r.events <- e
	}
}

func (r *Run) finish() {
	close(r.events)
	close(r.done)
}
