package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Supervisor errors.
var (
	ErrNotStarted     = errors.New("supervisor not started")
	ErrStopped        = errors.New("supervisor stopped")
	ErrAlreadyTracked = errors.New("job already tracked")
)

// runEventBuffer is the capacity of a run's event channel. The last slot is
// reserved for the terminal event.
const runEventBuffer = 16

// Event is a progress or terminal notification from a [Run]. Exactly one
// of Progress and Outcome is set.
type Event struct {
	JobID      string
	Board      string
	Generation uint64
	Progress   *Progress
	Outcome    *Outcome
}

// Terminal reports whether e carries the run's outcome.
func (e Event) Terminal() bool {
	return e.Outcome != nil
}

// Run is one supervised polling lifecycle.
//
// Events are delivered on [Run.Events]. Progress events are dropped when the
// consumer falls behind; the terminal event is always delivered unless the
// run was cancelled first. The channel closes when the run ends.
type Run struct {
	jobID      string
	board      string
	generation uint64
	events     chan Event
	done       chan struct{}
	cancel     context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	delivered bool
}

// JobID returns the job handle being polled.
func (r *Run) JobID() string { return r.jobID }

// Board returns the board the run belongs to.
func (r *Run) Board() string { return r.board }

// Generation returns the run's supervisor-wide generation number.
func (r *Run) Generation() uint64 { return r.generation }

// Events returns the run's event stream.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed once the run's goroutine has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel stops the run. It returns true only for the call that actually
// cancelled a live run; later calls, and calls after the outcome was
// delivered, return false. Once Cancel returns true no outcome is delivered.
func (r *Run) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.delivered {
		return false
	}
	r.cancelled = true
	r.cancel()
	return true
}

// Cancelled reports whether the run was cancelled before delivering.
func (r *Run) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Run) emitProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.delivered {
		return
	}
	// only one goroutine sends, so the length check cannot race
	if len(r.events) < cap(r.events)-1 {
		r.events <- Event{JobID: r.jobID, Board: r.board, Generation: r.generation, Progress: &p}
	}
}

func (r *Run) deliver(o Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.delivered || o.Kind == OutcomeCancelled {
		return false
	}
	r.delivered = true
	r.events <- Event{JobID: r.jobID, Board: r.board, Generation: r.generation, Outcome: &o}
	return true
}

// Supervisor runs [JobPoller] lifecycles, one goroutine per job.
//
// Each board has at most one live run: tracking a new job on a board
// cancels the previous run first. Every run gets a strictly increasing
// generation number that consumers use to discard stale state.
//
// All methods are safe for concurrent use.
type Supervisor struct {
	poller *JobPoller
	logger *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	stopAll    context.CancelFunc
	started    bool
	stopped    bool
	generation uint64
	runs       map[string]*Run
	boards     map[string]*Run
	wg         sync.WaitGroup
}

// NewSupervisor creates a [Supervisor]. It must be started with
// [Supervisor.Start] before jobs can be tracked.
func NewSupervisor(p *JobPoller, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		poller: p,
		logger: logger,
		runs:   make(map[string]*Run),
		boards: make(map[string]*Run),
	}
}

// Start sets the parent context for all runs. If ctx is nil,
// context.Background() is used. Start is idempotent and a no-op after Stop.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.started = true
	s.ctx, s.stopAll = context.WithCancel(ctx)
}

// Track starts polling jobID for board, superseding the board's live run.
func (s *Supervisor) Track(board, jobID string) (*Run, error) {
	if jobID == "" {
		return nil, ErrEmptyJobID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopped:
		return nil, ErrStopped
	case !s.started:
		return nil, ErrNotStarted
	}
	if _, ok := s.runs[jobID]; ok {
		return nil, ErrAlreadyTracked
	}

	if prev, ok := s.boards[board]; ok {
		if prev.Cancel() {
			s.logger.Info("superseded job polling",
				"board", board,
				"stale_job_id", prev.jobID,
				"job_id", jobID,
			)
		}
	}

	s.generation++
	ctx, cancel := context.WithCancel(s.ctx)
	run := &Run{
		jobID:      jobID,
		board:      board,
		generation: s.generation,
		events:     make(chan Event, runEventBuffer),
		done:       make(chan struct{}),
		cancel:     cancel,
	}
	s.runs[jobID] = run
	s.boards[board] = run

	s.wg.Add(1)
	go s.execute(ctx, run)

	return run, nil
}

// Cancel cancels the live run for jobID. Unknown, finished and already
// cancelled jobs are a no-op returning false.
func (s *Supervisor) Cancel(jobID string) bool {
	s.mu.Lock()
	run, ok := s.runs[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return run.Cancel()
}

// CancelBoard cancels the live run of board, if any.
func (s *Supervisor) CancelBoard(board string) bool {
	s.mu.Lock()
	run, ok := s.boards[board]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return run.Cancel()
}

// Active returns the number of runs still executing.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Stop cancels every run and waits for their goroutines to exit. Stop is
// idempotent and safe to call before Start.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	stopAll := s.stopAll
	s.mu.Unlock()

	for _, r := range runs {
		r.Cancel()
	}
	if stopAll != nil {
		stopAll()
	}
	s.wg.Wait()
}

func (s *Supervisor) execute(ctx context.Context, run *Run) {
	defer s.wg.Done()

	outcome := s.poller.Poll(ctx, run.jobID, run.emitProgress)
	if !run.deliver(outcome) && outcome.Kind != OutcomeCancelled {
		s.logger.Debug("discarded outcome of cancelled run",
			"job_id", run.jobID,
			"outcome", string(outcome.Kind),
		)
	}
	run.cancel()

	s.mu.Lock()
	if s.runs[run.jobID] == run {
		delete(s.runs, run.jobID)
	}
	if s.boards[run.board] == run {
		delete(s.boards, run.board)
	}
	s.mu.Unlock()

	close(run.events)
	close(run.done)
}
