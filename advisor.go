package yieldboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jpalmerr/yieldboard/dashboard"
	"github.com/jpalmerr/yieldboard/internal/backend"
	"github.com/jpalmerr/yieldboard/internal/cache"
	"github.com/jpalmerr/yieldboard/internal/chain"
	"github.com/jpalmerr/yieldboard/internal/poller"
	"github.com/jpalmerr/yieldboard/internal/recorder"
	"github.com/jpalmerr/yieldboard/internal/server"
	"github.com/jpalmerr/yieldboard/internal/store"
)

const (
	defaultPort  = 8080
	defaultBoard = "default"

	recordTimeout = 5 * time.Second
	dialTimeout   = 5 * time.Second
)

// Board messages shown on the dashboard.
const (
	msgSubmitting   = "Analyzing your portfolio..."
	msgPolling      = "Strategy generation in progress..."
	msgNoStrategies = "No strategies matched this portfolio."
	msgCancelled    = "Strategy generation was cancelled."
	msgNoAssets     = "No assets with a non-zero balance were found."
	msgSwitching    = "Network changed, reloading balances..."
)

// ErrSuperseded is returned by [Advisor.SubmitAndPoll] when a newer
// submission for the same board started while this one was being submitted.
var ErrSuperseded = errors.New("superseded by a newer submission")

// Advisor submits portfolios to a strategy service, polls the resulting
// jobs and serves the outcomes on a live dashboard.
//
// An Advisor is created with [New] and released with [Advisor.Close].
// [Advisor.SubmitAndPoll] works without the dashboard; [Advisor.Start]
// additionally serves HTTP and analyses the configured wallets.
//
//	adv, err := yieldboard.New(yieldboard.WithService(svc))
//	if err != nil {
//	    slog.Error("failed to create advisor", "error", err)
//	    os.Exit(1)
//	}
//	defer adv.Close()
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	adv.Start(ctx) // blocks until context cancelled
type Advisor struct {
	title           string
	port            int
	logger          *slog.Logger
	service         Service
	registry        *chain.Registry
	httpClient      *poller.Client
	backend         *backend.Client
	supervisor      *poller.Supervisor
	store           *store.MemoryStore
	reader          *chain.Reader
	recorder        RunRecorder
	closers         []io.Closer
	wallets         []Wallet
	watchInterval   time.Duration
	refreshSchedule string

	outcomeCallbacks  []func(Outcome)
	progressCallbacks []func(ProgressEvent)

	forwarders sync.WaitGroup
	stopOnce   sync.Once
	closeOnce  sync.Once
	closeErr   error

	mu          sync.Mutex
	generation  uint64
	boardGen    map[string]uint64
	boardChains map[string]int64
	callers     map[int64]chain.Caller
}

// New creates an [Advisor] with the given options.
//
// [WithService] is required. Other options have defaults:
//   - Port: 8080
//   - Polling: 30 attempts, 1s base delay, 30s cap, 30% jitter
//   - Networks: Ethereum, Polygon, Arbitrum One, Optimism, BNB Chain,
//     Avalanche and Fantom
//
// Resources requested by [WithRedisCache] and [WithSQLiteRunLog] are opened
// here; New fails if they cannot be.
func New(opts ...Option) (*Advisor, error) {
	cfg := &advisorConfig{port: defaultPort}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.service == nil {
		return nil, errors.New("a strategy service is required (use WithService)")
	}
	seen := make(map[string]bool, len(cfg.wallets))
	for _, w := range cfg.wallets {
		key := strings.ToLower(w.Address)
		if seen[key] {
			return nil, fmt.Errorf("duplicate wallet: %q", w.Address)
		}
		seen[key] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Advisor{
		title:             cfg.title,
		port:              cfg.port,
		logger:            logger,
		service:           *cfg.service,
		registry:          chain.NewRegistry(cfg.networks...),
		httpClient:        poller.NewClient(),
		store:             store.NewMemoryStore(),
		recorder:          cfg.recorder,
		wallets:           cfg.wallets,
		watchInterval:     cfg.watchInterval,
		refreshSchedule:   cfg.refreshSchedule,
		outcomeCallbacks:  cfg.outcomeCallbacks,
		progressCallbacks: cfg.progressCallbacks,
		boardGen:          make(map[string]uint64),
		boardChains:       make(map[string]int64),
		callers:           make(map[int64]chain.Caller),
	}
	for _, w := range cfg.wallets {
		a.boardChains[boardOf(w)] = w.ChainID
	}

	if err := a.openResources(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	be, err := backend.New(a.httpClient, a.service.backendConfig())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("invalid service: %w", err)
	}
	a.backend = be

	jobPoller := poller.NewJobPoller(be, cfg.poll.toPoller(), logger,
		poller.WithStatusExtractor(poller.StatusExtractor(a.service.statusExtractor)),
		poller.WithResultExtractor(poller.ResultExtractor(a.service.resultExtractor)),
	)
	a.supervisor = poller.NewSupervisor(jobPoller, logger)
	a.supervisor.Start(context.Background())

	return a, nil
}

func (a *Advisor) openResources(cfg *advisorConfig) error {
	balanceCache := cfg.balanceCache
	if cfg.redisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		rc, err := cache.Dial(ctx, cfg.redisURL)
		if err != nil {
			return fmt.Errorf("open balance cache: %w", err)
		}
		a.closers = append(a.closers, rc)
		balanceCache = rc
	}

	if balanceCache == nil {
		balanceCache = cache.Noop{}
	}
	a.reader = chain.NewReader(a.logger,
		chain.WithTokenBudget(cfg.tokenBudget),
		chain.WithTokenConcurrency(cfg.tokenConcurrency),
		chain.WithCache(balanceCache, cfg.cacheTTL),
	)

	if cfg.sqlitePath != "" {
		rec, err := recorder.NewSQLiteRecorder(cfg.sqlitePath)
		if err != nil {
			return fmt.Errorf("open run log: %w", err)
		}
		a.closers = append(a.closers, rec)
		a.recorder = rec
	}
	if a.recorder == nil {
		a.recorder = recorder.NoopRecorder{}
	}
	return nil
}

func (pc PollConfig) toPoller() poller.Config {
	return poller.Config{
		MaxAttempts:           pc.MaxAttempts,
		BaseDelay:             pc.BaseDelay,
		MaxDelay:              pc.MaxDelay,
		JitterFraction:        pc.JitterFraction,
		NoJitter:              pc.NoJitter,
		ImmediateFirstAttempt: pc.ImmediateFirstAttempt,
	}
}

// SubmitAndPoll submits p to the strategy service and tracks the job.
//
// Any live job of the same board is cancelled first; its outcome, if it
// arrives, is discarded. When the service answers with strategies directly
// the returned run is already complete.
//
// Returns [ErrNoAssets] when p holds no non-zero balance, [ErrUnknownChain]
// for an unregistered chain, and a wrapped error when submission fails.
func (a *Advisor) SubmitAndPoll(ctx context.Context, p Portfolio) (*Run, error) {
	board := p.Board
	if board == "" {
		board = defaultBoard
	}
	network, ok := a.registry.Lookup(p.ChainID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, p.ChainID)
	}
	assets := nonZero(p.Assets)
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}

	gen := a.nextGeneration(board, p.ChainID)
	a.supervisor.CancelBoard(board)
	a.store.Update(store.BoardState{
		Board:      board,
		Generation: gen,
		Phase:      store.PhaseSubmitting,
		ChainID:    p.ChainID,
		Message:    msgSubmitting,
		UpdatedAt:  time.Now(),
	})

	startedAt := time.Now()
	resp, err := a.backend.Submit(ctx, backend.SubmitRequest{
		BlockchainID: network.Slug,
		Assets:       toBackendAssets(assets),
	})
	if err != nil {
		a.store.Update(store.BoardState{
			Board:      board,
			Generation: gen,
			Phase:      store.PhaseError,
			ChainID:    p.ChainID,
			Message:    "Failed to generate strategy: " + err.Error(),
			UpdatedAt:  time.Now(),
		})
		a.logger.Warn("portfolio submission failed", "board", board, "chain_id", p.ChainID, "error", err)
		return nil, err
	}

	if resp.Immediate() {
		if !a.isCurrent(board, gen) {
			a.logger.Info("discarding superseded submission", "board", board)
			return nil, ErrSuperseded
		}
		o := a.completedOutcome("", board, gen, resp.Strategies, 0, time.Since(startedAt))
		a.applyOutcome(o, p.ChainID, startedAt)
		return newCompletedRun(o), nil
	}

	return a.track(board, resp.JobID, gen, p.ChainID, startedAt)
}

// Track resumes polling of a job that was submitted elsewhere, superseding
// the board's live job. An empty board is the default board.
func (a *Advisor) Track(board, jobID string) (*Run, error) {
	if board == "" {
		board = defaultBoard
	}
	if jobID == "" {
		return nil, poller.ErrEmptyJobID
	}
	chainID := a.boardChain(board, 0)
	gen := a.nextGeneration(board, chainID)
	a.supervisor.CancelBoard(board)
	return a.track(board, jobID, gen, chainID, time.Now())
}

func (a *Advisor) track(board, jobID string, gen uint64, chainID int64, startedAt time.Time) (*Run, error) {
	// checking the generation and tracking under one lock keeps a slower
	// older submission from superseding a newer one
	a.mu.Lock()
	if a.boardGen[board] != gen {
		a.mu.Unlock()
		a.logger.Info("discarding superseded submission", "board", board, "job_id", jobID)
		return nil, ErrSuperseded
	}
	tracked, err := a.supervisor.Track(board, jobID)
	a.mu.Unlock()
	if err != nil {
		a.store.Update(store.BoardState{
			Board:      board,
			Generation: gen,
			JobID:      jobID,
			Phase:      store.PhaseError,
			ChainID:    chainID,
			Message:    err.Error(),
			UpdatedAt:  time.Now(),
		})
		return nil, fmt.Errorf("track job %s: %w", jobID, err)
	}

	a.store.Update(store.BoardState{
		Board:      board,
		Generation: gen,
		JobID:      jobID,
		Phase:      store.PhasePolling,
		ChainID:    chainID,
		Message:    msgPolling,
		UpdatedAt:  time.Now(),
	})
	a.logger.Info("tracking strategy job", "board", board, "job_id", jobID, "generation", gen)

	run := newRun(jobID, board, gen, tracked.Cancel)
	a.forwarders.Add(1)
	go a.forward(tracked, run, chainID, startedAt)
	return run, nil
}

// forward applies a tracked job's events to the board, the callbacks and
// the public run, in that order.
func (a *Advisor) forward(tracked *poller.Run, run *Run, chainID int64, startedAt time.Time) {
	defer a.forwarders.Done()
	defer run.finish()

	for ev := range tracked.Events() {
		switch {
		case ev.Progress != nil:
			p := ProgressEvent{
				JobID:      run.jobID,
				Board:      run.board,
				Generation: run.generation,
				Attempt:    ev.Progress.Attempt,
				NextDelay:  ev.Progress.NextDelay,
			}
			a.store.Update(store.BoardState{
				Board:       run.board,
				Generation:  run.generation,
				JobID:       run.jobID,
				Phase:       store.PhasePolling,
				ChainID:     chainID,
				Attempts:    p.Attempt,
				NextDelayMs: p.NextDelay.Milliseconds(),
				Message:     msgPolling,
				UpdatedAt:   time.Now(),
			})
			for _, cb := range a.progressCallbacks {
				invokeCallbackSafe(cb, p, "progress", run.jobID, a.logger)
			}
			run.publish(Event{Progress: &p})

		case ev.Outcome != nil:
			// a newer lifecycle owns the board; this run ends as cancelled
			if !a.isCurrent(run.board, run.generation) {
				a.logger.Info("discarding outcome of superseded job", "board", run.board, "job_id", run.jobID)
				continue
			}
			o := a.toOutcome(*ev.Outcome, run)
			a.applyOutcome(o, chainID, startedAt)
			run.publish(Event{Outcome: &o})
		}
	}

	if _, delivered := run.Outcome(); !delivered {
		a.store.Update(store.BoardState{
			Board:      run.board,
			Generation: run.generation,
			JobID:      run.jobID,
			Phase:      store.PhaseCancelled,
			ChainID:    chainID,
			Message:    msgCancelled,
			UpdatedAt:  time.Now(),
		})
		a.logger.Info("strategy job cancelled", "board", run.board, "job_id", run.jobID)
	}
}

func (a *Advisor) toOutcome(po poller.Outcome, run *Run) Outcome {
	if po.Kind == poller.OutcomeCompleted {
		return a.completedOutcome(run.jobID, run.board, run.generation, po.Strategies, po.Attempts, po.Elapsed)
	}
	return Outcome{
		JobID:      run.jobID,
		Board:      run.board,
		Generation: run.generation,
		Kind:       OutcomeKind(po.Kind),
		Reason:     po.Reason,
		Attempts:   po.Attempts,
		Elapsed:    po.Elapsed,
	}
}

func (a *Advisor) completedOutcome(jobID, board string, gen uint64, raw []json.RawMessage, attempts int, elapsed time.Duration) Outcome {
	if raw == nil {
		raw = []json.RawMessage{}
	}
	return Outcome{
		JobID:         jobID,
		Board:         board,
		Generation:    gen,
		Kind:          OutcomeCompleted,
		Strategies:    ParseStrategies(raw),
		RawStrategies: raw,
		Attempts:      attempts,
		Elapsed:       elapsed,
	}
}

// applyOutcome updates the board, records the run and fires callbacks.
func (a *Advisor) applyOutcome(o Outcome, chainID int64, startedAt time.Time) {
	state := store.BoardState{
		Board:      o.Board,
		Generation: o.Generation,
		JobID:      o.JobID,
		ChainID:    chainID,
		Attempts:   o.Attempts,
		Message:    o.Reason,
		UpdatedAt:  time.Now(),
	}
	switch o.Kind {
	case OutcomeCompleted:
		state.Phase = store.PhaseCompleted
		state.Strategies = o.RawStrategies
		if len(o.RawStrategies) == 0 {
			state.Message = msgNoStrategies
		}
	case OutcomeFailed:
		state.Phase = store.PhaseFailed
	case OutcomeTimedOut:
		state.Phase = store.PhaseTimedOut
	}
	if !a.store.Update(state) {
		a.logger.Debug("stale outcome not shown", "board", o.Board, "job_id", o.JobID)
	}

	a.record(o, chainID, startedAt)

	for _, cb := range a.outcomeCallbacks {
		invokeCallbackSafe(cb, o, "outcome", o.JobID, a.logger)
	}

	logAttrs := []any{
		"board", o.Board,
		"job_id", o.JobID,
		"outcome", o.Kind.String(),
		"attempts", o.Attempts,
		"elapsed_ms", o.Elapsed.Milliseconds(),
	}
	if o.Kind == OutcomeCompleted {
		a.logger.Info("strategy job completed", append(logAttrs, "strategies", len(o.Strategies))...)
	} else {
		a.logger.Warn("strategy job ended without strategies", append(logAttrs, "reason", o.Reason)...)
	}
}

func (a *Advisor) record(o Outcome, chainID int64, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := a.recorder.RecordRun(ctx, RunRecord{
		JobID:         o.JobID,
		Board:         o.Board,
		ChainID:       chainID,
		Outcome:       o.Kind.String(),
		Attempts:      o.Attempts,
		StrategyCount: len(o.RawStrategies),
		Reason:        o.Reason,
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
	})
	if err != nil {
		a.logger.Warn("failed to record run", "job_id", o.JobID, "error", err)
	}
}

// Cancel cancels the job with the given handle. It is idempotent: unknown,
// finished and already cancelled jobs return false.
func (a *Advisor) Cancel(jobID string) bool {
	return a.supervisor.Cancel(jobID)
}

// ChainContext returns the chain context for chainID, connecting to the
// network's RPC URL on first use.
func (a *Advisor) ChainContext(chainID int64) (ChainContext, error) {
	network, ok := a.registry.Lookup(chainID)
	if !ok {
		return ChainContext{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	if network.RPCURL == "" {
		return ChainContext{}, fmt.Errorf("%w: %s", ErrNoRPC, network.Name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	caller, ok := a.callers[chainID]
	if !ok {
		caller = chain.NewRPCClient(a.httpClient, network.RPCURL, a.service.timeout)
		a.callers[chainID] = caller
	}
	return chain.NewContext(network, caller), nil
}

// Balances reads the wallet's native coin and common token balances on the
// network bound to cc.
func (a *Advisor) Balances(ctx context.Context, cc ChainContext, wallet string) ([]Asset, error) {
	return a.reader.Read(ctx, cc, wallet)
}

// TokenBalances reads specific token contracts; "native" selects the native
// coin. Unknown contracts are reported with the symbol UNKNOWN and zero
// balances are dropped.
func (a *Advisor) TokenBalances(ctx context.Context, cc ChainContext, wallet string, tokens []string) ([]Asset, error) {
	return a.reader.ReadTokens(ctx, cc, wallet, tokens)
}

// Explain renders a markdown walkthrough of s for a holder of assets.
func (a *Advisor) Explain(s Strategy, assets []Asset) string {
	return Explain(s, assets)
}

// Networks returns every registered network.
func (a *Advisor) Networks() []Network {
	return a.registry.All()
}

// RecentRuns returns up to limit recorded runs, newest first.
func (a *Advisor) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = recorder.DefaultRecentLimit
	}
	return a.recorder.Recent(ctx, limit)
}

// Port returns the configured HTTP port for the dashboard server.
func (a *Advisor) Port() int {
	return a.port
}

// Service returns the configured strategy service.
func (a *Advisor) Service() Service {
	return a.service
}

// Start serves the dashboard and analyses the configured wallets.
//
// Start blocks until ctx is cancelled. While running:
//
//   - The HTTP server serves the dashboard and API on the configured port
//   - Every configured wallet is read and submitted once
//   - Wallets with a provider URL are watched for network switches
//   - The refresh schedule, if any, resubmits every wallet
//
// On return every job has been cancelled; the advisor cannot be started
// again. Returns nil on graceful shutdown and an error if the HTTP server
// fails to start.
func (a *Advisor) Start(ctx context.Context) error {
	a.logger.Info("yieldboard starting",
		"wallet_count", len(a.wallets),
		"submit_url", a.service.submitURL,
	)
	a.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", a.port))

	if ctx.Err() != nil {
		return nil
	}

	httpServer := server.NewServer(a.store, &controller{a: a}, a.port, dashboard.Assets, a.title, a.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	var wg sync.WaitGroup
	for _, w := range a.wallets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.refreshWallet(ctx, w)
		}()

		if w.ProviderURL != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.watchWallet(ctx, w)
			}()
		}
	}

	var scheduler *cron.Cron
	if a.refreshSchedule != "" && len(a.wallets) > 0 {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(a.refreshSchedule, func() {
			for _, w := range a.wallets {
				a.reader.Forget(ctx, a.boardChain(boardOf(w), w.ChainID), w.Address)
				a.refreshWallet(ctx, w)
			}
		})
		if err != nil {
			a.logger.Error("refresh schedule rejected", "schedule", a.refreshSchedule, "error", err)
		} else {
			scheduler.Start()
			a.logger.Info("wallet refresh scheduled", "schedule", a.refreshSchedule)
		}
	}

	<-ctx.Done()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	wg.Wait()
	a.shutdown()
	a.logger.Info("yieldboard stopped")
	return nil
}

// refreshWallet reads the wallet's balances on its board's current chain
// and submits them.
func (a *Advisor) refreshWallet(ctx context.Context, w Wallet) {
	board := boardOf(w)
	chainID := a.boardChain(board, w.ChainID)

	cc, err := a.ChainContext(chainID)
	if err != nil {
		a.boardError(board, chainID, err)
		return
	}
	assets, err := a.reader.Read(ctx, cc, w.Address)
	if err != nil {
		if ctx.Err() == nil {
			a.boardError(board, chainID, err)
		}
		return
	}
	if current := a.boardChain(board, chainID); current != chainID {
		a.logger.Debug("wallet moved to another chain during balance read", "board", board, "chain_id", current)
		return
	}

	_, err = a.SubmitAndPoll(ctx, Portfolio{Board: board, ChainID: chainID, Assets: assets})
	switch {
	case errors.Is(err, ErrNoAssets):
		a.store.Update(store.BoardState{
			Board:      board,
			Generation: a.nextGeneration(board, chainID),
			Phase:      store.PhaseIdle,
			ChainID:    chainID,
			Message:    msgNoAssets,
			UpdatedAt:  time.Now(),
		})
	case err != nil && !errors.Is(err, ErrSuperseded):
		a.logger.Warn("wallet analysis failed", "board", board, "error", err)
	}
}

// watchWallet reacts to network switches of the wallet's provider.
func (a *Advisor) watchWallet(ctx context.Context, w Wallet) {
	caller := chain.NewRPCClient(a.httpClient, w.ProviderURL, a.service.timeout)
	watcher := chain.NewWatcher(caller, a.watchInterval, a.logger)
	watcher.SetBaseline(a.boardChain(boardOf(w), w.ChainID))
	changes, unsubscribe := watcher.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.Run(ctx)
	}()
	defer func() { <-done }()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			a.switchChain(ctx, w, change.Current)
		}
	}
}

// switchChain clears the board, cancels its job and starts over on chainID.
func (a *Advisor) switchChain(ctx context.Context, w Wallet, chainID int64) {
	board := boardOf(w)
	a.supervisor.CancelBoard(board)
	a.store.Update(store.BoardState{
		Board:      board,
		Generation: a.nextGeneration(board, chainID),
		Phase:      store.PhaseIdle,
		ChainID:    chainID,
		Message:    msgSwitching,
		UpdatedAt:  time.Now(),
	})

	if _, ok := a.registry.Lookup(chainID); !ok {
		a.boardError(board, chainID, fmt.Errorf("%w: %d", ErrUnknownChain, chainID))
		return
	}
	a.refreshWallet(ctx, w)
}

func (a *Advisor) boardError(board string, chainID int64, err error) {
	a.logger.Warn("board update failed", "board", board, "chain_id", chainID, "error", err)
	a.store.Update(store.BoardState{
		Board:      board,
		Generation: a.currentGeneration(board),
		Phase:      store.PhaseError,
		ChainID:    chainID,
		Message:    err.Error(),
		UpdatedAt:  time.Now(),
	})
}

// nextGeneration starts a new lifecycle for board on chainID.
func (a *Advisor) nextGeneration(board string, chainID int64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	a.boardGen[board] = a.generation
	if chainID != 0 {
		a.boardChains[board] = chainID
	}
	return a.generation
}

// isCurrent reports whether gen is still the newest lifecycle of board.
func (a *Advisor) isCurrent(board string, gen uint64) bool {
	return a.currentGeneration(board) == gen
}

func (a *Advisor) currentGeneration(board string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.boardGen[board]
}

func (a *Advisor) boardChain(board string, fallback int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.boardChains[board]; ok {
		return id
	}
	return fallback
}

// shutdown cancels every job and waits for their events to be applied.
func (a *Advisor) shutdown() {
	a.stopOnce.Do(func() {
		if a.supervisor != nil {
			a.supervisor.Stop()
		}
		a.forwarders.Wait()
	})
}

// Close cancels every job and releases the connections opened by [New].
// Close is idempotent.
func (a *Advisor) Close() error {
	a.shutdown()
	a.closeOnce.Do(func() {
		var errs []error
		for _, c := range a.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.httpClient.Close()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func boardOf(w Wallet) string {
	return strings.ToLower(w.Address)
}

func nonZero(assets []Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, asset := range assets {
		if asset.Amount.IsPositive() {
			out = append(out, asset)
		}
	}
	return out
}

func toBackendAssets(assets []Asset) []backend.Asset {
	out := make([]backend.Asset, len(assets))
	for i, asset := range assets {
		name := asset.Name
		if name == "" {
			name = asset.Symbol
		}
		out[i] = backend.Asset{
			AssetID:   strings.ToLower(asset.Symbol),
			Amount:    json.Number(asset.Amount.String()),
			AssetName: name,
		}
	}
	return out
}

// invokeCallbackSafe calls a callback with panic recovery. Panics are logged
// with a correlation id and do not propagate.
func invokeCallbackSafe[T any](cb func(T), v T, kind, jobID string, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(kind+" callback panicked",
				"panic", r,
				"job_id", jobID,
				"correlation_id", uuid.New().String(),
			)
		}
	}()
	cb(v)
}
