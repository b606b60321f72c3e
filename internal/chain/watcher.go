package chain

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls eth_chainId.
const DefaultWatchInterval = 5 * time.Second

const changeBuffer = 4

// Change reports that the provider switched networks.
type Change struct {
	Previous int64
	Current  int64
	At       time.Time
}

// Watcher polls a wallet provider's eth_chainId and notifies subscribers
// when it changes. Without [Watcher.SetBaseline] the first successful read
// establishes the baseline and is not reported.
type Watcher struct {
	caller   Caller
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current int64
	known   bool
	subs    map[chan Change]struct{}
}

// NewWatcher creates a [Watcher] over caller.
func NewWatcher(caller Caller, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		caller:   caller,
		interval: interval,
		logger:   logger,
		subs:     make(map[chan Change]struct{}),
	}
}

// Subscribe registers for chain changes. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (w *Watcher) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, changeBuffer)

	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if _, ok := w.subs[ch]; ok {
				delete(w.subs, ch)
				close(ch)
			}
		})
	}
}

// SetBaseline sets the chain the caller currently assumes, so a provider
// already on another chain at the first read is reported as a change.
func (w *Watcher) SetBaseline(chainID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current, w.known = chainID, true
}

// Current returns the last observed chain id.
func (w *Watcher) Current() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.known
}

// Check polls the provider once and publishes a change if one occurred.
func (w *Watcher) Check(ctx context.Context) (Change, bool, error) {
	id, err := ChainID(ctx, w.caller)
	if err != nil {
		return Change{}, false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.known {
		w.current, w.known = id, true
		return Change{}, false, nil
	}
	if id == w.current {
		return Change{}, false, nil
	}

	change := Change{Previous: w.current, Current: id, At: time.Now()}
	w.current = id
	for ch := range w.subs {
		select {
		case ch <- change:
		default:
			w.logger.Warn("chain change dropped for slow subscriber", "chain_id", id)
		}
	}
	return change, true, nil
}

// Run polls until ctx ends. Poll errors are logged and retried on the next
// tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if change, changed, err := w.Check(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("chain id poll failed", "error", err)
		} else if changed {
			w.logger.Info("wallet provider switched network",
				"previous_chain_id", change.Previous,
				"chain_id", change.Current,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
