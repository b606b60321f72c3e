package yieldboard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jpalmerr/yieldboard/internal/chain"
)

// advisorConfig holds mutable state during Advisor construction.
type advisorConfig struct {
	title             string
	service           *Service
	poll              PollConfig
	port              int
	logger            *slog.Logger
	outcomeCallbacks  []func(Outcome)
	progressCallbacks []func(ProgressEvent)
	networks          []chain.Network
	wallets           []Wallet
	watchInterval     time.Duration
	refreshSchedule   string
	balanceCache      BalanceCache
	cacheTTL          time.Duration
	tokenBudget       time.Duration
	tokenConcurrency  int
	redisURL          string
	recorder          RunRecorder
	sqlitePath        string
}

// PollConfig controls the status polling schedule. Zero fields take the
// defaults: 30 attempts, 1s base delay growing by 1.5x per attempt, a 30s
// cap and up to 30% additive jitter.
type PollConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
	NoJitter       bool

	// ImmediateFirstAttempt issues the first status request without waiting.
	// By default every attempt, including the first, is preceded by a wait.
	ImmediateFirstAttempt bool
}

// Option configures an [Advisor] during construction.
//
// Built-in options: [WithService], [WithPollConfig], [WithPort],
// [WithLogger], [WithTitle], [WithOutcomeCallback], [WithProgressCallback],
// [WithNetwork], [WithWallet], [WithWatchInterval], [WithRefreshSchedule],
// [WithBalanceCache], [WithRedisCache], [WithTokenChecks],
// [WithRunRecorder], [WithSQLiteRunLog].
type Option func(*advisorConfig) error

// WithService sets the strategy backend. Required.
func WithService(s Service) Option {
	return func(cfg *advisorConfig) error {
		if s.submitURL == "" {
			return errors.New("service must be created with NewService")
		}
		cfg.service = &s
		return nil
	}
}

// WithPollConfig sets the status polling schedule.
//
// Returns an error for negative values or a jitter fraction above 1.
func WithPollConfig(pc PollConfig) Option {
	return func(cfg *advisorConfig) error {
		if pc.MaxAttempts < 0 || pc.BaseDelay < 0 || pc.MaxDelay < 0 {
			return errors.New("poll config values must not be negative")
		}
		if pc.JitterFraction < 0 || pc.JitterFraction > 1 {
			return errors.New("jitter fraction must be between 0 and 1")
		}
		cfg.poll = pc
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *advisorConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *advisorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
func WithTitle(title string) Option {
	return func(cfg *advisorConfig) error {
		cfg.title = title
		return nil
	}
}

// WithOutcomeCallback registers a function called once per job outcome,
// after the dashboard state has been updated.
//
// Callbacks must be non-blocking. They run on the job's event goroutine;
// panics are recovered and logged. Cancelled jobs produce no outcome.
//
// Nil callbacks are silently ignored.
func WithOutcomeCallback(cb func(Outcome)) Option {
	return func(cfg *advisorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.outcomeCallbacks = append(cfg.outcomeCallbacks, cb)
		return nil
	}
}

// WithProgressCallback registers a function called for each status attempt.
// The same rules as [WithOutcomeCallback] apply.
func WithProgressCallback(cb func(ProgressEvent)) Option {
	return func(cfg *advisorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.progressCallbacks = append(cfg.progressCallbacks, cb)
		return nil
	}
}

// WithNetwork adds a network or overrides fields of a built-in one. Only
// non-empty fields override. RPC URLs are expanded against the environment.
//
// Example:
//
//	yieldboard.WithNetwork(yieldboard.Network{ChainID: 1, RPCURL: "https://eth.llamarpc.com"})
func WithNetwork(n Network) Option {
	return func(cfg *advisorConfig) error {
		if n.ChainID <= 0 {
			return errors.New("network chain id must be positive")
		}
		cfg.networks = append(cfg.networks, n)
		return nil
	}
}

// WithWallet adds a wallet that is analysed when the advisor starts.
func WithWallet(w Wallet) Option {
	return func(cfg *advisorConfig) error {
		if !chain.IsAddress(w.Address) {
			return fmt.Errorf("invalid wallet address %q", w.Address)
		}
		if w.ChainID <= 0 {
			return errors.New("wallet chain id must be positive")
		}
		if w.ProviderURL != "" {
			if err := validateAbsoluteURL(w.ProviderURL); err != nil {
				return fmt.Errorf("wallet provider: %w", err)
			}
		}
		cfg.wallets = append(cfg.wallets, w)
		return nil
	}
}

// WithWatchInterval sets how often wallet providers are polled for network
// switches. Defaults to 5 seconds.
func WithWatchInterval(d time.Duration) Option {
	return func(cfg *advisorConfig) error {
		if d < time.Second {
			return errors.New("watch interval must be at least 1 second")
		}
		cfg.watchInterval = d
		return nil
	}
}

// WithRefreshSchedule re-analyses every configured wallet on a cron
// schedule (standard 5-field syntax or descriptors such as "@hourly").
func WithRefreshSchedule(spec string) Option {
	return func(cfg *advisorConfig) error {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
		}
		cfg.refreshSchedule = spec
		return nil
	}
}

// WithBalanceCache caches balance snapshots for ttl (0 for the 1 minute
// default).
func WithBalanceCache(c BalanceCache, ttl time.Duration) Option {
	return func(cfg *advisorConfig) error {
		if c == nil {
			return errors.New("balance cache cannot be nil")
		}
		if ttl < 0 {
			return errors.New("cache ttl must not be negative")
		}
		cfg.balanceCache, cfg.cacheTTL = c, ttl
		return nil
	}
}

// WithRedisCache caches balance snapshots in Redis. The connection is
// opened by [New] and closed by [Advisor.Close].
func WithRedisCache(redisURL string, ttl time.Duration) Option {
	return func(cfg *advisorConfig) error {
		if redisURL == "" {
			return errors.New("redis URL cannot be empty")
		}
		if ttl < 0 {
			return errors.New("cache ttl must not be negative")
		}
		cfg.redisURL, cfg.cacheTTL = redisURL, ttl
		return nil
	}
}

// WithTokenChecks bounds token balance reads: all token checks of one read
// share budget, and at most concurrency run at once. Zero keeps the
// defaults (5s, 4).
func WithTokenChecks(budget time.Duration, concurrency int) Option {
	return func(cfg *advisorConfig) error {
		if budget < 0 || concurrency < 0 {
			return errors.New("token check limits must not be negative")
		}
		cfg.tokenBudget, cfg.tokenConcurrency = budget, concurrency
		return nil
	}
}

// WithRunRecorder records every job outcome.
func WithRunRecorder(r RunRecorder) Option {
	return func(cfg *advisorConfig) error {
		if r == nil {
			return errors.New("run recorder cannot be nil")
		}
		cfg.recorder = r
		return nil
	}
}

// WithSQLiteRunLog records job outcomes in a SQLite database at path. The
// database is opened by [New] and closed by [Advisor.Close].
func WithSQLiteRunLog(path string) Option {
	return func(cfg *advisorConfig) error {
		if path == "" {
			return errors.New("sqlite path cannot be empty")
		}
		cfg.sqlitePath = path
		return nil
	}
}
