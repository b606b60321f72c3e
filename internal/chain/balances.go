package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Reader defaults.
const (
	DefaultTokenBudget      = 5 * time.Second
	DefaultTokenConcurrency = 4
	DefaultCacheTTL         = time.Minute

	defaultDecimals = 18
)

// ErrInvalidContext is returned when a read has no network or caller.
var ErrInvalidContext = errors.New("chain context has no network or caller")

var errNoContract = errors.New("no contract")

// Balance is one holding of a wallet.
type Balance struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"balance"`
	Address  string          `json:"address"`
	Decimals int32           `json:"decimals"`
}

// Native reports whether b is the chain's native coin.
func (b Balance) Native() bool {
	return b.Address == NativeAddress
}

// Display returns the amount rounded for presentation.
func (b Balance) Display() string {
	return Display(b.Amount)
}

// Cache stores serialized balance snapshots. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}

// ReaderOption customizes a [Reader].
type ReaderOption func(*Reader)

// WithTokenBudget bounds the time spent on token checks.
func WithTokenBudget(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.tokenBudget = d
		}
	}
}

// WithTokenConcurrency bounds concurrent token checks.
func WithTokenConcurrency(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithCache enables snapshot caching for ttl.
func WithCache(c Cache, ttl time.Duration) ReaderOption {
	return func(r *Reader) {
		r.cache = c
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// Reader reads wallet holdings: the native coin plus the registry's
// common tokens for the network.
type Reader struct {
	logger      *slog.Logger
	tokenBudget time.Duration
	concurrency int
	cache       Cache
	cacheTTL    time.Duration
}

// NewReader creates a [Reader].
func NewReader(logger *slog.Logger, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{
		logger:      logger,
		tokenBudget: DefaultTokenBudget,
		concurrency: DefaultTokenConcurrency,
		cacheTTL:    DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CacheKey is the cache key of a wallet snapshot.
func CacheKey(chainID int64, wallet string) string {
	return fmt.Sprintf("balances:%d:%s", chainID, strings.ToLower(wallet))
}

// Read returns the wallet's native balance followed by its non-zero token
// balances.
//
// A failed native read yields a zero placeholder rather than an error.
// Tokens without contract code on the network are skipped. Token checks
// share one time budget; tokens not finished within it are left out.
// Only complete snapshots are cached.
func (r *Reader) Read(ctx context.Context, cc Context, wallet string) ([]Balance, error) {
	if !cc.Valid() {
		return nil, ErrInvalidContext
	}
	if !IsAddress(wallet) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, wallet)
	}

	key := CacheKey(cc.ChainID(), wallet)
	if cached, ok := r.fromCache(ctx, key); ok {
		return cached, nil
	}

	native, nativeOK := r.readNative(ctx, cc, wallet)
	tokens, tokensOK := r.readTokens(ctx, cc, wallet, cc.Network().Tokens)
	balances := append([]Balance{native}, tokens...)

	if nativeOK && tokensOK {
		r.toCache(ctx, key, balances)
	} else {
		r.logger.Debug("partial balance snapshot not cached", "chain_id", cc.ChainID())
	}
	return balances, nil
}

// ReadTokens reads specific token addresses; "native" selects the native
// coin. Zero token balances and unknown contracts are dropped.
func (r *Reader) ReadTokens(ctx context.Context, cc Context, wallet string, addresses []string) ([]Balance, error) {
	if !cc.Valid() {
		return nil, ErrInvalidContext
	}
	if !IsAddress(wallet) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, wallet)
	}

	known := make(map[string]Token, len(cc.Network().Tokens))
	for _, t := range cc.Network().Tokens {
		known[strings.ToLower(t.Address)] = t
	}

	var out []Balance
	tokens := make([]Token, 0, len(addresses))
	for _, addr := range addresses {
		if strings.EqualFold(addr, NativeAddress) {
			native, _ := r.readNative(ctx, cc, wallet)
			out = append(out, native)
			continue
		}
		if !IsAddress(addr) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
		t, ok := known[strings.ToLower(addr)]
		if !ok {
			t = Token{Address: addr, Symbol: "UNKNOWN", Name: "Unknown Token"}
		}
		tokens = append(tokens, t)
	}
	read, _ := r.readTokens(ctx, cc, wallet, tokens)
	return append(out, read...), nil
}

// readNative reports false when the zero placeholder stands in for a
// failed read.
func (r *Reader) readNative(ctx context.Context, cc Context, wallet string) (Balance, bool) {
	n := cc.Network()
	b := Balance{
		Symbol:   n.NativeSymbol,
		Name:     n.NativeName,
		Amount:   decimal.Zero,
		Address:  NativeAddress,
		Decimals: defaultDecimals,
	}
	wei, err := GetBalance(ctx, cc.Caller(), wallet)
	if err != nil {
		r.logger.Warn("native balance unavailable, using zero",
			"chain_id", n.ChainID,
			"error", err,
		)
		return b, false
	}
	b.Amount = FormatUnits(wei, defaultDecimals)
	return b, true
}

// readTokens reports false when a token check failed for a reason other
// than a missing contract, or the budget ran out.
func (r *Reader) readTokens(ctx context.Context, cc Context, wallet string, tokens []Token) ([]Balance, bool) {
	if len(tokens) == 0 {
		return nil, true
	}

	budgetCtx, cancel := context.WithTimeout(ctx, r.tokenBudget)
	defer cancel()

	results := make([]*Balance, len(tokens))
	var failed atomic.Bool
	g, gctx := errgroup.WithContext(budgetCtx)
	g.SetLimit(r.concurrency)
	for i, t := range tokens {
		g.Go(func() error {
			b, err := r.readToken(gctx, cc, wallet, t)
			if err != nil {
				if !errors.Is(err, errNoContract) {
					failed.Store(true)
				}
				r.logger.Debug("token check skipped",
					"chain_id", cc.ChainID(),
					"token", t.Symbol,
					"error", err,
				)
				return nil
			}
			results[i] = b
			return nil
		})
	}
	_ = g.Wait()

	complete := !failed.Load()
	if errors.Is(budgetCtx.Err(), context.DeadlineExceeded) {
		complete = false
		r.logger.Warn("token checks exceeded budget, returning partial results",
			"chain_id", cc.ChainID(),
			"budget", r.tokenBudget,
		)
	}

	out := make([]Balance, 0, len(tokens))
	for _, b := range results {
		if b != nil && b.Amount.IsPositive() {
			out = append(out, *b)
		}
	}
	return out, complete
}

func (r *Reader) readToken(ctx context.Context, cc Context, wallet string, t Token) (*Balance, error) {
	caller := cc.Caller()

	deployed, err := HasCode(ctx, caller, t.Address)
	if err != nil {
		return nil, err
	}
	if !deployed {
		return nil, fmt.Errorf("%w at %s", errNoContract, t.Address)
	}

	data, err := BalanceOfData(wallet)
	if err != nil {
		return nil, err
	}
	raw, err := CallUint(ctx, caller, t.Address, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		raw = new(big.Int)
	}

	decimals := int32(defaultDecimals)
	if d, err := CallUint(ctx, caller, t.Address, selectorDecimals); err == nil && d.IsInt64() && d.Int64() <= 77 {
		decimals = int32(d.Int64())
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return &Balance{
		Symbol:   t.Symbol,
		Name:     t.Name,
		Amount:   FormatUnits(raw, decimals),
		Address:  t.Address,
		Decimals: decimals,
	}, nil
}

// Forget drops the cached snapshot of wallet on chainID so the next read
// goes to the network.
func (r *Reader) Forget(ctx context.Context, chainID int64, wallet string) {
	if r.cache == nil {
		return
	}
	key := CacheKey(chainID, wallet)
	if _, err := r.cache.Delete(ctx, key); err != nil {
		r.logger.Warn("balance cache delete failed", "key", key, "error", err)
	}
}

func (r *Reader) fromCache(ctx context.Context, key string) ([]Balance, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("balance cache read failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var balances []Balance
	if err := json.Unmarshal(data, &balances); err != nil {
		r.logger.Warn("balance cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return balances, true
}

func (r *Reader) toCache(ctx context.Context, key string, balances []Balance) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(balances)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
		r.logger.Warn("balance cache write failed", "key", key, "error", err)
	}
}
