package config

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jpalmerr/yieldboard"
)

// BuildService converts the strategy_service section into an SDK Service.
func BuildService(sc ServiceConfig) (yieldboard.Service, error) {
	var opts []yieldboard.ServiceOption

	if sc.StatusURL != "" {
		opts = append(opts, yieldboard.WithStatusURL(sc.StatusURL))
	}

	if sc.Timeout != 0 {
		opts = append(opts, yieldboard.WithTimeout(sc.Timeout.Duration()))
	}

	if len(sc.Headers) > 0 {
		opts = append(opts, yieldboard.WithHeaders(mapToKeyValuePairs(sc.Headers)...))
	}

	if sc.IncludeTopProtocols > 0 {
		opts = append(opts, yieldboard.WithTopProtocols(sc.IncludeTopProtocols))
	}

	extractor, err := buildExtractor(sc.Extractor)
	if err != nil {
		return yieldboard.Service{}, err
	}
	if extractor != nil {
		opts = append(opts, yieldboard.WithStatusExtractor(extractor))
	}

	if len(sc.ResultPaths) > 0 {
		opts = append(opts, yieldboard.WithResultExtractor(yieldboard.JSONArrayExtractor(sc.ResultPaths...)))
	}

	return yieldboard.NewService(sc.SubmitURL, opts...)
}

// BuildOptions converts parsed configuration into SDK options for
// [yieldboard.New]. logger may be nil.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]yieldboard.Option, error) {
	svc, err := BuildService(cfg.StrategyService)
	if err != nil {
		return nil, fmt.Errorf("strategy_service: %w", err)
	}

	opts := []yieldboard.Option{
		yieldboard.WithService(svc),
		yieldboard.WithPort(cfg.Port),
		yieldboard.WithPollConfig(yieldboard.PollConfig{
			MaxAttempts:           cfg.Polling.MaxAttempts,
			BaseDelay:             cfg.Polling.BaseDelay.Duration(),
			MaxDelay:              cfg.Polling.MaxDelay.Duration(),
			JitterFraction:        cfg.Polling.Jitter,
			NoJitter:              cfg.Polling.NoJitter,
			ImmediateFirstAttempt: cfg.Polling.ImmediateFirstAttempt,
		}),
	}

	if logger != nil {
		opts = append(opts, yieldboard.WithLogger(logger))
	}
	if cfg.Title != "" {
		opts = append(opts, yieldboard.WithTitle(cfg.Title))
	}

	for _, nc := range cfg.Networks {
		opts = append(opts, yieldboard.WithNetwork(buildNetwork(nc)))
	}

	for _, wc := range cfg.Wallets {
		opts = append(opts, yieldboard.WithWallet(yieldboard.Wallet{
			Address:     wc.Address,
			ChainID:     wc.ChainID,
			ProviderURL: wc.ProviderURL,
		}))
	}

	if cfg.WatchInterval != 0 {
		opts = append(opts, yieldboard.WithWatchInterval(cfg.WatchInterval.Duration()))
	}
	if cfg.RefreshCron != "" {
		opts = append(opts, yieldboard.WithRefreshSchedule(cfg.RefreshCron))
	}
	if cfg.Cache.RedisURL != "" {
		opts = append(opts, yieldboard.WithRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL.Duration()))
	}
	if cfg.Recorder.SQLitePath != "" {
		opts = append(opts, yieldboard.WithSQLiteRunLog(cfg.Recorder.SQLitePath))
	}

	return opts, nil
}

func buildNetwork(nc NetworkConfig) yieldboard.Network {
	n := yieldboard.Network{
		ChainID:      nc.ChainID,
		Name:         nc.Name,
		Slug:         nc.Slug,
		NativeSymbol: nc.NativeSymbol,
		NativeName:   nc.NativeName,
		RPCURL:       nc.RPCURL,
		Explorer:     nc.Explorer,
	}
	for _, t := range nc.Tokens {
		n.Tokens = append(n.Tokens, yieldboard.Token{Address: t.Address, Symbol: t.Symbol, Name: t.Name})
	}
	return n
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildExtractor converts ExtractorConfig to a StatusExtractor function.
// Returns nil for default/empty extractors (SDK reads "status").
func buildExtractor(ec ExtractorConfig) (yieldboard.StatusExtractor, error) {
	switch ec.Type {
	case "", "default":
		return nil, nil
	case "json":
		return yieldboard.JSONFieldExtractor(ec.Path), nil
	case "regex":
		return yieldboard.RegexExtractor(ec.Pattern)
	default:
		return nil, fmt.Errorf("unknown extractor type %q", ec.Type)
	}
}
