// Package config provides YAML configuration parsing for yieldboard.
//
// This package enables running yieldboard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	log_level: info
//
//	strategy_service:
//	  submit_url: ${STRATEGY_API:-http://localhost:8000}/api/portfolio-analysis
//	  timeout: 10s
//	  headers:
//	    Authorization: Bearer ${STRATEGY_TOKEN}
//
//	polling:
//	  max_attempts: 30
//	  base_delay: 1s
//	  max_delay: 30s
//
//	networks:
//	  - chain_id: 1
//	    rpc_url: https://mainnet.infura.io/v3/${INFURA_ID}
//
//	wallets:
//	  - address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
//	    chain_id: 1
//
// Settings can also be overridden from the environment (YIELDBOARD_PORT,
// YIELDBOARD_SUBMIT_URL and friends); see [EnvOverrides].
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/yieldboard/internal/chain"
)

const (
	defaultPort     = 8080
	defaultLogLevel = "info"

	minTimeout       = time.Second
	minWatchInterval = time.Second
)

const jobIDPlaceholder = "{job_id}"

// Config is the root configuration structure for yieldboard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "DeFi Portfolio Advisor".
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// StrategyService describes the strategy backend. Required.
	StrategyService ServiceConfig `yaml:"strategy_service"`

	// Polling controls the status polling schedule.
	Polling PollingConfig `yaml:"polling"`

	// Networks add networks or override fields of the built-in ones.
	Networks []NetworkConfig `yaml:"networks"`

	// Wallets are analysed when the dashboard starts.
	Wallets []WalletConfig `yaml:"wallets"`

	// WatchInterval is how often wallet providers are polled for network
	// switches. Defaults to 5s.
	WatchInterval Duration `yaml:"watch_interval"`

	// RefreshCron re-analyses every wallet on a cron schedule.
	RefreshCron string `yaml:"refresh_cron"`

	// Cache configures the balance snapshot cache.
	Cache CacheConfig `yaml:"cache"`

	// Recorder configures the run audit log.
	Recorder RecorderConfig `yaml:"recorder"`
}

// ServiceConfig describes the strategy backend.
type ServiceConfig struct {
	// SubmitURL receives the portfolio POST.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	SubmitURL string `yaml:"submit_url"`

	// StatusURL is the job status URL template containing {job_id}.
	// Defaults to /api/crawl-status/{job_id} on the submission host.
	StatusURL string `yaml:"status_url"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with submission and status requests.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// IncludeTopProtocols is forwarded with submissions. Defaults to 10.
	IncludeTopProtocols int `yaml:"include_top_protocols"`

	// Extractor determines how the job status is read from a status
	// response. Can be shorthand ("json:job.state") or structured.
	Extractor ExtractorConfig `yaml:"extractor"`

	// ResultPaths are the JSON paths tried for the strategy list of a
	// completed job. Defaults to [strategies, data].
	ResultPaths []string `yaml:"result_paths"`
}

// PollingConfig controls the status polling schedule. Zero values take the
// SDK defaults.
type PollingConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`

	// Jitter is the additive jitter fraction in [0, 1]. Defaults to 0.3.
	Jitter   float64 `yaml:"jitter"`
	NoJitter bool    `yaml:"no_jitter"`

	// ImmediateFirstAttempt issues the first status request without waiting.
	ImmediateFirstAttempt bool `yaml:"immediate_first_attempt"`
}

// NetworkConfig adds a network or overrides a built-in one by chain id.
type NetworkConfig struct {
	ChainID      int64         `yaml:"chain_id"`
	Name         string        `yaml:"name"`
	Slug         string        `yaml:"slug"`
	NativeSymbol string        `yaml:"native_symbol"`
	NativeName   string        `yaml:"native_name"`
	RPCURL       string        `yaml:"rpc_url"`
	Explorer     string        `yaml:"explorer"`
	Tokens       []TokenConfig `yaml:"tokens"`
}

// TokenConfig is an ERC-20 contract checked when reading balances.
type TokenConfig struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	Name    string `yaml:"name"`
}

// WalletConfig is a wallet analysed on start.
type WalletConfig struct {
	Address string `yaml:"address"`
	ChainID int64  `yaml:"chain_id"`

	// ProviderURL is the wallet's JSON-RPC provider. When set, network
	// switches reported by eth_chainId move the board to the new chain.
	ProviderURL string `yaml:"provider_url"`
}

// CacheConfig configures the Redis balance cache.
type CacheConfig struct {
	RedisURL string   `yaml:"redis_url"`
	TTL      Duration `yaml:"ttl"`
}

// RecorderConfig configures the SQLite run log.
type RecorderConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// ExtractorConfig specifies how the job status is read from a status
// response.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	extractor: json:status
//	extractor: json:job.state
//	extractor: regex:"state":\s*"(\w+)"
//	extractor: default
//
// Structured object:
//
//	extractor:
//	  type: json
//	  path: job.state
type ExtractorConfig struct {
	// Type is the extractor type: "default", "json", "regex".
	Type string

	// Path is the JSON field path (for type: json).
	Path string

	// Pattern is the regular expression with one capture group (for type: regex).
	Pattern string
}

// EnvOverrides are the environment variables that override the file.
// Unset variables leave the file's values alone.
type EnvOverrides struct {
	Port        int    `env:"PORT"`
	Title       string `env:"TITLE"`
	SubmitURL   string `env:"SUBMIT_URL"`
	StatusURL   string `env:"STATUS_URL"`
	RedisURL    string `env:"REDIS_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`
	RefreshCron string `env:"REFRESH_CRON"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// EnvPrefix prefixes every variable in [EnvOverrides].
const EnvPrefix = "YIELDBOARD_"

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string `yaml:"type"`
			Path    string `yaml:"path"`
			Pattern string `yaml:"pattern"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.Type = raw.Type
		e.Path = raw.Path
		e.Pattern = raw.Pattern
		return nil
	}

	return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
}

// parseShorthand parses extractor shorthand syntax.
//
// Supported formats:
//   - "default" → read the top-level "status" field
//   - "json:path" → extract from JSON field
//   - "regex:pattern" → first capture group of pattern
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		e.Type = s[:idx]
		value := s[idx+1:]

		switch e.Type {
		case "json":
			e.Path = value
		case "regex":
			e.Pattern = value
		default:
			return fmt.Errorf("unknown extractor type %q", e.Type)
		}
		return nil
	}

	if s != "default" {
		return fmt.Errorf("unknown extractor %q (expected 'default', 'json:path', or 'regex:pattern')", s)
	}
	e.Type = s
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// YIELDBOARD_* environment overrides are applied first, then ${VAR}
// references are expanded in URLs and header values. Defaults are applied
// for Port (8080) and LogLevel (info).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv overlays the YIELDBOARD_* environment variables.
func (c *Config) applyEnv() error {
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if o.Port != 0 {
		c.Port = o.Port
	}
	overlay := []struct {
		dst *string
		src string
	}{
		{&c.Title, o.Title},
		{&c.StrategyService.SubmitURL, o.SubmitURL},
		{&c.StrategyService.StatusURL, o.StatusURL},
		{&c.Cache.RedisURL, o.RedisURL},
		{&c.Recorder.SQLitePath, o.SQLitePath},
		{&c.RefreshCron, o.RefreshCron},
		{&c.LogLevel, o.LogLevel},
	}
	for _, f := range overlay {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	// validated in Parse
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	if err := c.StrategyService.expandAndValidate(); err != nil {
		return err
	}
	if err := c.Polling.validate(); err != nil {
		return err
	}

	seenChains := make(map[int64]struct{}, len(c.Networks))
	for i := range c.Networks {
		n := &c.Networks[i]
		if n.ChainID <= 0 {
			return fmt.Errorf("networks[%d]: chain_id must be positive", i)
		}
		if _, dup := seenChains[n.ChainID]; dup {
			return fmt.Errorf("networks[%d]: duplicate chain_id %d", i, n.ChainID)
		}
		seenChains[n.ChainID] = struct{}{}

		if n.RPCURL != "" {
			expanded, err := expandHTTPURL(n.RPCURL)
			if err != nil {
				return fmt.Errorf("networks[%d] (%d): rpc_url: %w", i, n.ChainID, err)
			}
			n.RPCURL = expanded
		}
		for j, t := range n.Tokens {
			if !chain.IsAddress(t.Address) {
				return fmt.Errorf("networks[%d] (%d): tokens[%d]: invalid address %q", i, n.ChainID, j, t.Address)
			}
			if t.Symbol == "" {
				return fmt.Errorf("networks[%d] (%d): tokens[%d]: symbol is required", i, n.ChainID, j)
			}
		}
	}

	seenWallets := make(map[string]struct{}, len(c.Wallets))
	for i := range c.Wallets {
		w := &c.Wallets[i]
		if w.Address == "" {
			return fmt.Errorf("wallets[%d]: address is required", i)
		}
		if !chain.IsAddress(w.Address) {
			return fmt.Errorf("wallets[%d]: invalid address %q", i, w.Address)
		}
		key := strings.ToLower(w.Address)
		if _, dup := seenWallets[key]; dup {
			return fmt.Errorf("wallets[%d]: duplicate address %q", i, w.Address)
		}
		seenWallets[key] = struct{}{}

		if w.ChainID <= 0 {
			return fmt.Errorf("wallets[%d] (%s): chain_id must be positive", i, w.Address)
		}
		if w.ProviderURL != "" {
			expanded, err := expandHTTPURL(w.ProviderURL)
			if err != nil {
				return fmt.Errorf("wallets[%d] (%s): provider_url: %w", i, w.Address, err)
			}
			w.ProviderURL = expanded
		}
	}

	if c.WatchInterval != 0 && c.WatchInterval.Duration() < minWatchInterval {
		return fmt.Errorf("watch_interval must be at least %s, got %s", minWatchInterval, c.WatchInterval.Duration())
	}

	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("refresh_cron: %w", err)
		}
	}

	if c.Cache.RedisURL != "" {
		expanded, err := expandEnvVars(c.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("cache: redis_url: %w", err)
		}
		u, err := url.Parse(expanded)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
			return errors.New("cache: redis_url must be a redis://, rediss:// or unix:// URL")
		}
		c.Cache.RedisURL = expanded
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache: ttl cannot be negative, got %s", c.Cache.TTL.Duration())
	}

	if c.Recorder.SQLitePath != "" {
		expanded, err := expandEnvVars(c.Recorder.SQLitePath)
		if err != nil {
			return fmt.Errorf("recorder: sqlite_path: %w", err)
		}
		c.Recorder.SQLitePath = expanded
	}

	return nil
}

func (s *ServiceConfig) expandAndValidate() error {
	if s.SubmitURL == "" {
		return errors.New("strategy_service: submit_url is required")
	}
	expanded, err := expandHTTPURL(s.SubmitURL)
	if err != nil {
		return fmt.Errorf("strategy_service: submit_url: %w", err)
	}
	s.SubmitURL = expanded

	if s.StatusURL != "" {
		expanded, err := expandHTTPURL(s.StatusURL)
		if err != nil {
			return fmt.Errorf("strategy_service: status_url: %w", err)
		}
		if !strings.Contains(expanded, jobIDPlaceholder) {
			return fmt.Errorf("strategy_service: status_url must contain %s", jobIDPlaceholder)
		}
		s.StatusURL = expanded
	}

	for k, v := range s.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("strategy_service: headers[%s]: %w", k, err)
		}
		s.Headers[k] = expanded
	}

	if s.Timeout != 0 {
		if s.Timeout.Duration() < 0 {
			return fmt.Errorf("strategy_service: timeout cannot be negative, got %s", s.Timeout.Duration())
		}
		if s.Timeout.Duration() < minTimeout {
			return fmt.Errorf("strategy_service: timeout must be at least %s if specified, got %s",
				minTimeout, s.Timeout.Duration())
		}
	}

	if s.IncludeTopProtocols < 0 {
		return fmt.Errorf("strategy_service: include_top_protocols cannot be negative, got %d", s.IncludeTopProtocols)
	}

	for i, p := range s.ResultPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("strategy_service: result_paths[%d] is empty", i)
		}
	}

	return validateExtractor(&s.Extractor, "strategy_service")
}

func (p PollingConfig) validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("polling: max_attempts cannot be negative, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return errors.New("polling: delays cannot be negative")
	}
	if p.BaseDelay != 0 && p.MaxDelay != 0 && p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("polling: max_delay (%s) must not be below base_delay (%s)",
			p.MaxDelay.Duration(), p.BaseDelay.Duration())
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("polling: jitter must be between 0 and 1, got %g", p.Jitter)
	}
	return nil
}

// expandHTTPURL expands ${VAR} references and requires an http(s) URL.
func expandHTTPURL(raw string) (string, error) {
	expanded, err := expandEnvVars(raw)
	if err != nil {
		return "", err
	}
	parsed, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", errors.New("url must have a scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("url must have a host")
	}
	return expanded, nil
}

// validateExtractor validates an extractor configuration.
func validateExtractor(e *ExtractorConfig, context string) error {
	switch e.Type {
	case "", "default":
	case "json":
		if e.Path == "" {
			return fmt.Errorf("%s: extractor type 'json' requires a path", context)
		}
	case "regex":
		if e.Pattern == "" {
			return fmt.Errorf("%s: extractor type 'regex' requires a pattern", context)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return fmt.Errorf("%s: invalid extractor pattern: %w", context, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s: extractor pattern needs a capture group", context)
		}
	default:
		return fmt.Errorf("%s: unknown extractor type %q", context, e.Type)
	}
	return nil
}
