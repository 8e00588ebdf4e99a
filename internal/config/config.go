// Package config defines the top-level configuration for the router core and
// provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBROUTER_* environment
// variables. The config object is built once at startup and never mutated.
type Config struct {
	Ranking      RankingConfig      `toml:"ranking"`
	Availability AvailabilityConfig `toml:"availability"`
	Breaker      BreakerConfig      `toml:"breaker"`
	Selection    SelectionConfig    `toml:"selection"`
	Chains       ChainsConfig       `toml:"chains"`
	Redis        RedisConfig        `toml:"redis"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Events       EventsConfig       `toml:"events"`
	Providers    []ProviderConfig   `toml:"providers"`
	LogLevel     string             `toml:"log_level"`
}

// RankingConfig holds the score weighting and normalization parameters.
type RankingConfig struct {
	FeeWeight         float64 `toml:"fee_weight"`
	LiquidityWeight   float64 `toml:"liquidity_weight"`
	ReliabilityWeight float64 `toml:"reliability_weight"`
	LatencyWeight     float64 `toml:"latency_weight"`
	// FeeCeilingBps is the fee at which the fee score bottoms out at 0.
	FeeCeilingBps int64 `toml:"fee_ceiling_bps"`
	// NeutralReliability scores providers with no history. Tunable, not a
	// hard invariant.
	NeutralReliability float64 `toml:"neutral_reliability"`
	// UnknownLiquidityScore is the mid score for unconfirmed availability.
	UnknownLiquidityScore float64 `toml:"unknown_liquidity_score"`
	// UnknownLatencyScore is the mid score for providers with no latency
	// signal at all.
	UnknownLatencyScore float64 `toml:"unknown_latency_score"`
	// ReliabilityWindow is the per-provider outcome history size.
	ReliabilityWindow int `toml:"reliability_window"`
}

// AvailabilityConfig holds validator tuning.
type AvailabilityConfig struct {
	CacheTTL    duration `toml:"cache_ttl"`
	MarginBps   int64    `toml:"margin_bps"`
	ReadTimeout duration `toml:"read_timeout"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int      `toml:"failure_threshold"`
	Cooldown         duration `toml:"cooldown"`
	TrialSuccesses   int      `toml:"trial_successes"`
}

// SelectionConfig holds orchestrator tuning.
type SelectionConfig struct {
	RankingCacheTTL duration `toml:"ranking_cache_ttl"`
	// WatchdogInterval is how often the health watchdog logs provider state.
	WatchdogInterval duration `toml:"watchdog_interval"`
	// WarmStartLimit is how many journal outcomes per provider to replay
	// into the tracker at startup. 0 disables warm start.
	WarmStartLimit int `toml:"warm_start_limit"`
}

// ChainsConfig maps chain IDs to JSON-RPC endpoints.
type ChainsConfig struct {
	// RPCEndpoints keys are decimal chain IDs ("137", "42161").
	RPCEndpoints map[string]string `toml:"rpc_endpoints"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: when
// disabled, availability caching stays in-process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds parameters for the optional outcome journal.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// EventsConfig holds observability event delivery parameters.
type EventsConfig struct {
	// Stream is the Redis stream events are appended to when Redis is
	// enabled. Empty disables the stream sink.
	Stream       string `toml:"stream"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// ProviderConfig is one catalog seed entry.
type ProviderConfig struct {
	ID          string   `toml:"id"`
	ChainID     uint64   `toml:"chain_id"`
	Protocol    string   `toml:"protocol"`
	Kind        string   `toml:"kind"`
	Address     string   `toml:"address"`
	FeeBps      int64    `toml:"fee_bps"`
	Capacity    string   `toml:"capacity"`
	BaseLatency duration `toml:"base_latency"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Ranking: RankingConfig{
			FeeWeight:             0.50,
			LiquidityWeight:       0.30,
			ReliabilityWeight:     0.15,
			LatencyWeight:         0.05,
			FeeCeilingBps:         100,
			NeutralReliability:    0.7,
			UnknownLiquidityScore: 0.5,
			UnknownLatencyScore:   0.5,
			ReliabilityWindow:     100,
		},
		Availability: AvailabilityConfig{
			CacheTTL:    duration{5 * time.Minute},
			MarginBps:   500,
			ReadTimeout: duration{3 * time.Second},
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         duration{5 * time.Minute},
			TrialSuccesses:   3,
		},
		Selection: SelectionConfig{
			RankingCacheTTL:  duration{30 * time.Second},
			WatchdogInterval: duration{1 * time.Minute},
			WarmStartLimit:   0,
		},
		Chains: ChainsConfig{
			RPCEndpoints: map[string]string{},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "arbrouter",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Events: EventsConfig{
			Stream:       "arbrouter:events",
			StreamMaxLen: 10000,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validKinds = map[string]bool{
	"liquidity_source":   true,
	"submission_channel": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ranking — the four weights must sum to 1.
	sum := c.Ranking.FeeWeight + c.Ranking.LiquidityWeight +
		c.Ranking.ReliabilityWeight + c.Ranking.LatencyWeight
	if math.Abs(sum-1.0) > 1e-9 {
		errs = append(errs, fmt.Sprintf("ranking: weights must sum to 1.0, got %g", sum))
	}
	if c.Ranking.FeeWeight < 0 || c.Ranking.LiquidityWeight < 0 ||
		c.Ranking.ReliabilityWeight < 0 || c.Ranking.LatencyWeight < 0 {
		errs = append(errs, "ranking: weights must not be negative")
	}
	if c.Ranking.FeeCeilingBps <= 0 {
		errs = append(errs, "ranking: fee_ceiling_bps must be > 0")
	}
	if c.Ranking.NeutralReliability <= 0 || c.Ranking.NeutralReliability >= 1 {
		errs = append(errs, fmt.Sprintf("ranking: neutral_reliability must be in (0,1), got %g", c.Ranking.NeutralReliability))
	}
	if c.Ranking.UnknownLiquidityScore < 0 || c.Ranking.UnknownLiquidityScore > 1 {
		errs = append(errs, "ranking: unknown_liquidity_score must be in [0,1]")
	}
	if c.Ranking.UnknownLatencyScore < 0 || c.Ranking.UnknownLatencyScore > 1 {
		errs = append(errs, "ranking: unknown_latency_score must be in [0,1]")
	}
	if c.Ranking.ReliabilityWindow < 1 {
		errs = append(errs, "ranking: reliability_window must be >= 1")
	}

	// Availability
	if c.Availability.CacheTTL.Duration <= 0 {
		errs = append(errs, "availability: cache_ttl must be > 0")
	}
	if c.Availability.MarginBps < 0 {
		errs = append(errs, "availability: margin_bps must not be negative")
	}
	if c.Availability.ReadTimeout.Duration <= 0 {
		errs = append(errs, "availability: read_timeout must be > 0")
	}

	// Breaker
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, "breaker: failure_threshold must be >= 1")
	}
	if c.Breaker.Cooldown.Duration <= 0 {
		errs = append(errs, "breaker: cooldown must be > 0")
	}
	if c.Breaker.TrialSuccesses < 1 {
		errs = append(errs, "breaker: trial_successes must be >= 1")
	}

	// Selection
	if c.Selection.RankingCacheTTL.Duration <= 0 {
		errs = append(errs, "selection: ranking_cache_ttl must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	// Providers
	seen := map[string]bool{}
	for i, p := range c.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.ID == "" {
			errs = append(errs, prefix+": id must not be empty")
		} else if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate id %q", prefix, p.ID))
		}
		seen[p.ID] = true
		if p.ChainID == 0 {
			errs = append(errs, prefix+": chain_id must be set")
		}
		if !validKinds[p.Kind] {
			errs = append(errs, fmt.Sprintf("%s: kind must be liquidity_source or submission_channel, got %q", prefix, p.Kind))
		}
		if p.FeeBps < 0 {
			errs = append(errs, prefix+": fee_bps must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
