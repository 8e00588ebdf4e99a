package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBROUTER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBROUTER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ranking ──
	setFloat64(&cfg.Ranking.FeeWeight, "ARBROUTER_RANKING_FEE_WEIGHT")
	setFloat64(&cfg.Ranking.LiquidityWeight, "ARBROUTER_RANKING_LIQUIDITY_WEIGHT")
	setFloat64(&cfg.Ranking.ReliabilityWeight, "ARBROUTER_RANKING_RELIABILITY_WEIGHT")
	setFloat64(&cfg.Ranking.LatencyWeight, "ARBROUTER_RANKING_LATENCY_WEIGHT")
	setInt64(&cfg.Ranking.FeeCeilingBps, "ARBROUTER_RANKING_FEE_CEILING_BPS")
	setFloat64(&cfg.Ranking.NeutralReliability, "ARBROUTER_RANKING_NEUTRAL_RELIABILITY")
	setFloat64(&cfg.Ranking.UnknownLiquidityScore, "ARBROUTER_RANKING_UNKNOWN_LIQUIDITY_SCORE")
	setFloat64(&cfg.Ranking.UnknownLatencyScore, "ARBROUTER_RANKING_UNKNOWN_LATENCY_SCORE")
	setInt(&cfg.Ranking.ReliabilityWindow, "ARBROUTER_RANKING_RELIABILITY_WINDOW")

	// ── Availability ──
	setDuration(&cfg.Availability.CacheTTL, "ARBROUTER_AVAILABILITY_CACHE_TTL")
	setInt64(&cfg.Availability.MarginBps, "ARBROUTER_AVAILABILITY_MARGIN_BPS")
	setDuration(&cfg.Availability.ReadTimeout, "ARBROUTER_AVAILABILITY_READ_TIMEOUT")

	// ── Breaker ──
	setInt(&cfg.Breaker.FailureThreshold, "ARBROUTER_BREAKER_FAILURE_THRESHOLD")
	setDuration(&cfg.Breaker.Cooldown, "ARBROUTER_BREAKER_COOLDOWN")
	setInt(&cfg.Breaker.TrialSuccesses, "ARBROUTER_BREAKER_TRIAL_SUCCESSES")

	// ── Selection ──
	setDuration(&cfg.Selection.RankingCacheTTL, "ARBROUTER_SELECTION_RANKING_CACHE_TTL")
	setDuration(&cfg.Selection.WatchdogInterval, "ARBROUTER_SELECTION_WATCHDOG_INTERVAL")
	setInt(&cfg.Selection.WarmStartLimit, "ARBROUTER_SELECTION_WARM_START_LIMIT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBROUTER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBROUTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBROUTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBROUTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBROUTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBROUTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBROUTER_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBROUTER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBROUTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBROUTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBROUTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBROUTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBROUTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBROUTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBROUTER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBROUTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBROUTER_POSTGRES_POOL_MIN_CONNS")

	// ── Events ──
	setStr(&cfg.Events.Stream, "ARBROUTER_EVENTS_STREAM")
	setInt64(&cfg.Events.StreamMaxLen, "ARBROUTER_EVENTS_STREAM_MAX_LEN")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ARBROUTER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
