package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/benbjohnson/clock"

	"github.com/voltarb/arbrouter/internal/availability"
	"github.com/voltarb/arbrouter/internal/breaker"
	"github.com/voltarb/arbrouter/internal/cache/memory"
	rediscache "github.com/voltarb/arbrouter/internal/cache/redis"
	"github.com/voltarb/arbrouter/internal/catalog"
	"github.com/voltarb/arbrouter/internal/chain"
	"github.com/voltarb/arbrouter/internal/config"
	"github.com/voltarb/arbrouter/internal/domain"
	"github.com/voltarb/arbrouter/internal/events"
	"github.com/voltarb/arbrouter/internal/ranking"
	"github.com/voltarb/arbrouter/internal/reliability"
	"github.com/voltarb/arbrouter/internal/selector"
	"github.com/voltarb/arbrouter/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the running selector
// needs. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Catalog   *catalog.Catalog
	Reader    *chain.EthReader
	Validator *availability.Validator
	Tracker   *reliability.Tracker
	Breakers  *breaker.Manager
	Ranker    *ranking.Strategy
	Selector  *selector.Orchestrator

	// Outcomes is the durable attempt journal. Nil when Postgres is disabled.
	Outcomes domain.OutcomeStore
	Events   domain.EventSink
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	clk := clock.New()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Provider catalog ---
	cat := catalog.New()
	for _, pc := range cfg.Providers {
		p := domain.Provider{
			ID:          pc.ID,
			ChainID:     pc.ChainID,
			Protocol:    pc.Protocol,
			Kind:        domain.ProviderKind(pc.Kind),
			Address:     pc.Address,
			FeeBps:      pc.FeeBps,
			Capacity:    domain.CapacityClass(pc.Capacity),
			BaseLatency: pc.BaseLatency.Duration,
		}
		if err := cat.Register(p); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: catalog: provider %q: %w", pc.ID, err)
		}
	}
	deps.Catalog = cat

	// --- Redis (availability cache + event stream) ---
	var redisClient *rediscache.Client
	if cfg.Redis.Enabled {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		redisClient = rc
	}

	var availCache domain.AvailabilityCache
	if redisClient != nil {
		availCache = rediscache.NewAvailabilityCache(redisClient)
	} else {
		availCache = memory.NewAvailabilityCache(clk)
	}

	// --- Chain reader ---
	endpoints := make(map[uint64]string, len(cfg.Chains.RPCEndpoints))
	for key, url := range cfg.Chains.RPCEndpoints {
		chainID, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chains: bad chain id %q", key)
		}
		endpoints[chainID] = url
	}
	reader, err := chain.NewEthReader(ctx, endpoints, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain reader: %w", err)
	}
	closers = append(closers, reader.Close)
	deps.Reader = reader

	// --- Availability validator ---
	deps.Validator = availability.NewValidator(availability.Config{
		TTL:         cfg.Availability.CacheTTL.Duration,
		MarginBps:   cfg.Availability.MarginBps,
		ReadTimeout: cfg.Availability.ReadTimeout.Duration,
	}, reader, availCache, clk, logger)

	// --- Reliability tracker ---
	deps.Tracker = reliability.NewTracker(cfg.Ranking.ReliabilityWindow, clk)

	// --- Circuit breakers ---
	deps.Breakers = breaker.NewManager(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown.Duration,
		TrialSuccesses:   cfg.Breaker.TrialSuccesses,
	}, clk)

	// --- Ranking strategy ---
	deps.Ranker = ranking.NewStrategy(ranking.Config{
		Weights: ranking.Weights{
			Fee:         cfg.Ranking.FeeWeight,
			Liquidity:   cfg.Ranking.LiquidityWeight,
			Reliability: cfg.Ranking.ReliabilityWeight,
			Latency:     cfg.Ranking.LatencyWeight,
		},
		FeeCeilingBps:         cfg.Ranking.FeeCeilingBps,
		NeutralReliability:    cfg.Ranking.NeutralReliability,
		UnknownLiquidityScore: cfg.Ranking.UnknownLiquidityScore,
		UnknownLatencyScore:   cfg.Ranking.UnknownLatencyScore,
	}, deps.Validator, deps.Tracker, logger)

	// --- Event sinks ---
	sinks := events.MultiSink{events.NewSlogSink(logger)}
	if redisClient != nil && cfg.Events.Stream != "" {
		sinks = append(sinks, events.NewRedisSink(
			redisClient,
			cfg.Events.Stream,
			cfg.Events.StreamMaxLen,
			logger,
		))
	}
	deps.Events = sinks

	// --- PostgreSQL outcome journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}

		store := postgres.NewOutcomeStore(pgClient.Pool())
		deps.Outcomes = store

		// Rebuild reliability state from the journal so a restart does not
		// reset every provider to the neutral score.
		if cfg.Selection.WarmStartLimit > 0 {
			for _, p := range cat.List() {
				recent, err := store.ListRecent(ctx, p.ID, cfg.Selection.WarmStartLimit)
				if err != nil {
					logger.Warn("warm start read failed",
						slog.String("provider", p.ID),
						slog.String("error", err.Error()),
					)
					continue
				}
				// ListRecent returns newest first; replay oldest first.
				for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
					recent[i], recent[j] = recent[j], recent[i]
				}
				deps.Tracker.Warm(recent)
			}
		}
	}

	// --- Selection orchestrator ---
	deps.Selector = selector.New(
		selector.Config{CacheTTL: cfg.Selection.RankingCacheTTL.Duration},
		cat,
		deps.Ranker,
		deps.Breakers,
		deps.Tracker,
		deps.Validator,
		deps.Outcomes,
		deps.Events,
		clk,
		logger,
	)

	return deps, cleanup, nil
}
