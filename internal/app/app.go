// Package app provides the top-level application lifecycle management for the
// execution router. It wires together all dependencies (catalog, chain
// readers, caches, the reliability tracker, circuit breakers, ranking, and
// the selection orchestrator) and runs them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voltarb/arbrouter/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// background goroutines, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting router",
		slog.Int("providers", len(a.cfg.Providers)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "dependencies wired",
		slog.Int("catalog_size", deps.Catalog.Len()),
		slog.Int("chains", len(deps.Reader.Chains())),
		slog.Bool("journal", deps.Outcomes != nil),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.watchdog(gctx, deps)
	})

	return g.Wait()
}

// watchdog periodically logs breaker and reliability state so operators can
// see provider health without querying the selector.
func (a *App) watchdog(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Selection.WatchdogInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, ps := range deps.Breakers.States() {
				score := deps.Tracker.Score(ps.ProviderID)
				a.logger.InfoContext(ctx, "provider health",
					slog.String("provider", ps.ProviderID),
					slog.String("state", ps.State.String()),
					slog.Float64("success_rate", score.SuccessRate),
					slog.Int("samples", score.Samples),
					slog.Duration("mean_latency", score.MeanLatency),
				)
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down router")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
