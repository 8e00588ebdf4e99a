// Package ranking combines catalog data, availability, and reliability into a
// single weighted score per provider for a given request.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voltarb/arbrouter/internal/availability"
	"github.com/voltarb/arbrouter/internal/domain"
	"github.com/voltarb/arbrouter/internal/reliability"
)

// Weights are the fixed coefficients of the total score. They must sum to 1.
type Weights struct {
	Fee         float64
	Liquidity   float64
	Reliability float64
	Latency     float64
}

// DefaultWeights returns the production weighting: fee dominates, liquidity
// second, reliability and latency refine.
func DefaultWeights() Weights {
	return Weights{Fee: 0.50, Liquidity: 0.30, Reliability: 0.15, Latency: 0.05}
}

// Sum returns the coefficient total.
func (w Weights) Sum() float64 {
	return w.Fee + w.Liquidity + w.Reliability + w.Latency
}

// Config holds ranking tuning.
type Config struct {
	Weights Weights
	// FeeCeilingBps is the fee at which feeScore reaches 0; higher fees clamp.
	FeeCeilingBps int64
	// NeutralReliability is the score assigned to providers with no outcome
	// history, so untested providers are neither punished nor favored.
	NeutralReliability float64
	// UnknownLiquidityScore is the conservative mid score for fallback
	// availability results.
	UnknownLiquidityScore float64
	// UnknownLatencyScore is the conservative mid score for providers with
	// no observed latency and no declared base latency.
	UnknownLatencyScore float64
}

// DefaultConfig returns the standard ranking tuning.
func DefaultConfig() Config {
	return Config{
		Weights:               DefaultWeights(),
		FeeCeilingBps:         100,
		NeutralReliability:    0.7,
		UnknownLiquidityScore: 0.5,
		UnknownLatencyScore:   0.5,
	}
}

// Strategy scores and orders providers for a request. Given fixed catalog,
// reliability, and availability snapshots its output is deterministic.
type Strategy struct {
	cfg       Config
	validator *availability.Validator
	tracker   *reliability.Tracker
	logger    *slog.Logger
}

// NewStrategy creates a Strategy over the given validator and tracker.
func NewStrategy(cfg Config, validator *availability.Validator, tracker *reliability.Tracker, logger *slog.Logger) *Strategy {
	def := DefaultConfig()
	if cfg.Weights.Sum() == 0 {
		cfg.Weights = def.Weights
	}
	if cfg.FeeCeilingBps <= 0 {
		cfg.FeeCeilingBps = def.FeeCeilingBps
	}
	if cfg.NeutralReliability <= 0 || cfg.NeutralReliability >= 1 {
		cfg.NeutralReliability = def.NeutralReliability
	}
	if cfg.UnknownLiquidityScore <= 0 || cfg.UnknownLiquidityScore >= 1 {
		cfg.UnknownLiquidityScore = def.UnknownLiquidityScore
	}
	if cfg.UnknownLatencyScore <= 0 || cfg.UnknownLatencyScore >= 1 {
		cfg.UnknownLatencyScore = def.UnknownLatencyScore
	}
	return &Strategy{
		cfg:       cfg,
		validator: validator,
		tracker:   tracker,
		logger:    logger.With(slog.String("component", "ranking")),
	}
}

// measurement is one provider's raw inputs before latency normalization.
type measurement struct {
	provider domain.Provider
	fee      float64
	liq      float64
	rel      float64
	latency  time.Duration
	excluded bool
}

// Rank scores every candidate concurrently, drops providers with confirmed
// insufficient liquidity, and returns the rest ordered by total score
// descending. Ties break by declared fee (lower wins), then provider ID, so
// identical inputs always produce identical orderings.
func (s *Strategy) Rank(ctx context.Context, providers []domain.Provider, req domain.RequestContext) ([]domain.RankedProvider, error) {
	candidates := make([]domain.Provider, 0, len(providers))
	for _, p := range providers {
		if !req.Excluded(p.ID) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Fan out one scoring goroutine per provider; the join barrier below
	// collects measurements before latency normalization and sorting.
	measurements := make([]measurement, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range candidates {
		g.Go(func() error {
			measurements[i] = s.measure(gctx, p, req)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	// Latency normalizes against the fastest candidate for this request.
	fastest := time.Duration(0)
	for _, m := range measurements {
		if m.excluded || m.latency <= 0 {
			continue
		}
		if fastest == 0 || m.latency < fastest {
			fastest = m.latency
		}
	}

	w := s.cfg.Weights
	ranked := make([]domain.RankedProvider, 0, len(measurements))
	for _, m := range measurements {
		if m.excluded {
			continue
		}
		// A provider without any latency signal gets the conservative mid
		// score, never the top of the scale.
		latScore := s.cfg.UnknownLatencyScore
		if m.latency > 0 {
			latScore = float64(fastest) / float64(m.latency)
		}
		score := domain.ProviderScore{
			ProviderID:  m.provider.ID,
			Fee:         m.fee,
			Liquidity:   m.liq,
			Reliability: m.rel,
			Latency:     latScore,
		}
		score.Total = w.Fee*score.Fee + w.Liquidity*score.Liquidity +
			w.Reliability*score.Reliability + w.Latency*score.Latency
		ranked = append(ranked, domain.RankedProvider{Provider: m.provider, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		if a.Provider.FeeBps != b.Provider.FeeBps {
			return a.Provider.FeeBps < b.Provider.FeeBps
		}
		return a.Provider.ID < b.Provider.ID
	})

	return ranked, nil
}

// measure gathers one provider's raw sub-scores. The availability check is
// the only step that may touch the network.
func (s *Strategy) measure(ctx context.Context, p domain.Provider, req domain.RequestContext) measurement {
	m := measurement{provider: p, fee: s.feeScore(p.FeeBps)}

	check := s.validator.Check(ctx, p, req.Asset, req.Amount)
	switch {
	case check.Known() && check.Available:
		m.liq = 1.0
	case check.Known() && !check.Available:
		// Confirmed insufficient: out of the ranked list entirely.
		m.excluded = true
		s.logger.Debug("provider excluded, insufficient liquidity",
			slog.String("provider", p.ID),
			slog.String("required", check.Required.String()),
		)
		return m
	default:
		m.liq = s.cfg.UnknownLiquidityScore
	}

	rel := s.tracker.Score(p.ID)
	if rel.Samples == 0 {
		m.rel = s.cfg.NeutralReliability
	} else {
		m.rel = rel.SuccessRate
	}

	if lat, ok := s.tracker.ExpectedLatency(p.ID); ok && lat > 0 {
		m.latency = lat
	} else {
		m.latency = p.BaseLatency
	}
	return m
}

// feeScore maps declared fee linearly onto [0,1]: 1 at zero bps, 0 at the
// ceiling and above.
func (s *Strategy) feeScore(feeBps int64) float64 {
	if feeBps <= 0 {
		return 1.0
	}
	if feeBps >= s.cfg.FeeCeilingBps {
		return 0.0
	}
	return 1.0 - float64(feeBps)/float64(s.cfg.FeeCeilingBps)
}
