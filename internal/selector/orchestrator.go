// Package selector is the entry point of the execution-selection core: it
// ranks candidate providers for a request and, on demand, drives a bounded
// fallback attempt sequence, feeding outcomes back into the reliability
// tracker and circuit breakers.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/voltarb/arbrouter/internal/availability"
	"github.com/voltarb/arbrouter/internal/breaker"
	"github.com/voltarb/arbrouter/internal/catalog"
	"github.com/voltarb/arbrouter/internal/domain"
	"github.com/voltarb/arbrouter/internal/ranking"
)

// AttemptFunc is the opaque "try this provider" primitive supplied by the
// execution/submission layer. Its error is the only signal the core needs
// back from an attempt.
type AttemptFunc func(ctx context.Context, p domain.Provider) error

// Config holds orchestrator tuning.
type Config struct {
	// CacheTTL bounds how long a ranking is reused for identical requests.
	CacheTTL time.Duration
}

// DefaultConfig returns the standard orchestrator tuning.
func DefaultConfig() Config {
	return Config{CacheTTL: 30 * time.Second}
}

// Orchestrator coordinates ranking, breaker filtering, and the fallback
// execution loop. Multiple selections may run concurrently; within one call,
// candidates are attempted strictly in ranked order, one at a time.
type Orchestrator struct {
	cfg       Config
	catalog   *catalog.Catalog
	ranker    *ranking.Strategy
	breakers  *breaker.Manager
	recorder  OutcomeRecorder
	validator *availability.Validator
	outcomes  domain.OutcomeStore // optional journal, may be nil
	events    domain.EventSink
	clk       clock.Clock
	logger    *slog.Logger

	mu        sync.Mutex
	rankCache map[string]rankEntry
}

// OutcomeRecorder receives every attempt outcome. Implemented by the
// reliability tracker.
type OutcomeRecorder interface {
	Record(outcome domain.ProviderOutcome)
}

type rankEntry struct {
	ranked    []domain.RankedProvider
	providers map[string]bool
	expiresAt time.Time
}

// New creates an Orchestrator and hooks breaker transitions into cache
// invalidation and event emission: the moment a breaker opens, both the
// ranking cache and the provider's availability entries are dropped.
func New(
	cfg Config,
	cat *catalog.Catalog,
	ranker *ranking.Strategy,
	breakers *breaker.Manager,
	recorder OutcomeRecorder,
	validator *availability.Validator,
	outcomes domain.OutcomeStore,
	events domain.EventSink,
	clk clock.Clock,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	if events == nil {
		events = nopSink{}
	}
	o := &Orchestrator{
		cfg:       cfg,
		catalog:   cat,
		ranker:    ranker,
		breakers:  breakers,
		recorder:  recorder,
		validator: validator,
		outcomes:  outcomes,
		events:    events,
		clk:       clk,
		logger:    logger.With(slog.String("component", "selector")),
		rankCache: make(map[string]rankEntry),
	}
	breakers.OnTransition(o.onBreakerTransition)
	return o
}

// Select validates the request and returns the ranked, breaker-filtered
// candidate list without executing anything.
func (o *Orchestrator) Select(ctx context.Context, req domain.RequestContext) (domain.SelectionResult, error) {
	result := domain.SelectionResult{ID: uuid.New().String()}

	if err := req.Validate(o.clk.Now()); err != nil {
		return result, err
	}

	// Cap ranking, and the availability reads underneath it, by the request
	// deadline so a tight deadline is not spent waiting out a slow external
	// read's full timeout.
	rankCtx := ctx
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		rankCtx, cancel = context.WithTimeout(ctx, req.Deadline.Sub(o.clk.Now()))
		defer cancel()
	}

	ranked, err := o.rankedFor(rankCtx, req)
	if err != nil {
		return result, err
	}
	result.Ranked = o.filterEligible(ranked, req)

	if len(result.Ranked) == 0 {
		return result, fmt.Errorf("%w: chain %d asset %s", domain.ErrNoEligibleProviders, req.ChainID, req.Asset)
	}

	o.events.Emit(ctx, domain.Event{
		Type:        domain.EventSelectionMade,
		SelectionID: result.ID,
		ProviderID:  result.Ranked[0].Provider.ID,
		ChainID:     req.ChainID,
		Detail: map[string]string{
			"candidates": fmt.Sprintf("%d", len(result.Ranked)),
			"top_score":  fmt.Sprintf("%.4f", result.Ranked[0].Score.Total),
		},
		At: o.clk.Now().UTC(),
	})
	return result, nil
}

// SelectWithFallback ranks candidates and then tries them strictly in order
// through the supplied executor, stopping at the first success. Individual
// provider failures are absorbed into the fallback loop; only total
// exhaustion or invalid input reach the caller. No provider is attempted
// twice within one call.
func (o *Orchestrator) SelectWithFallback(ctx context.Context, req domain.RequestContext, attempt AttemptFunc) (domain.SelectionResult, error) {
	result, err := o.Select(ctx, req)
	if err != nil {
		return result, err
	}

	log := o.logger.With(slog.String("selection_id", result.ID))

	for _, candidate := range result.Ranked {
		p := candidate.Provider

		if o.deadlineElapsed(ctx, req) {
			log.Warn("request deadline elapsed, abandoning remaining candidates",
				slog.Int("attempted", len(result.Attempts)),
			)
			return result, fmt.Errorf("%w: deadline elapsed after %d attempts", domain.ErrAllProvidersExhausted, len(result.Attempts))
		}

		// Re-check the gate right before the attempt: a breaker may have
		// opened since ranking, and HALF_OPEN admits only one probe.
		if !o.breakers.Allow(p.ID) {
			log.Debug("candidate gated by circuit breaker", slog.String("provider", p.ID))
			continue
		}

		rec := o.attemptOne(ctx, req, result.ID, p, attempt)
		result.Attempts = append(result.Attempts, rec)

		if rec.Success {
			chosen := p
			result.Chosen = &chosen
			o.events.Emit(ctx, domain.Event{
				Type:        domain.EventProviderChosen,
				SelectionID: result.ID,
				ProviderID:  p.ID,
				ChainID:     req.ChainID,
				Detail:      map[string]string{"attempts": fmt.Sprintf("%d", len(result.Attempts))},
				At:          o.clk.Now().UTC(),
			})
			log.Info("provider attempt succeeded",
				slog.String("provider", p.ID),
				slog.Duration("latency", rec.Latency),
				slog.Int("attempts", len(result.Attempts)),
			)
			return result, nil
		}

		log.Warn("provider attempt failed, falling back",
			slog.String("provider", p.ID),
			slog.String("reason", rec.Reason),
		)
	}

	if len(result.Attempts) == 0 {
		return result, fmt.Errorf("%w: every ranked candidate was gated", domain.ErrNoEligibleProviders)
	}
	return result, fmt.Errorf("%w: %d candidates failed", domain.ErrAllProvidersExhausted, len(result.Attempts))
}

// attemptOne runs a single executor invocation with a deadline bounded by the
// request, then records the outcome everywhere it matters.
func (o *Orchestrator) attemptOne(ctx context.Context, req domain.RequestContext, selectionID string, p domain.Provider, attempt AttemptFunc) domain.AttemptRecord {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if !req.Deadline.IsZero() {
		attemptCtx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	start := o.clk.Now()
	err := attempt(attemptCtx, p)
	latency := o.clk.Now().Sub(start)

	rec := domain.AttemptRecord{
		ProviderID: p.ID,
		Success:    err == nil,
		Latency:    latency,
		At:         start.UTC(),
	}
	if err != nil {
		rec.Reason = err.Error()
	}

	outcome := domain.ProviderOutcome{
		ID:         uuid.New().String(),
		ProviderID: p.ID,
		ChainID:    p.ChainID,
		Success:    rec.Success,
		Latency:    latency,
		Reason:     rec.Reason,
		RecordedAt: start.UTC(),
	}
	o.recorder.Record(outcome)

	if rec.Success {
		o.breakers.RecordSuccess(p.ID)
	} else {
		o.breakers.RecordFailure(p.ID)
	}

	if o.outcomes != nil {
		if err := o.outcomes.Append(ctx, outcome); err != nil {
			o.logger.Warn("outcome journal append failed",
				slog.String("provider", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	o.events.Emit(ctx, domain.Event{
		Type:        domain.EventOutcomeRecorded,
		SelectionID: selectionID,
		ProviderID:  p.ID,
		ChainID:     p.ChainID,
		Detail: map[string]string{
			"success": fmt.Sprintf("%t", rec.Success),
			"latency": latency.String(),
			"reason":  rec.Reason,
		},
		At: o.clk.Now().UTC(),
	})
	return rec
}

// rankedFor returns the ranked list for the request, served from the
// short-lived ranking cache when a burst repeats an identical request.
func (o *Orchestrator) rankedFor(ctx context.Context, req domain.RequestContext) ([]domain.RankedProvider, error) {
	key := rankKey(req)

	o.mu.Lock()
	if e, ok := o.rankCache[key]; ok && o.clk.Now().Before(e.expiresAt) {
		ranked := make([]domain.RankedProvider, len(e.ranked))
		copy(ranked, e.ranked)
		o.mu.Unlock()
		return ranked, nil
	}
	o.mu.Unlock()

	providers := o.catalog.ListByChain(req.ChainID)

	// Rank without the caller's exclusion set so the cached entry serves any
	// request for this (chain, asset, bucket); exclusions apply at read time.
	rankReq := req
	rankReq.Exclude = nil
	ranked, err := o.ranker.Rank(ctx, providers, rankReq)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		ids[r.Provider.ID] = true
	}

	o.mu.Lock()
	o.rankCache[key] = rankEntry{
		ranked:    ranked,
		providers: ids,
		expiresAt: o.clk.Now().Add(o.cfg.CacheTTL),
	}
	o.mu.Unlock()

	out := make([]domain.RankedProvider, len(ranked))
	copy(out, ranked)
	return out, nil
}

// filterEligible drops providers whose breaker is OPEN, plus any the request
// excludes (the ranking cache is shared across requests with different
// exclusion sets). HALF_OPEN candidates stay eligible; the per-attempt Allow
// gate enforces the single-probe rule.
func (o *Orchestrator) filterEligible(ranked []domain.RankedProvider, req domain.RequestContext) []domain.RankedProvider {
	out := make([]domain.RankedProvider, 0, len(ranked))
	for _, r := range ranked {
		if req.Excluded(r.Provider.ID) {
			continue
		}
		if o.breakers.State(r.Provider.ID) == domain.StateOpen {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (o *Orchestrator) deadlineElapsed(ctx context.Context, req domain.RequestContext) bool {
	if ctx.Err() != nil {
		return true
	}
	return !req.Deadline.IsZero() && !o.clk.Now().Before(req.Deadline)
}

// onBreakerTransition reacts to state changes: an opening breaker immediately
// invalidates every cache that could still recommend the provider.
func (o *Orchestrator) onBreakerTransition(providerID string, from, to domain.CircuitState) {
	if to == domain.StateOpen {
		o.invalidateRankings(providerID)

		invCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.validator.InvalidateProvider(invCtx, providerID); err != nil {
			o.logger.Warn("availability invalidation failed",
				slog.String("provider", providerID),
				slog.String("error", err.Error()),
			)
		}
	}

	o.logger.Info("breaker transition",
		slog.String("provider", providerID),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	emitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.events.Emit(emitCtx, domain.Event{
		Type:       domain.EventBreakerTransition,
		ProviderID: providerID,
		Detail:     map[string]string{"from": from.String(), "to": to.String()},
		At:         o.clk.Now().UTC(),
	})
}

// invalidateRankings drops every cached ranking that includes the provider.
func (o *Orchestrator) invalidateRankings(providerID string) {
	o.mu.Lock()
	for key, e := range o.rankCache {
		if e.providers[providerID] {
			delete(o.rankCache, key)
		}
	}
	o.mu.Unlock()
}

func rankKey(req domain.RequestContext) string {
	return fmt.Sprintf("%d|%s|%d", req.ChainID, req.Asset, availability.Bucket(req.Amount))
}

// nopSink drops every event.
type nopSink struct{}

func (nopSink) Emit(context.Context, domain.Event) {}
