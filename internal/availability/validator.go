// Package availability answers "can this provider actually service this
// amount right now", with caching, duplicate-read suppression, and graceful
// degradation when the external read fails.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/voltarb/arbrouter/internal/domain"
)

// Config holds validator tuning.
type Config struct {
	// TTL is how long a live check stays valid in the cache.
	TTL time.Duration
	// MarginBps scales the requested amount up before comparing against the
	// provider's capacity, so the check is never optimistic.
	MarginBps int64
	// ReadTimeout bounds each external read, further capped by the caller's
	// context deadline.
	ReadTimeout time.Duration
}

// DefaultConfig returns the standard validator tuning.
func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		MarginBps:   500,
		ReadTimeout: 3 * time.Second,
	}
}

// MarginFunc computes the required capacity for a requested amount. The
// default scales by a fixed bps margin with ceiling rounding; deployments can
// swap in an amount-dependent curve.
type MarginFunc func(amount *big.Int) *big.Int

// Validator checks provider capacity through a ChainReader, caching results
// per (provider, asset, amount bucket) and coalescing concurrent identical
// reads so only one external call is in flight per key.
type Validator struct {
	cfg    Config
	margin MarginFunc
	reader domain.ChainReader
	cache  domain.AvailabilityCache
	clk    clock.Clock
	sf     singleflight.Group
	logger *slog.Logger
}

// NewValidator creates a Validator. reader performs the external liquidity
// query; cache stores results with the configured TTL.
func NewValidator(cfg Config, reader domain.ChainReader, cache domain.AvailabilityCache, clk clock.Clock, logger *slog.Logger) *Validator {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MarginBps < 0 {
		cfg.MarginBps = def.MarginBps
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	v := &Validator{
		cfg:    cfg,
		reader: reader,
		cache:  cache,
		clk:    clk,
		logger: logger.With(slog.String("component", "availability")),
	}
	v.margin = func(amount *big.Int) *big.Int {
		return RequiredWithMargin(amount, cfg.MarginBps)
	}
	return v
}

// SetMarginFunc replaces the default fixed-bps margin. Must be called before
// the validator is shared across goroutines.
func (v *Validator) SetMarginFunc(fn MarginFunc) {
	if fn != nil {
		v.margin = fn
	}
}

// Check reports whether the provider can service the requested amount,
// margin included. A failed or timed-out external read yields a fallback
// result rather than an error: availability uncertainty degrades, it does
// not abort a selection.
func (v *Validator) Check(ctx context.Context, p domain.Provider, asset string, amount *big.Int) domain.AvailabilityCheck {
	required := v.margin(amount)
	key := cacheKey(p.ID, asset, required)

	if cached, ok, err := v.cache.Get(ctx, key); err == nil && ok {
		cached.Source = domain.SourceCached
		return cached
	} else if err != nil {
		v.logger.Warn("availability cache read failed",
			slog.String("provider", p.ID),
			slog.String("error", err.Error()),
		)
	}

	res, err, _ := v.sf.Do(key, func() (any, error) {
		return v.readLive(ctx, p, asset, key, required)
	})
	if err != nil {
		// Degrade to the conservative fallback; the ranking layer maps it
		// to the mid-confidence liquidity score.
		return domain.AvailabilityCheck{
			ProviderID: p.ID,
			Required:   required,
			Available:  false,
			CheckedAt:  v.clk.Now().UTC(),
			Source:     domain.SourceFallback,
		}
	}
	return res.(domain.AvailabilityCheck)
}

// InvalidateProvider drops every cached check for the provider. Called when
// its circuit breaker opens so a now-unreliable provider is not recommended
// again mid-TTL.
func (v *Validator) InvalidateProvider(ctx context.Context, providerID string) error {
	return v.cache.InvalidateProvider(ctx, providerID)
}

func (v *Validator) readLive(ctx context.Context, p domain.Provider, asset, key string, required *big.Int) (domain.AvailabilityCheck, error) {
	readCtx, cancel := context.WithTimeout(ctx, v.cfg.ReadTimeout)
	defer cancel()

	capacity, err := v.reader.Liquidity(readCtx, p, asset)
	if err != nil {
		v.logger.Warn("liquidity read failed, degrading to fallback",
			slog.String("provider", p.ID),
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		return domain.AvailabilityCheck{}, fmt.Errorf("availability: read %s: %w", p.ID, err)
	}

	check := domain.AvailabilityCheck{
		ProviderID: p.ID,
		Required:   required,
		Available:  capacity.Cmp(required) >= 0,
		CheckedAt:  v.clk.Now().UTC(),
		Source:     domain.SourceLive,
	}

	// Fallback results are never cached; only confirmed reads are worth a
	// full TTL.
	if err := v.cache.Set(ctx, key, check, v.cfg.TTL); err != nil {
		v.logger.Warn("availability cache write failed",
			slog.String("provider", p.ID),
			slog.String("error", err.Error()),
		)
	}
	return check, nil
}

// RequiredWithMargin scales amount up by marginBps with round-up integer
// arithmetic, so the margin is never under-estimated.
func RequiredWithMargin(amount *big.Int, marginBps int64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	num := new(big.Int).Mul(amount, big.NewInt(10_000+marginBps))
	den := big.NewInt(10_000)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// Bucket maps an amount to its cache bucket. Amounts with the same bit length
// share a bucket, which keeps the key space small without letting a cached
// answer vouch for a materially larger request.
func Bucket(amount *big.Int) int {
	if amount == nil {
		return 0
	}
	return amount.BitLen()
}

func cacheKey(providerID, asset string, required *big.Int) string {
	return fmt.Sprintf("%s|%s|%d", providerID, asset, Bucket(required))
}
