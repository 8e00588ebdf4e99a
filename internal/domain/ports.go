package domain

import (
	"context"
	"math/big"
	"time"
)

// ChainReader is the external balance/liquidity query primitive used by the
// availability validator. Implementations carry their own timeout and error
// surface; callers bound every read with a context deadline.
type ChainReader interface {
	// Liquidity returns the capacity the provider can currently service for
	// the given asset, in base units.
	Liquidity(ctx context.Context, provider Provider, asset string) (*big.Int, error)
}

// AvailabilityCache stores availability checks under an opaque key with a TTL.
// Writes are last-writer-wins per key.
type AvailabilityCache interface {
	Get(ctx context.Context, key string) (AvailabilityCheck, bool, error)
	Set(ctx context.Context, key string, check AvailabilityCheck, ttl time.Duration) error
	// InvalidateProvider drops every entry belonging to the given provider,
	// used when its circuit breaker opens mid-TTL.
	InvalidateProvider(ctx context.Context, providerID string) error
}

// OutcomeStore is an optional append-only journal of execution outcomes.
// Selection correctness never depends on it; it exists for audit and for
// warming the reliability tracker after a restart.
type OutcomeStore interface {
	Append(ctx context.Context, outcome ProviderOutcome) error
	ListRecent(ctx context.Context, providerID string, limit int) ([]ProviderOutcome, error)
}
