package domain

import (
	"math/big"
	"time"
)

// AvailabilitySource tells how an AvailabilityCheck was produced.
type AvailabilitySource string

const (
	// SourceLive means a fresh external read answered the check.
	SourceLive AvailabilitySource = "live"
	// SourceCached means the check was served from a previous live read.
	SourceCached AvailabilitySource = "cached"
	// SourceFallback means the external read failed or timed out and the
	// result is a conservative guess, not a confirmation either way.
	SourceFallback AvailabilitySource = "fallback"
)

// AvailabilityCheck is the cached result of one liquidity query. Checks are
// immutable; a stale check is replaced, never mutated.
type AvailabilityCheck struct {
	ProviderID string
	// Required is the amount the check was made against, safety margin
	// included.
	Required *big.Int
	// Available reports whether the provider's capacity covered Required.
	// Only meaningful when Source is live or cached.
	Available bool
	CheckedAt time.Time
	Source    AvailabilitySource
}

// Known reports whether the check carries a real answer. Fallback results are
// uncertainty signals, not confirmations.
func (c AvailabilityCheck) Known() bool {
	return c.Source == SourceLive || c.Source == SourceCached
}
