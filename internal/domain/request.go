package domain

import (
	"fmt"
	"math/big"
	"time"
)

// RequestContext describes one selection request: which chain and asset the
// opportunity is on, how much funding it needs, and how long the caller is
// willing to wait. It is supplied by the opportunity/strategy layer.
type RequestContext struct {
	ChainID uint64
	// Asset is the token contract address (0x-prefixed hex) or "native".
	Asset string
	// Amount is the requested amount in the asset's base units.
	Amount *big.Int
	// Deadline bounds the whole selection, including fallback attempts.
	// Zero means no deadline.
	Deadline time.Time
	// Exclude lists provider IDs the caller wants left out of this request.
	Exclude map[string]bool
}

// Validate checks the request against the invariants the orchestrator relies
// on: positive amount, deadline (when set) still in the future at now.
func (rc RequestContext) Validate(now time.Time) error {
	if rc.Amount == nil || rc.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if rc.Asset == "" {
		return fmt.Errorf("%w: asset must not be empty", ErrInvalidRequest)
	}
	if !rc.Deadline.IsZero() && !rc.Deadline.After(now) {
		return fmt.Errorf("%w: deadline already elapsed", ErrInvalidRequest)
	}
	return nil
}

// Excluded reports whether the given provider ID is in the exclusion set.
func (rc RequestContext) Excluded(providerID string) bool {
	return rc.Exclude != nil && rc.Exclude[providerID]
}

// ProviderScore is the result of scoring one provider for one request. All
// sub-scores and the total lie in [0,1]; the total is the fixed weighted sum
// of the four sub-scores. Values are never mutated after construction.
type ProviderScore struct {
	ProviderID  string
	Fee         float64
	Liquidity   float64
	Reliability float64
	Latency     float64
	Total       float64
}

// RankedProvider pairs a provider with its score for one request.
type RankedProvider struct {
	Provider Provider
	Score    ProviderScore
}

// AttemptRecord is one entry in a selection's outcome trail.
type AttemptRecord struct {
	ProviderID string
	Success    bool
	Latency    time.Duration
	Reason     string
	At         time.Time
}

// SelectionResult is the output of one orchestration call: the ranked
// candidate list, the provider that succeeded (when fallback execution ran),
// and the trail of attempts made along the way.
type SelectionResult struct {
	ID       string
	Ranked   []RankedProvider
	Chosen   *Provider
	Attempts []AttemptRecord
}
