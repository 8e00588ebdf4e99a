package domain

import (
	"fmt"
	"time"
)

// ProviderKind discriminates the two resource categories the selector ranks.
// Both kinds are treated identically by ranking and fallback; the tag exists
// so callers and observability can tell them apart.
type ProviderKind string

const (
	KindLiquiditySource   ProviderKind = "liquidity_source"
	KindSubmissionChannel ProviderKind = "submission_channel"
)

// CapacityClass is the declared size class of a provider, used as a coarse
// prior before any live availability data exists.
type CapacityClass string

const (
	CapacitySmall     CapacityClass = "small"
	CapacityMedium    CapacityClass = "medium"
	CapacityLarge     CapacityClass = "large"
	CapacityUnbounded CapacityClass = "unbounded"
)

// Provider describes one candidate resource: a liquidity source that can fund
// a trade, or a submission channel that gets the resulting transaction
// included. Providers are registered once at startup and are read-only
// thereafter.
type Provider struct {
	// ID is the operator-assigned identity, e.g. "aave_v3@137".
	ID string
	// ChainID is the network the provider lives on.
	ChainID uint64
	// Protocol names the underlying protocol ("aave_v3", "balancer", ...).
	// Identity is unique per (ChainID, Protocol).
	Protocol string
	Kind     ProviderKind
	// Address is the on-chain contract (pool, vault, relay deposit) whose
	// balance answers availability queries. Hex string, 0x-prefixed.
	Address string
	// FeeBps is the declared base fee in basis points.
	FeeBps int64
	// Capacity is the declared capacity class.
	Capacity CapacityClass
	// BaseLatency is the declared expected attempt latency, used until
	// observed outcomes refine it.
	BaseLatency time.Duration
}

// Key returns the (chain, protocol) identity the catalog enforces uniqueness on.
func (p Provider) Key() string {
	return fmt.Sprintf("%s@%d", p.Protocol, p.ChainID)
}

// String implements fmt.Stringer.
func (p Provider) String() string {
	return fmt.Sprintf("Provider(%s kind=%s fee=%dbps)", p.ID, p.Kind, p.FeeBps)
}
