package domain

import "time"

// ProviderOutcome records one execution attempt against a provider. Records
// are append-only and never edited; they drive both the reliability score and
// the circuit breaker.
type ProviderOutcome struct {
	ID         string
	ProviderID string
	ChainID    uint64
	Success    bool
	Latency    time.Duration
	// Reason carries the failure cause when Success is false.
	Reason     string
	RecordedAt time.Time
}

// ReliabilityScore is the rolling success rate derived from a provider's
// recent outcome window. It is recomputed on read, never stored.
type ReliabilityScore struct {
	// SuccessRate is in [0,1]. Meaningless when Samples is zero.
	SuccessRate float64
	// Samples is the number of outcomes in the window.
	Samples int
	// MeanLatency is the mean observed attempt latency over the window.
	MeanLatency time.Duration
}
