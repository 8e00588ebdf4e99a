package domain

// CircuitState is the health gate state of one provider's circuit breaker.
type CircuitState int

const (
	// StateClosed is normal operation.
	StateClosed CircuitState = iota
	// StateOpen excludes the provider from selection until a cooldown elapses.
	StateOpen
	// StateHalfOpen admits a single trial attempt at a time.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}
