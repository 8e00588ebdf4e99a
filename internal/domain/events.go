package domain

import (
	"context"
	"time"
)

// EventType enumerates the observability events the selector emits.
type EventType string

const (
	EventSelectionMade     EventType = "selection_made"
	EventProviderChosen    EventType = "provider_chosen"
	EventOutcomeRecorded   EventType = "outcome_recorded"
	EventBreakerTransition EventType = "breaker_transition"
)

// Event is one observability record. Events are for external monitoring only;
// nothing in the selection path depends on their delivery.
type Event struct {
	Type        EventType
	SelectionID string
	ProviderID  string
	ChainID     uint64
	// Detail carries type-specific fields (scores, states, reasons).
	Detail map[string]string
	At     time.Time
}

// EventSink receives selector events. Implementations must not block the
// selection hot path; failures are theirs to log and swallow.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}
