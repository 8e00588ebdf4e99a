// Package events delivers selector observability events to external
// monitoring. Delivery is best-effort; nothing in the selection path depends
// on it.
package events

import (
	"context"
	"log/slog"

	"github.com/voltarb/arbrouter/internal/domain"
)

// SlogSink logs every event through the structured logger. It is the default
// sink when no external monitoring is configured.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a SlogSink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With(slog.String("component", "events"))}
}

// Emit logs the event.
func (s *SlogSink) Emit(_ context.Context, e domain.Event) {
	attrs := []any{
		slog.String("event", string(e.Type)),
		slog.String("provider", e.ProviderID),
	}
	if e.SelectionID != "" {
		attrs = append(attrs, slog.String("selection_id", e.SelectionID))
	}
	if e.ChainID != 0 {
		attrs = append(attrs, slog.Uint64("chain_id", e.ChainID))
	}
	for k, v := range e.Detail {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.Info("selector event", attrs...)
}

// MultiSink fans one event out to several sinks.
type MultiSink []domain.EventSink

// Emit delivers the event to every sink in order.
func (m MultiSink) Emit(ctx context.Context, e domain.Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// Compile-time interface checks.
var (
	_ domain.EventSink = (*SlogSink)(nil)
	_ domain.EventSink = (MultiSink)(nil)
)
