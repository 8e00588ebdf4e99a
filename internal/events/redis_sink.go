package events

import (
	"context"
	"encoding/json"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voltarb/arbrouter/internal/cache/redis"
	"github.com/voltarb/arbrouter/internal/domain"
)

// DefaultStreamMaxLen is the approximate maximum stream length, enforced via
// XADD MAXLEN ~.
const DefaultStreamMaxLen int64 = 10000

// RedisSink appends events to a Redis stream for durable, ordered delivery to
// external monitoring consumers. Append failures are logged and swallowed.
type RedisSink struct {
	rdb    *goredis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRedisSink creates a RedisSink writing to the given stream.
func NewRedisSink(c *redis.Client, stream string, maxLen int64, logger *slog.Logger) *RedisSink {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisSink{
		rdb:    c.Underlying(),
		stream: stream,
		maxLen: maxLen,
		logger: logger.With(slog.String("component", "events_redis")),
	}
}

// eventPayload is the stream wire form of an Event.
type eventPayload struct {
	Type        string            `json:"type"`
	SelectionID string            `json:"selection_id,omitempty"`
	ProviderID  string            `json:"provider_id"`
	ChainID     uint64            `json:"chain_id,omitempty"`
	Detail      map[string]string `json:"detail,omitempty"`
	AtNs        int64             `json:"at_ns"`
}

// Emit appends the event to the stream with approximate length trimming.
func (s *RedisSink) Emit(ctx context.Context, e domain.Event) {
	raw, err := json.Marshal(eventPayload{
		Type:        string(e.Type),
		SelectionID: e.SelectionID,
		ProviderID:  e.ProviderID,
		ChainID:     e.ChainID,
		Detail:      e.Detail,
		AtNs:        e.At.UnixNano(),
	})
	if err != nil {
		s.logger.Warn("event encode failed", slog.String("error", err.Error()))
		return
	}

	err = s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": raw},
	}).Err()
	if err != nil {
		s.logger.Warn("event stream append failed",
			slog.String("stream", s.stream),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.EventSink = (*RedisSink)(nil)
