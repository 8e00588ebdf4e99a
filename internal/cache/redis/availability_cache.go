package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voltarb/arbrouter/internal/domain"
)

// AvailabilityCache implements domain.AvailabilityCache on Redis strings with
// native key expiry. Each check is stored as JSON at "avail:{key}".
type AvailabilityCache struct {
	rdb *redis.Client
}

// NewAvailabilityCache creates an AvailabilityCache backed by the given Client.
func NewAvailabilityCache(c *Client) *AvailabilityCache {
	return &AvailabilityCache{rdb: c.Underlying()}
}

func availKey(key string) string {
	return "avail:" + key
}

// checkPayload is the wire form of an AvailabilityCheck. Amounts travel as
// decimal strings since big.Int JSON is not portable across tooling.
type checkPayload struct {
	ProviderID string `json:"provider_id"`
	Required   string `json:"required"`
	Available  bool   `json:"available"`
	CheckedAt  int64  `json:"checked_at_ns"`
	Source     string `json:"source"`
}

// Get returns the cached check for key. Expiry is handled by Redis itself.
func (ac *AvailabilityCache) Get(ctx context.Context, key string) (domain.AvailabilityCheck, bool, error) {
	raw, err := ac.rdb.Get(ctx, availKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AvailabilityCheck{}, false, nil
	}
	if err != nil {
		return domain.AvailabilityCheck{}, false, fmt.Errorf("redis: get availability %s: %w", key, err)
	}

	var p checkPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.AvailabilityCheck{}, false, fmt.Errorf("redis: decode availability %s: %w", key, err)
	}
	required, ok := new(big.Int).SetString(p.Required, 10)
	if !ok {
		return domain.AvailabilityCheck{}, false, fmt.Errorf("redis: decode availability %s: bad amount %q", key, p.Required)
	}

	return domain.AvailabilityCheck{
		ProviderID: p.ProviderID,
		Required:   required,
		Available:  p.Available,
		CheckedAt:  time.Unix(0, p.CheckedAt).UTC(),
		Source:     domain.AvailabilitySource(p.Source),
	}, true, nil
}

// Set stores the check under key with the given TTL.
func (ac *AvailabilityCache) Set(ctx context.Context, key string, check domain.AvailabilityCheck, ttl time.Duration) error {
	p := checkPayload{
		ProviderID: check.ProviderID,
		Required:   check.Required.String(),
		Available:  check.Available,
		CheckedAt:  check.CheckedAt.UnixNano(),
		Source:     string(check.Source),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: encode availability %s: %w", key, err)
	}
	if err := ac.rdb.Set(ctx, availKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set availability %s: %w", key, err)
	}
	return nil
}

// InvalidateProvider scans for the provider's keys and deletes them.
func (ac *AvailabilityCache) InvalidateProvider(ctx context.Context, providerID string) error {
	pattern := availKey(providerID + "|*")
	iter := ac.rdb.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan availability %s: %w", providerID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := ac.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate availability %s: %w", providerID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AvailabilityCache = (*AvailabilityCache)(nil)
