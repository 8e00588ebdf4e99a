// Package memory implements domain cache interfaces with in-process maps.
// It is the default backing store; tests construct isolated instances of it.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/voltarb/arbrouter/internal/domain"
)

// AvailabilityCache is an in-process TTL cache for availability checks.
// Entries are replaced on write and dropped lazily on expired reads.
type AvailabilityCache struct {
	clk clock.Clock

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	check     domain.AvailabilityCheck
	expiresAt time.Time
}

// NewAvailabilityCache creates an empty cache using the given clock.
func NewAvailabilityCache(clk clock.Clock) *AvailabilityCache {
	if clk == nil {
		clk = clock.New()
	}
	return &AvailabilityCache{
		clk:     clk,
		entries: make(map[string]entry),
	}
}

// Get returns the cached check for key, if present and unexpired.
func (c *AvailabilityCache) Get(_ context.Context, key string) (domain.AvailabilityCheck, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return domain.AvailabilityCheck{}, false, nil
	}
	if c.clk.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a fresh write may have landed.
		if cur, ok := c.entries[key]; ok && c.clk.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return domain.AvailabilityCheck{}, false, nil
	}
	return e.check, true, nil
}

// Set stores the check under key with the given TTL. Last writer wins.
func (c *AvailabilityCache) Set(_ context.Context, key string, check domain.AvailabilityCheck, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = entry{check: check, expiresAt: c.clk.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// InvalidateProvider drops every entry whose key belongs to the provider.
func (c *AvailabilityCache) InvalidateProvider(_ context.Context, providerID string) error {
	prefix := providerID + "|"
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of live entries, expired ones included until their
// next read.
func (c *AvailabilityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Compile-time interface check.
var _ domain.AvailabilityCache = (*AvailabilityCache)(nil)
