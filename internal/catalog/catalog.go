// Package catalog holds the registry of candidate providers. Providers are
// registered once at startup and are read-only thereafter.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/voltarb/arbrouter/internal/domain"
)

// Catalog is a named collection of providers that can be looked up at
// runtime. It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[string]domain.Provider
	byKey  map[string]string // chain+protocol key -> ID
}

// New returns an empty, ready-to-use Catalog.
func New() *Catalog {
	return &Catalog{
		byID:  make(map[string]domain.Provider),
		byKey: make(map[string]string),
	}
}

// Register adds a provider to the catalog. It returns
// domain.ErrDuplicateProvider when the ID or the (chain, protocol) identity is
// already taken, and an error when required fields are missing. Registered
// records are never mutated.
func (c *Catalog) Register(p domain.Provider) error {
	if err := validate(p); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[p.ID]; ok {
		return fmt.Errorf("%w: id %q", domain.ErrDuplicateProvider, p.ID)
	}
	if other, ok := c.byKey[p.Key()]; ok {
		return fmt.Errorf("%w: %s already registered as %q", domain.ErrDuplicateProvider, p.Key(), other)
	}

	c.byID[p.ID] = p
	c.byKey[p.Key()] = p.ID
	return nil
}

// Get retrieves a provider by ID. It returns domain.ErrProviderNotFound when
// the ID is not registered.
func (c *Catalog) Get(id string) (domain.Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.byID[id]
	if !ok {
		return domain.Provider{}, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, id)
	}
	return p, nil
}

// ListByChain returns every provider on the given chain, sorted by ID so
// results are stable across calls.
func (c *Catalog) ListByChain(chainID uint64) []domain.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Provider, 0, len(c.byID))
	for _, p := range c.byID {
		if p.ChainID == chainID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// List returns all registered providers sorted by ID.
func (c *Catalog) List() []domain.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Provider, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered providers.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func validate(p domain.Provider) error {
	var errs []string
	if p.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	if p.ChainID == 0 {
		errs = append(errs, "chain_id must be set")
	}
	if p.Protocol == "" {
		errs = append(errs, "protocol must not be empty")
	}
	if p.Kind != domain.KindLiquiditySource && p.Kind != domain.KindSubmissionChannel {
		errs = append(errs, fmt.Sprintf("unknown kind %q", p.Kind))
	}
	if p.FeeBps < 0 {
		errs = append(errs, "fee_bps must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: invalid provider %q: %s", p.ID, strings.Join(errs, "; "))
	}
	return nil
}
