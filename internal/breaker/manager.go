package breaker

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/voltarb/arbrouter/internal/domain"
)

// Manager owns one Breaker per provider, creating them lazily on first use.
// It is safe for concurrent use.
type Manager struct {
	cfg Config
	clk clock.Clock

	mu       sync.RWMutex
	breakers map[string]*Breaker

	cbMu         sync.RWMutex
	onTransition TransitionFunc
}

// NewManager creates a Manager with the given thresholds. Zero-valued config
// fields fall back to DefaultConfig.
func NewManager(cfg Config, clk clock.Clock) *Manager {
	def := DefaultConfig()
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.TrialSuccesses < 1 {
		cfg.TrialSuccesses = def.TrialSuccesses
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		cfg:      cfg,
		clk:      clk,
		breakers: make(map[string]*Breaker),
	}
}

// OnTransition registers the observer invoked for every breaker state change.
// The selector uses it to invalidate caches and emit events.
func (m *Manager) OnTransition(fn TransitionFunc) {
	m.cbMu.Lock()
	m.onTransition = fn
	m.cbMu.Unlock()
}

// For returns the breaker for the given provider, creating it when absent.
func (m *Manager) For(providerID string) *Breaker {
	m.mu.RLock()
	b := m.breakers[providerID]
	m.mu.RUnlock()
	if b != nil {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.breakers[providerID]; b == nil {
		b = newBreaker(providerID, m.cfg, m.clk, m.dispatch)
		m.breakers[providerID] = b
	}
	return b
}

// State reports the provider's current breaker state.
func (m *Manager) State(providerID string) domain.CircuitState {
	return m.For(providerID).State()
}

// Allow reports whether an attempt against the provider may proceed.
func (m *Manager) Allow(providerID string) bool {
	return m.For(providerID).Allow()
}

// RecordSuccess feeds a successful attempt into the provider's breaker.
func (m *Manager) RecordSuccess(providerID string) {
	m.For(providerID).OnSuccess()
}

// RecordFailure feeds a failed attempt into the provider's breaker.
func (m *Manager) RecordFailure(providerID string) {
	m.For(providerID).OnFailure()
}

// ForceOpen pins the provider's breaker open for operational intervention.
func (m *Manager) ForceOpen(providerID string) { m.For(providerID).ForceOpen() }

// ForceClosed pins the provider's breaker closed.
func (m *Manager) ForceClosed(providerID string) { m.For(providerID).ForceClosed() }

// ClearOverride resumes automatic rules for the provider.
func (m *Manager) ClearOverride(providerID string) { m.For(providerID).ClearOverride() }

// Reset returns the provider's breaker to pristine CLOSED.
func (m *Manager) Reset(providerID string) { m.For(providerID).Reset() }

// States returns a snapshot of every known breaker's state, sorted by
// provider ID. Used by the health watchdog.
func (m *Manager) States() []ProviderState {
	m.mu.RLock()
	ids := make([]string, 0, len(m.breakers))
	for id := range m.breakers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	out := make([]ProviderState, 0, len(ids))
	for _, id := range ids {
		out = append(out, ProviderState{ProviderID: id, State: m.State(id)})
	}
	return out
}

// ProviderState pairs a provider ID with its breaker state.
type ProviderState struct {
	ProviderID string
	State      domain.CircuitState
}

func (m *Manager) dispatch(providerID string, from, to domain.CircuitState) {
	m.cbMu.RLock()
	fn := m.onTransition
	m.cbMu.RUnlock()
	if fn != nil {
		fn(providerID, from, to)
	}
}
