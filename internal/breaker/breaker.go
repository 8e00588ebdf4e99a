// Package breaker implements the per-provider failure state machine that
// temporarily removes a misbehaving provider from selection.
package breaker

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/voltarb/arbrouter/internal/domain"
)

// Config holds the thresholds driving automatic state transitions.
type Config struct {
	// FailureThreshold is how many consecutive failures trip CLOSED -> OPEN.
	FailureThreshold int
	// Cooldown is how long after the last failure an OPEN breaker waits
	// before admitting a trial (OPEN -> HALF_OPEN).
	Cooldown time.Duration
	// TrialSuccesses is how many consecutive successes close a HALF_OPEN
	// breaker.
	TrialSuccesses int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         5 * time.Minute,
		TrialSuccesses:   3,
	}
}

// TransitionFunc observes state changes. Invoked outside the breaker's lock.
type TransitionFunc func(providerID string, from, to domain.CircuitState)

type transition struct {
	from, to domain.CircuitState
}

// Breaker is the state machine for one provider. Each provider owns an
// independent instance; one provider's state never affects another's.
type Breaker struct {
	providerID string
	cfg        Config
	clk        clock.Clock
	notify     TransitionFunc

	mu          sync.Mutex
	state       domain.CircuitState
	failures    int // consecutive failures while CLOSED
	trials      int // consecutive successes while HALF_OPEN
	lastFailure time.Time
	probe       bool // trial attempt currently in flight
	forced      *domain.CircuitState
}

func newBreaker(providerID string, cfg Config, clk clock.Clock, notify TransitionFunc) *Breaker {
	return &Breaker{
		providerID: providerID,
		cfg:        cfg,
		clk:        clk,
		notify:     notify,
		state:      domain.StateClosed,
	}
}

// State reports the breaker's current state, promoting OPEN to HALF_OPEN when
// the cooldown has elapsed. No external trigger is needed for that promotion.
func (b *Breaker) State() domain.CircuitState {
	b.mu.Lock()
	if b.forced != nil {
		s := *b.forced
		b.mu.Unlock()
		return s
	}
	tr := b.maybeCooldownLocked()
	s := b.state
	b.mu.Unlock()
	b.emit(tr)
	return s
}

// Allow reports whether an attempt may proceed right now. In HALF_OPEN only
// one attempt is admitted at a time; further callers are refused until the
// in-flight trial reports its outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	if b.forced != nil {
		ok := *b.forced != domain.StateOpen
		b.mu.Unlock()
		return ok
	}
	tr := b.maybeCooldownLocked()

	var ok bool
	switch b.state {
	case domain.StateClosed:
		ok = true
	case domain.StateHalfOpen:
		if !b.probe {
			b.probe = true
			ok = true
		}
	default:
		// OPEN
	}
	b.mu.Unlock()
	b.emit(tr)
	return ok
}

// OnSuccess records a successful attempt. In HALF_OPEN, enough consecutive
// successes close the breaker. Manual overrides suspend automatic rules.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	if b.forced != nil {
		b.mu.Unlock()
		return
	}
	var tr *transition
	switch b.state {
	case domain.StateClosed:
		b.failures = 0
	case domain.StateHalfOpen:
		b.probe = false
		b.trials++
		if b.trials >= b.cfg.TrialSuccesses {
			tr = b.setStateLocked(domain.StateClosed)
			b.failures = 0
			b.trials = 0
		}
	}
	b.mu.Unlock()
	b.emit(tr)
}

// OnFailure records a failed attempt. Reaching the failure threshold while
// CLOSED opens the breaker; any failure while HALF_OPEN reopens it and
// restarts the cooldown clock.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	if b.forced != nil {
		b.mu.Unlock()
		return
	}
	var tr *transition
	b.lastFailure = b.clk.Now()
	switch b.state {
	case domain.StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			tr = b.setStateLocked(domain.StateOpen)
		}
	case domain.StateHalfOpen:
		b.probe = false
		b.trials = 0
		tr = b.setStateLocked(domain.StateOpen)
	}
	b.mu.Unlock()
	b.emit(tr)
}

// ForceOpen pins the breaker open until the override is cleared.
func (b *Breaker) ForceOpen() { b.force(domain.StateOpen) }

// ForceClosed pins the breaker closed until the override is cleared.
func (b *Breaker) ForceClosed() { b.force(domain.StateClosed) }

// ClearOverride removes a manual override, resuming automatic rules from the
// breaker's underlying state.
func (b *Breaker) ClearOverride() {
	b.mu.Lock()
	var tr *transition
	if b.forced != nil {
		if *b.forced != b.state {
			tr = &transition{from: *b.forced, to: b.state}
		}
		b.forced = nil
	}
	b.mu.Unlock()
	b.emit(tr)
}

// Reset clears any override and returns the breaker to a pristine CLOSED
// state with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	if b.forced != nil {
		from = *b.forced
	}
	b.forced = nil
	b.failures = 0
	b.trials = 0
	b.probe = false
	var tr *transition
	if from != domain.StateClosed {
		tr = &transition{from: from, to: domain.StateClosed}
	}
	b.state = domain.StateClosed
	b.mu.Unlock()
	b.emit(tr)
}

func (b *Breaker) force(s domain.CircuitState) {
	b.mu.Lock()
	from := b.state
	if b.forced != nil {
		from = *b.forced
	}
	b.forced = &s
	var tr *transition
	if from != s {
		tr = &transition{from: from, to: s}
	}
	b.mu.Unlock()
	b.emit(tr)
}

// maybeCooldownLocked promotes OPEN to HALF_OPEN once the cooldown since the
// last failure has elapsed. Caller holds the lock.
func (b *Breaker) maybeCooldownLocked() *transition {
	if b.state != domain.StateOpen {
		return nil
	}
	if b.clk.Now().Sub(b.lastFailure) < b.cfg.Cooldown {
		return nil
	}
	tr := b.setStateLocked(domain.StateHalfOpen)
	b.trials = 0
	b.probe = false
	return tr
}

func (b *Breaker) setStateLocked(s domain.CircuitState) *transition {
	if b.state == s {
		return nil
	}
	tr := &transition{from: b.state, to: s}
	b.state = s
	return tr
}

func (b *Breaker) emit(tr *transition) {
	if tr == nil || b.notify == nil {
		return
	}
	b.notify(b.providerID, tr.from, tr.to)
}
