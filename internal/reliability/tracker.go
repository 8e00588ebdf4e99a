// Package reliability maintains per-provider rolling outcome histories and
// derives success-rate and latency metrics from them on read.
package reliability

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/voltarb/arbrouter/internal/domain"
)

// DefaultWindow is the per-provider outcome history size when none is
// configured.
const DefaultWindow = 100

// Tracker keeps a bounded ring of outcomes per provider. Recording and
// scoring are synchronized per provider record; unrelated providers never
// contend on a shared lock.
type Tracker struct {
	window int
	clk    clock.Clock

	mu      sync.RWMutex // guards the records map, not the records
	records map[string]*record
}

type record struct {
	mu       sync.Mutex
	outcomes []domain.ProviderOutcome // ring buffer, len == window
	next     int
	count    int
}

// NewTracker creates a Tracker with the given window size per provider.
// Window values below 1 fall back to DefaultWindow.
func NewTracker(window int, clk clock.Clock) *Tracker {
	if window < 1 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		window:  window,
		clk:     clk,
		records: make(map[string]*record),
	}
}

// Record appends an outcome to the provider's window, evicting the oldest
// entry once the window is full. Safe for concurrent use.
func (t *Tracker) Record(outcome domain.ProviderOutcome) {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = t.clk.Now().UTC()
	}

	r := t.recordFor(outcome.ProviderID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes[r.next] = outcome
	r.next = (r.next + 1) % len(r.outcomes)
	if r.count < len(r.outcomes) {
		r.count++
	}
}

// Score computes the provider's rolling success rate and mean latency over
// the window. A provider with no history returns Samples == 0; the ranking
// layer substitutes its neutral default in that case.
func (t *Tracker) Score(providerID string) domain.ReliabilityScore {
	t.mu.RLock()
	r := t.records[providerID]
	t.mu.RUnlock()
	if r == nil {
		return domain.ReliabilityScore{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return domain.ReliabilityScore{}
	}

	successes := 0
	var totalLatency time.Duration
	for i := 0; i < r.count; i++ {
		o := r.outcomes[i]
		if o.Success {
			successes++
		}
		totalLatency += o.Latency
	}

	return domain.ReliabilityScore{
		SuccessRate: float64(successes) / float64(r.count),
		Samples:     r.count,
		MeanLatency: totalLatency / time.Duration(r.count),
	}
}

// ExpectedLatency returns the observed mean attempt latency for the provider.
// The boolean is false when no outcomes have been recorded yet.
func (t *Tracker) ExpectedLatency(providerID string) (time.Duration, bool) {
	s := t.Score(providerID)
	if s.Samples == 0 {
		return 0, false
	}
	return s.MeanLatency, true
}

// Window returns the configured per-provider history size.
func (t *Tracker) Window() int {
	return t.window
}

// Warm preloads outcomes into the tracker, oldest first. Used to rebuild
// state from the outcome journal after a restart.
func (t *Tracker) Warm(outcomes []domain.ProviderOutcome) {
	for _, o := range outcomes {
		t.Record(o)
	}
}

func (t *Tracker) recordFor(providerID string) *record {
	t.mu.RLock()
	r := t.records[providerID]
	t.mu.RUnlock()
	if r != nil {
		return r
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if r = t.records[providerID]; r == nil {
		r = &record{outcomes: make([]domain.ProviderOutcome, t.window)}
		t.records[providerID] = r
	}
	return r
}
