package breaker

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltarb/arbrouter/internal/domain"
)

func newTestBreaker(mock *clock.Mock, notify TransitionFunc) *Breaker {
	return newBreaker("p1", DefaultConfig(), mock, notify)
}

func trip(b *Breaker) {
	for i := 0; i < DefaultConfig().FailureThreshold; i++ {
		b.OnFailure()
	}
}

func TestStartsClosed(t *testing.T) {
	b := newTestBreaker(clock.NewMock(), nil)
	assert.Equal(t, domain.StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(clock.NewMock(), nil)

	for i := 0; i < DefaultConfig().FailureThreshold-1; i++ {
		b.OnFailure()
	}
	assert.Equal(t, domain.StateClosed, b.State())

	b.OnFailure()
	assert.Equal(t, domain.StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(clock.NewMock(), nil)

	for i := 0; i < DefaultConfig().FailureThreshold-1; i++ {
		b.OnFailure()
	}
	b.OnSuccess()

	// The count restarted, so the threshold is needed again in full.
	for i := 0; i < DefaultConfig().FailureThreshold-1; i++ {
		b.OnFailure()
	}
	assert.Equal(t, domain.StateClosed, b.State())
}

func TestCooldownPromotesToHalfOpen(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBreaker(mock, nil)
	trip(b)

	mock.Add(DefaultConfig().Cooldown - time.Second)
	assert.Equal(t, domain.StateOpen, b.State())

	mock.Add(time.Second)
	assert.Equal(t, domain.StateHalfOpen, b.State())
}

func TestHalfOpenClosesAfterTrialSuccesses(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBreaker(mock, nil)
	trip(b)
	mock.Add(DefaultConfig().Cooldown)

	for i := 0; i < DefaultConfig().TrialSuccesses; i++ {
		require.True(t, b.Allow())
		b.OnSuccess()
	}
	assert.Equal(t, domain.StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBreaker(mock, nil)
	trip(b)
	mock.Add(DefaultConfig().Cooldown)

	require.True(t, b.Allow())
	b.OnSuccess()
	require.True(t, b.Allow())
	b.OnFailure()

	assert.Equal(t, domain.StateOpen, b.State())

	// The cooldown restarts from the new failure and the trial count is
	// forgotten.
	mock.Add(DefaultConfig().Cooldown)
	assert.Equal(t, domain.StateHalfOpen, b.State())
	for i := 0; i < DefaultConfig().TrialSuccesses-1; i++ {
		require.True(t, b.Allow())
		b.OnSuccess()
	}
	assert.Equal(t, domain.StateHalfOpen, b.State())
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBreaker(mock, nil)
	trip(b)
	mock.Add(DefaultConfig().Cooldown)

	assert.True(t, b.Allow())
	// The probe is in flight; further callers are refused.
	assert.False(t, b.Allow())
	assert.False(t, b.Allow())

	b.OnSuccess()
	assert.True(t, b.Allow())
}

func TestForceOpenOverridesAutomaticRules(t *testing.T) {
	b := newTestBreaker(clock.NewMock(), nil)

	b.ForceOpen()
	assert.Equal(t, domain.StateOpen, b.State())
	assert.False(t, b.Allow())

	// Outcomes recorded under an override do not move the machine.
	b.OnSuccess()
	b.OnSuccess()
	assert.Equal(t, domain.StateOpen, b.State())

	b.ClearOverride()
	assert.Equal(t, domain.StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestForceClosedKeepsFailingProviderIn(t *testing.T) {
	b := newTestBreaker(clock.NewMock(), nil)
	b.ForceClosed()

	trip(b)
	assert.Equal(t, domain.StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestResetRestoresPristineClosed(t *testing.T) {
	mock := clock.NewMock()
	b := newTestBreaker(mock, nil)
	trip(b)
	require.Equal(t, domain.StateOpen, b.State())

	b.Reset()
	assert.Equal(t, domain.StateClosed, b.State())

	// Counters were zeroed, so the full threshold applies again.
	for i := 0; i < DefaultConfig().FailureThreshold-1; i++ {
		b.OnFailure()
	}
	assert.Equal(t, domain.StateClosed, b.State())
}

func TestTransitionNotifications(t *testing.T) {
	mock := clock.NewMock()
	var got []string
	b := newTestBreaker(mock, func(id string, from, to domain.CircuitState) {
		got = append(got, from.String()+">"+to.String())
	})

	trip(b)
	mock.Add(DefaultConfig().Cooldown)
	b.State()
	require.True(t, b.Allow())
	b.OnFailure()

	assert.Equal(t, []string{
		"closed>open",
		"open>half_open",
		"half_open>open",
	}, got)
}

func TestManagerIsolatesProviders(t *testing.T) {
	m := NewManager(Config{}, clock.NewMock())

	for i := 0; i < DefaultConfig().FailureThreshold; i++ {
		m.RecordFailure("bad")
	}
	m.RecordSuccess("good")

	assert.Equal(t, domain.StateOpen, m.State("bad"))
	assert.Equal(t, domain.StateClosed, m.State("good"))
	assert.False(t, m.Allow("bad"))
	assert.True(t, m.Allow("good"))
}

func TestManagerStatesSnapshot(t *testing.T) {
	m := NewManager(Config{}, clock.NewMock())
	m.RecordSuccess("b")
	m.RecordSuccess("a")
	for i := 0; i < DefaultConfig().FailureThreshold; i++ {
		m.RecordFailure("c")
	}

	states := m.States()
	require.Len(t, states, 3)
	assert.Equal(t, ProviderState{ProviderID: "a", State: domain.StateClosed}, states[0])
	assert.Equal(t, ProviderState{ProviderID: "b", State: domain.StateClosed}, states[1])
	assert.Equal(t, ProviderState{ProviderID: "c", State: domain.StateOpen}, states[2])
}

func TestManagerDispatchesTransitions(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 2, Cooldown: time.Minute, TrialSuccesses: 1}, clock.NewMock())

	var opened []string
	m.OnTransition(func(id string, from, to domain.CircuitState) {
		if to == domain.StateOpen {
			opened = append(opened, id)
		}
	})

	m.RecordFailure("p1")
	m.RecordFailure("p1")
	assert.Equal(t, []string{"p1"}, opened)
}
