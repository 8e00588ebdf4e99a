package ranking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltarb/arbrouter/internal/availability"
	"github.com/voltarb/arbrouter/internal/cache/memory"
	"github.com/voltarb/arbrouter/internal/domain"
	"github.com/voltarb/arbrouter/internal/reliability"
)

// mapReader serves liquidity per provider ID; missing IDs error.
type mapReader struct {
	capacity map[string]*big.Int
}

func (r *mapReader) Liquidity(_ context.Context, p domain.Provider, _ string) (*big.Int, error) {
	c, ok := r.capacity[p.ID]
	if !ok {
		return nil, errors.New("rpc unreachable")
	}
	return new(big.Int).Set(c), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	strategy *Strategy
	tracker  *reliability.Tracker
}

func newFixture(t *testing.T, cfg Config, reader domain.ChainReader) *fixture {
	t.Helper()
	mock := clock.NewMock()
	tracker := reliability.NewTracker(100, mock)
	validator := availability.NewValidator(
		availability.Config{MarginBps: 0},
		reader,
		memory.NewAvailabilityCache(mock),
		mock,
		discardLogger(),
	)
	return &fixture{
		strategy: NewStrategy(cfg, validator, tracker, discardLogger()),
		tracker:  tracker,
	}
}

func provider(id string, feeBps int64, baseLatency time.Duration) domain.Provider {
	return domain.Provider{
		ID:          id,
		ChainID:     137,
		Protocol:    id,
		Kind:        domain.KindLiquiditySource,
		Address:     "0x0000000000000000000000000000000000000001",
		FeeBps:      feeBps,
		BaseLatency: baseLatency,
	}
}

func request(amount int64) domain.RequestContext {
	return domain.RequestContext{
		ChainID: 137,
		Asset:   "native",
		Amount:  big.NewInt(amount),
	}
}

func record(f *fixture, providerID string, success bool, latency time.Duration, n int) {
	for i := 0; i < n; i++ {
		f.tracker.Record(domain.ProviderOutcome{
			ProviderID: providerID,
			Success:    success,
			Latency:    latency,
			RecordedAt: time.Unix(1700000000, 0),
		})
	}
}

func TestRankOrdersAndExcludesInsufficient(t *testing.T) {
	reader := &mapReader{capacity: map[string]*big.Int{
		"a": big.NewInt(10_000_000), // plenty
		"b": big.NewInt(10),         // confirmed insufficient
		// "c" missing: read fails, fallback
	}}
	// The expected totals below follow from this exact configuration.
	f := newFixture(t, Config{
		Weights:               Weights{Fee: 0.50, Liquidity: 0.30, Reliability: 0.15, Latency: 0.05},
		FeeCeilingBps:         100,
		NeutralReliability:    0.7,
		UnknownLiquidityScore: 0.5,
	}, reader)

	// a: perfect history at 100ms; c: no history.
	record(f, "a", true, 100*time.Millisecond, 10)

	providers := []domain.Provider{
		provider("a", 10, 100*time.Millisecond),
		provider("b", 0, 100*time.Millisecond),
		provider("c", 50, 200*time.Millisecond),
	}

	ranked, err := f.strategy.Rank(context.Background(), providers, request(1_000_000))
	require.NoError(t, err)
	require.Len(t, ranked, 2, "confirmed insufficient liquidity drops the provider")

	assert.Equal(t, "a", ranked[0].Provider.ID)
	assert.Equal(t, "c", ranked[1].Provider.ID)

	// a: fee 0.9, liquidity 1.0, reliability 1.0, latency 1.0.
	assert.InDelta(t, 0.95, ranked[0].Score.Total, 1e-9)
	// c: fee 0.5, liquidity 0.5 (fallback), reliability 0.7 (neutral),
	// latency 0.5 (200ms vs fastest 100ms).
	assert.InDelta(t, 0.53, ranked[1].Score.Total, 1e-9)
}

func TestRankScoresBounded(t *testing.T) {
	reader := &mapReader{capacity: map[string]*big.Int{
		"a": big.NewInt(10_000_000),
	}}
	f := newFixture(t, Config{}, reader)
	record(f, "a", false, 500*time.Millisecond, 3)
	record(f, "a", true, 100*time.Millisecond, 1)

	providers := []domain.Provider{
		provider("a", 250, 100*time.Millisecond), // fee above ceiling clamps to 0
		provider("b", 0, 50*time.Millisecond),
	}

	ranked, err := f.strategy.Rank(context.Background(), providers, request(1_000))
	require.NoError(t, err)
	for _, r := range ranked {
		for _, v := range []float64{r.Score.Fee, r.Score.Liquidity, r.Score.Reliability, r.Score.Latency, r.Score.Total} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestRankFeeMonotonic(t *testing.T) {
	reader := &mapReader{capacity: map[string]*big.Int{
		"cheap":     big.NewInt(10_000_000),
		"expensive": big.NewInt(10_000_000),
	}}
	f := newFixture(t, Config{}, reader)

	providers := []domain.Provider{
		provider("expensive", 80, 100*time.Millisecond),
		provider("cheap", 5, 100*time.Millisecond),
	}

	ranked, err := f.strategy.Rank(context.Background(), providers, request(1_000))
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "cheap", ranked[0].Provider.ID)
	assert.Greater(t, ranked[0].Score.Total, ranked[1].Score.Total)
}

func TestRankDeterministicTieBreak(t *testing.T) {
	reader := &mapReader{capacity: map[string]*big.Int{
		"x": big.NewInt(10_000_000),
		"y": big.NewInt(10_000_000),
		"z": big.NewInt(10_000_000),
	}}
	f := newFixture(t, Config{}, reader)

	// Identical in every scored dimension: the tie breaks by ID.
	providers := []domain.Provider{
		provider("z", 10, 100*time.Millisecond),
		provider("x", 10, 100*time.Millisecond),
		provider("y", 10, 100*time.Millisecond),
	}

	for i := 0; i < 5; i++ {
		ranked, err := f.strategy.Rank(context.Background(), providers, request(1_000))
		require.NoError(t, err)
		require.Len(t, ranked, 3)
		assert.Equal(t, "x", ranked[0].Provider.ID)
		assert.Equal(t, "y", ranked[1].Provider.ID)
		assert.Equal(t, "z", ranked[2].Provider.ID)
	}
}

func TestRankAppliesExclusions(t *testing.T) {
	reader := &mapReader{capacity: map[string]*big.Int{
		"a": big.NewInt(10_000_000),
		"b": big.NewInt(10_000_000),
	}}
	f := newFixture(t, Config{}, reader)

	providers := []domain.Provider{
		provider("a", 10, 100*time.Millisecond),
		provider("b", 20, 100*time.Millisecond),
	}
	req := request(1_000)
	req.Exclude = map[string]bool{"a": true}

	ranked, err := f.strategy.Rank(context.Background(), providers, req)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "b", ranked[0].Provider.ID)
}

func TestRankNoCandidates(t *testing.T) {
	f := newFixture(t, Config{}, &mapReader{})
	ranked, err := f.strategy.Rank(context.Background(), nil, request(1_000))
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRankNeutralReliabilityConfigurable(t *testing.T) {
	reader := &mapReader{capacity: map[string]*big.Int{
		"fresh": big.NewInt(10_000_000),
	}}
	f := newFixture(t, Config{NeutralReliability: 0.6}, reader)

	providers := []domain.Provider{provider("fresh", 10, 100*time.Millisecond)}
	ranked, err := f.strategy.Rank(context.Background(), providers, request(1_000))
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.InDelta(t, 0.6, ranked[0].Score.Reliability, 1e-9)
}

func TestFeeScore(t *testing.T) {
	s := NewStrategy(Config{FeeCeilingBps: 100}, nil, nil, discardLogger())

	cases := []struct {
		feeBps int64
		want   float64
	}{
		{0, 1.0},
		{-5, 1.0},
		{25, 0.75},
		{50, 0.5},
		{100, 0.0},
		{500, 0.0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, s.feeScore(tc.feeBps), 1e-9, "fee=%d", tc.feeBps)
	}
}

func TestWeightsSum(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
}

func TestRankUnknownLatencyGetsMidScore(t *testing.T) {
	reader := &mapReader{capacity: map[string]*big.Int{
		"measured": big.NewInt(10_000_000),
		"blank":    big.NewInt(10_000_000),
	}}
	f := newFixture(t, Config{UnknownLatencyScore: 0.4}, reader)

	// measured: observed 100ms history; blank: no history and no declared
	// base latency, so no latency signal at all.
	record(f, "measured", true, 100*time.Millisecond, 10)
	providers := []domain.Provider{
		provider("measured", 10, 100*time.Millisecond),
		provider("blank", 10, 0),
	}

	ranked, err := f.strategy.Rank(context.Background(), providers, request(1_000))
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	byID := map[string]domain.RankedProvider{}
	for _, r := range ranked {
		byID[r.Provider.ID] = r
	}
	assert.InDelta(t, 1.0, byID["measured"].Score.Latency, 1e-9)
	assert.InDelta(t, 0.4, byID["blank"].Score.Latency, 1e-9)
	assert.Less(t, byID["blank"].Score.Latency, byID["measured"].Score.Latency,
		"a provider nobody has timed must not outrank one with a measured latency")
}
