package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltarb/arbrouter/internal/cache/memory"
	"github.com/voltarb/arbrouter/internal/domain"
)

// fakeReader returns a fixed capacity (or error) and counts calls.
type fakeReader struct {
	capacity *big.Int
	err      error
	calls    atomic.Int64

	// release, when set, blocks every read until closed.
	release chan struct{}
}

func (r *fakeReader) Liquidity(ctx context.Context, _ domain.Provider, _ string) (*big.Int, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return new(big.Int).Set(r.capacity), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestValidator(t *testing.T, reader domain.ChainReader, cfg Config) (*Validator, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	cache := memory.NewAvailabilityCache(mock)
	return NewValidator(cfg, reader, cache, mock, discardLogger()), mock
}

func testProvider() domain.Provider {
	return domain.Provider{
		ID:       "aave_v3@137",
		ChainID:  137,
		Protocol: "aave_v3",
		Kind:     domain.KindLiquiditySource,
		Address:  "0x0000000000000000000000000000000000000001",
	}
}

func TestCheckLiveSufficient(t *testing.T) {
	reader := &fakeReader{capacity: big.NewInt(2_000_000)}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 0})

	check := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000_000))
	assert.True(t, check.Available)
	assert.Equal(t, domain.SourceLive, check.Source)
	assert.True(t, check.Known())
	assert.Equal(t, int64(1), reader.calls.Load())
}

func TestCheckLiveInsufficient(t *testing.T) {
	reader := &fakeReader{capacity: big.NewInt(500)}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 0})

	check := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	assert.False(t, check.Available)
	assert.Equal(t, domain.SourceLive, check.Source)
	assert.True(t, check.Known())
}

func TestCheckMarginApplied(t *testing.T) {
	// Capacity covers the raw amount but not the 5% margin on top.
	reader := &fakeReader{capacity: big.NewInt(1_020)}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 500})

	check := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	assert.False(t, check.Available)
	assert.Equal(t, big.NewInt(1_050), check.Required)
}

func TestCheckServedFromCache(t *testing.T) {
	reader := &fakeReader{capacity: big.NewInt(2_000)}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 0})

	first := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	require.Equal(t, domain.SourceLive, first.Source)

	second := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	assert.Equal(t, domain.SourceCached, second.Source)
	assert.True(t, second.Available)
	assert.Equal(t, int64(1), reader.calls.Load(), "cached hit must not re-read")
}

func TestCheckCacheExpiry(t *testing.T) {
	reader := &fakeReader{capacity: big.NewInt(2_000)}
	v, mock := newTestValidator(t, reader, Config{TTL: time.Minute, MarginBps: 0})

	v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	mock.Add(2 * time.Minute)

	check := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	assert.Equal(t, domain.SourceLive, check.Source)
	assert.Equal(t, int64(2), reader.calls.Load())
}

func TestCheckFallbackOnReadError(t *testing.T) {
	reader := &fakeReader{err: errors.New("rpc unreachable")}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 0})

	check := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	assert.Equal(t, domain.SourceFallback, check.Source)
	assert.False(t, check.Known())
	assert.False(t, check.Available)

	// Fallback results are never cached: the next check reads again.
	v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	assert.Equal(t, int64(2), reader.calls.Load())
}

func TestCheckCoalescesConcurrentReads(t *testing.T) {
	reader := &fakeReader{
		capacity: big.NewInt(2_000),
		release:  make(chan struct{}),
	}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 0, ReadTimeout: time.Minute})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]domain.AvailabilityCheck, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
		}()
	}

	// Give the goroutines time to pile onto the same key, then release the
	// single in-flight read.
	time.Sleep(50 * time.Millisecond)
	close(reader.release)
	wg.Wait()

	assert.Equal(t, int64(1), reader.calls.Load(), "identical concurrent checks must share one read")
	for _, r := range results {
		assert.True(t, r.Available)
	}
}

func TestCheckDistinctBucketsReadSeparately(t *testing.T) {
	reader := &fakeReader{capacity: big.NewInt(1 << 30)}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 0})

	v.Check(context.Background(), testProvider(), "native", big.NewInt(100))
	v.Check(context.Background(), testProvider(), "native", big.NewInt(100_000))
	assert.Equal(t, int64(2), reader.calls.Load())
}

func TestInvalidateProvider(t *testing.T) {
	reader := &fakeReader{capacity: big.NewInt(2_000)}
	v, _ := newTestValidator(t, reader, Config{MarginBps: 0})

	v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	require.NoError(t, v.InvalidateProvider(context.Background(), testProvider().ID))

	check := v.Check(context.Background(), testProvider(), "native", big.NewInt(1_000))
	assert.Equal(t, domain.SourceLive, check.Source)
	assert.Equal(t, int64(2), reader.calls.Load())
}

func TestRequiredWithMargin(t *testing.T) {
	cases := []struct {
		amount    int64
		marginBps int64
		want      int64
	}{
		{10_000, 500, 10_500},
		{1, 500, 2},      // rounds up
		{999, 0, 999},    // zero margin is identity
		{10_000, 1, 10_001},
		{3, 3_333, 4},
	}
	for _, tc := range cases {
		got := RequiredWithMargin(big.NewInt(tc.amount), tc.marginBps)
		assert.Equal(t, tc.want, got.Int64(), "amount=%d margin=%d", tc.amount, tc.marginBps)
	}

	assert.Zero(t, RequiredWithMargin(nil, 500).Sign())
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, Bucket(nil))
	assert.Equal(t, 0, Bucket(big.NewInt(0)))
	assert.Equal(t, 1, Bucket(big.NewInt(1)))
	assert.Equal(t, 7, Bucket(big.NewInt(100)))
	assert.Equal(t, Bucket(big.NewInt(100)), Bucket(big.NewInt(127)))
	assert.NotEqual(t, Bucket(big.NewInt(127)), Bucket(big.NewInt(128)))
}
