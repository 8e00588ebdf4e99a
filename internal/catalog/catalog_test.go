package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltarb/arbrouter/internal/domain"
)

func testProvider(id string, chainID uint64, protocol string) domain.Provider {
	return domain.Provider{
		ID:          id,
		ChainID:     chainID,
		Protocol:    protocol,
		Kind:        domain.KindLiquiditySource,
		Address:     "0x0000000000000000000000000000000000000001",
		FeeBps:      9,
		Capacity:    domain.CapacityLarge,
		BaseLatency: 200 * time.Millisecond,
	}
}

func TestRegisterAndGet(t *testing.T) {
	c := New()

	p := testProvider("aave_v3@137", 137, "aave_v3")
	require.NoError(t, c.Register(p))

	got, err := c.Get("aave_v3@137")
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, 1, c.Len())
}

func TestRegisterDuplicateID(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(testProvider("p1", 1, "aave_v3")))

	err := c.Register(testProvider("p1", 1, "balancer"))
	require.ErrorIs(t, err, domain.ErrDuplicateProvider)
}

func TestRegisterDuplicateChainProtocol(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(testProvider("p1", 137, "aave_v3")))

	// Different ID, same (chain, protocol) identity.
	err := c.Register(testProvider("p2", 137, "aave_v3"))
	require.ErrorIs(t, err, domain.ErrDuplicateProvider)

	// Same protocol on another chain is fine.
	require.NoError(t, c.Register(testProvider("p3", 42161, "aave_v3")))
}

func TestRegisterValidation(t *testing.T) {
	c := New()

	cases := []struct {
		name   string
		mutate func(*domain.Provider)
	}{
		{"empty id", func(p *domain.Provider) { p.ID = "" }},
		{"zero chain", func(p *domain.Provider) { p.ChainID = 0 }},
		{"empty protocol", func(p *domain.Provider) { p.Protocol = "" }},
		{"unknown kind", func(p *domain.Provider) { p.Kind = "flash_mint" }},
		{"negative fee", func(p *domain.Provider) { p.FeeBps = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testProvider("p1", 1, "aave_v3")
			tc.mutate(&p)
			assert.Error(t, c.Register(p))
		})
	}
	assert.Equal(t, 0, c.Len())
}

func TestGetUnknownProvider(t *testing.T) {
	c := New()
	_, err := c.Get("missing")
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestListByChainSorted(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(testProvider("c", 137, "uniswap_v3")))
	require.NoError(t, c.Register(testProvider("a", 137, "aave_v3")))
	require.NoError(t, c.Register(testProvider("b", 137, "balancer")))
	require.NoError(t, c.Register(testProvider("d", 1, "aave_v3")))

	got := c.ListByChain(137)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)

	assert.Empty(t, c.ListByChain(8453))
}
