// Package chain provides the external balance/liquidity read primitive used
// by the availability validator, backed by JSON-RPC endpoints per chain.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/voltarb/arbrouter/internal/domain"
)

// AssetNative selects the chain's native coin instead of an ERC-20 token.
const AssetNative = "native"

// balanceOfSelector is the 4-byte selector of ERC-20 balanceOf(address).
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// EthReader implements domain.ChainReader over one ethclient per chain.
// Liquidity for a provider is the balance its funding contract holds in the
// requested asset.
type EthReader struct {
	clients map[uint64]*ethclient.Client
	logger  *slog.Logger
}

// NewEthReader dials an RPC endpoint per chain ID. Every endpoint must be
// reachable at construction time.
func NewEthReader(ctx context.Context, endpoints map[uint64]string, logger *slog.Logger) (*EthReader, error) {
	clients := make(map[uint64]*ethclient.Client, len(endpoints))
	for chainID, url := range endpoints {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("chain: dial %d: %w", chainID, err)
		}
		clients[chainID] = client
	}
	return &EthReader{
		clients: clients,
		logger:  logger.With(slog.String("component", "chain_reader")),
	}, nil
}

// Liquidity returns the capacity the provider can currently service for the
// asset: its contract's native balance, or its ERC-20 balance when asset is a
// token address.
func (r *EthReader) Liquidity(ctx context.Context, p domain.Provider, asset string) (*big.Int, error) {
	client, ok := r.clients[p.ChainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", domain.ErrChainUnsupported, p.ChainID)
	}
	if !common.IsHexAddress(p.Address) {
		return nil, fmt.Errorf("chain: provider %s: bad address %q", p.ID, p.Address)
	}
	pool := common.HexToAddress(p.Address)

	if strings.EqualFold(asset, AssetNative) || asset == "" {
		bal, err := client.BalanceAt(ctx, pool, nil)
		if err != nil {
			return nil, fmt.Errorf("chain: balance %s: %w", p.ID, err)
		}
		return bal, nil
	}

	if !common.IsHexAddress(asset) {
		return nil, fmt.Errorf("chain: bad asset address %q", asset)
	}
	token := common.HexToAddress(asset)

	// balanceOf(pool) via a raw eth_call; no ABI binding needed for a
	// single fixed method.
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(pool.Bytes(), 32)...)

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s on %s: %w", p.ID, asset, err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("chain: balanceOf %s: short return (%d bytes)", p.ID, len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// Chains returns the chain IDs this reader serves.
func (r *EthReader) Chains() []uint64 {
	out := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

// Close releases every RPC connection.
func (r *EthReader) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}

// Compile-time interface check.
var _ domain.ChainReader = (*EthReader)(nil)
