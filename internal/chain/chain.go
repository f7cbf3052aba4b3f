// Package chain provides read-only access to an EVM JSON-RPC endpoint.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"dex-pool-scanner/internal/registry"
)

// RawEvent is an undecoded log returned by an event query.
type RawEvent = types.Log

// TokenInfo is ERC-20 metadata read from the token contract.
type TokenInfo struct {
	Symbol   string
	Decimals int
}

// Client defines the chain operations used by the scanner.
// Implementations must be safe for concurrent use.
type Client interface {
	// CurrentHeight returns the latest block number.
	CurrentHeight(ctx context.Context) (uint64, error)

	// ChainID returns the network chain id.
	ChainID(ctx context.Context) (int64, error)

	// QueryCreationEvents returns the factory's creation logs in [from, to].
	QueryCreationEvents(ctx context.Context, f registry.Factory, from, to uint64) ([]RawEvent, error)

	// TokenInfo reads symbol() and decimals() from an ERC-20 contract.
	TokenInfo(ctx context.Context, token common.Address) (TokenInfo, error)
}
