// Package liquidity estimates the USD liquidity of a newly created pool.
//
// The reference estimator is a coarse approximation: it knows a fixed set of
// tokens and assigns each a nominal liquidity value. It computes no prices.
package liquidity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"dex-pool-scanner/internal/registry"
)

// Estimator maps a token pair to an approximate USD liquidity value.
type Estimator interface {
	Estimate(ctx context.Context, token0, token1 common.Address) (decimal.Decimal, error)
}

// KnownToken is one entry of the static table.
type KnownToken struct {
	Address      common.Address
	Symbol       string
	Decimals     int
	LiquidityUSD decimal.Decimal
}

// DefaultFloor is returned when neither token is known.
var DefaultFloor = decimal.NewFromInt(1000)

// Ethereum mainnet tokens with nominal liquidity values.
var mainnetTokens = []KnownToken{
	{common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", 18, decimal.NewFromInt(1_000_000)},
	{common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", 6, decimal.NewFromInt(1_000_000)},
	{common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), "USDT", 6, decimal.NewFromInt(1_000_000)},
	{common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), "DAI", 18, decimal.NewFromInt(500_000)},
	{common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), "WBTC", 8, decimal.NewFromInt(500_000)},
}

// StaticTable estimates liquidity from a fixed address table.
type StaticTable struct {
	mu     sync.RWMutex
	tokens map[common.Address]KnownToken
	floor  decimal.Decimal
}

// NewStaticTable creates a table with the given tokens and floor.
func NewStaticTable(floor decimal.Decimal, tokens ...KnownToken) *StaticTable {
	t := &StaticTable{
		tokens: make(map[common.Address]KnownToken, len(tokens)),
		floor:  floor,
	}
	for _, tok := range tokens {
		t.tokens[tok.Address] = tok
	}
	return t
}

// DefaultTable returns the Ethereum mainnet table with DefaultFloor.
func DefaultTable() *StaticTable {
	return NewStaticTable(DefaultFloor, mainnetTokens...)
}

// Estimate returns the larger known value of the two tokens, or the floor when neither is known.
func (t *StaticTable) Estimate(_ context.Context, token0, token1 common.Address) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	a, okA := t.tokens[token0]
	b, okB := t.tokens[token1]

	switch {
	case okA && okB:
		return decimal.Max(a.LiquidityUSD, b.LiquidityUSD), nil
	case okA:
		return a.LiquidityUSD, nil
	case okB:
		return b.LiquidityUSD, nil
	default:
		return t.floor, nil
	}
}

// Lookup returns the table entry for a token.
func (t *StaticTable) Lookup(token common.Address) (KnownToken, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tok, ok := t.tokens[token]
	return tok, ok
}

// Set adds or replaces a table entry.
func (t *StaticTable) Set(tok KnownToken) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[tok.Address] = tok
}

// Len returns the number of known tokens.
func (t *StaticTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tokens)
}

// Merge adds the tokens of a registry file to the table.
func (t *StaticTable) Merge(entries []registry.TokenEntry) error {
	for i, e := range entries {
		if !common.IsHexAddress(e.Address) {
			return fmt.Errorf("tokens[%d]: invalid address %q", i, e.Address)
		}
		value := decimal.Zero
		if strings.TrimSpace(e.LiquidityUSD) != "" {
			v, err := decimal.NewFromString(e.LiquidityUSD)
			if err != nil {
				return fmt.Errorf("tokens[%d]: liquidity_usd: %w", i, err)
			}
			if v.IsNegative() {
				return fmt.Errorf("tokens[%d]: liquidity_usd must not be negative", i)
			}
			value = v
		}
		t.Set(KnownToken{
			Address:      common.HexToAddress(e.Address),
			Symbol:       e.Symbol,
			Decimals:     e.Decimals,
			LiquidityUSD: value,
		})
	}
	return nil
}

var _ Estimator = (*StaticTable)(nil)
