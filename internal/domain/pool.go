package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token identifies one side of a pool.
type Token struct {
	Address  string // checksummed hex address
	Symbol   string // empty when unresolved
	Decimals int
}

// PoolRecord represents an accepted liquidity pool.
// Corresponds to pools table in PostgreSQL.
type PoolRecord struct {
	PoolAddress      string // PRIMARY KEY, checksummed hex address
	Exchange         string // factory exchange name, e.g. "uniswap-v2"
	ChainID          int64
	Token0           Token
	Token1           Token
	Fee              uint32          // hundredths of a bip (3000 = 0.30%)
	LiquidityUSD     decimal.Decimal // estimate at acceptance, refreshed by later runs
	Volume24h        decimal.Decimal
	IsActive         bool
	DataQualityScore float64 // 0..1
	CreatedBlock     uint64  // block of the creation event
	LastUpdatedAt    time.Time
}

// LiquiditySnapshot is one liquidity observation of a pool.
// Corresponds to pool_liquidity_snapshots table in ClickHouse.
type LiquiditySnapshot struct {
	PoolAddress  string
	Exchange     string
	ChainID      int64
	LiquidityUSD decimal.Decimal
	BlockNumber  uint64
	ObservedAt   time.Time
}
