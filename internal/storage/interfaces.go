package storage

import (
	"context"

	"dex-pool-scanner/internal/domain"
)

// PoolStore provides access to pools storage.
type PoolStore interface {
	// Upsert inserts the pool or, when pool_address exists, updates only
	// liquidity_usd and last_updated_at. Reports whether a new row was inserted.
	// Safe for concurrent use.
	Upsert(ctx context.Context, p *domain.PoolRecord) (inserted bool, err error)

	// GetByAddress retrieves a pool by address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.PoolRecord, error)

	// ListAddresses returns every pool address stored for a chain.
	ListAddresses(ctx context.Context, chainID int64) ([]string, error)

	// Count returns the number of stored pools.
	Count(ctx context.Context) (int, error)
}

// ScanProgressStore provides access to scan_progress storage.
type ScanProgressStore interface {
	// Upsert saves progress keyed by (exchange, chain_id).
	Upsert(ctx context.Context, p *domain.ScanProgress) error

	// Load returns the stored progress. Returns ErrNotFound if none saved yet.
	Load(ctx context.Context, exchange string, chainID int64) (*domain.ScanProgress, error)

	// List returns progress rows for a chain ordered by exchange name.
	List(ctx context.Context, chainID int64) ([]*domain.ScanProgress, error)
}

// LiquiditySnapshotStore provides access to pool_liquidity_snapshots storage.
type LiquiditySnapshotStore interface {
	// InsertBulk appends snapshots. Snapshots are observations; duplicates are allowed.
	InsertBulk(ctx context.Context, snapshots []*domain.LiquiditySnapshot) error

	// GetByPool retrieves all snapshots of a pool, ordered by observed_at ASC.
	GetByPool(ctx context.Context, poolAddress string) ([]*domain.LiquiditySnapshot, error)
}
