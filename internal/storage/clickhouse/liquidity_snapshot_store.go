package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

// LiquiditySnapshotStore implements storage.LiquiditySnapshotStore using ClickHouse.
type LiquiditySnapshotStore struct {
	conn *Conn
}

// NewLiquiditySnapshotStore creates a new LiquiditySnapshotStore.
func NewLiquiditySnapshotStore(conn *Conn) *LiquiditySnapshotStore {
	return &LiquiditySnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.LiquiditySnapshotStore = (*LiquiditySnapshotStore)(nil)

// InsertBulk appends snapshots in a single batch.
func (s *LiquiditySnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.LiquiditySnapshot) (err error) {
	if len(snapshots) == 0 {
		return nil
	}
	for _, snap := range snapshots {
		if snap == nil || snap.PoolAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() { s.conn.observe("snapshots_insert", start, err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pool_liquidity_snapshots (
			pool_address, exchange_name, chain_id, liquidity_usd, block_number, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		observedAt := snap.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now()
		}
		err = batch.Append(
			snap.PoolAddress, snap.Exchange, snap.ChainID,
			snap.LiquidityUSD, snap.BlockNumber, observedAt.UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPool retrieves all snapshots of a pool, ordered by observed_at ASC.
func (s *LiquiditySnapshotStore) GetByPool(ctx context.Context, poolAddress string) ([]*domain.LiquiditySnapshot, error) {
	query := `
		SELECT pool_address, exchange_name, chain_id, liquidity_usd, block_number, observed_at
		FROM pool_liquidity_snapshots
		WHERE pool_address = ?
		ORDER BY observed_at ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, poolAddress)
	s.conn.observe("snapshots_get", start, err)
	if err != nil {
		return nil, fmt.Errorf("query by pool: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func scanSnapshots(rows chRows) ([]*domain.LiquiditySnapshot, error) {
	var result []*domain.LiquiditySnapshot

	for rows.Next() {
		var snap domain.LiquiditySnapshot
		err := rows.Scan(
			&snap.PoolAddress, &snap.Exchange, &snap.ChainID,
			&snap.LiquidityUSD, &snap.BlockNumber, &snap.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		result = append(result, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return result, nil
}
