package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Upsert inserts a pool or refreshes liquidity_usd and last_updated_at of an existing row.
// xmax is zero only for a row created by this statement.
func (s *PoolStore) Upsert(ctx context.Context, p *domain.PoolRecord) (inserted bool, err error) {
	if p == nil || p.PoolAddress == "" {
		return false, storage.ErrInvalidInput
	}

	updatedAt := p.LastUpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	start := time.Now()
	defer func() { s.pool.observe("pools_upsert", start, err) }()

	query := `
		INSERT INTO pools (
			pool_address, exchange_name, chain_id,
			token0_address, token0_symbol, token0_decimals,
			token1_address, token1_symbol, token1_decimals,
			fee, liquidity_usd, volume_24h, is_active,
			data_quality_score, created_block, last_updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11::numeric, $12::numeric, $13,
			$14, $15, $16
		)
		ON CONFLICT (pool_address) DO UPDATE
		SET liquidity_usd = EXCLUDED.liquidity_usd,
		    last_updated_at = EXCLUDED.last_updated_at
		RETURNING (xmax = 0)
	`

	err = s.pool.QueryRow(ctx, query,
		p.PoolAddress,
		p.Exchange,
		p.ChainID,
		p.Token0.Address,
		p.Token0.Symbol,
		p.Token0.Decimals,
		p.Token1.Address,
		p.Token1.Symbol,
		p.Token1.Decimals,
		int64(p.Fee),
		p.LiquidityUSD.String(),
		p.Volume24h.String(),
		p.IsActive,
		p.DataQualityScore,
		int64(p.CreatedBlock),
		updatedAt,
	).Scan(&inserted)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, storage.ErrDuplicateKey
		}
		return false, fmt.Errorf("upsert pool: %w", err)
	}
	return inserted, nil
}

// GetByAddress retrieves a pool by address. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByAddress(ctx context.Context, address string) (*domain.PoolRecord, error) {
	query := `
		SELECT pool_address, exchange_name, chain_id,
		       token0_address, token0_symbol, token0_decimals,
		       token1_address, token1_symbol, token1_decimals,
		       fee, liquidity_usd::text, volume_24h::text, is_active,
		       data_quality_score, created_block, last_updated_at
		FROM pools
		WHERE pool_address = $1
	`

	start := time.Now()
	p, err := scanPool(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			s.pool.observe("pools_get", start, nil)
			return nil, storage.ErrNotFound
		}
		s.pool.observe("pools_get", start, err)
		return nil, fmt.Errorf("get pool by address: %w", err)
	}
	s.pool.observe("pools_get", start, nil)
	return p, nil
}

// ListAddresses returns every pool address stored for a chain.
func (s *PoolStore) ListAddresses(ctx context.Context, chainID int64) ([]string, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT pool_address FROM pools WHERE chain_id = $1`, chainID)
	if err != nil {
		s.pool.observe("pools_list", start, err)
		return nil, fmt.Errorf("list pool addresses: %w", err)
	}

	addrs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	s.pool.observe("pools_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("list pool addresses: %w", err)
	}
	return addrs, nil
}

// Count returns the number of stored pools.
func (s *PoolStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pools`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pools: %w", err)
	}
	return n, nil
}

// scanPool scans a single row into PoolRecord.
func scanPool(row pgx.Row) (*domain.PoolRecord, error) {
	var (
		p            domain.PoolRecord
		fee          int64
		createdBlock int64
		liquidity    string
		volume       string
	)

	err := row.Scan(
		&p.PoolAddress,
		&p.Exchange,
		&p.ChainID,
		&p.Token0.Address,
		&p.Token0.Symbol,
		&p.Token0.Decimals,
		&p.Token1.Address,
		&p.Token1.Symbol,
		&p.Token1.Decimals,
		&fee,
		&liquidity,
		&volume,
		&p.IsActive,
		&p.DataQualityScore,
		&createdBlock,
		&p.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.LiquidityUSD, err = decimal.NewFromString(liquidity); err != nil {
		return nil, fmt.Errorf("parse liquidity_usd %q: %w", liquidity, err)
	}
	if p.Volume24h, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("parse volume_24h %q: %w", volume, err)
	}
	p.Fee = uint32(fee)
	p.CreatedBlock = uint64(createdBlock)

	return &p, nil
}
