package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

// ScanProgressStore is a PostgreSQL implementation of storage.ScanProgressStore.
// One row per (exchange_name, chain_id).
type ScanProgressStore struct {
	pool *Pool
}

// NewScanProgressStore creates a new PostgreSQL scan progress store.
func NewScanProgressStore(pool *Pool) *ScanProgressStore {
	return &ScanProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScanProgressStore = (*ScanProgressStore)(nil)

// Upsert saves progress keyed by (exchange, chain_id).
func (s *ScanProgressStore) Upsert(ctx context.Context, p *domain.ScanProgress) (err error) {
	if p == nil || p.Exchange == "" {
		return storage.ErrInvalidInput
	}

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	start := time.Now()
	defer func() { s.pool.observe("scan_progress_upsert", start, err) }()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO scan_progress (
			exchange_name, chain_id, start_block, current_block, end_block,
			total_events_scanned, pools_found, pools_added, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (exchange_name, chain_id) DO UPDATE
		SET start_block = EXCLUDED.start_block,
		    current_block = EXCLUDED.current_block,
		    end_block = EXCLUDED.end_block,
		    total_events_scanned = EXCLUDED.total_events_scanned,
		    pools_found = EXCLUDED.pools_found,
		    pools_added = EXCLUDED.pools_added,
		    updated_at = EXCLUDED.updated_at
	`,
		p.Exchange,
		p.ChainID,
		int64(p.StartBlock),
		int64(p.CurrentBlock),
		int64(p.EndBlock),
		p.TotalEventsScanned,
		p.PoolsFound,
		p.PoolsAdded,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scan progress: %w", err)
	}
	return nil
}

// Load returns the stored progress. Returns ErrNotFound if none saved yet.
func (s *ScanProgressStore) Load(ctx context.Context, exchange string, chainID int64) (*domain.ScanProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT exchange_name, chain_id, start_block, current_block, end_block,
		       total_events_scanned, pools_found, pools_added, updated_at
		FROM scan_progress
		WHERE exchange_name = $1 AND chain_id = $2
	`, exchange, chainID)

	p, err := scanProgress(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load scan progress: %w", err)
	}
	return p, nil
}

// List returns progress rows for a chain ordered by exchange name.
func (s *ScanProgressStore) List(ctx context.Context, chainID int64) ([]*domain.ScanProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT exchange_name, chain_id, start_block, current_block, end_block,
		       total_events_scanned, pools_found, pools_added, updated_at
		FROM scan_progress
		WHERE chain_id = $1
		ORDER BY exchange_name
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list scan progress: %w", err)
	}
	defer rows.Close()

	var result []*domain.ScanProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanProgress(row pgx.Row) (*domain.ScanProgress, error) {
	var (
		p                   domain.ScanProgress
		start, current, end int64
	)
	err := row.Scan(
		&p.Exchange,
		&p.ChainID,
		&start,
		&current,
		&end,
		&p.TotalEventsScanned,
		&p.PoolsFound,
		&p.PoolsAdded,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.StartBlock = uint64(start)
	p.CurrentBlock = uint64(current)
	p.EndBlock = uint64(end)
	return &p, nil
}
