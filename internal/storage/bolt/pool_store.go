package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

// PoolStore implements storage.PoolStore on bbolt. Records are JSON keyed by pool address.
type PoolStore struct {
	db *DB
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(db *DB) *PoolStore {
	return &PoolStore{db: db}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Upsert inserts a pool or refreshes liquidity_usd and last_updated_at of an existing one.
func (s *PoolStore) Upsert(_ context.Context, p *domain.PoolRecord) (inserted bool, err error) {
	if p == nil || p.PoolAddress == "" {
		return false, storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { s.db.observe("pools_upsert", start, err) }()

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(poolsBucket)
		key := []byte(p.PoolAddress)

		record := *p
		if raw := b.Get(key); raw != nil {
			var existing domain.PoolRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("decode pool %s: %w", p.PoolAddress, err)
			}
			existing.LiquidityUSD = p.LiquidityUSD
			existing.LastUpdatedAt = p.LastUpdatedAt
			record = existing
		} else {
			inserted = true
		}

		if record.LastUpdatedAt.IsZero() {
			record.LastUpdatedAt = time.Now().UTC()
		}
		raw, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("encode pool %s: %w", p.PoolAddress, err)
		}
		return b.Put(key, raw)
	})
	if err != nil {
		return false, fmt.Errorf("upsert pool: %w", err)
	}
	return inserted, nil
}

// GetByAddress retrieves a pool by address. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByAddress(_ context.Context, address string) (*domain.PoolRecord, error) {
	var p *domain.PoolRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(poolsBucket).Get([]byte(address))
		if raw == nil {
			return storage.ErrNotFound
		}
		p = new(domain.PoolRecord)
		return json.Unmarshal(raw, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListAddresses returns every pool address stored for a chain.
func (s *PoolStore) ListAddresses(_ context.Context, chainID int64) (addrs []string, err error) {
	start := time.Now()
	defer func() { s.db.observe("pools_list", start, err) }()

	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(poolsBucket).ForEach(func(k, v []byte) error {
			var p struct {
				ChainID int64
			}
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode pool %s: %w", k, err)
			}
			if p.ChainID == chainID {
				addrs = append(addrs, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list pool addresses: %w", err)
	}
	return addrs, nil
}

// Count returns the number of stored pools.
func (s *PoolStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(poolsBucket).Stats().KeyN
		return nil
	})
	return n, err
}
