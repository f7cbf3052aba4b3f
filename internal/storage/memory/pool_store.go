package memory

import (
	"context"
	"sync"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.PoolRecord // keyed by pool_address
	writes int
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		data: make(map[string]*domain.PoolRecord),
	}
}

// Upsert inserts a pool or refreshes liquidity of an existing one.
func (s *PoolStore) Upsert(_ context.Context, p *domain.PoolRecord) (bool, error) {
	if p == nil || p.PoolAddress == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++

	if existing, ok := s.data[p.PoolAddress]; ok {
		// Identity fields are write-once
		existing.LiquidityUSD = p.LiquidityUSD
		existing.LastUpdatedAt = p.LastUpdatedAt
		return false, nil
	}

	// Store a copy to prevent external mutation
	poolCopy := *p
	s.data[p.PoolAddress] = &poolCopy
	return true, nil
}

// GetByAddress retrieves a pool by address. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByAddress(_ context.Context, address string) (*domain.PoolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}

	poolCopy := *p
	return &poolCopy, nil
}

// ListAddresses returns every pool address stored for a chain.
func (s *PoolStore) ListAddresses(_ context.Context, chainID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]string, 0, len(s.data))
	for addr, p := range s.data {
		if p.ChainID == chainID {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// Count returns the number of stored pools.
func (s *PoolStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Writes returns how many Upsert calls reached the store.
func (s *PoolStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Verify interface compliance at compile time.
var _ storage.PoolStore = (*PoolStore)(nil)
