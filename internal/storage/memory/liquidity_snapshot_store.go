package memory

import (
	"context"
	"sort"
	"sync"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

// LiquiditySnapshotStore is an in-memory implementation of storage.LiquiditySnapshotStore.
type LiquiditySnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.LiquiditySnapshot // keyed by pool_address
}

// NewLiquiditySnapshotStore creates a new in-memory snapshot store.
func NewLiquiditySnapshotStore() *LiquiditySnapshotStore {
	return &LiquiditySnapshotStore{
		data: make(map[string][]*domain.LiquiditySnapshot),
	}
}

// InsertBulk appends snapshots.
func (s *LiquiditySnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.LiquiditySnapshot) error {
	for _, snap := range snapshots {
		if snap == nil || snap.PoolAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		snapCopy := *snap
		s.data[snap.PoolAddress] = append(s.data[snap.PoolAddress], &snapCopy)
	}
	return nil
}

// GetByPool retrieves all snapshots of a pool, ordered by observed_at ASC.
func (s *LiquiditySnapshotStore) GetByPool(_ context.Context, poolAddress string) ([]*domain.LiquiditySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.LiquiditySnapshot, 0, len(s.data[poolAddress]))
	for _, snap := range s.data[poolAddress] {
		snapCopy := *snap
		result = append(result, &snapCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ObservedAt.Before(result[j].ObservedAt)
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.LiquiditySnapshotStore = (*LiquiditySnapshotStore)(nil)
