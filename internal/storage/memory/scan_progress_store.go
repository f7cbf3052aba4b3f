package memory

import (
	"context"
	"sort"
	"sync"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

type progressKey struct {
	exchange string
	chainID  int64
}

// ScanProgressStore is an in-memory implementation of storage.ScanProgressStore.
// It keeps the full write history so tests can inspect cursor movement.
type ScanProgressStore struct {
	mu      sync.RWMutex
	data    map[progressKey]*domain.ScanProgress
	history map[progressKey][]domain.ScanProgress
}

// NewScanProgressStore creates a new in-memory scan progress store.
func NewScanProgressStore() *ScanProgressStore {
	return &ScanProgressStore{
		data:    make(map[progressKey]*domain.ScanProgress),
		history: make(map[progressKey][]domain.ScanProgress),
	}
}

// Upsert saves progress keyed by (exchange, chain_id).
func (s *ScanProgressStore) Upsert(_ context.Context, p *domain.ScanProgress) error {
	if p == nil || p.Exchange == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := progressKey{p.Exchange, p.ChainID}
	progressCopy := *p
	s.data[k] = &progressCopy
	s.history[k] = append(s.history[k], progressCopy)
	return nil
}

// Load returns the stored progress. Returns ErrNotFound if none saved yet.
func (s *ScanProgressStore) Load(_ context.Context, exchange string, chainID int64) (*domain.ScanProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[progressKey{exchange, chainID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	progressCopy := *p
	return &progressCopy, nil
}

// List returns progress rows for a chain ordered by exchange name.
func (s *ScanProgressStore) List(_ context.Context, chainID int64) ([]*domain.ScanProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScanProgress
	for k, p := range s.data {
		if k.chainID == chainID {
			progressCopy := *p
			result = append(result, &progressCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Exchange < result[j].Exchange
	})
	return result, nil
}

// History returns every persisted update for (exchange, chain_id) in write order.
func (s *ScanProgressStore) History(exchange string, chainID int64) []domain.ScanProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[progressKey{exchange, chainID}]
	out := make([]domain.ScanProgress, len(h))
	copy(out, h)
	return out
}

// Verify interface compliance at compile time.
var _ storage.ScanProgressStore = (*ScanProgressStore)(nil)
