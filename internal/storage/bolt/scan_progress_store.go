package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

// ScanProgressStore implements storage.ScanProgressStore on bbolt.
type ScanProgressStore struct {
	db *DB
}

// NewScanProgressStore creates a new ScanProgressStore.
func NewScanProgressStore(db *DB) *ScanProgressStore {
	return &ScanProgressStore{db: db}
}

// Compile-time interface check.
var _ storage.ScanProgressStore = (*ScanProgressStore)(nil)

func progressKey(exchange string, chainID int64) []byte {
	return []byte(strconv.FormatInt(chainID, 10) + "/" + exchange)
}

// Upsert saves progress keyed by (exchange, chain_id).
func (s *ScanProgressStore) Upsert(_ context.Context, p *domain.ScanProgress) (err error) {
	if p == nil || p.Exchange == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { s.db.observe("scan_progress_upsert", start, err) }()

	record := *p
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("encode scan progress: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(progressBucket).Put(progressKey(p.Exchange, p.ChainID), raw)
	})
	if err != nil {
		return fmt.Errorf("upsert scan progress: %w", err)
	}
	return nil
}

// Load returns the stored progress. Returns ErrNotFound if none saved yet.
func (s *ScanProgressStore) Load(_ context.Context, exchange string, chainID int64) (*domain.ScanProgress, error) {
	var p *domain.ScanProgress
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(progressBucket).Get(progressKey(exchange, chainID))
		if raw == nil {
			return storage.ErrNotFound
		}
		p = new(domain.ScanProgress)
		return json.Unmarshal(raw, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns progress rows for a chain ordered by exchange name.
func (s *ScanProgressStore) List(_ context.Context, chainID int64) ([]*domain.ScanProgress, error) {
	prefix := []byte(strconv.FormatInt(chainID, 10) + "/")

	var result []*domain.ScanProgress
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(progressBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p domain.ScanProgress
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode scan progress %s: %w", k, err)
			}
			result = append(result, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Exchange < result[j].Exchange
	})
	return result, nil
}
