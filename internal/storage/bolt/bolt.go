// Package bolt implements the pool and progress stores on a single bbolt file,
// for single-node runs without PostgreSQL.
package bolt

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"dex-pool-scanner/internal/observability"
)

var (
	poolsBucket    = []byte("pools")
	progressBucket = []byte("scan_progress")
)

// DB wraps a bbolt database with the scanner buckets created.
type DB struct {
	*bolt.DB
	metrics *observability.Metrics
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{poolsBucket, progressBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db}, nil
}

// SetMetrics enables query latency and error metrics for stores built on this database.
func (db *DB) SetMetrics(m *observability.Metrics) {
	db.metrics = m
}

func (db *DB) observe(op string, start time.Time, err error) {
	db.metrics.RecordDBQuery("bolt", op, time.Since(start), err)
}
