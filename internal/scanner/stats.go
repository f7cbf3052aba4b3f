package scanner

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// FactoryStats holds the run counters of one factory. Safe for concurrent use.
type FactoryStats struct {
	exchange string

	eventsScanned atomic.Int64
	poolsFound    atomic.Int64
	poolsAdded    atomic.Int64
	alreadyExists atomic.Int64
	lowLiquidity  atomic.Int64
	errors        atomic.Int64
	rateLimited   atomic.Int64
	timeouts      atomic.Int64
	chunksDone    atomic.Int64
	skippedChunks atomic.Int64

	mu        sync.Mutex
	liquidity decimal.Decimal
}

func (f *FactoryStats) addLiquidity(v decimal.Decimal) {
	f.mu.Lock()
	f.liquidity = f.liquidity.Add(v)
	f.mu.Unlock()
}

// Counters is an immutable copy of run counters.
type Counters struct {
	Exchange      string          `json:"exchange,omitempty"`
	EventsScanned int64           `json:"events_scanned"`
	PoolsFound    int64           `json:"pools_found"`
	PoolsAdded    int64           `json:"pools_added"`
	AlreadyExists int64           `json:"already_exists"`
	LowLiquidity  int64           `json:"low_liquidity"`
	Errors        int64           `json:"errors"`
	RateLimited   int64           `json:"rate_limited"`
	Timeouts      int64           `json:"timeouts"`
	ChunksDone    int64           `json:"chunks_done"`
	SkippedChunks int64           `json:"skipped_chunks"`
	LiquidityUSD  decimal.Decimal `json:"liquidity_usd"`
}

func (c *Counters) add(o Counters) {
	c.EventsScanned += o.EventsScanned
	c.PoolsFound += o.PoolsFound
	c.PoolsAdded += o.PoolsAdded
	c.AlreadyExists += o.AlreadyExists
	c.LowLiquidity += o.LowLiquidity
	c.Errors += o.Errors
	c.RateLimited += o.RateLimited
	c.Timeouts += o.Timeouts
	c.ChunksDone += o.ChunksDone
	c.SkippedChunks += o.SkippedChunks
	c.LiquidityUSD = c.LiquidityUSD.Add(o.LiquidityUSD)
}

// Snapshot copies the current counter values.
func (f *FactoryStats) Snapshot() Counters {
	f.mu.Lock()
	liquidity := f.liquidity
	f.mu.Unlock()

	return Counters{
		Exchange:      f.exchange,
		EventsScanned: f.eventsScanned.Load(),
		PoolsFound:    f.poolsFound.Load(),
		PoolsAdded:    f.poolsAdded.Load(),
		AlreadyExists: f.alreadyExists.Load(),
		LowLiquidity:  f.lowLiquidity.Load(),
		Errors:        f.errors.Load(),
		RateLimited:   f.rateLimited.Load(),
		Timeouts:      f.timeouts.Load(),
		ChunksDone:    f.chunksDone.Load(),
		SkippedChunks: f.skippedChunks.Load(),
		LiquidityUSD:  liquidity,
	}
}

// Stats holds the counters of every factory in a run.
type Stats struct {
	mu        sync.RWMutex
	factories map[string]*FactoryStats
}

// NewStats creates an empty registry of counters.
func NewStats() *Stats {
	return &Stats{factories: make(map[string]*FactoryStats)}
}

// Factory returns the counters of an exchange, creating them on first use.
func (s *Stats) Factory(exchange string) *FactoryStats {
	s.mu.RLock()
	fs, ok := s.factories[exchange]
	s.mu.RUnlock()
	if ok {
		return fs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.factories[exchange]; ok {
		return fs
	}
	fs = &FactoryStats{exchange: exchange}
	s.factories[exchange] = fs
	return fs
}

// StatsSnapshot is an immutable copy of all run counters.
type StatsSnapshot struct {
	Factories []Counters `json:"factories"`
	Totals    Counters   `json:"totals"`
}

// Snapshot copies every factory's counters, ordered by exchange name, plus run-wide totals.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	all := make([]*FactoryStats, 0, len(s.factories))
	for _, fs := range s.factories {
		all = append(all, fs)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].exchange < all[j].exchange })

	snap := StatsSnapshot{Factories: make([]Counters, 0, len(all))}
	for _, fs := range all {
		c := fs.Snapshot()
		snap.Factories = append(snap.Factories, c)
		snap.Totals.add(c)
	}
	return snap
}
