package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dex-pool-scanner/internal/chain"
	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/observability"
	"dex-pool-scanner/internal/registry"
	"dex-pool-scanner/internal/storage"
)

// State is the lifecycle state of a scan task.
type State int32

const (
	StateInitialized State = iota
	StateRunning
	StateCompleted
	StateShutDown
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateShutDown:
		return "shut_down"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateShutDown || s == StateFailed
}

// Mode selects how query timeouts are handled.
type Mode int

const (
	// ModeFast skips a chunk whose query times out.
	ModeFast Mode = iota
	// ModeThorough splits a timed-out range and retries the parts.
	ModeThorough
)

// ParseMode parses "fast" or "thorough".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "fast", "":
		return ModeFast, nil
	case "thorough":
		return ModeThorough, nil
	}
	return ModeFast, fmt.Errorf("unknown scan mode %q", s)
}

func (m Mode) String() string {
	if m == ModeThorough {
		return "thorough"
	}
	return "fast"
}

// Default task configuration values.
const (
	DefaultChunkSize        = 2000
	DefaultRateLimitBackoff = 5 * time.Second
	DefaultChunkDelay       = 100 * time.Millisecond
	DefaultHeavyChunkEvents = 100
	DefaultHeavyChunkDelay  = 2 * time.Second
	DefaultProgressEvery    = 10
	DefaultSplitFactor      = 4
	DefaultMinSplitBlocks   = 50
)

// TaskConfig tunes chunk iteration. Zero values take the defaults.
type TaskConfig struct {
	ChunkSize        uint64
	Mode             Mode
	RateLimitBackoff time.Duration // fixed wait before retrying a rate-limited range
	ChunkDelay       time.Duration // pause between chunks
	HeavyChunkEvents int           // events per chunk that trigger HeavyChunkDelay
	HeavyChunkDelay  time.Duration
	ProgressEvery    int    // chunks between progress writes
	SplitFactor      int    // thorough mode: parts per split
	MinSplitBlocks   uint64 // thorough mode: ranges this small are skipped instead of split
}

func (c TaskConfig) withDefaults() TaskConfig {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.RateLimitBackoff == 0 {
		c.RateLimitBackoff = DefaultRateLimitBackoff
	}
	if c.ChunkDelay == 0 {
		c.ChunkDelay = DefaultChunkDelay
	}
	if c.HeavyChunkEvents == 0 {
		c.HeavyChunkEvents = DefaultHeavyChunkEvents
	}
	if c.HeavyChunkDelay == 0 {
		c.HeavyChunkDelay = DefaultHeavyChunkDelay
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.SplitFactor < 2 {
		c.SplitFactor = DefaultSplitFactor
	}
	if c.MinSplitBlocks == 0 {
		c.MinSplitBlocks = DefaultMinSplitBlocks
	}
	return c
}

// errInterrupted means shutdown arrived while a chunk was waiting out a rate limit.
var errInterrupted = errors.New("interrupted by shutdown")

// Task scans one factory's window in ascending chunks.
type Task struct {
	factory   registry.Factory
	client    chain.Client
	processor *Processor
	progress  storage.ScanProgressStore
	shutdown  *Shutdown
	stats     *FactoryStats
	cfg       TaskConfig
	metrics   *observability.Metrics
	logger    zerolog.Logger

	state atomic.Int32

	mu   sync.RWMutex
	base domain.ScanProgress // totals carried from earlier runs
	cur  domain.ScanProgress
}

// TaskOptions contains configuration for creating a Task.
type TaskOptions struct {
	Factory   registry.Factory
	ChainID   int64
	Client    chain.Client
	Processor *Processor
	Progress  storage.ScanProgressStore
	Shutdown  *Shutdown
	Stats     *FactoryStats
	Config    TaskConfig
	Window    Window
	Resume    *domain.ScanProgress // start cursor and carried totals; nil starts at Window.Start
	Metrics   *observability.Metrics
	Logger    *zerolog.Logger
}

// NewTask creates a task in StateInitialized.
func NewTask(opts TaskOptions) *Task {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "task").Str("exchange", opts.Factory.Exchange).Logger()
	}

	shutdown := opts.Shutdown
	if shutdown == nil {
		shutdown = NewShutdown()
	}

	stats := opts.Stats
	if stats == nil {
		stats = &FactoryStats{exchange: opts.Factory.Exchange}
	}

	t := &Task{
		factory:   opts.Factory,
		client:    opts.Client,
		processor: opts.Processor,
		progress:  opts.Progress,
		shutdown:  shutdown,
		stats:     stats,
		cfg:       opts.Config.withDefaults(),
		metrics:   opts.Metrics,
		logger:    logger,
	}

	t.cur = domain.ScanProgress{
		Exchange:     opts.Factory.Exchange,
		ChainID:      opts.ChainID,
		StartBlock:   opts.Window.Start,
		CurrentBlock: opts.Window.Start,
		EndBlock:     opts.Window.End,
	}
	if r := opts.Resume; r != nil {
		t.base = *r
		cursor := r.CurrentBlock
		if cursor < opts.Window.Start {
			cursor = opts.Window.Start
		}
		if cursor > opts.Window.End {
			cursor = opts.Window.End
		}
		t.cur.CurrentBlock = cursor
	}
	t.cur.TotalEventsScanned = t.base.TotalEventsScanned
	t.cur.PoolsFound = t.base.PoolsFound
	t.cur.PoolsAdded = t.base.PoolsAdded

	return t
}

// Factory returns the scanned factory.
func (t *Task) Factory() registry.Factory {
	return t.factory
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Progress returns a copy of the task's in-memory progress.
func (t *Task) Progress() domain.ScanProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}

// Run walks the window until completion, shutdown or a fatal store error.
func (t *Task) Run(ctx context.Context) error {
	t.state.Store(int32(StateRunning))

	p := t.Progress()
	cursor, end := p.CurrentBlock, p.EndBlock
	t.logger.Info().
		Uint64("start", p.StartBlock).
		Uint64("cursor", cursor).
		Uint64("end", end).
		Str("mode", t.cfg.Mode.String()).
		Msg("scan task started")

	sinceFlush := 0
	for cursor < end {
		if t.shutdown.IsSet() || ctx.Err() != nil {
			return t.stop(ctx, StateShutDown)
		}

		to := chunkEnd(cursor, t.cfg.ChunkSize, end)
		started := time.Now()

		events, err := t.scanRange(ctx, cursor, to)
		if errors.Is(err, errInterrupted) {
			return t.stop(ctx, StateShutDown)
		}
		if err != nil {
			t.logger.Error().Err(err).Uint64("from", cursor+1).Uint64("to", to).Msg("scan task failed")
			t.flush(ctx)
			t.state.Store(int32(StateFailed))
			return fmt.Errorf("%s: %w", t.factory.Exchange, err)
		}

		cursor = to
		t.advance(cursor)
		t.stats.chunksDone.Add(1)
		t.metrics.RecordChunk(t.factory.Exchange, "done", time.Since(started))

		sinceFlush++
		if sinceFlush >= t.cfg.ProgressEvery {
			t.flush(ctx)
			sinceFlush = 0
		}

		if cursor < end {
			delay := t.cfg.ChunkDelay
			if events >= t.cfg.HeavyChunkEvents {
				delay = t.cfg.HeavyChunkDelay
				t.logger.Debug().Int("events", events).Dur("delay", delay).Msg("heavy chunk, slowing down")
			}
			t.wait(ctx, delay)
		}
	}

	return t.stop(ctx, StateCompleted)
}

// stop performs the final progress flush and enters a terminal state.
func (t *Task) stop(ctx context.Context, state State) error {
	t.flush(ctx)
	t.state.Store(int32(state))

	p := t.Progress()
	c := t.stats.Snapshot()
	t.logger.Info().
		Str("state", state.String()).
		Uint64("cursor", p.CurrentBlock).
		Uint64("end", p.EndBlock).
		Int64("events", c.EventsScanned).
		Int64("pools_added", c.PoolsAdded).
		Int64("errors", c.Errors).
		Msg("scan task stopped")
	return nil
}

// scanRange processes the chunk (from, to] and returns the number of raw events seen.
func (t *Task) scanRange(ctx context.Context, from, to uint64) (int, error) {
	for {
		logs, err := t.client.QueryCreationEvents(ctx, t.factory, from+1, to)
		if err == nil {
			return len(logs), t.processLogs(ctx, logs)
		}

		switch chain.KindOf(err) {
		case chain.KindRateLimited:
			t.stats.rateLimited.Add(1)
			t.metrics.RecordRateLimitWait(t.factory.Exchange)
			t.logger.Warn().
				Uint64("from", from+1).
				Uint64("to", to).
				Dur("backoff", t.cfg.RateLimitBackoff).
				Msg("rate limited, retrying same range")
			if !t.wait(ctx, t.cfg.RateLimitBackoff) {
				return 0, errInterrupted
			}

		case chain.KindQueryTimeout:
			t.stats.timeouts.Add(1)
			if t.cfg.Mode == ModeThorough && to-from > t.cfg.MinSplitBlocks {
				t.logger.Debug().Uint64("from", from+1).Uint64("to", to).Msg("query timed out, splitting range")
				total := 0
				for _, part := range splitRange(from, to, t.cfg.SplitFactor) {
					n, err := t.scanRange(ctx, part.Start, part.End)
					total += n
					if err != nil {
						return total, err
					}
				}
				return total, nil
			}
			t.skip(from, to, "query_timeout", err)
			return 0, nil

		default:
			t.skip(from, to, "transient", err)
			return 0, nil
		}
	}
}

func (t *Task) skip(from, to uint64, kind string, err error) {
	t.stats.errors.Add(1)
	t.stats.skippedChunks.Add(1)
	t.metrics.RecordScanError(t.factory.Exchange, kind)
	t.metrics.RecordChunk(t.factory.Exchange, "skipped", 0)
	t.logger.Warn().Err(err).Uint64("from", from+1).Uint64("to", to).Str("kind", kind).Msg("skipping range")
}

func (t *Task) processLogs(ctx context.Context, logs []chain.RawEvent) error {
	t.stats.eventsScanned.Add(int64(len(logs)))
	t.metrics.RecordEvents(t.factory.Exchange, len(logs))

	for _, l := range logs {
		ev, err := t.factory.Decode(l)
		if err != nil {
			t.stats.errors.Add(1)
			t.metrics.RecordScanError(t.factory.Exchange, "decode")
			t.logger.Warn().Err(err).Msg("skipping malformed event")
			continue
		}
		if _, err := t.processor.Process(ctx, t.factory, ev, t.stats); err != nil {
			return err
		}
	}
	return nil
}

// wait sleeps for d and reports false if shutdown or cancellation interrupted it.
func (t *Task) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !t.shutdown.IsSet()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-t.shutdown.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// advance moves the cursor to a chunk boundary and captures the counters at that point.
// Counters of a chunk in flight are never folded into the persisted progress.
func (t *Task) advance(cursor uint64) {
	c := t.stats.Snapshot()

	t.mu.Lock()
	if cursor > t.cur.CurrentBlock {
		t.cur.CurrentBlock = cursor
	}
	t.cur.TotalEventsScanned = t.base.TotalEventsScanned + c.EventsScanned
	t.cur.PoolsFound = t.base.PoolsFound + c.PoolsFound
	t.cur.PoolsAdded = t.base.PoolsAdded + c.PoolsAdded
	p := t.cur
	t.mu.Unlock()

	t.metrics.SetProgress(t.factory.Exchange, p.CurrentBlock, p.Ratio())
}

// flush persists the progress captured at the last completed chunk. Failures are logged and counted, not fatal.
func (t *Task) flush(ctx context.Context) {
	t.mu.Lock()
	t.cur.UpdatedAt = time.Now().UTC()
	p := t.cur
	t.mu.Unlock()

	if t.progress == nil {
		return
	}
	if err := t.progress.Upsert(context.WithoutCancel(ctx), &p); err != nil {
		t.stats.errors.Add(1)
		t.metrics.RecordScanError(t.factory.Exchange, "progress")
		t.logger.Error().Err(err).Uint64("cursor", p.CurrentBlock).Msg("failed to persist progress")
	}
}
