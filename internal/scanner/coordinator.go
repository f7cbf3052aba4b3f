package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"dex-pool-scanner/internal/chain"
	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/liquidity"
	"dex-pool-scanner/internal/observability"
	"dex-pool-scanner/internal/registry"
	"dex-pool-scanner/internal/storage"
)

// ErrNoFactories is returned when there is nothing to scan.
var ErrNoFactories = errors.New("no factories enabled")

// Coordinator runs one scan task per factory concurrently and aggregates their results.
type Coordinator struct {
	client         chain.Client
	factories      []registry.Factory
	pools          storage.PoolStore
	progress       storage.ScanProgressStore
	snapshots      storage.LiquiditySnapshotStore
	estimator      liquidity.Estimator
	hints          TokenHints
	minLiquidity   decimal.Decimal
	window         WindowConfig
	taskCfg        TaskConfig
	ignoreProgress bool
	shutdown       *Shutdown
	stats          *Stats
	set            *PoolSet
	metrics        *observability.Metrics
	logger         zerolog.Logger
	loggerRef      *zerolog.Logger

	mu       sync.RWMutex
	prepared bool
	tasks    []*Task
	chainID  int64
	height   uint64
	started  time.Time
}

// Options contains configuration for creating a Coordinator.
type Options struct {
	Client          chain.Client
	Factories       []registry.Factory
	Pools           storage.PoolStore
	Progress        storage.ScanProgressStore
	Snapshots       storage.LiquiditySnapshotStore // optional
	Estimator       liquidity.Estimator
	Hints           TokenHints // optional
	MinLiquidityUSD decimal.Decimal
	Window          WindowConfig
	Task            TaskConfig
	IgnoreProgress  bool // start every factory at its window start
	Shutdown        *Shutdown
	Metrics         *observability.Metrics
	Logger          *zerolog.Logger
}

// NewCoordinator creates a coordinator. Call Prepare or Run to start it.
func NewCoordinator(opts Options) *Coordinator {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "coordinator").Logger()
	}

	shutdown := opts.Shutdown
	if shutdown == nil {
		shutdown = NewShutdown()
	}

	return &Coordinator{
		client:         opts.Client,
		factories:      opts.Factories,
		pools:          opts.Pools,
		progress:       opts.Progress,
		snapshots:      opts.Snapshots,
		estimator:      opts.Estimator,
		hints:          opts.Hints,
		minLiquidity:   opts.MinLiquidityUSD,
		window:         opts.Window,
		taskCfg:        opts.Task,
		ignoreProgress: opts.IgnoreProgress,
		shutdown:       shutdown,
		stats:          NewStats(),
		set:            NewPoolSet(),
		metrics:        opts.Metrics,
		logger:         logger,
		loggerRef:      opts.Logger,
	}
}

// Stats returns the shared run counters.
func (c *Coordinator) Stats() *Stats {
	return c.stats
}

// PoolSet returns the shared identity set.
func (c *Coordinator) PoolSet() *PoolSet {
	return c.set
}

// Tasks returns the prepared tasks.
func (c *Coordinator) Tasks() []*Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Prepare reads the chain height, seeds the pool set from the store and builds the tasks.
// A pool or progress store failure wraps storage.ErrStoreUnavailable.
func (c *Coordinator) Prepare(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepared {
		return nil
	}
	if len(c.factories) == 0 {
		return ErrNoFactories
	}

	height, err := c.client.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("read current height: %w", err)
	}
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}

	known, err := c.pools.ListAddresses(ctx, chainID)
	if err != nil {
		return storage.Unavailable(fmt.Errorf("seed pool set: %w", err))
	}
	c.set.Load(known)
	c.metrics.SetKnownPools(c.set.Len())

	processor := NewProcessor(ProcessorOptions{
		Pools:           c.pools,
		Snapshots:       c.snapshots,
		PoolSet:         c.set,
		Estimator:       c.estimator,
		Tokens:          c.client,
		Hints:           c.hints,
		MinLiquidityUSD: c.minLiquidity,
		ChainID:         chainID,
		Metrics:         c.metrics,
		Logger:          c.loggerRef,
	})

	tasks := make([]*Task, 0, len(c.factories))
	for _, f := range c.factories {
		w := ComputeWindow(c.window, height, f)
		resume, err := c.resume(ctx, f, chainID, w)
		if err != nil {
			return err
		}
		tasks = append(tasks, NewTask(TaskOptions{
			Factory:   f,
			ChainID:   chainID,
			Client:    c.client,
			Processor: processor,
			Progress:  c.progress,
			Shutdown:  c.shutdown,
			Stats:     c.stats.Factory(f.Exchange),
			Config:    c.taskCfg,
			Window:    w,
			Resume:    resume,
			Metrics:   c.metrics,
			Logger:    c.loggerRef,
		}))
	}

	c.tasks = tasks
	c.chainID = chainID
	c.height = height
	c.prepared = true

	c.logger.Info().
		Int64("chain_id", chainID).
		Uint64("height", height).
		Int("known_pools", c.set.Len()).
		Int("factories", len(tasks)).
		Msg("scan prepared")
	return nil
}

// resume returns the stored progress to continue from, or nil to start at the window start.
func (c *Coordinator) resume(ctx context.Context, f registry.Factory, chainID int64, w Window) (*domain.ScanProgress, error) {
	if c.ignoreProgress || c.progress == nil {
		return nil, nil
	}

	stored, err := c.progress.Load(ctx, f.Exchange, chainID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Unavailable(fmt.Errorf("load progress for %s: %w", f.Exchange, err))
	}

	if stored.StartBlock > w.Start {
		// the window grew backwards; blocks before the stored start were never scanned
		c.logger.Info().
			Str("exchange", f.Exchange).
			Uint64("stored_start", stored.StartBlock).
			Uint64("window_start", w.Start).
			Msg("window widened, rescanning from window start")
		return nil, nil
	}

	c.logger.Info().
		Str("exchange", f.Exchange).
		Uint64("stored_cursor", stored.CurrentBlock).
		Str("window", w.String()).
		Msg("resuming from stored progress")
	return stored, nil
}

// Run prepares if needed, runs every task to a terminal state and returns the final report.
// A fatal task error triggers shutdown of the remaining tasks.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	if err := c.Prepare(ctx); err != nil {
		return &Report{Err: err}, err
	}

	c.mu.Lock()
	c.started = time.Now()
	tasks := c.tasks
	c.mu.Unlock()

	c.metrics.SetActiveTasks(len(tasks))

	var g errgroup.Group
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			err := t.Run(ctx)
			if err != nil {
				c.shutdown.Trigger()
			}
			c.metrics.SetActiveTasks(c.running())
			return err
		})
	}

	err := g.Wait()
	report := c.report(err)
	return report, err
}

func (c *Coordinator) running() int {
	n := 0
	for _, t := range c.Tasks() {
		if !t.State().Terminal() {
			n++
		}
	}
	return n
}

// FactorySnapshot is the read-only view of one task.
type FactorySnapshot struct {
	Exchange     string   `json:"exchange"`
	State        string   `json:"state"`
	StartBlock   uint64   `json:"start_block"`
	CurrentBlock uint64   `json:"current_block"`
	EndBlock     uint64   `json:"end_block"`
	Ratio        float64  `json:"ratio"`
	Counters     Counters `json:"counters"`
}

// RunSnapshot is an immutable view of the whole run.
type RunSnapshot struct {
	At         time.Time         `json:"at"`
	ChainID    int64             `json:"chain_id"`
	Height     uint64            `json:"height"`
	KnownPools int               `json:"known_pools"`
	Running    int               `json:"running"`
	Elapsed    time.Duration     `json:"elapsed_ns"`
	Factories  []FactorySnapshot `json:"factories"`
	Totals     Counters          `json:"totals"`
}

// Snapshot returns the current state of every task without mutating anything.
func (c *Coordinator) Snapshot() RunSnapshot {
	c.mu.RLock()
	chainID, height, started := c.chainID, c.height, c.started
	c.mu.RUnlock()

	snap := RunSnapshot{
		At:         time.Now().UTC(),
		ChainID:    chainID,
		Height:     height,
		KnownPools: c.set.Len(),
	}
	if !started.IsZero() {
		snap.Elapsed = time.Since(started)
	}

	for _, t := range c.Tasks() {
		p := t.Progress()
		counters := t.stats.Snapshot()
		state := t.State()
		if !state.Terminal() {
			snap.Running++
		}
		snap.Factories = append(snap.Factories, FactorySnapshot{
			Exchange:     p.Exchange,
			State:        state.String(),
			StartBlock:   p.StartBlock,
			CurrentBlock: p.CurrentBlock,
			EndBlock:     p.EndBlock,
			Ratio:        p.Ratio(),
			Counters:     counters,
		})
		snap.Totals.add(counters)
	}
	return snap
}

// FactoryReport is the final outcome of one task.
type FactoryReport struct {
	Exchange string
	State    State
	Progress domain.ScanProgress
	Counters Counters
}

// Report is the final aggregate of a run.
type Report struct {
	ChainID   int64
	Height    uint64
	Duration  time.Duration
	Factories []FactoryReport
	Totals    Counters
	Completed int
	Err       error
}

// Success reports whether at least one factory completed its window and no fatal error occurred.
func (r *Report) Success() bool {
	return r.Err == nil && r.Completed > 0
}

// ExitCode maps the report to a process exit status.
func (r *Report) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

func (c *Coordinator) report(err error) *Report {
	c.mu.RLock()
	r := &Report{
		ChainID:  c.chainID,
		Height:   c.height,
		Duration: time.Since(c.started),
		Err:      err,
	}
	c.mu.RUnlock()

	for _, t := range c.Tasks() {
		fr := FactoryReport{
			Exchange: t.factory.Exchange,
			State:    t.State(),
			Progress: t.Progress(),
			Counters: t.stats.Snapshot(),
		}
		if fr.State == StateCompleted {
			r.Completed++
		}
		r.Totals.add(fr.Counters)
		r.Factories = append(r.Factories, fr)
	}
	return r
}

// Log writes the final report as one line per factory plus a summary line.
func (r *Report) Log(logger zerolog.Logger) {
	if r.Err != nil && len(r.Factories) == 0 {
		logger.Error().Err(r.Err).Msg("scan did not start")
		return
	}

	for _, f := range r.Factories {
		logger.Info().
			Str("exchange", f.Exchange).
			Str("state", f.State.String()).
			Uint64("current_block", f.Progress.CurrentBlock).
			Uint64("end_block", f.Progress.EndBlock).
			Int64("events_scanned", f.Counters.EventsScanned).
			Int64("pools_found", f.Counters.PoolsFound).
			Int64("pools_added", f.Counters.PoolsAdded).
			Int64("already_exists", f.Counters.AlreadyExists).
			Int64("low_liquidity", f.Counters.LowLiquidity).
			Int64("errors", f.Counters.Errors).
			Int64("skipped_chunks", f.Counters.SkippedChunks).
			Int64("rate_limited", f.Counters.RateLimited).
			Str("liquidity_usd", f.Counters.LiquidityUSD.StringFixed(2)).
			Msg("factory report")
	}

	ev := logger.Info()
	if r.Err != nil {
		ev = logger.Error().Err(r.Err)
	}
	ev.
		Int("factories", len(r.Factories)).
		Int("completed", r.Completed).
		Int64("events_scanned", r.Totals.EventsScanned).
		Int64("pools_added", r.Totals.PoolsAdded).
		Int64("errors", r.Totals.Errors).
		Str("liquidity_discovered_usd", r.Totals.LiquidityUSD.StringFixed(2)).
		Dur("duration", r.Duration).
		Msg("scan finished")
}
