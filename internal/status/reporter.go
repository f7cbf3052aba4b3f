// Package status periodically reports scan progress to logs, metrics and websocket subscribers.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"dex-pool-scanner/internal/observability"
	"dex-pool-scanner/internal/scanner"
)

// DefaultInterval is the reporting period when none is configured.
const DefaultInterval = 30 * time.Second

// Source provides read-only run snapshots.
type Source interface {
	Snapshot() scanner.RunSnapshot
}

// Reporter reads snapshots on its own ticker. It never mutates scan state.
type Reporter struct {
	source   Source
	interval time.Duration
	hub      *Hub
	metrics  *observability.Metrics
	logger   zerolog.Logger

	mu   sync.RWMutex
	last scanner.RunSnapshot
}

// Options contains configuration for creating a Reporter.
type Options struct {
	Source   Source
	Interval time.Duration
	Hub      *Hub // optional
	Metrics  *observability.Metrics
	Logger   *zerolog.Logger
}

// NewReporter creates a status reporter.
func NewReporter(opts Options) *Reporter {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "status").Logger()
	}

	return &Reporter{
		source:   opts.Source,
		interval: interval,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Run reports every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report takes one snapshot and publishes it.
func (r *Reporter) Report() scanner.RunSnapshot {
	snap := r.source.Snapshot()

	r.mu.Lock()
	r.last = snap
	r.mu.Unlock()

	t := snap.Totals
	r.logger.Info().
		Int("running", snap.Running).
		Int("known_pools", snap.KnownPools).
		Int64("events_scanned", t.EventsScanned).
		Int64("pools_found", t.PoolsFound).
		Int64("pools_added", t.PoolsAdded).
		Int64("already_exists", t.AlreadyExists).
		Int64("low_liquidity", t.LowLiquidity).
		Int64("errors", t.Errors).
		Str("liquidity_usd", t.LiquidityUSD.StringFixed(2)).
		Dur("elapsed", snap.Elapsed).
		Msg("scan status")

	for _, f := range snap.Factories {
		r.logger.Info().
			Str("exchange", f.Exchange).
			Str("state", f.State).
			Uint64("current_block", f.CurrentBlock).
			Uint64("end_block", f.EndBlock).
			Str("completion", formatPercent(f.Ratio)).
			Int64("pools_added", f.Counters.PoolsAdded).
			Msg("factory status")
		r.metrics.SetProgress(f.Exchange, f.CurrentBlock, f.Ratio)
	}
	r.metrics.SetKnownPools(snap.KnownPools)
	r.metrics.SetActiveTasks(snap.Running)
	r.metrics.RecordStatusReport(snap.At)

	if r.hub != nil {
		if err := r.hub.Publish(snap); err != nil {
			r.logger.Warn().Err(err).Msg("failed to publish status")
		}
	}
	return snap
}

// Last returns the most recent reported snapshot.
func (r *Reporter) Last() scanner.RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Routes mounts GET /status and, with a hub, GET /ws/status.
func (r *Reporter) Routes(router chi.Router) {
	router.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.source.Snapshot()); err != nil {
			r.logger.Debug().Err(err).Msg("write status response")
		}
	})
	if r.hub != nil {
		router.Handle("/ws/status", r.hub)
	}
}

func formatPercent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 1, 64) + "%"
}
