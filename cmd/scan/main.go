// Package main runs a one-shot scan of DEX factory contracts for newly created pools.
//
// Usage:
//
//	scan --rpc-endpoint https://eth.example.com --store postgres --postgres-dsn postgres://...
//
// Every flag falls back to an environment variable (see internal/config). The process exits 0
// when at least one factory completed its window and 1 otherwise.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"dex-pool-scanner/internal/chain"
	"dex-pool-scanner/internal/config"
	"dex-pool-scanner/internal/liquidity"
	"dex-pool-scanner/internal/observability"
	"dex-pool-scanner/internal/scanner"
	"dex-pool-scanner/internal/status"
	"dex-pool-scanner/internal/storage"
	boltstore "dex-pool-scanner/internal/storage/bolt"
	chstore "dex-pool-scanner/internal/storage/clickhouse"
	"dex-pool-scanner/internal/storage/memory"
	"dex-pool-scanner/internal/storage/migrations"
	pgstore "dex-pool-scanner/internal/storage/postgres"
)

const forceExitTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("config", cfg.RedactedSummary()).Msg("starting dex pool scanner")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics("dex_pool_scanner", reg)

	factories, err := cfg.FactoryRegistry()
	if err != nil {
		logger.Error().Err(err).Msg("invalid factory selection")
		return 1
	}
	enabled := factories.Enabled()
	for _, f := range enabled {
		logger.Info().
			Str("exchange", f.Exchange).
			Str("address", f.Address.Hex()).
			Str("kind", string(f.Kind)).
			Uint64("deploy_block", f.DeployBlock).
			Msg("factory enabled")
	}

	table := liquidity.DefaultTable()
	if err := table.Merge(cfg.TokenEntries()); err != nil {
		logger.Error().Err(err).Msg("invalid token table")
		return 1
	}

	stores, err := openStores(ctx, cfg, metrics)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open stores")
		return 1
	}
	defer stores.close()

	client, err := chain.Dial(ctx, cfg.RPCEndpoint,
		chain.WithQueryTimeout(cfg.QueryTimeout),
		chain.WithRateLimit(cfg.RPCRPS),
		chain.WithMetrics(metrics),
		chain.WithLogger(logger),
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to rpc endpoint")
		return 1
	}
	defer client.Close()

	shutdown := scanner.NewShutdown()

	coord := scanner.NewCoordinator(scanner.Options{
		Client:          client,
		Factories:       enabled,
		Pools:           stores.pools,
		Progress:        stores.progress,
		Snapshots:       stores.snapshots,
		Estimator:       table,
		Hints:           table,
		MinLiquidityUSD: cfg.MinLiquidityUSD,
		Window:          cfg.WindowConfig(),
		Task:            cfg.TaskConfig(),
		IgnoreProgress:  cfg.IgnoreProgress,
		Shutdown:        shutdown,
		Metrics:         metrics,
		Logger:          &logger,
	})

	hub := status.NewHub(&logger)
	defer hub.Close()

	reporter := status.NewReporter(status.Options{
		Source:   coord,
		Interval: cfg.StatusInterval,
		Hub:      hub,
		Metrics:  metrics,
		Logger:   &logger,
	})

	if cfg.MetricsAddr != "" {
		router := observability.NewRouter(reg, reporter.Routes)
		go func() {
			if err := observability.Serve(ctx, cfg.MetricsAddr, router, logger); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	go reporter.Run(ctx)

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("received signal, finishing current chunks")
			shutdown.Trigger()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("received second signal, forcing exit")
			os.Exit(1)
		case <-time.After(forceExitTimeout):
			logger.Error().Dur("timeout", forceExitTimeout).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	report, err := coord.Run(ctx)
	close(done)

	reporter.Report()
	report.Log(logger)

	if err != nil {
		logger.Error().Err(err).Msg("scan aborted")
	}
	if n, cerr := stores.pools.Count(context.WithoutCancel(ctx)); cerr == nil {
		logger.Info().Int("stored_pools", n).Msg("scan finished")
	}

	return report.ExitCode()
}

// newLogger builds the root logger: human-readable on a terminal, JSON otherwise.
func newLogger(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if isTerminal(os.Stdout) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "dex-pool-scanner").Logger()
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// scanStores holds the selected storage backends.
type scanStores struct {
	pools     storage.PoolStore
	progress  storage.ScanProgressStore
	snapshots storage.LiquiditySnapshotStore // nil when no snapshot sink is configured
	closers   []func()
}

func (s *scanStores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores creates the pool and progress stores plus the optional ClickHouse snapshot sink.
func openStores(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*scanStores, error) {
	stores := &scanStores{}

	switch cfg.Store {
	case config.StoreMemory:
		stores.pools = memory.NewPoolStore()
		stores.progress = memory.NewScanProgressStore()
		stores.snapshots = memory.NewLiquiditySnapshotStore()

	case config.StoreBolt:
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		db.SetMetrics(metrics)
		stores.pools = boltstore.NewPoolStore(db)
		stores.progress = boltstore.NewScanProgressStore(db)
		stores.closers = append(stores.closers, func() { _ = db.Close() })

	default:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		pool.SetMetrics(metrics)
		stores.pools = pgstore.NewPoolStore(pool)
		stores.progress = pgstore.NewScanProgressStore(pool)
		stores.closers = append(stores.closers, pool.Close)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			stores.close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		conn.SetMetrics(metrics)
		stores.snapshots = chstore.NewLiquiditySnapshotStore(conn)
		stores.closers = append(stores.closers, func() { _ = conn.Close() })
	}

	return stores, nil
}
