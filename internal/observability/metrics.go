// Package observability provides Prometheus metrics and the operator HTTP surface.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scanner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Scan metrics
	EventsScanned   *prometheus.CounterVec
	PoolsFound      *prometheus.CounterVec
	PoolsAdded      *prometheus.CounterVec
	AlreadyExists   *prometheus.CounterVec
	LowLiquidity    *prometheus.CounterVec
	ScanErrors      *prometheus.CounterVec
	RateLimitWaits  *prometheus.CounterVec
	ChunksProcessed *prometheus.CounterVec
	ChunkDuration   *prometheus.HistogramVec

	// Progress metrics
	ScanCursor    *prometheus.GaugeVec
	ScanProgress  *prometheus.GaugeVec
	KnownPools    prometheus.Gauge
	LiquidityUSD  prometheus.Gauge
	ActiveFactory prometheus.Gauge

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCErrors      *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastStatusReport prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "dex_pool_scanner"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Scan metrics
		EventsScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "events_scanned_total",
			Help:      "Total number of creation events scanned",
		}, []string{"exchange"}),
		PoolsFound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "pools_found_total",
			Help:      "Total number of previously unknown pools found",
		}, []string{"exchange"}),
		PoolsAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "pools_added_total",
			Help:      "Total number of pools persisted",
		}, []string{"exchange"}),
		AlreadyExists: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "pools_already_known_total",
			Help:      "Total number of events referencing an already known pool",
		}, []string{"exchange"}),
		LowLiquidity: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "pools_low_liquidity_total",
			Help:      "Total number of pools rejected below the liquidity threshold",
		}, []string{"exchange"}),
		ScanErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "errors_total",
			Help:      "Total number of contained scan errors by kind",
		}, []string{"exchange", "kind"}),
		RateLimitWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "rate_limit_waits_total",
			Help:      "Total number of backoff waits after rate limiting",
		}, []string{"exchange"}),
		ChunksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "chunks_total",
			Help:      "Total number of chunks by outcome",
		}, []string{"exchange", "outcome"}),
		ChunkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "chunk_duration_seconds",
			Help:      "Chunk processing duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"exchange"}),

		// Progress metrics
		ScanCursor: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "current_block",
			Help:      "Last fully processed block per factory",
		}, []string{"exchange"}),
		ScanProgress: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "ratio",
			Help:      "Completed fraction of the scan window per factory",
		}, []string{"exchange"}),
		KnownPools: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "known_pools",
			Help:      "Number of pool addresses in the identity set",
		}),
		LiquidityUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "liquidity_discovered_usd",
			Help:      "Aggregate estimated liquidity of pools added this run",
		}),
		ActiveFactory: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "active_tasks",
			Help:      "Number of scan tasks still running",
		}),

		// Chain metrics
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_errors_total",
			Help:      "Total number of JSON-RPC errors by kind",
		}, []string{"method", "kind"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastStatusReport: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_status_report_timestamp",
			Help:      "Unix timestamp of the last status report",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEvents adds scanned creation events for an exchange.
func (m *Metrics) RecordEvents(exchange string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EventsScanned.WithLabelValues(exchange).Add(float64(n))
}

// RecordPoolFound increments the found counter.
func (m *Metrics) RecordPoolFound(exchange string) {
	if m == nil {
		return
	}
	m.PoolsFound.WithLabelValues(exchange).Inc()
}

// RecordPoolAdded increments the added counter and the discovered liquidity gauge.
func (m *Metrics) RecordPoolAdded(exchange string, liquidityUSD float64) {
	if m == nil {
		return
	}
	m.PoolsAdded.WithLabelValues(exchange).Inc()
	m.LiquidityUSD.Add(liquidityUSD)
}

// RecordAlreadyExists increments the already known counter.
func (m *Metrics) RecordAlreadyExists(exchange string) {
	if m == nil {
		return
	}
	m.AlreadyExists.WithLabelValues(exchange).Inc()
}

// RecordLowLiquidity increments the low liquidity counter.
func (m *Metrics) RecordLowLiquidity(exchange string) {
	if m == nil {
		return
	}
	m.LowLiquidity.WithLabelValues(exchange).Inc()
}

// RecordScanError records a contained scan error.
func (m *Metrics) RecordScanError(exchange, kind string) {
	if m == nil {
		return
	}
	m.ScanErrors.WithLabelValues(exchange, kind).Inc()
}

// RecordRateLimitWait records one backoff wait.
func (m *Metrics) RecordRateLimitWait(exchange string) {
	if m == nil {
		return
	}
	m.RateLimitWaits.WithLabelValues(exchange).Inc()
}

// RecordChunk records a finished chunk.
func (m *Metrics) RecordChunk(exchange, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChunksProcessed.WithLabelValues(exchange, outcome).Inc()
	m.ChunkDuration.WithLabelValues(exchange).Observe(d.Seconds())
}

// SetProgress updates the cursor and completion gauges of a factory.
func (m *Metrics) SetProgress(exchange string, cursor uint64, ratio float64) {
	if m == nil {
		return
	}
	m.ScanCursor.WithLabelValues(exchange).Set(float64(cursor))
	m.ScanProgress.WithLabelValues(exchange).Set(ratio)
}

// SetKnownPools updates the identity set size gauge.
func (m *Metrics) SetKnownPools(n int) {
	if m == nil {
		return
	}
	m.KnownPools.Set(float64(n))
}

// SetActiveTasks updates the running task gauge.
func (m *Metrics) SetActiveTasks(n int) {
	if m == nil {
		return
	}
	m.ActiveFactory.Set(float64(n))
}

// RecordStatusReport stamps the last status report time.
func (m *Metrics) RecordStatusReport(at time.Time) {
	if m == nil {
		return
	}
	m.LastStatusReport.Set(float64(at.Unix()))
}

// RecordRPCCall records JSON-RPC call latency.
func (m *Metrics) RecordRPCCall(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordRPCError records a failed JSON-RPC call.
func (m *Metrics) RecordRPCError(method, kind string) {
	if m == nil {
		return
	}
	m.RPCErrors.WithLabelValues(method, kind).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
