// Package config loads scanner settings from flags, environment variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dex-pool-scanner/internal/registry"
	"dex-pool-scanner/internal/scanner"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
	StoreMemory   = "memory"
)

// Config holds resolved scanner settings.
type Config struct {
	RPCEndpoint string

	LookbackDays    int
	FromGenesis     bool
	BlockTime       time.Duration
	MinLiquidityUSD decimal.Decimal

	ChunkSize        uint64
	Mode             scanner.Mode
	RateLimitBackoff time.Duration
	QueryTimeout     time.Duration
	ProgressEvery    int
	RPCRPS           float64
	IgnoreProgress   bool

	Factories    []string
	Disable      []string
	RegistryFile string
	Registry     *registry.File // nil unless RegistryFile is set

	Store         string
	PostgresDSN   string
	BoltPath      string
	ClickHouseDSN string

	StatusInterval time.Duration
	MetricsAddr    string
	LogLevel       zerolog.Level
}

// Load parses args (without the program name) on top of environment defaults.
// A .env file in the working directory is applied first when present.
// All validation problems are reported together.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()
	return parse(args, os.Getenv)
}

func parse(args []string, getenv func(string) string) (*Config, error) {
	env := &envReader{getenv: getenv}

	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	rpcEndpoint := fs.String("rpc-endpoint", getenv("RPC_ENDPOINT"), "JSON-RPC endpoint URL (http, https, ws, wss)")
	lookbackDays := fs.Int("lookback-days", env.integer("LOOKBACK_DAYS", 7), "Scan the last N days of blocks")
	fromGenesis := fs.Bool("from-genesis", env.boolean("FROM_GENESIS", false), "Scan from each factory's deploy block")
	blockTime := fs.Duration("block-time", env.duration("BLOCK_TIME", 12*time.Second), "Average block time")
	minLiquidity := fs.String("min-liquidity", env.str("MIN_LIQUIDITY_USD", "10000"), "Minimum estimated liquidity (USD)")
	chunkSize := fs.Int64("chunk-size", int64(env.integer("CHUNK_SIZE", int(scanner.DefaultChunkSize))), "Blocks per eth_getLogs query")
	factories := fs.String("factories", getenv("FACTORIES"), "Comma-separated exchanges to scan (default: all enabled)")
	disable := fs.String("disable", getenv("DISABLE_FACTORIES"), "Comma-separated exchanges to skip")
	registryFile := fs.String("registry", getenv("REGISTRY_FILE"), "YAML file with factories and known tokens")
	mode := fs.String("mode", env.str("SCAN_MODE", "fast"), "Timeout handling: fast or thorough")
	store := fs.String("store", env.str("STORE", StorePostgres), "Pool store: postgres, bolt or memory")
	postgresDSN := fs.String("postgres-dsn", getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	boltPath := fs.String("bolt-path", env.str("BOLT_PATH", "pools.db"), "bbolt database file")
	clickhouseDSN := fs.String("clickhouse-dsn", getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for liquidity snapshots (optional)")
	rps := fs.Float64("rpc-rps", env.float("RPC_RPS", 0), "Client-side RPC requests per second (0 = unlimited)")
	backoff := fs.Duration("rate-limit-backoff", env.duration("RATE_LIMIT_BACKOFF", scanner.DefaultRateLimitBackoff), "Wait before retrying a rate-limited range")
	queryTimeout := fs.Duration("query-timeout", env.duration("QUERY_TIMEOUT", 30*time.Second), "Deadline per eth_getLogs call")
	progressEvery := fs.Int("progress-every", env.integer("PROGRESS_EVERY", scanner.DefaultProgressEvery), "Chunks between progress writes")
	statusInterval := fs.Duration("status-interval", env.duration("STATUS_INTERVAL", 30*time.Second), "Status report interval")
	metricsAddr := fs.String("metrics-addr", env.str("METRICS_ADDR", ":9090"), "HTTP address for metrics, health and status")
	ignoreProgress := fs.Bool("ignore-progress", false, "Start every factory at its window start instead of the stored cursor")
	logLevel := fs.String("log-level", env.str("LOG_LEVEL", "info"), "Log level")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	errs := env.errs

	cfg := &Config{
		RPCEndpoint:      strings.TrimSpace(*rpcEndpoint),
		LookbackDays:     *lookbackDays,
		FromGenesis:      *fromGenesis,
		BlockTime:        *blockTime,
		RateLimitBackoff: *backoff,
		QueryTimeout:     *queryTimeout,
		ProgressEvery:    *progressEvery,
		RPCRPS:           *rps,
		IgnoreProgress:   *ignoreProgress,
		Factories:        splitList(*factories),
		Disable:          splitList(*disable),
		RegistryFile:     strings.TrimSpace(*registryFile),
		Store:            strings.ToLower(strings.TrimSpace(*store)),
		PostgresDSN:      *postgresDSN,
		BoltPath:         *boltPath,
		ClickHouseDSN:    *clickhouseDSN,
		StatusInterval:   *statusInterval,
		MetricsAddr:      *metricsAddr,
	}

	if cfg.RPCEndpoint == "" {
		errs = append(errs, "RPC_ENDPOINT (--rpc-endpoint) is required")
	} else if u, err := url.Parse(cfg.RPCEndpoint); err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("RPC_ENDPOINT must be a URL, got %q", cfg.RPCEndpoint))
	} else {
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, fmt.Sprintf("RPC_ENDPOINT scheme must be http, https, ws or wss, got %q", u.Scheme))
		}
	}

	if !cfg.FromGenesis && cfg.LookbackDays <= 0 {
		errs = append(errs, "LOOKBACK_DAYS must be > 0 (or set --from-genesis)")
	}
	if cfg.BlockTime <= 0 {
		errs = append(errs, "BLOCK_TIME must be > 0")
	}

	if v, err := decimal.NewFromString(strings.TrimSpace(*minLiquidity)); err != nil {
		errs = append(errs, fmt.Sprintf("MIN_LIQUIDITY_USD must be a number, got %q", *minLiquidity))
	} else if v.IsNegative() {
		errs = append(errs, "MIN_LIQUIDITY_USD must be >= 0")
	} else {
		cfg.MinLiquidityUSD = v
	}

	if *chunkSize <= 0 {
		errs = append(errs, fmt.Sprintf("CHUNK_SIZE must be > 0, got %d", *chunkSize))
	} else {
		cfg.ChunkSize = uint64(*chunkSize)
	}
	if m, err := scanner.ParseMode(strings.ToLower(strings.TrimSpace(*mode))); err != nil {
		errs = append(errs, fmt.Sprintf("SCAN_MODE: %v", err))
	} else {
		cfg.Mode = m
	}
	if cfg.RateLimitBackoff <= 0 {
		errs = append(errs, "RATE_LIMIT_BACKOFF must be > 0")
	}
	if cfg.QueryTimeout <= 0 {
		errs = append(errs, "QUERY_TIMEOUT must be > 0")
	}
	if cfg.ProgressEvery <= 0 {
		errs = append(errs, "PROGRESS_EVERY must be > 0")
	}
	if cfg.RPCRPS < 0 {
		errs = append(errs, "RPC_RPS must be >= 0")
	}
	if cfg.StatusInterval <= 0 {
		errs = append(errs, "STATUS_INTERVAL must be > 0")
	}

	switch cfg.Store {
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN (--postgres-dsn) is required for the postgres store (use --store memory or --store bolt otherwise)")
		}
	case StoreBolt:
		if cfg.BoltPath == "" {
			errs = append(errs, "BOLT_PATH must not be empty for the bolt store")
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE must be postgres, bolt or memory, got %q", cfg.Store))
	}

	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(*logLevel))); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: unknown level %q", *logLevel))
	} else {
		if lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		cfg.LogLevel = lvl
	}

	if cfg.RegistryFile != "" {
		f, err := registry.LoadFile(cfg.RegistryFile)
		if err != nil {
			errs = append(errs, fmt.Sprintf("REGISTRY_FILE: %v", err))
		} else {
			cfg.Registry = f
		}
	}

	if len(errs) > 0 {
		return nil, errors.New("config validation error:\n  - " + strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

// FactoryRegistry returns the factories to scan: the registry file's list (or the built-in one)
// narrowed by --factories and --disable.
func (c *Config) FactoryRegistry() (*registry.Registry, error) {
	reg := registry.Default()
	if c.Registry != nil {
		r, err := c.Registry.Registry(reg)
		if err != nil {
			return nil, fmt.Errorf("registry file: %w", err)
		}
		reg = r
	}
	return reg.WithSelection(c.Factories, c.Disable)
}

// TokenEntries returns the known tokens from the registry file, if any.
func (c *Config) TokenEntries() []registry.TokenEntry {
	if c.Registry == nil {
		return nil
	}
	return c.Registry.Tokens
}

// WindowConfig returns the scan window settings.
func (c *Config) WindowConfig() scanner.WindowConfig {
	mode := scanner.WindowLookback
	if c.FromGenesis {
		mode = scanner.WindowGenesis
	}
	return scanner.WindowConfig{
		Mode:         mode,
		LookbackDays: c.LookbackDays,
		BlockTime:    c.BlockTime,
	}
}

// TaskConfig returns per-task chunking settings.
func (c *Config) TaskConfig() scanner.TaskConfig {
	return scanner.TaskConfig{
		ChunkSize:        c.ChunkSize,
		Mode:             c.Mode,
		RateLimitBackoff: c.RateLimitBackoff,
		ProgressEvery:    c.ProgressEvery,
	}
}

// RedactedSummary describes the configuration without credentials.
func (c *Config) RedactedSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rpc=%s", redactURL(c.RPCEndpoint))
	if c.FromGenesis {
		b.WriteString(" window=genesis")
	} else {
		fmt.Fprintf(&b, " window=%dd", c.LookbackDays)
	}
	fmt.Fprintf(&b, " block_time=%s min_liquidity=%s chunk=%d mode=%s store=%s",
		c.BlockTime, c.MinLiquidityUSD.String(), c.ChunkSize, c.Mode, c.Store)
	switch c.Store {
	case StorePostgres:
		fmt.Fprintf(&b, " postgres=%s", redactURL(c.PostgresDSN))
	case StoreBolt:
		fmt.Fprintf(&b, " bolt=%s", c.BoltPath)
	}
	if c.ClickHouseDSN != "" {
		fmt.Fprintf(&b, " clickhouse=%s", redactURL(c.ClickHouseDSN))
	}
	if c.RPCRPS > 0 {
		fmt.Fprintf(&b, " rps=%s", strconv.FormatFloat(c.RPCRPS, 'f', -1, 64))
	}
	if c.IgnoreProgress {
		b.WriteString(" ignore_progress=true")
	}
	return b.String()
}

// redactURL hides userinfo, query strings and path-embedded API keys.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<redacted>"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	if u.RawQuery != "" {
		u.RawQuery = "***"
	}
	if u.Path != "" && u.Path != "/" {
		u.Path = "/***"
	}
	return u.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envReader reads typed defaults from the environment, remembering malformed values.
type envReader struct {
	getenv func(string) string
	errs   []string
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be a number, got %q", key, v))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be a duration like 5s, got %q", key, v))
		return def
	}
	return d
}
