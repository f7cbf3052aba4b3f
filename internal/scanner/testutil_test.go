package scanner

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dex-pool-scanner/internal/chain/stub"
	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/liquidity"
	"dex-pool-scanner/internal/registry"
	"dex-pool-scanner/internal/storage/memory"
)

const (
	testChainID = int64(1)
	testHeight  = uint64(2000)
	testDeploy  = uint64(1001) // window (1000, 2000]
)

var (
	tokWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	tokMeme = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokDoge = common.HexToAddress("0x1000000000000000000000000000000000000002")

	minLiquidity = decimal.NewFromInt(10_000)
)

func poolAddr(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0xAA0000 + n)))
}

func testFactory(name string, kind registry.Kind, addr string) registry.Factory {
	f := registry.Factory{
		Exchange:    name,
		Address:     common.HexToAddress(addr),
		Kind:        kind,
		DeployBlock: testDeploy,
		Enabled:     true,
	}
	if kind == registry.KindV2 {
		f.FixedFee = registry.DefaultV2Fee
	}
	return f
}

var (
	factoryV2 = testFactory("uniswap-v2", registry.KindV2, "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	factoryV3 = testFactory("uniswap-v3", registry.KindV3, "0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

func fastTaskConfig() TaskConfig {
	return TaskConfig{
		ChunkSize:        100,
		RateLimitBackoff: time.Millisecond,
		ChunkDelay:       time.Microsecond,
		HeavyChunkDelay:  time.Microsecond,
		ProgressEvery:    1,
	}
}

type harness struct {
	client    *stub.Client
	pools     *memory.PoolStore
	progress  *memory.ScanProgressStore
	snapshots *memory.LiquiditySnapshotStore
	table     *liquidity.StaticTable
	shutdown  *Shutdown
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		client:    stub.NewClient(testHeight, testChainID),
		pools:     memory.NewPoolStore(),
		progress:  memory.NewScanProgressStore(),
		snapshots: memory.NewLiquiditySnapshotStore(),
		table:     liquidity.DefaultTable(),
		shutdown:  NewShutdown(),
	}
}

func (h *harness) options(factories ...registry.Factory) Options {
	return Options{
		Client:          h.client,
		Factories:       factories,
		Pools:           h.pools,
		Progress:        h.progress,
		Snapshots:       h.snapshots,
		Estimator:       h.table,
		Hints:           h.table,
		MinLiquidityUSD: minLiquidity,
		Window:          WindowConfig{Mode: WindowGenesis},
		Task:            fastTaskConfig(),
		Shutdown:        h.shutdown,
	}
}

func (h *harness) run(t *testing.T, opts Options) (*Report, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return NewCoordinator(opts).Run(ctx)
}

func (h *harness) progressOf(t *testing.T, exchange string) *domain.ScanProgress {
	t.Helper()
	p, err := h.progress.Load(context.Background(), exchange, testChainID)
	require.NoError(t, err)
	return p
}

func (h *harness) poolCount(t *testing.T) int {
	t.Helper()
	n, err := h.pools.Count(context.Background())
	require.NoError(t, err)
	return n
}

func counters(r *Report, exchange string) Counters {
	for _, f := range r.Factories {
		if f.Exchange == exchange {
			return f.Counters
		}
	}
	return Counters{}
}

func stateOf(r *Report, exchange string) State {
	for _, f := range r.Factories {
		if f.Exchange == exchange {
			return f.State
		}
	}
	return StateInitialized
}

// unavailablePoolStore fails like a lost database connection.
type unavailablePoolStore struct {
	*memory.PoolStore
	failList   bool
	failUpsert bool
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func (s *unavailablePoolStore) Upsert(ctx context.Context, p *domain.PoolRecord) (bool, error) {
	if s.failUpsert {
		return false, errConnRefused
	}
	return s.PoolStore.Upsert(ctx, p)
}

func (s *unavailablePoolStore) ListAddresses(ctx context.Context, chainID int64) ([]string, error) {
	if s.failList {
		return nil, errConnRefused
	}
	return s.PoolStore.ListAddresses(ctx, chainID)
}
