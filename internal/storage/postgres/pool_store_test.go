package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

func testPool(addr string, liquidity int64) *domain.PoolRecord {
	return &domain.PoolRecord{
		PoolAddress:      addr,
		Exchange:         "uniswap-v2",
		ChainID:          1,
		Token0:           domain.Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18},
		Token1:           domain.Token{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6},
		Fee:              3000,
		LiquidityUSD:     decimal.NewFromInt(liquidity),
		IsActive:         true,
		DataQualityScore: 1,
		CreatedBlock:     10008355,
		LastUpdatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPoolStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	p := testPool("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc", 1000000)

	inserted, err := store.Upsert(ctx, p)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := store.GetByAddress(ctx, p.PoolAddress)
	require.NoError(t, err)
	assert.Equal(t, p.Exchange, got.Exchange)
	assert.Equal(t, p.Token0, got.Token0)
	assert.Equal(t, p.Token1, got.Token1)
	assert.Equal(t, p.Fee, got.Fee)
	assert.True(t, p.LiquidityUSD.Equal(got.LiquidityUSD))
	assert.True(t, got.Volume24h.IsZero())
	assert.Equal(t, p.CreatedBlock, got.CreatedBlock)
	assert.True(t, p.LastUpdatedAt.Equal(got.LastUpdatedAt))
}

func TestPoolStore_UpsertExistingRefreshesLiquidityOnly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	p := testPool("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc", 1000000)
	_, err := store.Upsert(ctx, p)
	require.NoError(t, err)

	again := testPool(p.PoolAddress, 2500000)
	again.Exchange = "sushiswap"
	again.Token0.Symbol = "XXX"
	again.LastUpdatedAt = p.LastUpdatedAt.Add(time.Hour)

	inserted, err := store.Upsert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := store.GetByAddress(ctx, p.PoolAddress)
	require.NoError(t, err)
	assert.Equal(t, "uniswap-v2", got.Exchange, "identity fields are write-once")
	assert.Equal(t, "WETH", got.Token0.Symbol)
	assert.True(t, decimal.NewFromInt(2500000).Equal(got.LiquidityUSD))
	assert.True(t, again.LastUpdatedAt.Equal(got.LastUpdatedAt))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPoolStore_ConcurrentUpsertInsertsOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Upsert(ctx, testPool("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852", 500000))
			if err != nil {
				assert.ErrorIs(t, err, storage.ErrDuplicateKey)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
}

func TestPoolStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPoolStore(pool)
	_, err := store.GetByAddress(context.Background(), "0x0000000000000000000000000000000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPoolStore_UpsertInvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPoolStore(pool)
	_, err := store.Upsert(context.Background(), &domain.PoolRecord{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPoolStore_ListAddressesByChain(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	mainnet := testPool("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc", 1000000)
	other := testPool("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852", 1000000)
	other.ChainID = 56

	_, err := store.Upsert(ctx, mainnet)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, other)
	require.NoError(t, err)

	addrs, err := store.ListAddresses(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{mainnet.PoolAddress}, addrs)
}
