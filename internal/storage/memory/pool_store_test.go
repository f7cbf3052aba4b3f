package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

func testPool(addr string, liquidity int64) *domain.PoolRecord {
	return &domain.PoolRecord{
		PoolAddress:   addr,
		Exchange:      "uniswap-v2",
		ChainID:       1,
		Token0:        domain.Token{Address: "0xA", Symbol: "WETH", Decimals: 18},
		Token1:        domain.Token{Address: "0xB", Symbol: "USDC", Decimals: 6},
		Fee:           3000,
		LiquidityUSD:  decimal.NewFromInt(liquidity),
		IsActive:      true,
		LastUpdatedAt: time.Unix(1704067200, 0),
	}
}

func TestPoolStore_UpsertInsertsThenUpdatesLiquidityOnly(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	inserted, err := store.Upsert(ctx, testPool("0xPool", 50000))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !inserted {
		t.Fatal("first upsert should insert")
	}

	second := testPool("0xPool", 75000)
	second.Exchange = "sushiswap"
	second.Token0.Symbol = "CHANGED"
	second.LastUpdatedAt = time.Unix(1704070800, 0)

	inserted, err = store.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("Upsert (2) failed: %v", err)
	}
	if inserted {
		t.Fatal("second upsert should update, not insert")
	}

	got, err := store.GetByAddress(ctx, "0xPool")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if !got.LiquidityUSD.Equal(decimal.NewFromInt(75000)) {
		t.Errorf("liquidity not refreshed: got %s", got.LiquidityUSD)
	}
	if !got.LastUpdatedAt.Equal(second.LastUpdatedAt) {
		t.Errorf("last_updated_at not refreshed: got %v", got.LastUpdatedAt)
	}
	if got.Exchange != "uniswap-v2" || got.Token0.Symbol != "WETH" {
		t.Errorf("identity fields must be write-once, got exchange=%s symbol=%s", got.Exchange, got.Token0.Symbol)
	}
}

func TestPoolStore_GetByAddressNotFound(t *testing.T) {
	store := NewPoolStore()

	_, err := store.GetByAddress(context.Background(), "0xMissing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPoolStore_InvalidInput(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil pool: expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.Upsert(ctx, &domain.PoolRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty address: expected ErrInvalidInput, got %v", err)
	}
}

func TestPoolStore_ListAddressesByChain(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	mainnet := testPool("0x1", 1)
	other := testPool("0x2", 1)
	other.ChainID = 8453

	store.Upsert(ctx, mainnet)
	store.Upsert(ctx, other)

	addrs, err := store.ListAddresses(ctx, 1)
	if err != nil {
		t.Fatalf("ListAddresses failed: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != "0x1" {
		t.Errorf("expected [0x1], got %v", addrs)
	}
}

func TestPoolStore_ConcurrentUpsertSingleInsert(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedCount := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inserted, err := store.Upsert(ctx, testPool("0xShared", int64(i)))
			if err != nil {
				t.Errorf("Upsert failed: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				insertedCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if insertedCount != 1 {
		t.Errorf("exactly one concurrent upsert should insert, got %d", insertedCount)
	}

	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 pool, got %d", n)
	}
	if store.Writes() != 50 {
		t.Errorf("expected 50 writes, got %d", store.Writes())
	}
}

func TestPoolStore_ReturnsCopies(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	p := testPool("0xPool", 10)
	store.Upsert(ctx, p)
	p.Exchange = "mutated"

	got, _ := store.GetByAddress(ctx, "0xPool")
	got.Exchange = "mutated-again"

	again, _ := store.GetByAddress(ctx, "0xPool")
	if again.Exchange != "uniswap-v2" {
		t.Errorf("store leaked internal state: %s", again.Exchange)
	}
}

func BenchmarkPoolStore_Upsert(b *testing.B) {
	store := NewPoolStore()
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		store.Upsert(ctx, testPool(fmt.Sprintf("0x%d", i%1000), int64(i)))
	}
}
