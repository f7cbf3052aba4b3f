package memory

import (
	"context"
	"errors"
	"testing"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

func TestScanProgressStore_UpsertAndLoad(t *testing.T) {
	store := NewScanProgressStore()
	ctx := context.Background()

	p := &domain.ScanProgress{
		Exchange:     "uniswap-v3",
		ChainID:      1,
		StartBlock:   100,
		CurrentBlock: 150,
		EndBlock:     200,
		PoolsFound:   3,
	}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	p.CurrentBlock = 200
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert (2) failed: %v", err)
	}

	got, err := store.Load(ctx, "uniswap-v3", 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.CurrentBlock != 200 {
		t.Errorf("expected current 200, got %d", got.CurrentBlock)
	}
	if !got.Completed() {
		t.Error("expected completed progress")
	}

	history := store.History("uniswap-v3", 1)
	if len(history) != 2 || history[0].CurrentBlock != 150 {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestScanProgressStore_LoadNotFound(t *testing.T) {
	store := NewScanProgressStore()

	_, err := store.Load(context.Background(), "uniswap-v2", 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestScanProgressStore_KeyedByExchangeAndChain(t *testing.T) {
	store := NewScanProgressStore()
	ctx := context.Background()

	store.Upsert(ctx, &domain.ScanProgress{Exchange: "sushiswap", ChainID: 1, CurrentBlock: 10})
	store.Upsert(ctx, &domain.ScanProgress{Exchange: "sushiswap", ChainID: 137, CurrentBlock: 20})
	store.Upsert(ctx, &domain.ScanProgress{Exchange: "uniswap-v2", ChainID: 1, CurrentBlock: 30})

	rows, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for chain 1, got %d", len(rows))
	}
	if rows[0].Exchange != "sushiswap" || rows[1].Exchange != "uniswap-v2" {
		t.Errorf("rows not ordered by exchange: %s, %s", rows[0].Exchange, rows[1].Exchange)
	}
}

func TestScanProgressStore_InvalidInput(t *testing.T) {
	store := NewScanProgressStore()

	if err := store.Upsert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
