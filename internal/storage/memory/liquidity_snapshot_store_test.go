package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/storage"
)

func TestLiquiditySnapshotStore_InsertBulkAndGetOrdered(t *testing.T) {
	store := NewLiquiditySnapshotStore()
	ctx := context.Background()

	pool := "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	err := store.InsertBulk(ctx, []*domain.LiquiditySnapshot{
		{PoolAddress: pool, LiquidityUSD: decimal.NewFromInt(2), BlockNumber: 2, ObservedAt: base.Add(time.Second)},
		{PoolAddress: pool, LiquidityUSD: decimal.NewFromInt(1), BlockNumber: 1, ObservedAt: base},
		{PoolAddress: "0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852", LiquidityUSD: decimal.NewFromInt(9), ObservedAt: base},
	})
	require.NoError(t, err)

	got, err := store.GetByPool(ctx, pool)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].BlockNumber)
	assert.Equal(t, uint64(2), got[1].BlockNumber)

	empty, err := store.GetByPool(ctx, "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLiquiditySnapshotStore_InvalidInputRejectsWholeBatch(t *testing.T) {
	store := NewLiquiditySnapshotStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.LiquiditySnapshot{
		{PoolAddress: "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"},
		nil,
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	got, err := store.GetByPool(ctx, "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	require.NoError(t, err)
	assert.Empty(t, got)
}
