package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-pool-scanner/internal/domain"
)

func newTestTask(h *harness, w Window, cfg TaskConfig, resume *domain.ScanProgress) *Task {
	return NewTask(TaskOptions{
		Factory:   factoryV2,
		ChainID:   testChainID,
		Client:    h.client,
		Processor: newTestProcessor(h, NewPoolSet()),
		Progress:  h.progress,
		Shutdown:  h.shutdown,
		Config:    cfg,
		Window:    w,
		Resume:    resume,
	})
}

func TestTask_States(t *testing.T) {
	h := newHarness(t)
	task := newTestTask(h, Window{Start: 1000, End: 1300}, fastTaskConfig(), nil)
	assert.Equal(t, StateInitialized, task.State())
	assert.False(t, task.State().Terminal())

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, StateCompleted, task.State())
	assert.True(t, task.State().Terminal())
	assert.Equal(t, uint64(1300), task.Progress().CurrentBlock)
}

func TestTask_HeavyChunkDelay(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.client.AddPool(factoryV2, tokWETH, tokMeme, poolAddr(100+i), 3000, 1010)
	}

	cfg := fastTaskConfig()
	cfg.HeavyChunkEvents = 3
	cfg.HeavyChunkDelay = 150 * time.Millisecond

	task := newTestTask(h, Window{Start: 1000, End: 1200}, cfg, nil)
	started := time.Now()
	require.NoError(t, task.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(started), 150*time.Millisecond)

	cfg.HeavyChunkEvents = 10
	light := newTestTask(newHarness(t), Window{Start: 1000, End: 1200}, cfg, nil)
	started = time.Now()
	require.NoError(t, light.Run(context.Background()))
	assert.Less(t, time.Since(started), 150*time.Millisecond)
}

func TestTask_ProgressBatching(t *testing.T) {
	h := newHarness(t)
	cfg := fastTaskConfig()
	cfg.ProgressEvery = 4

	task := newTestTask(h, Window{Start: 1000, End: 2000}, cfg, nil)
	require.NoError(t, task.Run(context.Background()))

	history := h.progress.History(factoryV2.Exchange, testChainID)
	// flushes after chunks 4 and 8, then the final flush
	require.Len(t, history, 3)
	assert.Equal(t, uint64(1400), history[0].CurrentBlock)
	assert.Equal(t, uint64(1800), history[1].CurrentBlock)
	assert.Equal(t, uint64(2000), history[2].CurrentBlock)
}

func TestTask_CancelledContextFlushes(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := newTestTask(h, Window{Start: 1000, End: 2000}, fastTaskConfig(), nil)
	require.NoError(t, task.Run(ctx))

	assert.Equal(t, StateShutDown, task.State())
	p, err := h.progress.Load(context.Background(), factoryV2.Exchange, testChainID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), p.CurrentBlock)
}

func TestTask_ResumeClampsCursor(t *testing.T) {
	h := newHarness(t)

	below := newTestTask(h, Window{Start: 1000, End: 2000}, fastTaskConfig(), &domain.ScanProgress{CurrentBlock: 400})
	assert.Equal(t, uint64(1000), below.Progress().CurrentBlock)

	above := newTestTask(h, Window{Start: 1000, End: 2000}, fastTaskConfig(), &domain.ScanProgress{CurrentBlock: 9000, PoolsAdded: 4})
	assert.Equal(t, uint64(2000), above.Progress().CurrentBlock)
	assert.Equal(t, int64(4), above.Progress().PoolsAdded)
}
