package scanner

import (
	"fmt"
	"time"

	"dex-pool-scanner/internal/registry"
)

// WindowMode selects how the scan window is computed.
type WindowMode int

const (
	// WindowLookback scans the last LookbackDays of blocks.
	WindowLookback WindowMode = iota
	// WindowGenesis scans from each factory's deploy block.
	WindowGenesis
)

// WindowConfig configures window computation.
type WindowConfig struct {
	Mode         WindowMode
	LookbackDays int
	BlockTime    time.Duration // average block interval
}

// Window is the block range (Start, End]. Start is exclusive.
type Window struct {
	Start uint64
	End   uint64
}

// Blocks returns the number of blocks in the window.
func (w Window) Blocks() uint64 {
	if w.End <= w.Start {
		return 0
	}
	return w.End - w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("(%d,%d]", w.Start, w.End)
}

// LookbackBlocks converts the lookback period into a block count.
func (c WindowConfig) LookbackBlocks() uint64 {
	if c.LookbackDays <= 0 || c.BlockTime <= 0 {
		return 0
	}
	period := time.Duration(c.LookbackDays) * 24 * time.Hour
	return uint64(period / c.BlockTime)
}

// ComputeWindow returns the window of a factory at the given chain height.
func ComputeWindow(cfg WindowConfig, height uint64, f registry.Factory) Window {
	w := Window{End: height}

	switch cfg.Mode {
	case WindowGenesis:
		if f.DeployBlock > 0 {
			w.Start = f.DeployBlock - 1
		}
	default:
		if blocks := cfg.LookbackBlocks(); blocks < height {
			w.Start = height - blocks
		}
	}

	if w.Start > w.End {
		w.Start = w.End
	}
	return w
}

// chunkEnd returns the end of the chunk starting after cursor.
func chunkEnd(cursor, size, end uint64) uint64 {
	if end-cursor <= size {
		return end
	}
	return cursor + size
}

// splitRange divides (from, to] into at most parts contiguous sub-ranges.
func splitRange(from, to uint64, parts int) []Window {
	if parts < 2 || to <= from {
		return []Window{{Start: from, End: to}}
	}
	span := to - from
	size := (span + uint64(parts) - 1) / uint64(parts)
	if size == 0 {
		size = 1
	}

	var out []Window
	for s := from; s < to; s += size {
		e := s + size
		if e > to {
			e = to
		}
		out = append(out, Window{Start: s, End: e})
	}
	return out
}
