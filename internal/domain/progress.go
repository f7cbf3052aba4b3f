package domain

import "time"

// ScanProgress is the persisted cursor of one factory scan.
// Corresponds to scan_progress table in PostgreSQL, unique on (exchange_name, chain_id).
//
// The scanned window is (StartBlock, EndBlock]: CurrentBlock == StartBlock means no chunk
// has completed yet and CurrentBlock == EndBlock marks a completed window.
type ScanProgress struct {
	Exchange           string
	ChainID            int64
	StartBlock         uint64
	CurrentBlock       uint64 // last fully processed block
	EndBlock           uint64
	TotalEventsScanned int64
	PoolsFound         int64
	PoolsAdded         int64
	UpdatedAt          time.Time
}

// Completed reports whether the window has been fully scanned.
func (p *ScanProgress) Completed() bool {
	return p.CurrentBlock >= p.EndBlock
}

// Ratio returns the completed fraction of the window in [0, 1].
func (p *ScanProgress) Ratio() float64 {
	if p.EndBlock <= p.StartBlock {
		return 1
	}
	if p.CurrentBlock <= p.StartBlock {
		return 0
	}
	if p.CurrentBlock >= p.EndBlock {
		return 1
	}
	return float64(p.CurrentBlock-p.StartBlock) / float64(p.EndBlock-p.StartBlock)
}
