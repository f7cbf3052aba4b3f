package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dex-pool-scanner/internal/chain"
	"dex-pool-scanner/internal/domain"
	"dex-pool-scanner/internal/liquidity"
	"dex-pool-scanner/internal/observability"
	"dex-pool-scanner/internal/registry"
	"dex-pool-scanner/internal/storage"
)

// Outcome classifies one processed creation event.
type Outcome int

const (
	OutcomeAlreadyExists Outcome = iota
	OutcomeLowLiquidity
	OutcomeAdded
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyExists:
		return "already_exists"
	case OutcomeLowLiquidity:
		return "low_liquidity"
	case OutcomeAdded:
		return "added"
	default:
		return "error"
	}
}

// TokenResolver reads token metadata from the chain.
type TokenResolver interface {
	TokenInfo(ctx context.Context, token common.Address) (chain.TokenInfo, error)
}

// TokenHints answers metadata for well-known tokens without a chain call.
type TokenHints interface {
	Lookup(token common.Address) (liquidity.KnownToken, bool)
}

// Processor turns decoded creation events into accepted pool records.
// It is shared by all tasks of a run.
type Processor struct {
	pools        storage.PoolStore
	snapshots    storage.LiquiditySnapshotStore
	set          *PoolSet
	estimator    liquidity.Estimator
	tokens       TokenResolver
	hints        TokenHints
	minLiquidity decimal.Decimal
	chainID      int64
	metrics      *observability.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

// ProcessorOptions contains configuration for creating a Processor.
type ProcessorOptions struct {
	Pools           storage.PoolStore
	Snapshots       storage.LiquiditySnapshotStore // optional
	PoolSet         *PoolSet
	Estimator       liquidity.Estimator
	Tokens          TokenResolver // optional
	Hints           TokenHints    // optional
	MinLiquidityUSD decimal.Decimal
	ChainID         int64
	Metrics         *observability.Metrics
	Logger          *zerolog.Logger
	Now             func() time.Time
}

// NewProcessor creates an event processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "processor").Logger()
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	set := opts.PoolSet
	if set == nil {
		set = NewPoolSet()
	}

	return &Processor{
		pools:        opts.Pools,
		snapshots:    opts.Snapshots,
		set:          set,
		estimator:    opts.Estimator,
		tokens:       opts.Tokens,
		hints:        opts.Hints,
		minLiquidity: opts.MinLiquidityUSD,
		chainID:      opts.ChainID,
		metrics:      opts.Metrics,
		logger:       logger,
		now:          now,
	}
}

// Process classifies one event and persists it when accepted.
// The only returned error is a pool store failure, which wraps storage.ErrStoreUnavailable.
func (p *Processor) Process(ctx context.Context, f registry.Factory, ev *registry.CreatedPool, stats *FactoryStats) (Outcome, error) {
	if p.set.Contains(ev.Pool) {
		stats.alreadyExists.Add(1)
		p.metrics.RecordAlreadyExists(f.Exchange)
		return OutcomeAlreadyExists, nil
	}

	stats.poolsFound.Add(1)
	p.metrics.RecordPoolFound(f.Exchange)

	estimate, err := p.estimator.Estimate(ctx, ev.Token0, ev.Token1)
	if err != nil {
		stats.errors.Add(1)
		p.metrics.RecordScanError(f.Exchange, "estimate")
		p.logger.Warn().Err(err).Str("pool", ev.Pool.Hex()).Msg("liquidity estimate failed")
		return OutcomeError, nil
	}

	if estimate.LessThan(p.minLiquidity) {
		stats.lowLiquidity.Add(1)
		p.metrics.RecordLowLiquidity(f.Exchange)
		p.logger.Debug().
			Str("exchange", f.Exchange).
			Str("pool", ev.Pool.Hex()).
			Str("liquidity_usd", estimate.String()).
			Msg("pool below liquidity threshold")
		return OutcomeLowLiquidity, nil
	}

	token0, known0, resolved0 := p.resolveToken(ctx, ev.Token0)
	token1, known1, resolved1 := p.resolveToken(ctx, ev.Token1)

	now := p.now()
	rec := &domain.PoolRecord{
		PoolAddress:      ev.Pool.Hex(),
		Exchange:         f.Exchange,
		ChainID:          p.chainID,
		Token0:           token0,
		Token1:           token1,
		Fee:              ev.Fee,
		LiquidityUSD:     estimate,
		Volume24h:        decimal.Zero,
		IsActive:         true,
		DataQualityScore: QualityScore(known0, known1, resolved0 && resolved1),
		CreatedBlock:     ev.BlockNumber,
		LastUpdatedAt:    now,
	}

	inserted, err := p.pools.Upsert(ctx, rec)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			p.set.Add(ev.Pool)
			stats.alreadyExists.Add(1)
			p.metrics.RecordAlreadyExists(f.Exchange)
			return OutcomeAlreadyExists, nil
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			stats.errors.Add(1)
			p.metrics.RecordScanError(f.Exchange, "invalid_record")
			p.logger.Warn().Err(err).Str("pool", rec.PoolAddress).Msg("rejected pool record")
			return OutcomeError, nil
		}
		return OutcomeError, storage.Unavailable(fmt.Errorf("upsert pool %s: %w", rec.PoolAddress, err))
	}

	p.set.Add(ev.Pool)
	p.metrics.SetKnownPools(p.set.Len())

	if !inserted {
		// another task persisted the pool between the set check and the upsert
		stats.alreadyExists.Add(1)
		p.metrics.RecordAlreadyExists(f.Exchange)
		return OutcomeAlreadyExists, nil
	}

	stats.poolsAdded.Add(1)
	stats.addLiquidity(estimate)
	p.metrics.RecordPoolAdded(f.Exchange, estimate.InexactFloat64())

	p.logger.Info().
		Str("exchange", f.Exchange).
		Str("pool", rec.PoolAddress).
		Str("pair", pairLabel(rec)).
		Uint32("fee", rec.Fee).
		Str("liquidity_usd", estimate.StringFixed(2)).
		Uint64("block", ev.BlockNumber).
		Msg("pool added")

	p.recordSnapshot(ctx, rec)
	return OutcomeAdded, nil
}

// resolveToken fills token metadata from the hint table, then the chain.
func (p *Processor) resolveToken(ctx context.Context, addr common.Address) (tok domain.Token, known, resolved bool) {
	tok = domain.Token{Address: addr.Hex()}

	if p.hints != nil {
		if k, ok := p.hints.Lookup(addr); ok {
			tok.Symbol = k.Symbol
			tok.Decimals = k.Decimals
			return tok, true, true
		}
	}

	if p.tokens == nil {
		return tok, false, false
	}

	info, err := p.tokens.TokenInfo(ctx, addr)
	if err != nil {
		p.logger.Debug().Err(err).Str("token", tok.Address).Msg("token metadata unresolved")
		return tok, false, false
	}
	tok.Symbol = info.Symbol
	tok.Decimals = info.Decimals
	return tok, false, true
}

func (p *Processor) recordSnapshot(ctx context.Context, rec *domain.PoolRecord) {
	if p.snapshots == nil {
		return
	}
	snap := &domain.LiquiditySnapshot{
		PoolAddress:  rec.PoolAddress,
		Exchange:     rec.Exchange,
		ChainID:      rec.ChainID,
		LiquidityUSD: rec.LiquidityUSD,
		BlockNumber:  rec.CreatedBlock,
		ObservedAt:   rec.LastUpdatedAt,
	}
	if err := p.snapshots.InsertBulk(ctx, []*domain.LiquiditySnapshot{snap}); err != nil {
		p.logger.Warn().Err(err).Str("pool", rec.PoolAddress).Msg("liquidity snapshot not recorded")
	}
}

// QualityScore rates how much of a pool's metadata is trustworthy.
// Pools whose tokens are both in the hint table score 1.0, one known 0.75, none 0.5;
// unresolved on-chain metadata costs another 0.25.
func QualityScore(known0, known1, resolved bool) float64 {
	score := 0.5
	switch {
	case known0 && known1:
		score = 1.0
	case known0 || known1:
		score = 0.75
	}
	if !resolved {
		score -= 0.25
	}
	if score < 0 {
		return 0
	}
	return score
}

func pairLabel(rec *domain.PoolRecord) string {
	s0, s1 := rec.Token0.Symbol, rec.Token1.Symbol
	if s0 == "" {
		s0 = "?"
	}
	if s1 == "" {
		s1 = "?"
	}
	return s0 + "/" + s1
}
