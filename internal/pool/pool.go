// Package pool is the engine's top level: it owns the tick store, the
// bitmap index, the position ledger and the observation ring, and
// exposes the public operation surface. Every mutating operation runs
// under a single-writer lock; settlement is verified against balance
// deltas, never trusted.
package pool

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"tickflow/internal/bitmap"
	"tickflow/internal/oracle"
	"tickflow/internal/position"
	"tickflow/internal/tick"
	"tickflow/internal/tickmath"
	"tickflow/internal/token"
)

// Config carries the immutable construction parameters.
type Config struct {
	Token0       common.Address
	Token1       common.Address
	Fee          uint32 // hundredths of a basis point
	TickSpacing  int
	FeeAuthority common.Address
}

// Pool is one two-asset concentrated-liquidity market.
type Pool struct {
	cfg    Config
	self   common.Address
	token0 token.Adapter
	token1 token.Adapter
	clock  func() uint64
	logger *zap.Logger

	maxLiquidityPerTick *uint256.Int

	// Current price state.
	sqrtPriceX96               *uint256.Int
	tickCurrent                int
	observationIndex           uint16
	observationCardinality     uint16
	observationCardinalityNext uint16
	// Packed protocol fee denominators: token0 in the low nibble,
	// token1 in the high nibble.
	feeProtocol uint8
	unlocked    bool

	feeGrowthGlobal0X128 *uint256.Int
	feeGrowthGlobal1X128 *uint256.Int
	protocolFees0        *uint256.Int
	protocolFees1        *uint256.Int

	// Liquidity active at the current price.
	liquidity *uint256.Int

	ticks        *tick.Store
	tickBitmap   *bitmap.Bitmap
	positions    *position.Ledger
	observations *oracle.Ring
}

// New constructs an uninitialized pool. A nil clock defaults to
// wall-clock seconds, a nil logger to a no-op logger.
func New(cfg Config, self common.Address, token0, token1 token.Adapter, clock func() uint64, logger *zap.Logger) *Pool {
	if clock == nil {
		clock = func() uint64 { return uint64(time.Now().Unix()) }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		cfg:                 cfg,
		self:                self,
		token0:              token0,
		token1:              token1,
		clock:               clock,
		logger:              logger,
		maxLiquidityPerTick: tickmath.MaxLiquidityPerTick(cfg.TickSpacing),

		sqrtPriceX96:         new(uint256.Int),
		feeGrowthGlobal0X128: new(uint256.Int),
		feeGrowthGlobal1X128: new(uint256.Int),
		protocolFees0:        new(uint256.Int),
		protocolFees1:        new(uint256.Int),
		liquidity:            new(uint256.Int),

		ticks:        tick.NewStore(),
		tickBitmap:   bitmap.New(),
		positions:    position.NewLedger(),
		observations: oracle.NewRing(),
	}
}

// Initialize sets the starting price. The pool accepts no other
// operation before this and this exactly once.
func (p *Pool) Initialize(sqrtPriceX96 *uint256.Int) error {
	if !p.sqrtPriceX96.IsZero() {
		return ErrAlreadyInitialized
	}

	tickInitial, err := tickmath.TickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return err
	}

	cardinality, cardinalityNext := p.observations.Initialize(p.clock())

	p.sqrtPriceX96 = new(uint256.Int).Set(sqrtPriceX96)
	p.tickCurrent = tickInitial
	p.observationIndex = 0
	p.observationCardinality = cardinality
	p.observationCardinalityNext = cardinalityNext
	p.unlocked = true

	p.logger.Info("pool initialized",
		zap.String("sqrt_price_x96", sqrtPriceX96.Dec()),
		zap.Int("tick", tickInitial),
	)
	return nil
}

// lock acquires the single-writer lock. Initialization doubles as the
// first unlock, so an uninitialized pool rejects everything.
func (p *Pool) lock() error {
	if !p.unlocked {
		if p.sqrtPriceX96.IsZero() {
			return ErrNotInitialized
		}
		return ErrLocked
	}
	p.unlocked = false
	return nil
}

func (p *Pool) unlock() {
	p.unlocked = true
}

func (p *Pool) checkTicks(tickLower, tickUpper int) error {
	if tickLower >= tickUpper {
		return ErrTickRange
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return ErrTickRange
	}
	if tickLower%p.cfg.TickSpacing != 0 || tickUpper%p.cfg.TickSpacing != 0 {
		return ErrTickRange
	}
	return nil
}

// --- Read surface ---

// SqrtPriceX96 returns the current sqrt price.
func (p *Pool) SqrtPriceX96() *uint256.Int { return new(uint256.Int).Set(p.sqrtPriceX96) }

// TickCurrent returns the current tick.
func (p *Pool) TickCurrent() int { return p.tickCurrent }

// Liquidity returns the currently in-range liquidity.
func (p *Pool) Liquidity() *uint256.Int { return new(uint256.Int).Set(p.liquidity) }

// FeeGrowthGlobal returns both cumulative per-liquidity fee accumulators.
func (p *Pool) FeeGrowthGlobal() (*uint256.Int, *uint256.Int) {
	return new(uint256.Int).Set(p.feeGrowthGlobal0X128), new(uint256.Int).Set(p.feeGrowthGlobal1X128)
}

// ProtocolFees returns the accrued, uncollected protocol fees.
func (p *Pool) ProtocolFees() (*uint256.Int, *uint256.Int) {
	return new(uint256.Int).Set(p.protocolFees0), new(uint256.Int).Set(p.protocolFees1)
}

// FeeProtocol returns the packed protocol fee configuration.
func (p *Pool) FeeProtocol() uint8 { return p.feeProtocol }

// Position returns a copy of a position record.
func (p *Pool) Position(owner common.Address, tickLower, tickUpper int) (position.Info, bool) {
	return p.positions.Get(position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper})
}

// Tick returns a copy of an initialized tick record.
func (p *Pool) Tick(index int) (tick.Info, bool) {
	return p.ticks.Get(index)
}

// Config returns the immutable construction parameters.
func (p *Pool) Config() Config { return p.cfg }

// Address returns the pool's own settlement address.
func (p *Pool) Address() common.Address { return p.self }

// Observe returns the cumulative tick and seconds-per-liquidity values
// as of each requested number of seconds ago.
func (p *Pool) Observe(secondsAgos []uint64) ([]int64, []*uint256.Int, error) {
	if p.sqrtPriceX96.IsZero() {
		return nil, nil, ErrNotInitialized
	}
	return p.observations.Observe(
		p.clock(), secondsAgos,
		p.tickCurrent, p.observationIndex,
		p.liquidity, p.observationCardinality,
	)
}

// SnapshotCumulativesInside returns the cumulative tick, per-liquidity
// time, and seconds spent inside [tickLower, tickUpper]. Both boundary
// ticks must be initialized. Snapshots only compare against other
// snapshots taken while the range held liquidity.
func (p *Pool) SnapshotCumulativesInside(tickLower, tickUpper int) (int64, *uint256.Int, uint64, error) {
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return 0, nil, 0, err
	}

	lower, okLower := p.ticks.Get(tickLower)
	upper, okUpper := p.ticks.Get(tickUpper)
	if !okLower || !okUpper {
		return 0, nil, 0, ErrTickNotInitialized
	}

	switch {
	case p.tickCurrent < tickLower:
		return lower.TickCumulativeOutside - upper.TickCumulativeOutside,
			new(uint256.Int).Sub(lower.SecondsPerLiquidityOutsideX128, upper.SecondsPerLiquidityOutsideX128),
			lower.SecondsOutside - upper.SecondsOutside,
			nil
	case p.tickCurrent < tickUpper:
		now := p.clock()
		tickCumulative, secondsPerLiquidityCumulativeX128, err := p.observations.ObserveSingle(
			now, 0, p.tickCurrent, p.observationIndex, p.liquidity, p.observationCardinality,
		)
		if err != nil {
			return 0, nil, 0, err
		}
		spl := new(uint256.Int).Sub(secondsPerLiquidityCumulativeX128, lower.SecondsPerLiquidityOutsideX128)
		spl.Sub(spl, upper.SecondsPerLiquidityOutsideX128)
		return tickCumulative - lower.TickCumulativeOutside - upper.TickCumulativeOutside,
			spl,
			now - lower.SecondsOutside - upper.SecondsOutside,
			nil
	default:
		return upper.TickCumulativeOutside - lower.TickCumulativeOutside,
			new(uint256.Int).Sub(upper.SecondsPerLiquidityOutsideX128, lower.SecondsPerLiquidityOutsideX128),
			upper.SecondsOutside - lower.SecondsOutside,
			nil
	}
}

// IncreaseObservationCardinalityNext grows the observation ring's target
// capacity.
func (p *Pool) IncreaseObservationCardinalityNext(next uint16) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	old := p.observationCardinalityNext
	updated := p.observations.Grow(old, next)
	p.observationCardinalityNext = updated
	if updated != old {
		p.logger.Info("observation cardinality grown",
			zap.Uint16("old", old),
			zap.Uint16("new", updated),
		)
	}
	return nil
}
