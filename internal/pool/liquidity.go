package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"tickflow/internal/fixedpoint"
	"tickflow/internal/position"
	"tickflow/internal/tick"
	"tickflow/internal/tickmath"
	"tickflow/internal/token"
)

// MintCallback must transfer at least owed0/owed1 of each token to the
// pool. The payload is passed through unmodified.
type MintCallback func(owed0, owed1 *uint256.Int, data []byte) error

// quoteLiquidityAmounts prices a liquidity delta over [tickLower,
// tickUpper] at the current price without touching state. Below the
// range only token0 is quoted, above it only token1, inside it both.
func (p *Pool) quoteLiquidityAmounts(tickLower, tickUpper int, liquidityDelta *big.Int) (*big.Int, *big.Int, error) {
	sqrtLower, err := tickmath.SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtUpper, err := tickmath.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}

	amount0 := new(big.Int)
	amount1 := new(big.Int)
	switch {
	case p.tickCurrent < tickLower:
		amount0, err = fixedpoint.Amount0DeltaSigned(sqrtLower, sqrtUpper, liquidityDelta)
	case p.tickCurrent < tickUpper:
		amount0, err = fixedpoint.Amount0DeltaSigned(p.sqrtPriceX96, sqrtUpper, liquidityDelta)
		if err == nil {
			amount1, err = fixedpoint.Amount1DeltaSigned(sqrtLower, p.sqrtPriceX96, liquidityDelta)
		}
	default:
		amount1, err = fixedpoint.Amount1DeltaSigned(sqrtLower, sqrtUpper, liquidityDelta)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// positionChange is a fully validated liquidity change awaiting commit.
// Every record it touches was staged against call-local copies, so
// dropping it without committing leaves the pool untouched.
type positionChange struct {
	key           position.Key
	delta         *big.Int
	inRange       bool
	liquidityNext *uint256.Int
	lower, upper  *tick.Staged
	pos           *position.Staged
}

// stagePositionChange validates a liquidity delta end to end: active
// liquidity, both boundary ticks, and the position record. Fee growth
// inside the range is derived from the staged boundary records so a
// first-time tick sees its own seeding.
func (p *Pool) stagePositionChange(owner common.Address, tickLower, tickUpper int, liquidityDelta *big.Int) (*positionChange, error) {
	ch := &positionChange{
		key:     position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper},
		delta:   liquidityDelta,
		inRange: p.tickCurrent >= tickLower && p.tickCurrent < tickUpper,
	}

	if liquidityDelta.Sign() != 0 && ch.inRange {
		var err error
		ch.liquidityNext, err = fixedpoint.AddDelta(p.liquidity, liquidityDelta)
		if err != nil {
			return nil, ErrLiquidityOverflow
		}
	}

	var inside0, inside1 *uint256.Int
	if liquidityDelta.Sign() != 0 {
		now := p.clock()
		tickCumulative, secondsPerLiquidityCumulativeX128, err := p.observations.ObserveSingle(
			now, 0, p.tickCurrent, p.observationIndex, p.liquidity, p.observationCardinality,
		)
		if err != nil {
			return nil, err
		}

		ch.lower, err = p.ticks.Stage(
			tickLower, p.tickCurrent, liquidityDelta,
			p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128,
			secondsPerLiquidityCumulativeX128, tickCumulative, now,
			false, p.maxLiquidityPerTick,
		)
		if err != nil {
			return nil, err
		}
		ch.upper, err = p.ticks.Stage(
			tickUpper, p.tickCurrent, liquidityDelta,
			p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128,
			secondsPerLiquidityCumulativeX128, tickCumulative, now,
			true, p.maxLiquidityPerTick,
		)
		if err != nil {
			return nil, err
		}

		inside0, inside1 = tick.GrowthInside(
			tickLower, tickUpper, p.tickCurrent,
			ch.lower.Info(), ch.upper.Info(),
			p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128,
		)
	} else {
		inside0, inside1 = p.ticks.FeeGrowthInside(
			tickLower, tickUpper, p.tickCurrent,
			p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128,
		)
	}

	var err error
	ch.pos, err = p.positions.Stage(ch.key, liquidityDelta, inside0, inside1)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// commitPositionChange installs a staged change: tick records, bitmap
// bits, the position ledger, and, when the range spans the current
// price, the active liquidity and one oracle observation.
func (p *Pool) commitPositionChange(ch *positionChange) {
	if ch.delta.Sign() != 0 {
		p.ticks.Commit(ch.lower)
		p.ticks.Commit(ch.upper)
		// Ticks are spacing-aligned (checkTicks), so FlipTick cannot fail.
		if ch.lower.Flipped() {
			_ = p.tickBitmap.FlipTick(ch.key.TickLower, p.cfg.TickSpacing)
		}
		if ch.upper.Flipped() {
			_ = p.tickBitmap.FlipTick(ch.key.TickUpper, p.cfg.TickSpacing)
		}
	}
	p.positions.Commit(ch.pos)

	if ch.delta.Sign() != 0 && ch.inRange {
		now := p.clock()
		p.observationIndex, p.observationCardinality = p.observations.Write(
			p.observationIndex, now, p.tickCurrent, p.liquidity,
			p.observationCardinality, p.observationCardinalityNext,
		)
		p.liquidity = ch.liquidityNext
	}
}

// Mint adds liquidity to a range. The settlement callback must pay the
// quoted amounts; the pool verifies its own balances moved before any
// state is committed.
func (p *Pool) Mint(recipient common.Address, tickLower, tickUpper int, amount *uint256.Int, data []byte, settle MintCallback) (*uint256.Int, *uint256.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if amount == nil || amount.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}

	liquidityDelta := amount.ToBig()
	amount0, amount1, err := p.quoteLiquidityAmounts(tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}
	owed0, _ := uint256.FromBig(amount0)
	owed1, _ := uint256.FromBig(amount1)

	// Validate the whole change before taking anyone's money; a failure
	// after the callback would keep the payment with nothing to show.
	change, err := p.stagePositionChange(recipient, tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}

	var balance0Before, balance1Before *uint256.Int
	if !owed0.IsZero() {
		if balance0Before, err = p.token0.BalanceOf(p.self); err != nil {
			return nil, nil, err
		}
	}
	if !owed1.IsZero() {
		if balance1Before, err = p.token1.BalanceOf(p.self); err != nil {
			return nil, nil, err
		}
	}

	if settle == nil {
		return nil, nil, ErrInsufficientPayment
	}
	if err := settle(new(uint256.Int).Set(owed0), new(uint256.Int).Set(owed1), data); err != nil {
		return nil, nil, err
	}

	if !owed0.IsZero() {
		if err := p.verifyPayment(p.token0, balance0Before, owed0); err != nil {
			return nil, nil, err
		}
	}
	if !owed1.IsZero() {
		if err := p.verifyPayment(p.token1, balance1Before, owed1); err != nil {
			return nil, nil, err
		}
	}

	p.commitPositionChange(change)

	p.logger.Debug("mint",
		zap.String("owner", recipient.Hex()),
		zap.Int("tick_lower", tickLower),
		zap.Int("tick_upper", tickUpper),
		zap.String("liquidity", amount.Dec()),
		zap.String("amount0", owed0.Dec()),
		zap.String("amount1", owed1.Dec()),
	)
	return owed0, owed1, nil
}

// Burn removes liquidity from a range. The withdrawn token amounts are
// credited to the position's owed balance for a later Collect; nothing
// is transferred here.
func (p *Pool) Burn(owner common.Address, tickLower, tickUpper int, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if amount == nil {
		return nil, nil, ErrZeroAmount
	}
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}

	liquidityDelta := new(big.Int).Neg(amount.ToBig())
	amount0, amount1, err := p.quoteLiquidityAmounts(tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}
	change, err := p.stagePositionChange(owner, tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}
	p.commitPositionChange(change)

	owed0, _ := uint256.FromBig(new(big.Int).Neg(amount0))
	owed1, _ := uint256.FromBig(new(big.Int).Neg(amount1))
	if !owed0.IsZero() || !owed1.IsZero() {
		p.positions.Credit(position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}, owed0, owed1)
	}

	p.logger.Debug("burn",
		zap.String("owner", owner.Hex()),
		zap.Int("tick_lower", tickLower),
		zap.Int("tick_upper", tickUpper),
		zap.String("liquidity", amount.Dec()),
		zap.String("amount0", owed0.Dec()),
		zap.String("amount1", owed1.Dec()),
	)
	return owed0, owed1, nil
}

// Collect pays out owed tokens from a position, clamped to what is
// actually owed.
func (p *Pool) Collect(owner common.Address, recipient common.Address, tickLower, tickUpper int, requested0, requested1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	paid0, paid1 := p.positions.Collect(key, requested0, requested1)

	if !paid0.IsZero() {
		if err := p.token0.Transfer(p.self, recipient, paid0); err != nil {
			p.positions.Credit(key, paid0, paid1)
			return nil, nil, err
		}
	}
	if !paid1.IsZero() {
		if err := p.token1.Transfer(p.self, recipient, paid1); err != nil {
			p.positions.Credit(key, new(uint256.Int), paid1)
			return nil, nil, err
		}
	}

	p.logger.Debug("collect",
		zap.String("owner", owner.Hex()),
		zap.String("amount0", paid0.Dec()),
		zap.String("amount1", paid1.Dec()),
	)
	return paid0, paid1, nil
}

// verifyPayment re-reads the pool's balance and fails unless it grew by
// at least owed.
func (p *Pool) verifyPayment(adapter token.Adapter, before, owed *uint256.Int) error {
	after, err := adapter.BalanceOf(p.self)
	if err != nil {
		return err
	}
	required := new(uint256.Int).Add(before, owed)
	if after.Lt(required) {
		return ErrInsufficientPayment
	}
	return nil
}
