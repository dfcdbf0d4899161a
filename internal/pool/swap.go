package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"tickflow/internal/fixedpoint"
	"tickflow/internal/swap"
	"tickflow/internal/tickmath"
)

// SwapCallback must transfer the positive of the two signed deltas to
// the pool; the negative delta has already been paid out when it runs.
type SwapCallback func(amount0, amount1 *big.Int, data []byte) error

// swapState is the call-local working state of the step loop. Nothing
// here touches the pool until the whole swap, including settlement, has
// validated.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *uint256.Int
	tick                     int
	feeGrowthGlobalX128      *uint256.Int
	protocolFee              *uint256.Int
	liquidity                *uint256.Int
	crossings                []crossing
}

// crossing records one initialized tick passed by the price, with the
// accumulator values as of the moment it was crossed.
type crossing struct {
	tick                              int
	feeGrowthGlobal0X128              *uint256.Int
	feeGrowthGlobal1X128              *uint256.Int
	secondsPerLiquidityCumulativeX128 *uint256.Int
	tickCumulative                    int64
	time                              uint64
}

// Swap exchanges one token for the other. amountSpecified > 0 is an
// exact input of the sold token, < 0 an exact output of the bought one.
// The price limit must lie strictly between the current price and the
// directional bound. Returned deltas are positive when owed to the pool.
func (p *Pool) Swap(
	recipient common.Address,
	zeroForOne bool,
	amountSpecified *big.Int,
	sqrtPriceLimitX96 *uint256.Int,
	data []byte,
	settle SwapCallback,
) (*big.Int, *big.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return nil, nil, ErrZeroAmount
	}
	if sqrtPriceLimitX96 == nil {
		return nil, nil, ErrPriceLimit
	}
	if zeroForOne {
		if !sqrtPriceLimitX96.Lt(p.sqrtPriceX96) || !sqrtPriceLimitX96.Gt(tickmath.MinSqrtRatio) {
			return nil, nil, ErrPriceLimit
		}
	} else {
		if !sqrtPriceLimitX96.Gt(p.sqrtPriceX96) || !sqrtPriceLimitX96.Lt(tickmath.MaxSqrtRatio) {
			return nil, nil, ErrPriceLimit
		}
	}

	exactInput := amountSpecified.Sign() > 0
	now := p.clock()
	tickStart := p.tickCurrent
	liquidityStart := new(uint256.Int).Set(p.liquidity)

	var feeProtocol uint8
	if zeroForOne {
		feeProtocol = p.feeProtocol % 16
	} else {
		feeProtocol = p.feeProtocol >> 4
	}

	state := swapState{
		amountSpecifiedRemaining: new(big.Int).Set(amountSpecified),
		amountCalculated:         new(big.Int),
		sqrtPriceX96:             new(uint256.Int).Set(p.sqrtPriceX96),
		tick:                     p.tickCurrent,
		protocolFee:              new(uint256.Int),
		liquidity:                new(uint256.Int).Set(p.liquidity),
	}
	if zeroForOne {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(p.feeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(p.feeGrowthGlobal1X128)
	}

	// Lazily computed oracle snapshot as of swap start, needed only if
	// an initialized tick is crossed.
	var (
		snapshotComputed bool
		snapshotTickCum  int64
		snapshotSPL      *uint256.Int
	)

	for state.amountSpecifiedRemaining.Sign() != 0 && !state.sqrtPriceX96.Eq(sqrtPriceLimitX96) {
		sqrtPriceStartX96 := new(uint256.Int).Set(state.sqrtPriceX96)

		tickNext, initialized := p.tickBitmap.NextInitializedTickWithinOneWord(state.tick, p.cfg.TickSpacing, zeroForOne)
		if tickNext < tickmath.MinTick {
			tickNext = tickmath.MinTick
		} else if tickNext > tickmath.MaxTick {
			tickNext = tickmath.MaxTick
		}

		sqrtPriceNextX96, err := tickmath.SqrtRatioAtTick(tickNext)
		if err != nil {
			return nil, nil, err
		}

		// The step may stop early at the caller's limit.
		target := sqrtPriceNextX96
		if zeroForOne {
			if sqrtPriceNextX96.Lt(sqrtPriceLimitX96) {
				target = sqrtPriceLimitX96
			}
		} else {
			if sqrtPriceNextX96.Gt(sqrtPriceLimitX96) {
				target = sqrtPriceLimitX96
			}
		}

		step, err := swap.ComputeStep(state.sqrtPriceX96, target, state.liquidity, state.amountSpecifiedRemaining, p.cfg.Fee)
		if err != nil {
			return nil, nil, err
		}
		state.sqrtPriceX96 = step.SqrtPriceNextX96

		inPlusFee := new(big.Int).Add(step.AmountIn.ToBig(), step.FeeAmount.ToBig())
		if exactInput {
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, inPlusFee)
			state.amountCalculated.Sub(state.amountCalculated, step.AmountOut.ToBig())
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, step.AmountOut.ToBig())
			state.amountCalculated.Add(state.amountCalculated, inPlusFee)
		}

		feeAmount := step.FeeAmount
		if feeProtocol > 0 {
			delta := new(uint256.Int).Div(feeAmount, uint256.NewInt(uint64(feeProtocol)))
			feeAmount = new(uint256.Int).Sub(feeAmount, delta)
			state.protocolFee.Add(state.protocolFee, delta)
		}
		if !state.liquidity.IsZero() {
			growth, err := fixedpoint.MulDiv(feeAmount, fixedpoint.Q128, state.liquidity)
			if err != nil {
				return nil, nil, err
			}
			state.feeGrowthGlobalX128.Add(state.feeGrowthGlobalX128, growth)
		}

		if state.sqrtPriceX96.Eq(sqrtPriceNextX96) {
			if initialized {
				if !snapshotComputed {
					snapshotTickCum, snapshotSPL, err = p.observations.ObserveSingle(
						now, 0, tickStart, p.observationIndex, liquidityStart, p.observationCardinality,
					)
					if err != nil {
						return nil, nil, err
					}
					snapshotComputed = true
				}

				cross := crossing{
					tick:                              tickNext,
					secondsPerLiquidityCumulativeX128: snapshotSPL,
					tickCumulative:                    snapshotTickCum,
					time:                              now,
				}
				if zeroForOne {
					cross.feeGrowthGlobal0X128 = new(uint256.Int).Set(state.feeGrowthGlobalX128)
					cross.feeGrowthGlobal1X128 = p.feeGrowthGlobal1X128
				} else {
					cross.feeGrowthGlobal0X128 = p.feeGrowthGlobal0X128
					cross.feeGrowthGlobal1X128 = new(uint256.Int).Set(state.feeGrowthGlobalX128)
				}
				state.crossings = append(state.crossings, cross)

				info, ok := p.ticks.Get(tickNext)
				liquidityNet := new(big.Int)
				if ok {
					liquidityNet.Set(info.LiquidityNet)
				}
				if zeroForOne {
					liquidityNet.Neg(liquidityNet)
				}
				state.liquidity, err = fixedpoint.AddDelta(state.liquidity, liquidityNet)
				if err != nil {
					return nil, nil, ErrLiquidityOverflow
				}
			}
			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if !state.sqrtPriceX96.Eq(sqrtPriceStartX96) {
			state.tick, err = tickmath.TickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	var amount0, amount1 *big.Int
	if zeroForOne == exactInput {
		amount0 = new(big.Int).Sub(amountSpecified, state.amountSpecifiedRemaining)
		amount1 = state.amountCalculated
	} else {
		amount0 = state.amountCalculated
		amount1 = new(big.Int).Sub(amountSpecified, state.amountSpecifiedRemaining)
	}

	if err := p.settleSwap(recipient, zeroForOne, amount0, amount1, data, settle); err != nil {
		return nil, nil, err
	}
	p.commitSwap(zeroForOne, now, tickStart, liquidityStart, &state)

	p.logger.Debug("swap",
		zap.Bool("zero_for_one", zeroForOne),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
		zap.Int("tick", p.tickCurrent),
		zap.Int("crossings", len(state.crossings)),
	)
	return amount0, amount1, nil
}

// settleSwap pays the output leg, invokes the callback to pull the
// input leg, and verifies the pool's input balance actually grew.
func (p *Pool) settleSwap(recipient common.Address, zeroForOne bool, amount0, amount1 *big.Int, data []byte, settle SwapCallback) error {
	tokenIn, tokenOut := p.token0, p.token1
	amountIn, amountOut := amount0, amount1
	if !zeroForOne {
		tokenIn, tokenOut = p.token1, p.token0
		amountIn, amountOut = amount1, amount0
	}

	if amountOut.Sign() < 0 {
		out, _ := uint256.FromBig(new(big.Int).Neg(amountOut))
		if err := tokenOut.Transfer(p.self, recipient, out); err != nil {
			return err
		}
	}

	balanceBefore, err := tokenIn.BalanceOf(p.self)
	if err != nil {
		return err
	}
	if settle == nil {
		return ErrInsufficientPayment
	}
	if err := settle(new(big.Int).Set(amount0), new(big.Int).Set(amount1), data); err != nil {
		return err
	}
	owed, _ := uint256.FromBig(amountIn)
	return p.verifyPayment(tokenIn, balanceBefore, owed)
}

// commitSwap applies the validated working state to the pool.
func (p *Pool) commitSwap(zeroForOne bool, now uint64, tickStart int, liquidityStart *uint256.Int, state *swapState) {
	for _, cross := range state.crossings {
		p.ticks.Cross(
			cross.tick,
			cross.feeGrowthGlobal0X128, cross.feeGrowthGlobal1X128,
			cross.secondsPerLiquidityCumulativeX128, cross.tickCumulative, cross.time,
		)
	}

	if state.tick != tickStart {
		p.observationIndex, p.observationCardinality = p.observations.Write(
			p.observationIndex, now, tickStart, liquidityStart,
			p.observationCardinality, p.observationCardinalityNext,
		)
		p.tickCurrent = state.tick
	}
	p.sqrtPriceX96 = state.sqrtPriceX96

	if !p.liquidity.Eq(state.liquidity) {
		p.liquidity = state.liquidity
	}

	if zeroForOne {
		p.feeGrowthGlobal0X128 = state.feeGrowthGlobalX128
		if !state.protocolFee.IsZero() {
			p.protocolFees0.Add(p.protocolFees0, state.protocolFee)
		}
	} else {
		p.feeGrowthGlobal1X128 = state.feeGrowthGlobalX128
		if !state.protocolFee.IsZero() {
			p.protocolFees1.Add(p.protocolFees1, state.protocolFee)
		}
	}
}
