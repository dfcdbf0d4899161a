// Package swap implements the single-step price move of the swap state
// machine: given the current price, a target price, the active liquidity
// and the amount still to be swapped, it computes how far price actually
// moves and what is paid in, paid out, and taken as fee.
package swap

import (
	"math/big"

	"github.com/holiman/uint256"

	"tickflow/internal/fixedpoint"
)

// FeeDenominator expresses fees in hundredths of a basis point.
const FeeDenominator = 1_000_000

// StepResult is the outcome of one swap step.
type StepResult struct {
	SqrtPriceNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeStep advances price from sqrtPriceCurrent toward sqrtPriceTarget.
// amountRemaining >= 0 means exact input (fee comes out of it), negative
// means exact output. When the step cannot reach the target with the
// available amount, the reachable price is derived from the amount
// instead, and for exact input the fee absorbs the truncation remainder.
func ComputeStep(
	sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity *uint256.Int,
	amountRemaining *big.Int,
	feePips uint32,
) (StepResult, error) {
	zeroForOne := sqrtPriceCurrentX96.Cmp(sqrtPriceTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0

	res := StepResult{
		SqrtPriceNextX96: new(uint256.Int),
		AmountIn:         new(uint256.Int),
		AmountOut:        new(uint256.Int),
		FeeAmount:        new(uint256.Int),
	}
	feeU := uint256.NewInt(uint64(feePips))
	feeComplement := uint256.NewInt(FeeDenominator - uint64(feePips))

	var err error
	if exactIn {
		remaining, overflow := uint256.FromBig(amountRemaining)
		if overflow {
			return res, fixedpoint.ErrAmountOverflow
		}
		remainingLessFee, err := fixedpoint.MulDiv(remaining, feeComplement, uint256.NewInt(FeeDenominator))
		if err != nil {
			return res, err
		}

		if zeroForOne {
			res.AmountIn, err = fixedpoint.Amount0Delta(sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, true)
		} else {
			res.AmountIn, err = fixedpoint.Amount1Delta(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, true)
		}
		if err != nil {
			return res, err
		}

		if remainingLessFee.Cmp(res.AmountIn) >= 0 {
			res.SqrtPriceNextX96.Set(sqrtPriceTargetX96)
		} else {
			res.SqrtPriceNextX96, err = fixedpoint.NextSqrtPriceFromInput(sqrtPriceCurrentX96, liquidity, remainingLessFee, zeroForOne)
			if err != nil {
				return res, err
			}
		}
	} else {
		remainingAbs, overflow := uint256.FromBig(new(big.Int).Neg(amountRemaining))
		if overflow {
			return res, fixedpoint.ErrAmountOverflow
		}

		if zeroForOne {
			res.AmountOut, err = fixedpoint.Amount1Delta(sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, false)
		} else {
			res.AmountOut, err = fixedpoint.Amount0Delta(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, false)
		}
		if err != nil {
			return res, err
		}

		if remainingAbs.Cmp(res.AmountOut) >= 0 {
			res.SqrtPriceNextX96.Set(sqrtPriceTargetX96)
		} else {
			res.SqrtPriceNextX96, err = fixedpoint.NextSqrtPriceFromOutput(sqrtPriceCurrentX96, liquidity, remainingAbs, zeroForOne)
			if err != nil {
				return res, err
			}
		}
	}

	reachedTarget := sqrtPriceTargetX96.Eq(res.SqrtPriceNextX96)

	// Settle both legs against the price actually reached.
	if zeroForOne {
		if !(reachedTarget && exactIn) {
			res.AmountIn, err = fixedpoint.Amount0Delta(res.SqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, true)
			if err != nil {
				return res, err
			}
		}
		if !(reachedTarget && !exactIn) {
			res.AmountOut, err = fixedpoint.Amount1Delta(res.SqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, false)
			if err != nil {
				return res, err
			}
		}
	} else {
		if !(reachedTarget && exactIn) {
			res.AmountIn, err = fixedpoint.Amount1Delta(sqrtPriceCurrentX96, res.SqrtPriceNextX96, liquidity, true)
			if err != nil {
				return res, err
			}
		}
		if !(reachedTarget && !exactIn) {
			res.AmountOut, err = fixedpoint.Amount0Delta(sqrtPriceCurrentX96, res.SqrtPriceNextX96, liquidity, false)
			if err != nil {
				return res, err
			}
		}
	}

	if !exactIn {
		remainingAbs, _ := uint256.FromBig(new(big.Int).Neg(amountRemaining))
		if res.AmountOut.Gt(remainingAbs) {
			res.AmountOut.Set(remainingAbs)
		}
	}

	if exactIn && !res.SqrtPriceNextX96.Eq(sqrtPriceTargetX96) {
		// The whole remaining input is consumed; whatever the curve did
		// not absorb is the fee.
		remaining, _ := uint256.FromBig(amountRemaining)
		res.FeeAmount = new(uint256.Int).Sub(remaining, res.AmountIn)
	} else {
		res.FeeAmount, err = fixedpoint.MulDivRoundingUp(res.AmountIn, feeU, feeComplement)
		if err != nil {
			return res, err
		}
	}

	return res, nil
}
