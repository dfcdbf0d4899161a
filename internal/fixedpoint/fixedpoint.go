package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Q64.96 is the wire format for sqrt prices, Q128.128 for per-liquidity
// fee growth. Full-width intermediates go through math/big because a
// 256x256 product does not fit a uint256.
var (
	Q96  = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	MaxUint128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
	MaxUint160 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 160), 1)

	ErrDivisionByZero   = errors.New("fixedpoint: division by zero")
	ErrMulDivOverflow   = errors.New("fixedpoint: muldiv result exceeds 256 bits")
	ErrPriceZero        = errors.New("fixedpoint: sqrt price must be positive")
	ErrLiquidityZero    = errors.New("fixedpoint: liquidity must be positive")
	ErrPriceUnderflow   = errors.New("fixedpoint: amount exceeds available reserves at this price")
	ErrLiquidityAdd     = errors.New("fixedpoint: liquidity delta overflows uint128")
	ErrAmountOverflow   = errors.New("fixedpoint: amount exceeds uint256")
)

var one = uint256.NewInt(1)

// MulDiv returns floor(a*b/denom) computed with a 512-bit intermediate.
func MulDiv(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	product.Div(product, denom.ToBig())
	out, overflow := uint256.FromBig(product)
	if overflow {
		return nil, ErrMulDivOverflow
	}
	return out, nil
}

// MulDivRoundingUp returns ceil(a*b/denom).
func MulDivRoundingUp(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	quo, rem := new(big.Int).QuoRem(product, denom.ToBig(), new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	out, overflow := uint256.FromBig(quo)
	if overflow {
		return nil, ErrMulDivOverflow
	}
	return out, nil
}

// DivRoundingUp returns ceil(a/b). b must be nonzero.
func DivRoundingUp(a, b *uint256.Int) *uint256.Int {
	quo := new(uint256.Int)
	rem := new(uint256.Int)
	quo.DivMod(a, b, rem)
	if !rem.IsZero() {
		quo.Add(quo, one)
	}
	return quo
}

// AddDelta applies a signed liquidity delta to an unsigned uint128 amount.
func AddDelta(x *uint256.Int, y *big.Int) (*uint256.Int, error) {
	if y.Sign() >= 0 {
		delta, overflow := uint256.FromBig(y)
		if overflow {
			return nil, ErrLiquidityAdd
		}
		z := new(uint256.Int).Add(x, delta)
		if z.Cmp(MaxUint128) > 0 || z.Lt(x) {
			return nil, ErrLiquidityAdd
		}
		return z, nil
	}
	delta, overflow := uint256.FromBig(new(big.Int).Neg(y))
	if overflow {
		return nil, ErrLiquidityAdd
	}
	if x.Lt(delta) {
		return nil, ErrLiquidityAdd
	}
	return new(uint256.Int).Sub(x, delta), nil
}

// Amount0Delta returns the token0 amount between two sqrt prices for the
// given liquidity: liquidity << 96 * (sqrtB - sqrtA) / (sqrtB * sqrtA).
func Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return nil, ErrPriceZero
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		term, err := MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		if err != nil {
			return nil, err
		}
		return DivRoundingUp(term, sqrtRatioAX96), nil
	}
	term, err := MulDiv(numerator1, numerator2, sqrtRatioBX96)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(term, sqrtRatioAX96), nil
}

// Amount1Delta returns the token1 amount between two sqrt prices:
// liquidity * (sqrtB - sqrtA) / 2^96.
func Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}

// Amount0DeltaSigned quotes token0 for a signed liquidity delta. Removing
// liquidity rounds down, adding rounds up, so the pool never under-collects.
func Amount0DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	if liquidity.Sign() < 0 {
		mag, overflow := uint256.FromBig(new(big.Int).Neg(liquidity))
		if overflow {
			return nil, ErrAmountOverflow
		}
		amount, err := Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, mag, false)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Neg(amount.ToBig()), nil
	}
	mag, overflow := uint256.FromBig(liquidity)
	if overflow {
		return nil, ErrAmountOverflow
	}
	amount, err := Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, mag, true)
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

// Amount1DeltaSigned quotes token1 for a signed liquidity delta.
func Amount1DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	if liquidity.Sign() < 0 {
		mag, overflow := uint256.FromBig(new(big.Int).Neg(liquidity))
		if overflow {
			return nil, ErrAmountOverflow
		}
		amount, err := Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, mag, false)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Neg(amount.ToBig()), nil
	}
	mag, overflow := uint256.FromBig(liquidity)
	if overflow {
		return nil, ErrAmountOverflow
	}
	amount, err := Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, mag, true)
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

// NextSqrtPriceFromAmount0 returns the price after adding (or removing)
// amount of token0. Always rounds up: for an exact input the price moves
// at least as far as the true quotient, for an exact output no further.
func NextSqrtPriceFromAmount0(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtPX96), nil
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount.ToBig(), sqrtPX96.ToBig())

	if add {
		// Prefer the precise form liquidity<<96 * sqrtP / (liquidity<<96 + amount*sqrtP)
		// when the denominator fits; otherwise fall back to the equivalent
		// liquidity<<96 / (liquidity<<96/sqrtP + amount).
		denominator := new(big.Int).Add(numerator1.ToBig(), product)
		if denomU, overflow := uint256.FromBig(denominator); !overflow {
			return MulDivRoundingUp(numerator1, sqrtPX96, denomU)
		}
		denom := new(uint256.Int).Div(numerator1, sqrtPX96)
		denom.Add(denom, amount)
		return DivRoundingUp(numerator1, denom), nil
	}

	productU, overflow := uint256.FromBig(product)
	if overflow || numerator1.Cmp(productU) <= 0 {
		return nil, ErrPriceUnderflow
	}
	denominator := new(uint256.Int).Sub(numerator1, productU)
	return MulDivRoundingUp(numerator1, sqrtPX96, denominator)
}

// NextSqrtPriceFromAmount1 returns the price after adding (or removing)
// amount of token1. Always rounds down.
func NextSqrtPriceFromAmount1(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if add {
		quotient, err := MulDiv(amount, Q96, liquidity)
		if err != nil {
			return nil, err
		}
		next := new(uint256.Int).Add(sqrtPX96, quotient)
		if next.Lt(sqrtPX96) {
			return nil, ErrAmountOverflow
		}
		return next, nil
	}
	quotient, err := MulDivRoundingUp(amount, Q96, liquidity)
	if err != nil {
		return nil, err
	}
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceUnderflow
	}
	return new(uint256.Int).Sub(sqrtPX96, quotient), nil
}

// NextSqrtPriceFromInput returns the price after an exact input of the
// appropriate token for the swap direction.
func NextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return NextSqrtPriceFromAmount0(sqrtPX96, liquidity, amountIn, true)
	}
	return NextSqrtPriceFromAmount1(sqrtPX96, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after an exact output of the
// appropriate token for the swap direction.
func NextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return NextSqrtPriceFromAmount1(sqrtPX96, liquidity, amountOut, false)
	}
	return NextSqrtPriceFromAmount0(sqrtPX96, liquidity, amountOut, false)
}
