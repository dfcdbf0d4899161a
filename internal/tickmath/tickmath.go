package tickmath

import (
	"errors"

	"github.com/holiman/uint256"

	"tickflow/internal/fixedpoint"
)

const (
	// MinTick and MaxTick bound the usable price grid: price = 1.0001^tick.
	MinTick = -887272
	MaxTick = 887272
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick), MaxSqrtRatio is
	// SqrtRatioAtTick(MaxTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	ErrTickOutOfBounds      = errors.New("tickmath: tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("tickmath: sqrt price out of bounds")

	maxUint256 = new(uint256.Int).Not(new(uint256.Int))
	one        = uint256.NewInt(1)
	lowMask    = uint256.NewInt(0xffffffff)

	// ratioScalars[i] = sqrt(1.0001)^(-2^i) in UQ128.128, except index 1
	// which is the UQ128.128 one used when the low bit is clear.
	ratioScalars = [21]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0x100000000000000000000000000000000"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96 as a Q64.96 value.
func SqrtRatioAtTick(tick int) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfBounds
	}

	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(ratioScalars[0])
	} else {
		ratio.Set(ratioScalars[1])
	}
	for i := 1; i < 20; i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, ratioScalars[i+1])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Round the Q128.128 intermediate up to Q64.96.
	rem := new(uint256.Int).And(ratio, lowMask)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.Add(ratio, one)
	}
	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose ratio is at most
// sqrtPriceX96. The input must lie in [MinSqrtRatio, MaxSqrtRatio).
func TickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int, error) {
	if sqrtPriceX96.Lt(MinSqrtRatio) || !sqrtPriceX96.Lt(MaxSqrtRatio) {
		return 0, ErrSqrtPriceOutOfBounds
	}

	low, high := MinTick, MaxTick
	tick := MinTick
	for low <= high {
		mid := (low + high) / 2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}

// MinUsableTick returns the lowest tick that is a multiple of spacing.
func MinUsableTick(spacing int) int {
	return (MinTick / spacing) * spacing
}

// MaxUsableTick returns the highest tick that is a multiple of spacing.
func MaxUsableTick(spacing int) int {
	return (MaxTick / spacing) * spacing
}

// MaxLiquidityPerTick returns the liquidity cap per tick so that the sum
// over every usable tick cannot overflow uint128.
func MaxLiquidityPerTick(spacing int) *uint256.Int {
	numTicks := uint64((MaxUsableTick(spacing)-MinUsableTick(spacing))/spacing + 1)
	return new(uint256.Int).Div(fixedpoint.MaxUint128, uint256.NewInt(numTicks))
}
