package tickmath

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"tickflow/internal/fixedpoint"
)

func TestSqrtRatioAtTickBounds(t *testing.T) {
	minRatio, err := SqrtRatioAtTick(MinTick)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick(MinTick): %v", err)
	}
	if !minRatio.Eq(MinSqrtRatio) {
		t.Fatalf("ratio at MinTick = %s, want %s", minRatio.Dec(), MinSqrtRatio.Dec())
	}

	maxRatio, err := SqrtRatioAtTick(MaxTick)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick(MaxTick): %v", err)
	}
	if !maxRatio.Eq(MaxSqrtRatio) {
		t.Fatalf("ratio at MaxTick = %s, want %s", maxRatio.Dec(), MaxSqrtRatio.Dec())
	}

	if _, err := SqrtRatioAtTick(MinTick - 1); !errors.Is(err, ErrTickOutOfBounds) {
		t.Fatalf("want ErrTickOutOfBounds, got %v", err)
	}
	if _, err := SqrtRatioAtTick(MaxTick + 1); !errors.Is(err, ErrTickOutOfBounds) {
		t.Fatalf("want ErrTickOutOfBounds, got %v", err)
	}
}

func TestSqrtRatioAtTickZero(t *testing.T) {
	ratio, err := SqrtRatioAtTick(0)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick(0): %v", err)
	}
	q96 := new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	if !ratio.Eq(q96) {
		t.Fatalf("ratio at tick 0 = %s, want %s", ratio.Dec(), q96.Dec())
	}
}

func TestSqrtRatioMonotonic(t *testing.T) {
	prev, err := SqrtRatioAtTick(-1000)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick: %v", err)
	}
	for tick := -999; tick <= 1000; tick++ {
		ratio, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("SqrtRatioAtTick(%d): %v", tick, err)
		}
		if !ratio.Gt(prev) {
			t.Fatalf("ratio not increasing at tick %d", tick)
		}
		prev = ratio
	}
}

func TestTickAtSqrtRatioRoundTrip(t *testing.T) {
	ticks := []int{MinTick, -887271, -123456, -60, -1, 0, 1, 60, 123456, 887271}
	for _, tick := range ticks {
		ratio, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("SqrtRatioAtTick(%d): %v", tick, err)
		}
		got, err := TickAtSqrtRatio(ratio)
		if err != nil {
			t.Fatalf("TickAtSqrtRatio(%d): %v", tick, err)
		}
		if got != tick {
			t.Fatalf("round trip of tick %d = %d", tick, got)
		}
	}
}

func TestTickAtSqrtRatioBetweenTicks(t *testing.T) {
	// A price strictly between two tick ratios resolves to the lower.
	ratio, err := SqrtRatioAtTick(100)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick: %v", err)
	}
	next, err := SqrtRatioAtTick(101)
	if err != nil {
		t.Fatalf("SqrtRatioAtTick: %v", err)
	}
	mid := new(uint256.Int).Add(ratio, next)
	mid.Rsh(mid, 1)

	got, err := TickAtSqrtRatio(mid)
	if err != nil {
		t.Fatalf("TickAtSqrtRatio: %v", err)
	}
	if got != 100 {
		t.Fatalf("TickAtSqrtRatio(mid 100..101) = %d, want 100", got)
	}
}

func TestTickAtSqrtRatioBounds(t *testing.T) {
	tooLow := new(uint256.Int).SubUint64(MinSqrtRatio, 1)
	if _, err := TickAtSqrtRatio(tooLow); !errors.Is(err, ErrSqrtPriceOutOfBounds) {
		t.Fatalf("want ErrSqrtPriceOutOfBounds, got %v", err)
	}
	if _, err := TickAtSqrtRatio(MaxSqrtRatio); !errors.Is(err, ErrSqrtPriceOutOfBounds) {
		t.Fatalf("want ErrSqrtPriceOutOfBounds at max, got %v", err)
	}

	tick, err := TickAtSqrtRatio(new(uint256.Int).SubUint64(MaxSqrtRatio, 1))
	if err != nil {
		t.Fatalf("TickAtSqrtRatio(max-1): %v", err)
	}
	if tick != MaxTick-1 {
		t.Fatalf("TickAtSqrtRatio(max-1) = %d, want %d", tick, MaxTick-1)
	}
}

func TestUsableTicks(t *testing.T) {
	if got := MinUsableTick(60); got != -887220 {
		t.Fatalf("MinUsableTick(60) = %d, want -887220", got)
	}
	if got := MaxUsableTick(60); got != 887220 {
		t.Fatalf("MaxUsableTick(60) = %d, want 887220", got)
	}
	if got := MinUsableTick(1); got != MinTick {
		t.Fatalf("MinUsableTick(1) = %d, want %d", got, MinTick)
	}
}

func TestMaxLiquidityPerTick(t *testing.T) {
	// spacing 60 gives 29575 usable ticks.
	want := new(uint256.Int).Div(fixedpoint.MaxUint128, uint256.NewInt(29575))
	got := MaxLiquidityPerTick(60)
	if !got.Eq(want) {
		t.Fatalf("MaxLiquidityPerTick(60) = %s, want %s", got.Dec(), want.Dec())
	}

	if !MaxLiquidityPerTick(1).Lt(MaxLiquidityPerTick(60)) {
		t.Fatalf("tighter spacing must cap liquidity lower")
	}
}
