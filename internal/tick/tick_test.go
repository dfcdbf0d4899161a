package tick

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

var maxLiquidity = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

func zero() *uint256.Int { return new(uint256.Int) }

func TestUpdateFlipsOnInitialize(t *testing.T) {
	s := NewStore()

	flipped, err := s.Update(60, 0, big.NewInt(100), zero(), zero(), zero(), 0, 0, false, maxLiquidity)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !flipped {
		t.Fatalf("first liquidity must flip the tick")
	}

	flipped, err = s.Update(60, 0, big.NewInt(50), zero(), zero(), zero(), 0, 0, false, maxLiquidity)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if flipped {
		t.Fatalf("adding to a live tick must not flip")
	}

	flipped, err = s.Update(60, 0, big.NewInt(-150), zero(), zero(), zero(), 0, 0, false, maxLiquidity)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !flipped {
		t.Fatalf("removing all liquidity must flip the tick")
	}
}

func TestUpdateNetLiquiditySides(t *testing.T) {
	s := NewStore()

	if _, err := s.Update(-60, 0, big.NewInt(100), zero(), zero(), zero(), 0, 0, false, maxLiquidity); err != nil {
		t.Fatalf("lower update: %v", err)
	}
	if _, err := s.Update(60, 0, big.NewInt(100), zero(), zero(), zero(), 0, 0, true, maxLiquidity); err != nil {
		t.Fatalf("upper update: %v", err)
	}

	lower, ok := s.Get(-60)
	if !ok {
		t.Fatalf("lower tick missing")
	}
	if lower.LiquidityNet.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("lower net = %s, want 100", lower.LiquidityNet)
	}

	upper, ok := s.Get(60)
	if !ok {
		t.Fatalf("upper tick missing")
	}
	if upper.LiquidityNet.Cmp(big.NewInt(-100)) != 0 {
		t.Fatalf("upper net = %s, want -100", upper.LiquidityNet)
	}
}

func TestUpdateSeedsOutsideBelowCurrent(t *testing.T) {
	s := NewStore()
	global0 := uint256.NewInt(1000)
	global1 := uint256.NewInt(2000)

	// A new tick at or below the current tick inherits the globals.
	if _, err := s.Update(-60, 0, big.NewInt(10), global0, global1, uint256.NewInt(7), 42, 99, false, maxLiquidity); err != nil {
		t.Fatalf("Update: %v", err)
	}
	info, _ := s.Get(-60)
	if !info.FeeGrowthOutside0X128.Eq(global0) || !info.FeeGrowthOutside1X128.Eq(global1) {
		t.Fatalf("outside not seeded from globals")
	}
	if info.TickCumulativeOutside != 42 || info.SecondsOutside != 99 {
		t.Fatalf("time accumulators not seeded")
	}

	// A new tick above the current tick starts at zero.
	if _, err := s.Update(60, 0, big.NewInt(10), global0, global1, uint256.NewInt(7), 42, 99, false, maxLiquidity); err != nil {
		t.Fatalf("Update: %v", err)
	}
	info, _ = s.Get(60)
	if !info.FeeGrowthOutside0X128.IsZero() || !info.FeeGrowthOutside1X128.IsZero() {
		t.Fatalf("outside above current must start zero")
	}
}

func TestUpdateRejectsExcessLiquidity(t *testing.T) {
	s := NewStore()
	limit := uint256.NewInt(1000)

	if _, err := s.Update(0, 0, big.NewInt(1001), zero(), zero(), zero(), 0, 0, false, limit); !errors.Is(err, ErrLiquidityGross) {
		t.Fatalf("want ErrLiquidityGross, got %v", err)
	}
	if _, err := s.Update(0, 0, big.NewInt(-1), zero(), zero(), zero(), 0, 0, false, limit); !errors.Is(err, ErrLiquidityGross) {
		t.Fatalf("want ErrLiquidityGross on negative gross, got %v", err)
	}
}

func TestFeeGrowthInside(t *testing.T) {
	s := NewStore()
	global0 := uint256.NewInt(100)
	global1 := uint256.NewInt(200)

	// Uninitialized boundary ticks count as zero outside.
	inside0, inside1 := s.FeeGrowthInside(-60, 60, 0, global0, global1)
	if !inside0.Eq(global0) || !inside1.Eq(global1) {
		t.Fatalf("inside with empty bounds = (%s, %s), want globals", inside0.Dec(), inside1.Dec())
	}

	// Current tick below the range: inside = outside(lower) - outside(upper).
	s.Put(-60, Info{FeeGrowthOutside0X128: uint256.NewInt(30), FeeGrowthOutside1X128: uint256.NewInt(40)})
	s.Put(60, Info{FeeGrowthOutside0X128: uint256.NewInt(10), FeeGrowthOutside1X128: uint256.NewInt(15)})

	inside0, inside1 = s.FeeGrowthInside(-60, 60, -100, global0, global1)
	if inside0.Uint64() != 20 || inside1.Uint64() != 25 {
		t.Fatalf("inside below range = (%s, %s), want (20, 25)", inside0.Dec(), inside1.Dec())
	}

	// In range: global minus both outsides.
	inside0, inside1 = s.FeeGrowthInside(-60, 60, 0, global0, global1)
	if inside0.Uint64() != 60 || inside1.Uint64() != 145 {
		t.Fatalf("inside in range = (%s, %s), want (60, 145)", inside0.Dec(), inside1.Dec())
	}
}

func TestFeeGrowthInsideWraps(t *testing.T) {
	s := NewStore()
	// outside(lower) greater than the global forces a wrap; the
	// difference is still correct modulo 2^256.
	s.Put(-60, Info{FeeGrowthOutside0X128: uint256.NewInt(500)})

	inside0, _ := s.FeeGrowthInside(-60, 60, 0, uint256.NewInt(100), zero())
	expected := new(uint256.Int).Sub(uint256.NewInt(100), uint256.NewInt(500))
	if !inside0.Eq(expected) {
		t.Fatalf("wrapped inside = %s, want %s", inside0.Dec(), expected.Dec())
	}
}

func TestCross(t *testing.T) {
	s := NewStore()
	s.Put(60, Info{
		LiquidityGross:        uint256.NewInt(100),
		LiquidityNet:          big.NewInt(75),
		FeeGrowthOutside0X128: uint256.NewInt(10),
		FeeGrowthOutside1X128: uint256.NewInt(20),
	})

	net := s.Cross(60, uint256.NewInt(100), uint256.NewInt(200), uint256.NewInt(7), 42, 99)
	if net.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("Cross net = %s, want 75", net)
	}

	info, _ := s.Get(60)
	if info.FeeGrowthOutside0X128.Uint64() != 90 || info.FeeGrowthOutside1X128.Uint64() != 180 {
		t.Fatalf("outside after cross = (%s, %s), want (90, 180)", info.FeeGrowthOutside0X128.Dec(), info.FeeGrowthOutside1X128.Dec())
	}

	// Crossing back restores the original values.
	s.Cross(60, uint256.NewInt(100), uint256.NewInt(200), uint256.NewInt(7), 42, 99)
	info, _ = s.Get(60)
	if info.FeeGrowthOutside0X128.Uint64() != 10 || info.FeeGrowthOutside1X128.Uint64() != 20 {
		t.Fatalf("double cross did not restore outsides")
	}

	// Crossing an absent tick contributes nothing.
	if net := s.Cross(120, zero(), zero(), zero(), 0, 0); net.Sign() != 0 {
		t.Fatalf("cross of absent tick = %s, want 0", net)
	}
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Put(60, Info{LiquidityGross: uint256.NewInt(1)})
	s.Clear(60)
	if _, ok := s.Get(60); ok {
		t.Fatalf("tick survived Clear")
	}
	if s.Count() != 0 {
		t.Fatalf("Count = %d, want 0", s.Count())
	}
}
