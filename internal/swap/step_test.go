package swap

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"tickflow/internal/fixedpoint"
	"tickflow/internal/tickmath"
)

func TestComputeStepExactInReachesTarget(t *testing.T) {
	price, _ := tickmath.SqrtRatioAtTick(0)
	target, _ := tickmath.SqrtRatioAtTick(-60)
	liquidity := uint256.NewInt(2_000_000)

	res, err := ComputeStep(price, target, liquidity, big.NewInt(1_000_000_000), 3000)
	if err != nil {
		t.Fatalf("ComputeStep: %v", err)
	}

	if !res.SqrtPriceNextX96.Eq(target) {
		t.Fatalf("price stopped at %s, want target %s", res.SqrtPriceNextX96.Dec(), target.Dec())
	}

	// Fee on a target-reaching step is ceil(in * fee / (1e6 - fee)).
	wantFee, err := fixedpoint.MulDivRoundingUp(res.AmountIn, uint256.NewInt(3000), uint256.NewInt(997_000))
	if err != nil {
		t.Fatalf("fee calc: %v", err)
	}
	if !res.FeeAmount.Eq(wantFee) {
		t.Fatalf("fee = %s, want %s", res.FeeAmount.Dec(), wantFee.Dec())
	}

	total := new(uint256.Int).Add(res.AmountIn, res.FeeAmount)
	if total.Gt(uint256.NewInt(1_000_000_000)) {
		t.Fatalf("consumed %s, more than remaining", total.Dec())
	}
}

func TestComputeStepExactInPartial(t *testing.T) {
	price, _ := tickmath.SqrtRatioAtTick(0)
	target, _ := tickmath.SqrtRatioAtTick(-600)
	liquidity := uint256.NewInt(10_000_000_000)

	remaining := big.NewInt(1000)
	res, err := ComputeStep(price, target, liquidity, remaining, 3000)
	if err != nil {
		t.Fatalf("ComputeStep: %v", err)
	}

	if res.SqrtPriceNextX96.Eq(target) {
		t.Fatalf("small input should not reach the target")
	}
	if !res.SqrtPriceNextX96.Lt(price) {
		t.Fatalf("selling token0 must lower the price")
	}

	// The entire remaining amount is consumed: in + fee == remaining.
	total := new(uint256.Int).Add(res.AmountIn, res.FeeAmount)
	if total.Uint64() != 1000 {
		t.Fatalf("in+fee = %s, want 1000", total.Dec())
	}
}

func TestComputeStepExactOutClamped(t *testing.T) {
	price, _ := tickmath.SqrtRatioAtTick(0)
	target, _ := tickmath.SqrtRatioAtTick(-600)
	liquidity := uint256.NewInt(10_000_000_000)

	res, err := ComputeStep(price, target, liquidity, big.NewInt(-500), 3000)
	if err != nil {
		t.Fatalf("ComputeStep: %v", err)
	}

	if res.AmountOut.Gt(uint256.NewInt(500)) {
		t.Fatalf("out = %s, exceeds requested 500", res.AmountOut.Dec())
	}
	if res.SqrtPriceNextX96.Eq(target) {
		t.Fatalf("small output should not reach the target")
	}
	if res.FeeAmount.IsZero() {
		t.Fatalf("fee must be charged on the input leg")
	}
}

func TestComputeStepDirectionFromPrices(t *testing.T) {
	price, _ := tickmath.SqrtRatioAtTick(0)
	up, _ := tickmath.SqrtRatioAtTick(60)
	liquidity := uint256.NewInt(2_000_000)

	res, err := ComputeStep(price, up, liquidity, big.NewInt(1_000_000_000), 3000)
	if err != nil {
		t.Fatalf("ComputeStep: %v", err)
	}
	if !res.SqrtPriceNextX96.Eq(up) {
		t.Fatalf("price stopped at %s, want %s", res.SqrtPriceNextX96.Dec(), up.Dec())
	}
	// Moving up means token1 in, token0 out.
	if res.AmountIn.IsZero() || res.AmountOut.IsZero() {
		t.Fatalf("both legs must move: in=%s out=%s", res.AmountIn.Dec(), res.AmountOut.Dec())
	}
}

func TestComputeStepZeroFee(t *testing.T) {
	price, _ := tickmath.SqrtRatioAtTick(0)
	target, _ := tickmath.SqrtRatioAtTick(-60)
	liquidity := uint256.NewInt(2_000_000)

	res, err := ComputeStep(price, target, liquidity, big.NewInt(1_000_000_000), 0)
	if err != nil {
		t.Fatalf("ComputeStep: %v", err)
	}
	if !res.FeeAmount.IsZero() {
		t.Fatalf("fee = %s with zero fee rate", res.FeeAmount.Dec())
	}
}
