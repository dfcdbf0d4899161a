package pool

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"tickflow/internal/model"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 0)
	h.mint(t, alice, -600, 600, 2_000_000)
	h.mint(t, bob, -1200, -600, 5_000_000)
	if err := h.pool.SetFeeProtocol(authority, 4, 6); err != nil {
		t.Fatalf("SetFeeProtocol: %v", err)
	}
	h.swap(t, bob, true, 100_000)

	snap := h.pool.Snapshot()
	if len(snap.Ticks) != 3 || len(snap.Positions) != 2 {
		t.Fatalf("snapshot has %d ticks, %d positions", len(snap.Ticks), len(snap.Positions))
	}

	// The snapshot survives a JSON round trip unchanged.
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded *model.PoolSnapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	h2 := newHarness(t)
	if err := h2.pool.Restore(decoded); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if !h2.pool.SqrtPriceX96().Eq(h.pool.SqrtPriceX96()) {
		t.Fatalf("restored price %s, want %s", h2.pool.SqrtPriceX96().Dec(), h.pool.SqrtPriceX96().Dec())
	}
	if h2.pool.TickCurrent() != h.pool.TickCurrent() {
		t.Fatalf("restored tick %d, want %d", h2.pool.TickCurrent(), h.pool.TickCurrent())
	}
	if !h2.pool.Liquidity().Eq(h.pool.Liquidity()) {
		t.Fatalf("restored liquidity mismatch")
	}
	if h2.pool.FeeProtocol() != h.pool.FeeProtocol() {
		t.Fatalf("restored feeProtocol mismatch")
	}

	// A second snapshot of the restored pool matches field for field.
	again := h2.pool.Snapshot()
	raw2, err := json.Marshal(again)
	if err != nil {
		t.Fatalf("marshal restored: %v", err)
	}
	if string(raw) != string(raw2) {
		t.Fatalf("restored snapshot diverges:\n%s\n%s", raw, raw2)
	}
}

func TestRestoredPoolOperates(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 0)
	h.mint(t, alice, -600, 600, 2_000_000)
	snap := h.pool.Snapshot()

	h2 := newHarness(t)
	if err := h2.pool.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	// Seed the restored pool's vaults with the working balances.
	if err := h2.pay(poolAddr, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The restored bitmap drives tick crossing exactly as before.
	h2.swap(t, bob, true, 100_000)
	h.swap(t, bob, true, 100_000)

	if !h2.pool.SqrtPriceX96().Eq(h.pool.SqrtPriceX96()) {
		t.Fatalf("diverged prices: %s vs %s", h2.pool.SqrtPriceX96().Dec(), h.pool.SqrtPriceX96().Dec())
	}
	if h2.pool.TickCurrent() != h.pool.TickCurrent() {
		t.Fatalf("diverged ticks: %d vs %d", h2.pool.TickCurrent(), h.pool.TickCurrent())
	}

	// Alice's position can still be burned on the restored pool.
	if _, _, err := h2.pool.Burn(alice, -600, 600, uint256.NewInt(2_000_000)); err != nil {
		t.Fatalf("Burn on restored pool: %v", err)
	}
}

func TestRestoreRejectsInitializedPool(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 0)
	snap := h.pool.Snapshot()

	if err := h.pool.Restore(snap); err == nil {
		t.Fatalf("restore into an initialized pool must fail")
	}
}

func TestRestoreRejectsBadPrice(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 0)
	snap := h.pool.Snapshot()
	snap.SqrtPriceX96 = u256Hex(uint256.NewInt(1))

	h2 := newHarness(t)
	if err := h2.pool.Restore(snap); err == nil {
		t.Fatalf("restore with out-of-range price must fail")
	}
}

func TestSnapshotLiquidityNetSigned(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, 0)
	h.mint(t, alice, -600, 600, 1_500_000)

	snap := h.pool.Snapshot()
	var lower, upper string
	for _, ts := range snap.Ticks {
		switch ts.Tick {
		case -600:
			lower = ts.LiquidityNet
		case 600:
			upper = ts.LiquidityNet
		}
	}
	if lower != "1500000" || upper != "-1500000" {
		t.Fatalf("liquidity net (%s, %s), want (1500000, -1500000)", lower, upper)
	}

	want := new(big.Int).SetInt64(-1_500_000)
	got, ok := new(big.Int).SetString(upper, 10)
	if !ok || got.Cmp(want) != 0 {
		t.Fatalf("upper net failed to parse back")
	}
}
