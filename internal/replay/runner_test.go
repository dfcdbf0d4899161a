package replay

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tickflow/internal/model"
	"tickflow/internal/pool"
	"tickflow/internal/token"
)

// sqrt(1.0001^0) in Q64.96, i.e. 2^96.
const priceAtTickZero = "79228162514264337593543950336"

type memSink struct {
	mu       sync.Mutex
	events   []model.EventRecord
	failures int
}

func (s *memSink) PutEventBatch(events []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, events...)
	return nil
}

func newTestRunner(t *testing.T, cfg Config, sink *memSink) *Runner {
	t.Helper()
	vault0 := token.NewVault("tkn0")
	vault1 := token.NewVault("tkn1")
	r := NewRunner(cfg, nil, vault0, vault1, sink, nil)
	p := pool.New(pool.Config{
		Token0:       common.HexToAddress("0x00000000000000000000000000000000000000d0"),
		Token1:       common.HexToAddress("0x00000000000000000000000000000000000000d1"),
		Fee:          3000,
		TickSpacing:  60,
		FeeAuthority: common.HexToAddress("0x00000000000000000000000000000000000000ad"),
	}, common.BytesToAddress([]byte("test/pool")), vault0, vault1, r.Clock(), nil)
	r.Bind(p)
	return r
}

func writeActions(t *testing.T, actions []model.ActionRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actions.jsonl")
	var b strings.Builder
	for _, a := range actions {
		raw, err := json.Marshal(a)
		if err != nil {
			t.Fatalf("marshal action: %v", err)
		}
		b.Write(raw)
		b.WriteByte('\n')
	}
	// A blank line mid-stream is tolerated.
	b.WriteByte('\n')
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write actions: %v", err)
	}
	return path
}

func baseActions() []model.ActionRecord {
	owner := "0x00000000000000000000000000000000000000a1"
	return []model.ActionRecord{
		{Seq: 1, Op: model.OpInitialize, Time: 1000, SqrtPriceX96: priceAtTickZero},
		{Seq: 2, Op: model.OpMint, Time: 1010, Owner: owner, TickLower: -600, TickUpper: 600, Amount: "2000000"},
		{Seq: 3, Op: model.OpSwap, Time: 1020, Owner: owner, Recipient: owner, Amount: "1000", ZeroForOne: true},
		{Seq: 4, Op: model.OpBurn, Time: 1030, Owner: owner, TickLower: -600, TickUpper: 600, Amount: "2000000"},
	}
}

func TestRunnerAppliesStream(t *testing.T) {
	actions := append(baseActions(),
		model.ActionRecord{Seq: 5, Op: "frobnicate", Time: 1040},
	)
	path := writeActions(t, actions)

	sink := &memSink{}
	r := newTestRunner(t, Config{BatchSize: 2}, sink)
	if err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.events) != 5 {
		t.Fatalf("got %d events, want 5", len(sink.events))
	}

	for i, want := range []string{model.OpInitialize, model.OpMint, model.OpSwap, model.OpBurn, "frobnicate"} {
		if sink.events[i].Op != want {
			t.Fatalf("event %d op = %q, want %q", i, sink.events[i].Op, want)
		}
	}

	mint := sink.events[1]
	if mint.Err != "" {
		t.Fatalf("mint failed: %s", mint.Err)
	}
	if mint.Amount0 == "0" || mint.Amount1 == "0" {
		t.Fatalf("mint event amounts (%s, %s)", mint.Amount0, mint.Amount1)
	}
	if mint.Liquidity != "2000000" {
		t.Fatalf("liquidity after mint = %s", mint.Liquidity)
	}

	swap := sink.events[2]
	if swap.Amount0 != "1000" {
		t.Fatalf("swap amount0 = %s, want 1000", swap.Amount0)
	}
	if !strings.HasPrefix(swap.Amount1, "-") {
		t.Fatalf("swap amount1 = %s, want negative", swap.Amount1)
	}
	if swap.SqrtPriceX96 == priceAtTickZero {
		t.Fatalf("swap event did not record the price move")
	}
	if swap.Time != 1020 {
		t.Fatalf("swap event time = %d, want 1020", swap.Time)
	}

	burn := sink.events[3]
	if !strings.HasPrefix(burn.Amount0, "-") || !strings.HasPrefix(burn.Amount1, "-") {
		t.Fatalf("burn event amounts (%s, %s), want negative", burn.Amount0, burn.Amount1)
	}
	if burn.Liquidity != "0" {
		t.Fatalf("liquidity after full burn = %s", burn.Liquidity)
	}

	bad := sink.events[4]
	if bad.Err == "" {
		t.Fatalf("unknown op did not record an error")
	}
}

func TestRunnerContinuesPastFailedAction(t *testing.T) {
	actions := []model.ActionRecord{
		// Swap before initialize fails; the stream keeps going.
		{Seq: 1, Op: model.OpSwap, Time: 1000, Owner: "0xa1", Amount: "1000", ZeroForOne: true},
		{Seq: 2, Op: model.OpInitialize, Time: 1010, SqrtPriceX96: priceAtTickZero},
	}
	path := writeActions(t, actions)

	sink := &memSink{}
	r := newTestRunner(t, Config{}, sink)
	if err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want 2", len(sink.events))
	}
	if sink.events[0].Err == "" {
		t.Fatalf("pre-initialize swap did not record an error")
	}
	if sink.events[1].Err != "" {
		t.Fatalf("initialize failed after bad action: %s", sink.events[1].Err)
	}
}

func TestRunnerCheckpointSkipsProcessed(t *testing.T) {
	path := writeActions(t, baseActions())
	statePath := filepath.Join(t.TempDir(), "checkpoint.json")

	sink := &memSink{}
	r := newTestRunner(t, Config{StateStore: &FileStateStore{Path: statePath}}, sink)
	if err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(sink.events) != 4 {
		t.Fatalf("first run produced %d events", len(sink.events))
	}

	last, ok, err := (&FileStateStore{Path: statePath}).Load(context.Background())
	if err != nil || !ok || last != 4 {
		t.Fatalf("checkpoint = (%d, %v, %v), want (4, true, nil)", last, ok, err)
	}

	// A fresh runner over the same file replays nothing.
	sink2 := &memSink{}
	r2 := newTestRunner(t, Config{StateStore: &FileStateStore{Path: statePath}}, sink2)
	if err := r2.Run(context.Background(), path); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(sink2.events) != 0 {
		t.Fatalf("second run produced %d events, want 0", len(sink2.events))
	}
}

func TestRunnerRetriesSink(t *testing.T) {
	path := writeActions(t, baseActions())

	sink := &memSink{failures: 2}
	r := newTestRunner(t, Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, sink)
	if err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.events) != 4 {
		t.Fatalf("got %d events after retries, want 4", len(sink.events))
	}
}

func TestRunnerSinkExhaustsRetries(t *testing.T) {
	path := writeActions(t, baseActions())

	sink := &memSink{failures: 10}
	r := newTestRunner(t, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, sink)
	if err := r.Run(context.Background(), path); err == nil {
		t.Fatalf("want error once retries are exhausted")
	}
}

func TestQuoteSwap(t *testing.T) {
	path := writeActions(t, baseActions()[:2])

	sink := &memSink{}
	r := newTestRunner(t, Config{}, sink)
	if err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}

	limit := new(uint256.Int).AddUint64(uint256.NewInt(4295128739), 1)
	amount0, amount1, err := r.QuoteSwap(true, big.NewInt(1000), limit)
	if err != nil {
		t.Fatalf("QuoteSwap: %v", err)
	}
	if amount0.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("quote amount0 = %s, want 1000", amount0)
	}
	if amount1.Sign() >= 0 {
		t.Fatalf("quote amount1 = %s, want negative", amount1)
	}
}
