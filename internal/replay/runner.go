// Package replay drives a pool from a JSONL action stream. Each line is
// one operation; every applied action produces one event record, with
// failures captured in the record rather than stopping the run.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"tickflow/internal/model"
	"tickflow/internal/pool"
	"tickflow/internal/storage"
	"tickflow/internal/tickmath"
	"tickflow/internal/token"
)

// Config controls replay behavior.
type Config struct {
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	StateStore   StateStore
}

// Runner applies an action stream to a pool and writes event records.
// Settlement callbacks are self-funding: whatever an action owes is
// minted to the acting account and transferred to the pool, so the
// engine's balance checks run against real vault movements.
type Runner struct {
	cfg    Config
	pool   *pool.Pool
	vault0 *token.Vault
	vault1 *token.Vault
	sink   storage.Storage
	logger *zap.Logger

	now     uint64
	lastSeq uint64
}

func NewRunner(cfg Config, p *pool.Pool, vault0, vault1 *token.Vault, sink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		cfg:    cfg,
		pool:   p,
		vault0: vault0,
		vault1: vault1,
		sink:   sink,
		logger: logger,
	}
}

// Clock returns the replay clock, pinned to the timestamp of the action
// being applied. Wire it into the pool at construction.
func (r *Runner) Clock() func() uint64 {
	return func() uint64 { return r.now }
}

// LastSeq reports the highest sequence number seen by the last Run.
func (r *Runner) LastSeq() uint64 { return r.lastSeq }

// Bind attaches the pool after construction. The pool wants the runner's
// clock and the runner wants the pool, so wiring happens in two steps.
func (r *Runner) Bind(p *pool.Pool) {
	r.pool = p
}

// Run executes the replay over an actions JSONL file.
func (r *Runner) Run(ctx context.Context, inputPath string) error {
	if r.pool == nil {
		return fmt.Errorf("pool is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = 256
	}

	startSeq, err := r.loadStartSeq(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.EventRecord, 0, r.cfg.BatchSize)
	lastSeq := startSeq
	var total, applied, skipped, failed int

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var action model.ActionRecord
		if err := json.Unmarshal(line, &action); err != nil {
			failed++
			r.logger.Warn("decode action", zap.Error(err))
			continue
		}

		if startSeq > 0 && action.Seq <= startSeq {
			skipped++
			continue
		}

		event := r.apply(action)
		if event.Err != "" {
			failed++
			r.logger.Warn("apply action",
				zap.Uint64("seq", action.Seq),
				zap.String("op", action.Op),
				zap.String("err", event.Err),
			)
		} else {
			applied++
		}
		batch = append(batch, event)
		if action.Seq > lastSeq {
			lastSeq = action.Seq
		}

		if len(batch) >= r.cfg.BatchSize {
			if err := r.flush(ctx, batch, lastSeq); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	r.lastSeq = lastSeq

	if len(batch) > 0 {
		if err := r.flush(ctx, batch, lastSeq); err != nil {
			return err
		}
	}

	r.logger.Info("replay complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (r *Runner) loadStartSeq(ctx context.Context) (uint64, error) {
	if r.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (r *Runner) flush(ctx context.Context, batch []model.EventRecord, lastSeq uint64) error {
	events := make([]model.EventRecord, len(batch))
	copy(events, batch)
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		return r.sink.PutEventBatch(events)
	})
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	if r.cfg.StateStore != nil {
		if err := r.cfg.StateStore.Save(ctx, lastSeq); err != nil {
			return err
		}
	}
	return nil
}

// apply executes one action and reports the outcome. The replay clock
// never moves backwards.
func (r *Runner) apply(action model.ActionRecord) model.EventRecord {
	if action.Time > r.now {
		r.now = action.Time
	}

	event := model.EventRecord{
		Seq:       action.Seq,
		Op:        action.Op,
		Time:      r.now,
		Owner:     action.Owner,
		Recipient: action.Recipient,
		TickLower: action.TickLower,
		TickUpper: action.TickUpper,
		Amount0:   "0",
		Amount1:   "0",
	}

	amount0, amount1, err := r.dispatch(action)
	if err != nil {
		event.Err = err.Error()
	}
	if amount0 != nil {
		event.Amount0 = amount0.String()
	}
	if amount1 != nil {
		event.Amount1 = amount1.String()
	}

	event.SqrtPriceX96 = r.pool.SqrtPriceX96().Dec()
	event.Tick = r.pool.TickCurrent()
	event.Liquidity = r.pool.Liquidity().Dec()
	return event
}

func (r *Runner) dispatch(action model.ActionRecord) (*big.Int, *big.Int, error) {
	owner := common.HexToAddress(action.Owner)
	recipient := common.HexToAddress(action.Recipient)
	if action.Recipient == "" {
		recipient = owner
	}

	switch action.Op {
	case model.OpInitialize:
		sqrtPrice, err := parseU256(action.SqrtPriceX96)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, r.pool.Initialize(sqrtPrice)

	case model.OpMint:
		liquidity, err := parseU256(action.Amount)
		if err != nil {
			return nil, nil, err
		}
		paid0, paid1, err := r.pool.Mint(owner, action.TickLower, action.TickUpper, liquidity, nil,
			func(owed0, owed1 *uint256.Int, _ []byte) error {
				return r.fund(owner, owed0, owed1)
			})
		if err != nil {
			return nil, nil, err
		}
		return paid0.ToBig(), paid1.ToBig(), nil

	case model.OpBurn:
		liquidity, err := parseU256(action.Amount)
		if err != nil {
			return nil, nil, err
		}
		owed0, owed1, err := r.pool.Burn(owner, action.TickLower, action.TickUpper, liquidity)
		if err != nil {
			return nil, nil, err
		}
		return new(big.Int).Neg(owed0.ToBig()), new(big.Int).Neg(owed1.ToBig()), nil

	case model.OpCollect:
		requested0, err := parseU256(action.Amount0)
		if err != nil {
			return nil, nil, err
		}
		requested1, err := parseU256(action.Amount1)
		if err != nil {
			return nil, nil, err
		}
		paid0, paid1, err := r.pool.Collect(owner, recipient, action.TickLower, action.TickUpper, requested0, requested1)
		if err != nil {
			return nil, nil, err
		}
		return new(big.Int).Neg(paid0.ToBig()), new(big.Int).Neg(paid1.ToBig()), nil

	case model.OpSwap:
		amountSpecified, ok := new(big.Int).SetString(action.Amount, 10)
		if !ok {
			return nil, nil, fmt.Errorf("invalid amount %q", action.Amount)
		}
		limit, err := parseU256(action.SqrtPriceLimitX96)
		if err != nil {
			return nil, nil, err
		}
		if limit.IsZero() {
			if action.ZeroForOne {
				limit = new(uint256.Int).AddUint64(tickmath.MinSqrtRatio, 1)
			} else {
				limit = new(uint256.Int).SubUint64(tickmath.MaxSqrtRatio, 1)
			}
		}
		return r.pool.Swap(recipient, action.ZeroForOne, amountSpecified, limit, nil,
			func(amount0, amount1 *big.Int, _ []byte) error {
				return r.settleSwap(recipient, amount0, amount1)
			})

	case model.OpFlash:
		amount0, err := parseU256(action.Amount0)
		if err != nil {
			return nil, nil, err
		}
		amount1, err := parseU256(action.Amount1)
		if err != nil {
			return nil, nil, err
		}
		err = r.pool.Flash(recipient, amount0, amount1, nil,
			func(fee0, fee1 *uint256.Int, _ []byte) error {
				owed0 := new(uint256.Int).Add(amount0, fee0)
				owed1 := new(uint256.Int).Add(amount1, fee1)
				return r.fund(recipient, owed0, owed1)
			})
		return nil, nil, err

	case model.OpSetFeeProtocol:
		return nil, nil, r.pool.SetFeeProtocol(owner, action.FeeProtocol0, action.FeeProtocol1)

	case model.OpCollectProtocol:
		requested0, err := parseU256(action.Amount0)
		if err != nil {
			return nil, nil, err
		}
		requested1, err := parseU256(action.Amount1)
		if err != nil {
			return nil, nil, err
		}
		paid0, paid1, err := r.pool.CollectProtocol(owner, recipient, requested0, requested1)
		if err != nil {
			return nil, nil, err
		}
		return new(big.Int).Neg(paid0.ToBig()), new(big.Int).Neg(paid1.ToBig()), nil

	case model.OpGrowObservations:
		return nil, nil, r.pool.IncreaseObservationCardinalityNext(action.Observations)

	default:
		return nil, nil, fmt.Errorf("unknown op %q", action.Op)
	}
}

// QuoteSwap executes a self-funded swap against the pool's current state
// and returns the token deltas from the pool's perspective. The swap is
// committed; quote against a throwaway pool.
func (r *Runner) QuoteSwap(zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int) (*big.Int, *big.Int, error) {
	trader := common.BytesToAddress([]byte("tickflow/quoter"))
	return r.pool.Swap(trader, zeroForOne, amountSpecified, sqrtPriceLimitX96, nil,
		func(amount0, amount1 *big.Int, _ []byte) error {
			return r.settleSwap(trader, amount0, amount1)
		})
}

// fund mints owed amounts to the payer and pays the pool.
func (r *Runner) fund(payer common.Address, owed0, owed1 *uint256.Int) error {
	poolAddr := r.pool.Address()
	if !owed0.IsZero() {
		r.vault0.MintTo(payer, owed0)
		if err := r.vault0.Transfer(payer, poolAddr, owed0); err != nil {
			return err
		}
	}
	if !owed1.IsZero() {
		r.vault1.MintTo(payer, owed1)
		if err := r.vault1.Transfer(payer, poolAddr, owed1); err != nil {
			return err
		}
	}
	return nil
}

// settleSwap pays whichever leg the pool is owed.
func (r *Runner) settleSwap(payer common.Address, amount0, amount1 *big.Int) error {
	owed0 := new(uint256.Int)
	owed1 := new(uint256.Int)
	if amount0.Sign() > 0 {
		owed0, _ = uint256.FromBig(amount0)
	}
	if amount1.Sign() > 0 {
		owed1, _ = uint256.FromBig(amount1)
	}
	return r.fund(payer, owed0, owed1)
}

func parseU256(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return u, nil
}
