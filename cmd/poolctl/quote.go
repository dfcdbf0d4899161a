package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tickflow/internal/config"
	"tickflow/internal/model"
	"tickflow/internal/pool"
	"tickflow/internal/replay"
	"tickflow/internal/tickmath"
	"tickflow/internal/token"
)

// discardSink drops replay events; quoting only needs the final state.
type discardSink struct{}

func (discardSink) PutEventBatch([]model.EventRecord) error { return nil }

type quoteResult struct {
	ZeroForOne   bool   `json:"zero_for_one"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int    `json:"tick"`
	Liquidity    string `json:"liquidity"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	restorePath, _ := cmd.Flags().GetString("restore")
	if cfg.Actions == "" && restorePath == "" {
		return fmt.Errorf("either an actions file or a snapshot to restore is required")
	}
	if cfg.TickSpacing <= 0 {
		return fmt.Errorf("tick spacing must be > 0")
	}

	amountStr, _ := cmd.Flags().GetString("amount")
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok || amount.Sign() == 0 {
		return fmt.Errorf("amount must be a nonzero integer")
	}

	zeroForOne, _ := cmd.Flags().GetBool("zero-for-one")

	limitStr, _ := cmd.Flags().GetString("price-limit")
	var limit *uint256.Int
	if limitStr != "" {
		if limit, err = uint256.FromDecimal(limitStr); err != nil {
			return fmt.Errorf("invalid price limit: %w", err)
		}
	} else if zeroForOne {
		limit = new(uint256.Int).AddUint64(tickmath.MinSqrtRatio, 1)
	} else {
		limit = new(uint256.Int).SubUint64(tickmath.MaxSqrtRatio, 1)
	}

	var restored *model.PoolSnapshot
	if restorePath != "" {
		data, err := os.ReadFile(restorePath)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := json.Unmarshal(data, &restored); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		// The snapshot's pool parameters win over flags.
		cfg.Fee = restored.Fee
		cfg.TickSpacing = restored.TickSpacing
	}

	vault0 := token.NewVault("token0")
	vault1 := token.NewVault("token1")

	runner := replay.NewRunner(replay.Config{}, nil, vault0, vault1, discardSink{}, logger)

	p := pool.New(pool.Config{
		Fee:         cfg.Fee,
		TickSpacing: cfg.TickSpacing,
	}, poolAddress, vault0, vault1, runner.Clock(), logger)
	runner.Bind(p)

	if restored != nil {
		if err := p.Restore(restored); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		// Snapshots carry no vault balances; seed the pool so the
		// quote's output leg can settle.
		working := new(uint256.Int).Lsh(uint256.NewInt(1), 160)
		vault0.MintTo(poolAddress, working)
		vault1.MintTo(poolAddress, working)
	}
	if cfg.Actions != "" {
		if err := runner.Run(context.Background(), cfg.Actions); err != nil {
			return err
		}
	}

	amount0, amount1, err := runner.QuoteSwap(zeroForOne, amount, limit)
	if err != nil {
		return err
	}

	if snapPath, _ := cmd.Flags().GetString("snapshot"); snapPath != "" {
		data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if err := os.WriteFile(snapPath, data, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		logger.Info("snapshot written", zap.String("path", snapPath))
	}

	result := quoteResult{
		ZeroForOne:   zeroForOne,
		Amount0:      amount0.String(),
		Amount1:      amount1.String(),
		SqrtPriceX96: p.SqrtPriceX96().Dec(),
		Tick:         p.TickCurrent(),
		Liquidity:    p.Liquidity().Dec(),
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
