package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "Concentrated liquidity pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an action stream through a pool",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("actions", "", "input actions JSONL")
	replayCmd.Flags().String("out", "./data/events.jsonl", "output events JSONL path")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN (writes events to Postgres instead of JSONL)")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Int("batch-size", 256, "events per output batch")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("token0", "", "token0 address")
	replayCmd.Flags().String("token1", "", "token1 address")
	replayCmd.Flags().Uint32("fee", 3000, "fee in hundredths of a basis point")
	replayCmd.Flags().Int("tick-spacing", 60, "tick spacing")
	replayCmd.Flags().String("fee-authority", "", "address allowed to set protocol fees")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against a replayed or restored pool state",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("actions", "", "input actions JSONL")
	quoteCmd.Flags().String("restore", "", "pool snapshot JSON to restore instead of replaying")
	quoteCmd.Flags().Bool("zero-for-one", true, "swap direction")
	quoteCmd.Flags().String("amount", "", "signed amount (positive exact input, negative exact output)")
	quoteCmd.Flags().String("price-limit", "", "sqrt price limit (decimal X96), default directional bound")
	quoteCmd.Flags().String("snapshot", "", "optional path to write the post-replay pool snapshot")
	quoteCmd.Flags().Uint32("fee", 3000, "fee in hundredths of a basis point")
	quoteCmd.Flags().Int("tick-spacing", 60, "tick spacing")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
