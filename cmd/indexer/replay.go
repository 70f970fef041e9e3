package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/logging"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/pipeline"
)

var replayCmd = &cobra.Command{
	Use:   "replay <height>",
	Short: "Reprocess a single block height, bypassing the watermark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		height, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parse height %q: %w", args[0], err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		proc := pipeline.NewBlockProcessor(a.rpc, a.pools, a.tokens, a.tradeSink, a.priceEng, a.ohlcv,
			a.indexState, a.bus, a.sched, a.cfg, logging.Component(a.log, "block_processor"))

		if err := proc.ReplayHeight(cmd.Context(), height); err != nil {
			return fmt.Errorf("replay height %d: %w", height, err)
		}
		a.log.Info("replay: height reprocessed", zap.Int64("height", height))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
