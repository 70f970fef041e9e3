package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/broadcast"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/httpserver"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/logging"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/metrics"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/pipeline"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/reactor"
)

const driverPollInterval = 2 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the indexing pipeline, Fast-Track Reactor and Live Broadcaster",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		proc := pipeline.NewBlockProcessor(a.rpc, a.pools, a.tokens, a.tradeSink, a.priceEng, a.ohlcv,
			a.indexState, a.bus, a.sched, a.cfg, logging.Component(a.log, "block_processor"))

		react := reactor.New(a.lcd, a.tokens, a.pools, a.priceEng, a.ohlcv, a.matrix, a.large, a.alerts,
			a.cfg.LargeTradeZig, a.cfg.TVLAlertDeltaPct, logging.Component(a.log, "reactor"))
		stopReactor := react.Start(a.bus)
		defer stopReactor()

		hub := broadcast.NewHub(logging.Component(a.log, "broadcast_hub"))
		hubStop := make(chan struct{})
		go hub.Run(hubStop)
		defer close(hubStop)

		wsHandler := broadcast.NewHandler(hub, logging.Component(a.log, "broadcast_handler"))
		pump := broadcast.NewPump(a.feed, hub, logging.Component(a.log, "broadcast_pump"))
		go pump.Run(ctx)

		srv := httpserver.New(a.cfg.WSAddr, wsHandler, logging.Component(a.log, "httpserver"))
		srvErrCh := make(chan error, 1)
		go func() { srvErrCh <- srv.Run(ctx) }()

		driverErrCh := make(chan error, 1)
		go func() { driverErrCh <- runDriver(ctx, a, proc) }()

		select {
		case <-ctx.Done():
			a.log.Info("run: shutdown signal received")
		case err := <-srvErrCh:
			if err != nil {
				a.log.Error("run: http server exited", zap.Error(err))
			}
			stop()
		case err := <-driverErrCh:
			if err != nil {
				a.log.Error("run: driver loop exited", zap.Error(err))
			}
			stop()
		}
		return nil
	},
}

// runDriver is the minimal height-feeding loop around ProcessHeight: it
// polls the chain's current height and catches the pipeline up to it.
// The spec treats the upstream driver as out of scope beyond "the core
// depends on ProcessHeight(height) being called in order"; this is the
// simplest faithful implementation of that contract.
func runDriver(ctx context.Context, a *app, proc *pipeline.BlockProcessor) error {
	ticker := time.NewTicker(driverPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := catchUp(ctx, a, proc); err != nil {
				a.log.Error("run: catch-up pass failed", zap.Error(err))
			}
		}
	}
}

func catchUp(ctx context.Context, a *app, proc *pipeline.BlockProcessor) error {
	latest, err := a.rpc.LatestHeight(ctx)
	if err != nil {
		return err
	}
	last, err := a.indexState.LastHeight(ctx)
	if err != nil {
		return err
	}

	for h := last + 1; h <= latest; h++ {
		if ctx.Err() != nil {
			return nil
		}
		start := time.Now()
		if err := proc.ProcessHeight(ctx, h); err != nil {
			a.log.Error("run: process height failed, abandoning without advancing watermark",
				zap.Int64("height", h), zap.Error(err))
			return nil
		}
		metrics.BlockProcessDuration.Observe(time.Since(start).Seconds())
		metrics.BlockHeightProcessed.Set(float64(h))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
