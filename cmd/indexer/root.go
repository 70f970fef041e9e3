// Package main wires the indexer process: config, logging, chain
// clients, storage, the block pipeline, the notify bus, the Fast-Track
// Reactor, the Live Broadcaster and the shared metrics/WS HTTP server.
// Grounded on Synternet-osmosis-publisher/cmd's cobra root+subcommand
// split (persistent setup in root.go, one file per verb).
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/chain"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/config"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/logging"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/notify"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/scheduler"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Degenter DEX observability indexer",
}

// Execute runs the CLI, exiting the process with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles every wired collaborator a command needs. Built once per
// invocation from config.Load(), so run/replay/migrate share identical
// wiring instead of drifting.
type app struct {
	cfg config.Config
	log *zap.Logger

	db  *store.DB
	rpc chain.RPCClient
	lcd chain.LCDClient

	tokens     *store.TokenRegistry
	pools      *store.PoolRegistry
	tradeSink  *store.TradeSink
	priceEng   *store.PriceEngine
	ohlcv      *store.OHLCVAggregator
	matrix     *store.MatrixStore
	large      *store.LargeTradeStore
	alerts     *store.AlertStore
	indexState *store.IndexStateStore
	feed       *store.FeedStore

	bus   *notify.Bus
	sched *scheduler.Scheduler
}

func newApp() (*app, error) {
	cfg := config.Load()

	log, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	rpc := chain.NewHTTPRPCClient(cfg.RPCBaseURL)
	lcd := chain.NewHTTPLCDClient(cfg.LCDBaseURL)

	var mirror notify.MirrorSink
	if cfg.NotifyKafkaBrokers != "" {
		if km := notify.NewKafkaMirror(logging.Component(log, "kafka_mirror"), splitBrokers(cfg.NotifyKafkaBrokers), "degenter.notify"); km != nil {
			mirror = km
		}
	}
	bus := notify.New(logging.Component(log, "notify"), mirror)

	a := &app{
		cfg: cfg,
		log: log,
		db:  db,
		rpc: rpc,
		lcd: lcd,

		tokens:     store.NewTokenRegistry(db, lcd, logging.Component(log, "tokens")),
		pools:      store.NewPoolRegistry(db, bus, logging.Component(log, "pools")),
		tradeSink:  store.NewTradeSink(db, logging.Component(log, "trades"), cfg.TradesBatchMax, time.Duration(cfg.TradesBatchWaitMS)*time.Millisecond),
		priceEng:   store.NewPriceEngine(db, lcd, logging.Component(log, "pricing")),
		ohlcv:      store.NewOHLCVAggregator(db),
		matrix:     store.NewMatrixStore(db),
		large:      store.NewLargeTradeStore(db),
		alerts:     store.NewAlertStore(db),
		indexState: store.NewIndexStateStore(db),
		feed:       store.NewFeedStore(db),

		bus:   bus,
		sched: scheduler.New(logging.Component(log, "scheduler"), prometheus.DefaultRegisterer),
	}
	return a, nil
}

func (a *app) close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

func splitBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
