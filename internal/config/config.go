// Package config loads the flat environment-variable configuration for
// the indexer process.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every tunable knob the core pipeline recognizes.
type Config struct {
	ServiceName string
	LogLevel    string

	DBDSN    string
	RPCBaseURL string
	LCDBaseURL string

	BlockProcConcurrency int
	BlockProcMaxTasks    int

	TradesBatchMax    int
	TradesBatchWaitMS int

	MetaRefreshSec     int
	MetaBackfill       bool
	MetaBackfillBatch  int
	MetaBackfillSleepMS int
	MetaConcurrency    int

	FactoryAddr string
	RouterAddr  string

	LargeTradeZig     float64
	TVLAlertDeltaPct  float64
	NotifyKafkaBrokers string

	// MetricsAddr is accepted for compatibility with deployments that
	// still set it, but the metrics and broadcaster routes are served
	// from one shared *gin.Engine bound to WSAddr (spec: "avoiding a
	// second listening port").
	MetricsAddr string
	WSAddr      string
}

// Load reads configuration from the environment, optionally seeded from
// a .env file (best-effort: a missing .env is not fatal, matching how
// this process is deployed alongside container env injection rather than
// always via dotenv).
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	return Config{
		ServiceName: getenv("SERVICE_NAME", "degenter-index"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBDSN:      os.Getenv("DB_DSN"),
		RPCBaseURL: os.Getenv("RPC_BASE_URL"),
		LCDBaseURL: os.Getenv("LCD_BASE_URL"),

		BlockProcConcurrency: getenvInt("BLOCK_PROC_CONCURRENCY", 12),
		BlockProcMaxTasks:    getenvInt("BLOCK_PROC_MAX_TASKS", 5000),

		TradesBatchMax:    getenvInt("TRADES_BATCH_MAX", 800),
		TradesBatchWaitMS: getenvInt("TRADES_BATCH_WAIT_MS", 120),

		MetaRefreshSec:      getenvInt("META_REFRESH_SEC", 60),
		MetaBackfill:        getenvInt("META_BACKFILL", 0) != 0,
		MetaBackfillBatch:   getenvInt("META_BACKFILL_BATCH", 250),
		MetaBackfillSleepMS: getenvInt("META_BACKFILL_SLEEP_MS", 250),
		MetaConcurrency:     getenvInt("META_CONCURRENCY", 4),

		FactoryAddr: os.Getenv("FACTORY_ADDR"),
		RouterAddr:  os.Getenv("ROUTER_ADDR"),

		LargeTradeZig:      getenvFloat("LARGE_TRADE_ZIG", 10000),
		TVLAlertDeltaPct:   getenvFloat("TVL_ALERT_DELTA_PCT", 25),
		NotifyKafkaBrokers: os.Getenv("NOTIFY_KAFKA_BROKERS"),

		MetricsAddr: getenv("METRICS_ADDR", ":9100"),
		WSAddr:      getenv("WS_ADDR", ":8090"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
