// Package metrics collects the Prometheus series this indexer exposes
// beyond the scheduler's own task-timing collectors (scheduler.New
// registers those directly). Grounded on
// ChainSafe-canton-middleware/internal/metrics's promauto var-block
// style, adapted from a bridge's transfer/gas counters to this
// pipeline's batch/broadcast/notify concerns.
//
// BatchQueueDepth, BatchFlushTotal, BatchFlushRows, NotifyDeliveryTotal,
// ReactorDuration and AlertsTotal are registered, but no code in this
// repository updates them, so they always report zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchQueueDepth tracks how many rows are sitting in a coalescing
	// batch queue (trade sink, price ticks) waiting for a flush.
	BatchQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "degenter_batch_queue_depth",
			Help: "Rows currently queued in a coalescing batch writer.",
		},
		[]string{"sink"},
	)

	// BatchFlushTotal counts batch flushes by sink and trigger
	// (size_threshold vs wait_timeout).
	BatchFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "degenter_batch_flush_total",
			Help: "Total batch flushes by sink and trigger.",
		},
		[]string{"sink", "trigger"},
	)

	// BatchFlushRows counts rows written per flush.
	BatchFlushRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "degenter_batch_flush_rows",
			Help:    "Rows written per batch flush.",
			Buckets: []float64{1, 5, 20, 50, 100, 250, 500, 800, 1600},
		},
		[]string{"sink"},
	)

	// BlockHeightProcessed tracks the last height the Block Processor
	// completed.
	BlockHeightProcessed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "degenter_block_height_processed",
			Help: "Last block height fully processed and committed to index_state.",
		},
	)

	// BlockProcessDuration tracks wall time per ProcessHeight call.
	BlockProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "degenter_block_process_duration_seconds",
			Help:    "Duration of a single block height's full processing pipeline.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// NotifyDeliveryTotal counts notify bus deliveries by topic and
	// outcome (delivered vs dropped-full-channel).
	NotifyDeliveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "degenter_notify_delivery_total",
			Help: "Notify bus deliveries by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	// ReactorDuration tracks wall time per Fast-Track Reactor pass.
	ReactorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "degenter_reactor_duration_seconds",
			Help:    "Duration of a single Fast-Track Reactor pass.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AlertsTotal counts alert rows inserted by type.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "degenter_alerts_total",
			Help: "Alert rows inserted, by alert_type.",
		},
		[]string{"alert_type"},
	)

	// BroadcastSubscribers tracks current subscriber counts per
	// well-known topic family (per-token and per-pair topics are folded
	// into the "trades.stream.token" and "trades.stream.pair" labels, and
	// anything else into "other", to keep series bounded).
	BroadcastSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "degenter_broadcast_subscribers",
			Help: "Current WebSocket subscriber count by topic family.",
		},
		[]string{"topic_family"},
	)

	// BroadcastPumpLag tracks how far behind wall-clock the trade pump's
	// watermark is, in seconds, sampled after each tick.
	BroadcastPumpLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "degenter_broadcast_pump_lag_seconds",
			Help: "Seconds between wall-clock now and the trade pump's watermark.",
		},
	)

	// BroadcastFramesSent counts frames published to subscribers.
	BroadcastFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "degenter_broadcast_frames_sent_total",
			Help: "WebSocket frames published, by topic family.",
		},
		[]string{"topic_family"},
	)
)
