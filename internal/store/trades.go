package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/batch"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
)

const tradeColumns = 19

// sizeClassThresholds are the native-unit notional cutoffs (spec §4.4).
const (
	sizeShrimpMax = 1000
	sizeSharkMax  = 10000
)

// TradeSink is a batched, deduplicated inserter for trades. Grounded on
// dbSaveService/batch.Processor + database.BatchInsertTokenTradeHistory:
// a mutex-guarded coalescing buffer flushed as one multi-row INSERT with
// ON CONFLICT DO NOTHING for idempotent replay.
type TradeSink struct {
	db    *DB
	log   *zap.Logger
	queue *batch.Queue[model.Trade]

	lastFlushErr error
}

// NewTradeSink builds a TradeSink with the given coalescing bounds.
func NewTradeSink(db *DB, log *zap.Logger, maxItems int, maxWait time.Duration) *TradeSink {
	s := &TradeSink{db: db, log: log}
	s.queue = batch.New(maxItems, maxWait, s.flush)
	s.queue.OnFlushError(func(err error, dropped int) {
		s.log.Error("trade sink: timer-driven flush failed",
			zap.Error(err), zap.Int("batch_size", dropped))
	})
	return s
}

// ClassifySize derives a trade's size class from its native-unit
// notional. z is the native-leg amount already divided by 10^6. Classes
// are null when neither leg is native quote.
func ClassifySize(z decimal.Decimal, hasNativeLeg bool) *model.SizeClass {
	if !hasNativeLeg {
		return nil
	}
	var class model.SizeClass
	switch {
	case z.LessThan(decimal.NewFromInt(sizeShrimpMax)):
		class = model.SizeShrimp
	case z.LessThan(decimal.NewFromInt(sizeSharkMax)):
		class = model.SizeShark
	default:
		class = model.SizeWhale
	}
	return &class
}

// InsertTrade enqueues t for the next flush and returns immediately.
func (s *TradeSink) InsertTrade(t model.Trade) error {
	return s.queue.Add(t)
}

// DrainTrades flushes whatever is currently buffered and surfaces any
// error to the caller, rather than silently dropping items (spec §4.4
// failure semantics).
func (s *TradeSink) DrainTrades() error {
	return s.queue.Drain()
}

func (s *TradeSink) flush(trades []model.Trade) error {
	const maxBatchSize = 800 // keep (columns * rows) comfortably under the 65535 param limit

	for i := 0; i < len(trades); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(trades) {
			end = len(trades)
		}
		if err := s.flushChunk(trades[i:end]); err != nil {
			return fmt.Errorf("flush trades chunk [%d:%d]: %w", i, end, err)
		}
	}
	return nil
}

func (s *TradeSink) flushChunk(trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(trades))
	args := make([]interface{}, 0, len(trades)*tradeColumns)

	for i, t := range trades {
		base := i * tradeColumns
		ph := make([]string, tradeColumns)
		for c := 0; c < tradeColumns; c++ {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")

		var sizeClass interface{}
		if t.SizeClass != nil {
			sizeClass = string(*t.SizeClass)
		}

		args = append(args,
			t.CreatedAt, t.TxHash, t.PoolID, t.MsgIndex, string(t.Action), string(t.Direction),
			t.Signer, nilableStr(t.OfferDenom), nilablePtr(t.OfferAmountBase),
			nilableStr(t.AskDenom), nilablePtr(t.AskAmountBase), t.ReturnAmountBase,
			t.ReserveBaseDenom, t.ReserveBaseAmount, t.ReserveQuoteDenom, t.ReserveQuoteAmount,
			t.IsRouter, t.Height, sizeClass,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO trades (
			created_at, tx_hash, pool_id, msg_index, action, direction,
			signer, offer_denom, offer_amount_base, ask_denom, ask_amount_base,
			return_amount_base, reserve_base_denom, reserve_base_amount,
			reserve_quote_denom, reserve_quote_amount, is_router, height, size_class
		) VALUES %s
		ON CONFLICT (tx_hash, pool_id, msg_index, created_at) DO NOTHING`,
		strings.Join(valueStrings, ","))

	_, err := s.db.Conn.ExecContext(context.Background(), query, args...)
	if err != nil {
		return fmt.Errorf("exec trade batch insert: %w", err)
	}
	return nil
}

func nilableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nilablePtr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
