package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OHLCVAggregator maintains 1-minute OHLC + volume bars per pool.
type OHLCVAggregator struct {
	db *DB
}

// NewOHLCVAggregator builds an OHLCVAggregator.
func NewOHLCVAggregator(db *DB) *OHLCVAggregator {
	return &OHLCVAggregator{db: db}
}

// UpsertParams describes one trade's contribution to a minute bucket.
type UpsertParams struct {
	PoolID      int64
	BucketStart time.Time
	Price       decimal.Decimal
	VolZig      decimal.Decimal
	TradeInc    int64
}

// UpsertOHLCV1m applies the conflict-merge semantics from spec §4.6:
// open is set once, high/low expand, close always tracks the latest
// price, volume and trade_count accumulate.
func (a *OHLCVAggregator) UpsertOHLCV1m(ctx context.Context, p UpsertParams) error {
	_, err := a.db.Conn.ExecContext(ctx, `
		INSERT INTO ohlcv_1m (pool_id, bucket_start, open, high, low, close, volume_zig, trade_count)
		VALUES ($1, $2, $3, $3, $3, $3, $4, $5)
		ON CONFLICT (pool_id, bucket_start) DO UPDATE SET
			high = GREATEST(ohlcv_1m.high, EXCLUDED.high),
			low  = LEAST(ohlcv_1m.low, EXCLUDED.low),
			close = EXCLUDED.close,
			volume_zig = ohlcv_1m.volume_zig + EXCLUDED.volume_zig,
			trade_count = ohlcv_1m.trade_count + EXCLUDED.trade_count`,
		p.PoolID, p.BucketStart, p.Price, p.VolZig, p.TradeInc)
	if err != nil {
		return fmt.Errorf("upsert ohlcv_1m pool=%d bucket=%s: %w", p.PoolID, p.BucketStart, err)
	}
	return nil
}

// BucketFloor returns the UTC minute floor of t.
func BucketFloor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), 0, 0, time.UTC)
}
