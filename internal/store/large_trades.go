package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
)

// LargeTradeStore records trades whose native notional crossed the large
// trade threshold, attributed to the rollup bucket that observed them.
type LargeTradeStore struct {
	db *DB
}

// NewLargeTradeStore builds a LargeTradeStore.
func NewLargeTradeStore(db *DB) *LargeTradeStore {
	return &LargeTradeStore{db: db}
}

// UpsertLargeTrade is idempotent on (trade_id, bucket): a trade observed
// by the same bucket's rollup twice does not duplicate. Returns whether
// this call performed the insert, so callers can alert only once.
func (s *LargeTradeStore) UpsertLargeTrade(ctx context.Context, tradeID, poolID int64, bucket model.Bucket, valueZig decimal.Decimal) (bool, error) {
	var inserted bool
	err := s.db.Conn.QueryRowContext(ctx, `
		INSERT INTO large_trades (trade_id, pool_id, bucket, value_zig, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (trade_id, bucket) DO UPDATE SET trade_id = EXCLUDED.trade_id
		RETURNING (xmax = 0)`,
		tradeID, poolID, bucket, valueZig, time.Now().UTC()).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert large trade %d/%s: %w", tradeID, bucket, err)
	}
	return inserted, nil
}

// LargeTradeCandidate is one trade found to exceed the native-notional
// threshold within a rollup window.
type LargeTradeCandidate struct {
	TradeID  int64
	ValueZig decimal.Decimal
}

// FindLargeTrades scans swap trades for poolID within bucket's window
// whose native-quote leg notional is at least thresholdZig.
func (s *LargeTradeStore) FindLargeTrades(ctx context.Context, poolID int64, bucket model.Bucket, thresholdZig decimal.Decimal) ([]LargeTradeCandidate, error) {
	since := time.Now().UTC().Add(-model.BucketWindow(bucket))

	rows, err := s.db.Conn.QueryContext(ctx, `
		SELECT id, offer_denom, offer_amount_base, ask_denom, ask_amount_base
		FROM trades
		WHERE pool_id = $1 AND action = 'swap' AND created_at >= $2
		  AND (offer_denom = $3 OR ask_denom = $3)`,
		poolID, since, model.NativeQuoteDenom)
	if err != nil {
		return nil, fmt.Errorf("scan trades for large trade candidates: %w", err)
	}
	defer rows.Close()

	var out []LargeTradeCandidate
	for rows.Next() {
		var id int64
		var offerDenom, askDenom string
		var offerAmt, askAmt sql.NullString
		if err := rows.Scan(&id, &offerDenom, &offerAmt, &askDenom, &askAmt); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		var raw string
		switch {
		case offerDenom == model.NativeQuoteDenom && offerAmt.Valid:
			raw = offerAmt.String
		case askDenom == model.NativeQuoteDenom && askAmt.Valid:
			raw = askAmt.String
		default:
			continue
		}
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		z := amt.Shift(-6)
		if z.GreaterThanOrEqual(thresholdZig) {
			out = append(out, LargeTradeCandidate{TradeID: id, ValueZig: z})
		}
	}
	return out, rows.Err()
}

// AlertStore records triggered conditions.
type AlertStore struct {
	db *DB
}

// NewAlertStore builds an AlertStore.
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// Insert writes one alert row.
func (s *AlertStore) Insert(ctx context.Context, a model.Alert) error {
	_, err := s.db.Conn.ExecContext(ctx, `
		INSERT INTO alerts (alert_type, pool_id, token_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		a.AlertType, a.PoolID, a.TokenID, a.Detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}
