package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
)

// MatrixStore maintains the pool_matrix and token_matrix rollup tables.
// Grounded on aggregatorService/aggregation.Calculator's "recompute the
// window from source on every pass" strategy, sourced from the already
// minute-bucketed ohlcv_1m table so every window (30m..24h) is a bounded
// scan (at most 1440 rows per pool for 24h; a token's matrix reads that
// many from each pool where it is the base) instead of an unbounded
// trades scan.
type MatrixStore struct {
	db *DB
}

// NewMatrixStore builds a MatrixStore.
func NewMatrixStore(db *DB) *MatrixStore {
	return &MatrixStore{db: db}
}

type windowStats struct {
	open, high, low, close decimal.Decimal
	volume                 decimal.Decimal
	tradeCount             int64
	hasRows                bool
}

// RecomputePoolMatrix recomputes and upserts pool_matrix for one
// (poolID, bucket).
func (m *MatrixStore) RecomputePoolMatrix(ctx context.Context, poolID int64, bucket model.Bucket) error {
	since := time.Now().UTC().Add(-model.BucketWindow(bucket))

	rows, err := m.db.Conn.QueryContext(ctx, `
		SELECT open, high, low, close, volume_zig, trade_count
		FROM ohlcv_1m WHERE pool_id = $1 AND bucket_start >= $2
		ORDER BY bucket_start ASC`, poolID, since)
	if err != nil {
		return fmt.Errorf("scan pool ohlcv window: %w", err)
	}
	defer rows.Close()

	stats, err := scanWindowStats(rows)
	if err != nil {
		return err
	}

	return m.upsert(ctx, `
		INSERT INTO pool_matrix (pool_id, bucket, open, high, low, close, volume_zig, trade_count, price_change_pct, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (pool_id, bucket) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close,
			volume_zig = EXCLUDED.volume_zig, trade_count = EXCLUDED.trade_count,
			price_change_pct = EXCLUDED.price_change_pct, updated_at = EXCLUDED.updated_at`,
		poolID, bucket, stats)
}

// RecomputeTokenMatrix recomputes and upserts token_matrix for one
// (tokenID, bucket), aggregating across every pool where tokenID is the
// base token (its own trading activity, as opposed to activity of pools
// it happens to be quoted in).
func (m *MatrixStore) RecomputeTokenMatrix(ctx context.Context, tokenID int64, bucket model.Bucket) error {
	since := time.Now().UTC().Add(-model.BucketWindow(bucket))

	rows, err := m.db.Conn.QueryContext(ctx, `
		SELECT o.open, o.high, o.low, o.close, o.volume_zig, o.trade_count
		FROM ohlcv_1m o
		JOIN pools p ON p.id = o.pool_id
		WHERE p.base_token_id = $1 AND o.bucket_start >= $2
		ORDER BY o.bucket_start ASC`, tokenID, since)
	if err != nil {
		return fmt.Errorf("scan token ohlcv window: %w", err)
	}
	defer rows.Close()

	stats, err := scanWindowStats(rows)
	if err != nil {
		return err
	}

	return m.upsert(ctx, `
		INSERT INTO token_matrix (token_id, bucket, open, high, low, close, volume_zig, trade_count, price_change_pct, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (token_id, bucket) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close,
			volume_zig = EXCLUDED.volume_zig, trade_count = EXCLUDED.trade_count,
			price_change_pct = EXCLUDED.price_change_pct, updated_at = EXCLUDED.updated_at`,
		tokenID, bucket, stats)
}

// PoolMatrixVolume returns the currently-stored volume_zig for
// (poolID, bucket), for callers that need to compare against a freshly
// recomputed value before it overwrites the row. Returns false if no row
// exists yet.
func (m *MatrixStore) PoolMatrixVolume(ctx context.Context, poolID int64, bucket model.Bucket) (decimal.Decimal, bool) {
	var v decimal.Decimal
	err := m.db.Conn.QueryRowContext(ctx,
		`SELECT volume_zig FROM pool_matrix WHERE pool_id = $1 AND bucket = $2`, poolID, bucket,
	).Scan(&v)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func scanWindowStats(rows *sql.Rows) (windowStats, error) {
	var s windowStats
	for rows.Next() {
		var open, high, low, close, vol decimal.Decimal
		var tc int64
		if err := rows.Scan(&open, &high, &low, &close, &vol, &tc); err != nil {
			return s, fmt.Errorf("scan ohlcv row: %w", err)
		}
		if !s.hasRows {
			s.open = open
			s.high = high
			s.low = low
			s.hasRows = true
		} else {
			if high.GreaterThan(s.high) {
				s.high = high
			}
			if low.LessThan(s.low) {
				s.low = low
			}
		}
		s.close = close
		s.volume = s.volume.Add(vol)
		s.tradeCount += tc
	}
	return s, rows.Err()
}

func (m *MatrixStore) upsert(ctx context.Context, query string, refID int64, bucket model.Bucket, s windowStats) error {
	if !s.hasRows {
		// Nothing traded in this window yet; write a zeroed row so the
		// unique row exists for readers, rather than leaving a gap.
		now := time.Now().UTC()
		_, err := m.db.Conn.ExecContext(ctx, query, refID, bucket, nil, nil, nil, nil,
			decimal.Zero, int64(0), nil, now)
		return err
	}

	var pctChange *decimal.Decimal
	if !s.open.IsZero() {
		pct := s.close.Sub(s.open).Div(s.open).Mul(decimal.NewFromInt(100))
		pctChange = &pct
	}

	_, err := m.db.Conn.ExecContext(ctx, query, refID, bucket, s.open, s.high, s.low, s.close,
		s.volume, s.tradeCount, pctChange, time.Now().UTC())
	return err
}
