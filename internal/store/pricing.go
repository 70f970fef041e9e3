package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/chain"
)

// PriceEngine derives reserves and computes base/quote prices in native
// unit, upserting the live price row and appending to the price-tick
// series. Grounded on dbSaveService/database.DB's upsert pattern,
// extended with shopspring/decimal for the fixed-point price math (spec
// §9: keep amounts as decimal strings end-to-end).
type PriceEngine struct {
	db  *DB
	lcd chain.LCDClient
	log *zap.Logger
}

// NewPriceEngine builds a PriceEngine.
func NewPriceEngine(db *DB, lcd chain.LCDClient, log *zap.Logger) *PriceEngine {
	return &PriceEngine{db: db, lcd: lcd, log: log}
}

// ReserveLeg is one side of a pool's reserves, denom + base-unit amount.
type ReserveLeg struct {
	Denom  string
	Amount string
}

// TokenLegInfo is the (denom, exponent) pair needed to convert a leg's
// base amount into display units for pricing.
type TokenLegInfo struct {
	Denom    string
	Exponent int
}

// UpsertPoolState matches the two reserve legs to (base, quote) by denom
// and overwrites the pool_state row.
func (e *PriceEngine) UpsertPoolState(ctx context.Context, poolID int64, baseDenom, quoteDenom string, r1, r2 ReserveLeg) error {
	legs := map[string]ReserveLeg{r1.Denom: r1, r2.Denom: r2}
	baseLeg, okBase := legs[baseDenom]
	quoteLeg, okQuote := legs[quoteDenom]
	if !okBase || !okQuote {
		return fmt.Errorf("reserve legs (%s, %s) do not match pool denoms (%s, %s)", r1.Denom, r2.Denom, baseDenom, quoteDenom)
	}

	_, err := e.db.Conn.ExecContext(ctx, `
		INSERT INTO pool_state (pool_id, base_denom, base_reserve, quote_denom, quote_reserve, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (pool_id) DO UPDATE SET
			base_denom = EXCLUDED.base_denom, base_reserve = EXCLUDED.base_reserve,
			quote_denom = EXCLUDED.quote_denom, quote_reserve = EXCLUDED.quote_reserve,
			updated_at = EXCLUDED.updated_at`,
		poolID, baseDenom, baseLeg.Amount, quoteDenom, quoteLeg.Amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert pool state %d: %w", poolID, err)
	}
	return nil
}

// PriceFromReserves returns quote_display / base_display, matching legs
// by denom. Returns (zero, false) if matching fails or either reserve is
// zero.
func PriceFromReserves(base TokenLegInfo, quote TokenLegInfo, r1, r2 ReserveLeg) (decimal.Decimal, bool) {
	legs := map[string]ReserveLeg{r1.Denom: r1, r2.Denom: r2}
	baseLeg, okBase := legs[base.Denom]
	quoteLeg, okQuote := legs[quote.Denom]
	if !okBase || !okQuote {
		return decimal.Zero, false
	}

	baseAmt, err := decimal.NewFromString(baseLeg.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	quoteAmt, err := decimal.NewFromString(quoteLeg.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	if baseAmt.IsZero() || quoteAmt.IsZero() {
		return decimal.Zero, false
	}

	baseDisplay := baseAmt.Shift(int32(-base.Exponent))
	quoteDisplay := quoteAmt.Shift(int32(-quote.Exponent))
	if baseDisplay.IsZero() {
		return decimal.Zero, false
	}
	return quoteDisplay.Div(baseDisplay), true
}

// UpsertPrice writes the latest price for (tokenID, poolID) and appends a
// price-tick row.
func (e *PriceEngine) UpsertPrice(ctx context.Context, tokenID, poolID int64, price decimal.Decimal, isPairNative bool) error {
	now := time.Now().UTC()

	tx, err := e.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert price tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prices (token_id, pool_id, price_in_zig, is_pair_native, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (token_id, pool_id) DO UPDATE SET
			price_in_zig = EXCLUDED.price_in_zig,
			is_pair_native = EXCLUDED.is_pair_native,
			updated_at = EXCLUDED.updated_at
		WHERE prices.updated_at <= EXCLUDED.updated_at`,
		tokenID, poolID, price, isPairNative, now)
	if err != nil {
		return fmt.Errorf("upsert price: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO price_ticks (token_id, pool_id, price_in_zig, observed_at)
		VALUES ($1,$2,$3,$4)`,
		tokenID, poolID, price, now)
	if err != nil {
		return fmt.Errorf("insert price tick: %w", err)
	}

	return tx.Commit()
}

// FetchPoolReserves queries the on-chain contract via LCD; used only by
// the fast-track seed-pricing step.
func (e *PriceEngine) FetchPoolReserves(ctx context.Context, pairContract string) (ReserveLeg, ReserveLeg, error) {
	baseDenom, baseAmt, quoteDenom, quoteAmt, err := e.lcd.PoolReserves(ctx, pairContract)
	if err != nil {
		return ReserveLeg{}, ReserveLeg{}, fmt.Errorf("fetch pool reserves %s: %w", pairContract, err)
	}
	return ReserveLeg{Denom: baseDenom, Amount: baseAmt}, ReserveLeg{Denom: quoteDenom, Amount: quoteAmt}, nil
}

// LatestPrice returns the most recent price_in_zig for a token, used by
// downstream shapers to apply a cross-conversion multiplier for
// non-native-quote pools (spec §4.5: "the current ZIG price of the quote
// token is read from the latest price row ... applied by downstream
// shapers, not by the writer").
func (e *PriceEngine) LatestPrice(ctx context.Context, tokenID int64) (decimal.Decimal, bool) {
	var raw string
	err := e.db.Conn.QueryRowContext(ctx,
		`SELECT price_in_zig::text FROM prices WHERE token_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		tokenID,
	).Scan(&raw)
	if err != nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
