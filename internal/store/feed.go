package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TradeFeedRow is one trade joined with enough pool/token context for the
// Live Broadcaster to shape and route it without a second round trip.
type TradeFeedRow struct {
	TradeID            int64
	CreatedAt          time.Time
	TxHash             string
	PairContract       string
	Signer             string
	Action             string
	Direction          string
	OfferDenom         string
	OfferAmountBase    *string
	AskDenom           string
	AskAmountBase      *string
	ReturnAmountBase   string
	BaseTokenID        int64
	BaseDenom          string
	BaseSymbol         *string
	BaseExponent       int
	QuoteDenom         string
	QuoteExponent      int
	IsUzigQuote        bool
}

// FeedStore serves the Live Broadcaster's trade pump (spec §4.11).
type FeedStore struct {
	db *DB
}

// NewFeedStore builds a FeedStore.
func NewFeedStore(db *DB) *FeedStore {
	return &FeedStore{db: db}
}

// Since returns up to limit trades with created_at strictly greater than
// since, ordered ascending, joined with pool and base/quote token
// context. The strict inequality is what makes repeated polls from the
// same watermark duplicate-free (spec §8 property 5).
func (f *FeedStore) Since(ctx context.Context, since time.Time, limit int) ([]TradeFeedRow, error) {
	rows, err := f.db.Conn.QueryContext(ctx, `
		SELECT t.id, t.created_at, t.tx_hash, p.pair_contract, t.signer, t.action, t.direction,
		       t.offer_denom, t.offer_amount_base, t.ask_denom, t.ask_amount_base, t.return_amount_base,
		       p.base_token_id, bt.denom, bt.symbol, bt.exponent, qt.denom, qt.exponent, p.is_uzig_quote
		FROM trades t
		JOIN pools p ON p.id = t.pool_id
		JOIN tokens bt ON bt.id = p.base_token_id
		JOIN tokens qt ON qt.id = p.quote_token_id
		WHERE t.created_at > $1
		ORDER BY t.created_at ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("scan trade feed since %s: %w", since, err)
	}
	defer rows.Close()

	var out []TradeFeedRow
	for rows.Next() {
		var r TradeFeedRow
		var offerAmt, askAmt, symbol sql.NullString
		if err := rows.Scan(&r.TradeID, &r.CreatedAt, &r.TxHash, &r.PairContract, &r.Signer, &r.Action, &r.Direction,
			&r.OfferDenom, &offerAmt, &r.AskDenom, &askAmt, &r.ReturnAmountBase,
			&r.BaseTokenID, &r.BaseDenom, &symbol, &r.BaseExponent, &r.QuoteDenom, &r.QuoteExponent, &r.IsUzigQuote,
		); err != nil {
			return nil, fmt.Errorf("scan trade feed row: %w", err)
		}
		r.OfferAmountBase = nullToPtr(offerAmt)
		r.AskAmountBase = nullToPtr(askAmt)
		r.BaseSymbol = nullToPtr(symbol)
		out = append(out, r)
	}
	return out, rows.Err()
}
