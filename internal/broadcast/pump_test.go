package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/store"
)

func strPtr(s string) *string { return &s }

func baseRow() store.TradeFeedRow {
	return store.TradeFeedRow{
		TradeID:          1,
		CreatedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TxHash:           "ABCDEF",
		PairContract:     "zig1pair",
		Signer:           "zig1user",
		Action:           "swap",
		Direction:        "buy",
		OfferDenom:       "uzig",
		OfferAmountBase:  strPtr("1000000"),
		AskDenom:         "factory/contract/TOKEN",
		AskAmountBase:    strPtr("500000000"),
		ReturnAmountBase: "500000000",
		BaseTokenID:      7,
		BaseDenom:        "factory/contract/TOKEN",
		BaseSymbol:       strPtr("TOK"),
		BaseExponent:     6,
		QuoteDenom:       "uzig",
		QuoteExponent:    6,
		IsUzigQuote:      true,
	}
}

func TestExponentFor(t *testing.T) {
	r := baseRow()
	assert.Equal(t, r.QuoteExponent, exponentFor(r.QuoteDenom, r))
	assert.Equal(t, r.BaseExponent, exponentFor(r.BaseDenom, r))
	assert.Equal(t, r.BaseExponent, exponentFor("unknown-denom", r))
}

func TestDisplayAmount(t *testing.T) {
	raw, f := displayAmount(strPtr("1500000"), 6)
	require.NotNil(t, raw)
	require.NotNil(t, f)
	assert.Equal(t, "1500000", *raw)
	assert.InDelta(t, 1.5, *f, 1e-9)

	rawNil, fNil := displayAmount(nil, 6)
	assert.Nil(t, rawNil)
	assert.Nil(t, fNil)

	rawBad, fBad := displayAmount(strPtr("not-a-number"), 6)
	require.NotNil(t, rawBad)
	assert.Nil(t, fBad)
}

func TestNativeNotional_NonUzigQuotePoolIsZero(t *testing.T) {
	r := baseRow()
	r.IsUzigQuote = false
	assert.Equal(t, 0.0, nativeNotional(r))
}

func TestNativeNotional_PicksTheUzigSide(t *testing.T) {
	r := baseRow()
	r.OfferDenom = "uzig"
	r.OfferAmountBase = strPtr("2000000")
	assert.InDelta(t, 2.0, nativeNotional(r), 1e-9)
}

func TestShapeTrade_ValueUsdAlwaysZero(t *testing.T) {
	frame, err := shapeTrade(baseRow())
	require.NoError(t, err)

	var decoded tradeFrame
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, "trade", decoded.Type)
	assert.Equal(t, 0.0, decoded.Data.ValueUsd)
	assert.Equal(t, "ABCDEF", decoded.Data.TxHash)
	assert.Equal(t, "500000000", decoded.Data.ReturnAmountBase)
}
