package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/metrics"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/store"
)

const (
	pumpInterval  = 2 * time.Second
	pumpRowCap    = 200
	coldStartBack = 10 * time.Minute
)

// tradePayload is the "data" object of a trade broadcast frame (spec §6).
type tradePayload struct {
	Time             time.Time `json:"time"`
	TxHash           string    `json:"txHash"`
	PairContract     string    `json:"pairContract"`
	Signer           string    `json:"signer"`
	Direction        string    `json:"direction"`
	OfferDenom       string    `json:"offerDenom"`
	OfferAmountBase  *string   `json:"offerAmountBase,omitempty"`
	OfferAmount      *float64  `json:"offerAmount,omitempty"`
	AskDenom         string    `json:"askDenom"`
	AskAmountBase    *string   `json:"askAmountBase,omitempty"`
	AskAmount        *float64  `json:"askAmount,omitempty"`
	ReturnAmountBase string    `json:"returnAmountBase"`
	ReturnAmount     float64   `json:"returnAmount"`
	ValueNative      float64   `json:"valueNative"`
	ValueUsd         float64   `json:"valueUsd"`
}

type tradeFrame struct {
	Type string       `json:"type"`
	Data tradePayload `json:"data"`
}

// Pump tails the trades table and fans shaped rows out through a Hub.
// Grounded on spec §4.11's trade-pump description; there is no USD price
// oracle anywhere upstream in this pipeline, so valueUsd is always
// reported as 0 rather than invented.
type Pump struct {
	feed      *store.FeedStore
	hub       *Hub
	log       *zap.Logger
	watermark time.Time
}

// NewPump builds a Pump with a cold-start watermark of now minus 10
// minutes, per spec.
func NewPump(feed *store.FeedStore, hub *Hub, log *zap.Logger) *Pump {
	return &Pump{feed: feed, hub: hub, log: log, watermark: time.Now().UTC().Add(-coldStartBack)}
}

// Run polls every 2s until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				p.log.Error("broadcast: pump tick failed", zap.Error(err))
			}
			metrics.BroadcastPumpLag.Set(time.Since(p.watermark).Seconds())
		}
	}
}

func (p *Pump) tick(ctx context.Context) error {
	rows, err := p.feed.Since(ctx, p.watermark, pumpRowCap)
	if err != nil {
		return fmt.Errorf("pump: fetch since %s: %w", p.watermark, err)
	}
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		frame, err := shapeTrade(r)
		if err != nil {
			p.log.Warn("broadcast: skipping unshapeable trade", zap.Int64("trade_id", r.TradeID), zap.Error(err))
			continue
		}
		p.publish(r, frame)
	}

	p.watermark = rows[len(rows)-1].CreatedAt
	return nil
}

func (p *Pump) publish(r store.TradeFeedRow, frame []byte) {
	p.hub.Publish("trades.stream", frame)
	p.hub.Publish(fmt.Sprintf("trades.stream.token:%d", r.BaseTokenID), frame)
	p.hub.Publish(fmt.Sprintf("trades.stream.token:%s", r.BaseDenom), frame)
	if r.BaseSymbol != nil {
		p.hub.Publish(fmt.Sprintf("trades.stream.token:%s", *r.BaseSymbol), frame)
	}
	p.hub.Publish(fmt.Sprintf("trades.stream.pair:%s", r.PairContract), frame)
}

func shapeTrade(r store.TradeFeedRow) ([]byte, error) {
	offerAmt, offerDisplay := displayAmount(r.OfferAmountBase, exponentFor(r.OfferDenom, r))
	askAmt, askDisplay := displayAmount(r.AskAmountBase, exponentFor(r.AskDenom, r))

	returnDec, err := decimal.NewFromString(r.ReturnAmountBase)
	if err != nil {
		return nil, fmt.Errorf("parse return amount: %w", err)
	}
	returnDisplay, _ := returnDec.Shift(int32(-r.BaseExponent)).Float64()

	payload := tradePayload{
		Time:             r.CreatedAt,
		TxHash:           r.TxHash,
		PairContract:     r.PairContract,
		Signer:           r.Signer,
		Direction:        r.Direction,
		OfferDenom:       r.OfferDenom,
		OfferAmountBase:  offerAmt,
		OfferAmount:      offerDisplay,
		AskDenom:         r.AskDenom,
		AskAmountBase:    askAmt,
		AskAmount:        askDisplay,
		ReturnAmountBase: r.ReturnAmountBase,
		ReturnAmount:     returnDisplay,
		ValueNative:      nativeNotional(r),
		ValueUsd:         0,
	}

	return json.Marshal(tradeFrame{Type: "trade", Data: payload})
}

// exponentFor resolves the display exponent for whichever side (base or
// quote) a denom belongs to; unrecognized denoms fall back to the base
// exponent rather than failing the whole shape.
func exponentFor(denom string, r store.TradeFeedRow) int {
	if denom == r.QuoteDenom {
		return r.QuoteExponent
	}
	return r.BaseExponent
}

func displayAmount(raw *string, exponent int) (*string, *float64) {
	if raw == nil {
		return nil, nil
	}
	dec, err := decimal.NewFromString(*raw)
	if err != nil {
		return raw, nil
	}
	f, _ := dec.Shift(int32(-exponent)).Float64()
	return raw, &f
}

// nativeNotional returns the trade's native-quote (uzig) display-unit
// size, or 0 when the pool is not natively quoted.
func nativeNotional(r store.TradeFeedRow) float64 {
	if !r.IsUzigQuote {
		return 0
	}
	var raw *string
	switch {
	case r.OfferDenom == model.NativeQuoteDenom:
		raw = r.OfferAmountBase
	case r.AskDenom == model.NativeQuoteDenom:
		raw = r.AskAmountBase
	default:
		return 0
	}
	if raw == nil {
		return 0
	}
	dec, err := decimal.NewFromString(*raw)
	if err != nil {
		return 0
	}
	f, _ := dec.Shift(-6).Float64()
	return f
}
