// Package reactor implements the Fast-Track Reactor (spec §4.10): on
// every pair_created notification it drives metadata, holder-count and
// security enrichment, rolls up the pool/token matrices, evaluates
// alert rules, and seeds price/OHLCV for freshly created native-quote
// pools.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/chain"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/notify"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/store"
)

// ErrNoRule is returned by alert evaluators that have no watchlist input
// to act on yet. It marks a stub, not a failure: EvaluatePriceCross and
// EvaluateWalletTrade always return it, and nothing in this repository
// calls them (SPEC_FULL.md, Open Questions decision 1).
var ErrNoRule = errors.New("reactor: no rule configured for this alert type")

// Reactor subscribes to the notify bus and reacts to pair_created.
type Reactor struct {
	lcd    chain.LCDClient
	tokens *store.TokenRegistry
	pools  *store.PoolRegistry
	prices *store.PriceEngine
	ohlcv  *store.OHLCVAggregator
	matrix *store.MatrixStore
	large  *store.LargeTradeStore
	alerts *store.AlertStore

	largeTradeZig    decimal.Decimal
	tvlAlertDeltaPct decimal.Decimal

	log *zap.Logger
}

// New builds a Reactor. Call Start to subscribe to the bus.
func New(
	lcd chain.LCDClient,
	tokens *store.TokenRegistry,
	pools *store.PoolRegistry,
	prices *store.PriceEngine,
	ohlcv *store.OHLCVAggregator,
	matrix *store.MatrixStore,
	large *store.LargeTradeStore,
	alerts *store.AlertStore,
	largeTradeZig, tvlAlertDeltaPct float64,
	log *zap.Logger,
) *Reactor {
	return &Reactor{
		lcd: lcd, tokens: tokens, pools: pools, prices: prices, ohlcv: ohlcv,
		matrix: matrix, large: large, alerts: alerts,
		largeTradeZig:    decimal.NewFromFloat(largeTradeZig),
		tvlAlertDeltaPct: decimal.NewFromFloat(tvlAlertDeltaPct),
		log:              log,
	}
}

// Start subscribes to pair_created and returns the unsubscribe func.
func (r *Reactor) Start(bus *notify.Bus) func() {
	return bus.Listen(model.TopicPairCreated, func(payload model.NotifyPayload) {
		p, ok := payload.Data.(model.PairCreatedPayload)
		if !ok {
			r.log.Warn("reactor: pair_created payload has unexpected type")
			return
		}
		r.React(context.Background(), p)
	})
}

// React runs the five numbered steps of spec §4.10, each isolated so one
// step's failure never prevents the others from running.
func (r *Reactor) React(ctx context.Context, p model.PairCreatedPayload) {
	pool, err := r.pools.PoolByID(ctx, p.PoolID)
	if err != nil || pool == nil {
		r.log.Warn("reactor: pool lookup failed", zap.Int64("pool_id", p.PoolID), zap.Error(err))
		return
	}

	r.refreshMetadata(ctx, pool)
	r.refreshHolderCounts(ctx, pool)
	r.securityScan(ctx, pool)
	r.rollupMatrices(ctx, pool)
	r.seedPricing(ctx, pool)
}

// Step 1: parallel metadata refresh for both legs.
func (r *Reactor) refreshMetadata(ctx context.Context, pool *model.Pool) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.tokens.SetTokenMetaFromLCD(ctx, pool.BaseDenom) }()
	go func() { defer wg.Done(); r.tokens.SetTokenMetaFromLCD(ctx, pool.QuoteDenom) }()
	wg.Wait()
}

// Step 2: parallel holder-count refresh, base always, quote only when
// non-native, retrying once if a fetch reports zero holders.
func (r *Reactor) refreshHolderCounts(ctx context.Context, pool *model.Pool) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.refreshOneHolderCount(ctx, pool.BaseTokenID, pool.BaseDenom)
	}()
	if !pool.IsUzigQuote {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.refreshOneHolderCount(ctx, pool.QuoteTokenID, pool.QuoteDenom)
		}()
	}
	wg.Wait()
}

func (r *Reactor) refreshOneHolderCount(ctx context.Context, tokenID int64, denom string) {
	count, err := r.lcd.HolderCount(ctx, denom)
	if err != nil {
		r.log.Warn("reactor: holder count fetch failed", zap.String("denom", denom), zap.Error(err))
		return
	}
	if count == 0 {
		count, err = r.lcd.HolderCount(ctx, denom)
		if err != nil {
			r.log.Warn("reactor: holder count retry failed", zap.String("denom", denom), zap.Error(err))
			return
		}
	}
	if err := r.tokens.SetTokenHolderCount(ctx, tokenID, count); err != nil {
		r.log.Warn("reactor: set holder count failed", zap.String("denom", denom), zap.Error(err))
	}
}

// Step 3: security scan for base (and quote when non-native).
func (r *Reactor) securityScan(ctx context.Context, pool *model.Pool) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.scanOne(ctx, pool.BaseTokenID, pool.BaseDenom)
	}()
	if !pool.IsUzigQuote {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.scanOne(ctx, pool.QuoteTokenID, pool.QuoteDenom)
		}()
	}
	wg.Wait()
}

func (r *Reactor) scanOne(ctx context.Context, tokenID int64, denom string) {
	mintable, honeypot, renounced, err := r.lcd.SecurityScan(ctx, denom)
	if err != nil {
		r.log.Warn("reactor: security scan failed", zap.String("denom", denom), zap.Error(err))
		return
	}
	flags := model.SecurityFlags{Mintable: mintable, HoneypotSuspect: honeypot, OwnerRenounced: renounced}
	if err := r.tokens.SetTokenSecurityFlags(ctx, tokenID, flags); err != nil {
		r.log.Warn("reactor: set security flags failed", zap.String("denom", denom), zap.Error(err))
	}
}

// Step 4: pool and token matrix rollups across all four buckets, each
// followed by the tvl_change / large_trade alert evaluation.
func (r *Reactor) rollupMatrices(ctx context.Context, pool *model.Pool) {
	for _, bucket := range model.AllBuckets {
		prevVol, hadPrev := r.matrix.PoolMatrixVolume(ctx, pool.ID, bucket)

		if err := r.matrix.RecomputePoolMatrix(ctx, pool.ID, bucket); err != nil {
			r.log.Warn("reactor: recompute pool matrix failed",
				zap.Int64("pool_id", pool.ID), zap.String("bucket", string(bucket)), zap.Error(err))
		} else if bucket == model.Bucket30m {
			r.evaluateTVLAlert(ctx, pool, bucket, prevVol, hadPrev)
		}

		if err := r.matrix.RecomputeTokenMatrix(ctx, pool.BaseTokenID, bucket); err != nil {
			r.log.Warn("reactor: recompute token matrix failed",
				zap.Int64("token_id", pool.BaseTokenID), zap.String("bucket", string(bucket)), zap.Error(err))
		}

		r.evaluateLargeTrades(ctx, pool, bucket)
	}
}

func (r *Reactor) evaluateTVLAlert(ctx context.Context, pool *model.Pool, bucket model.Bucket, prevVol decimal.Decimal, hadPrev bool) {
	if !hadPrev || prevVol.IsZero() {
		return
	}
	newVol, ok := r.matrix.PoolMatrixVolume(ctx, pool.ID, bucket)
	if !ok {
		return
	}
	deltaPct := newVol.Sub(prevVol).Div(prevVol).Mul(decimal.NewFromInt(100)).Abs()
	if deltaPct.LessThan(r.tvlAlertDeltaPct) {
		return
	}
	err := r.alerts.Insert(ctx, model.Alert{
		AlertType: model.AlertTVLChange,
		PoolID:    &pool.ID,
		Detail:    fmt.Sprintf("30m volume_zig moved %s%% (from %s to %s)", deltaPct.StringFixed(2), prevVol.String(), newVol.String()),
	})
	if err != nil {
		r.log.Warn("reactor: insert tvl_change alert failed", zap.Int64("pool_id", pool.ID), zap.Error(err))
	}
}

func (r *Reactor) evaluateLargeTrades(ctx context.Context, pool *model.Pool, bucket model.Bucket) {
	candidates, err := r.large.FindLargeTrades(ctx, pool.ID, bucket, r.largeTradeZig)
	if err != nil {
		r.log.Warn("reactor: find large trades failed", zap.Int64("pool_id", pool.ID), zap.Error(err))
		return
	}
	for _, c := range candidates {
		inserted, err := r.large.UpsertLargeTrade(ctx, c.TradeID, pool.ID, bucket, c.ValueZig)
		if err != nil {
			r.log.Warn("reactor: upsert large trade failed", zap.Int64("trade_id", c.TradeID), zap.Error(err))
			continue
		}
		if !inserted {
			continue // already alerted on a previous rollup pass
		}
		err = r.alerts.Insert(ctx, model.Alert{
			AlertType: model.AlertLargeTrade,
			PoolID:    &pool.ID,
			Detail:    fmt.Sprintf("trade %d moved %s ZIG (bucket %s)", c.TradeID, c.ValueZig.String(), bucket),
		})
		if err != nil {
			r.log.Warn("reactor: insert large_trade alert failed", zap.Int64("trade_id", c.TradeID), zap.Error(err))
		}
	}
}

// Step 5: seed pricing for native-quote pools only, once the base
// token's exponent is populated, guaranteeing a freshly created pool is
// immediately queryable.
func (r *Reactor) seedPricing(ctx context.Context, pool *model.Pool) {
	if !pool.IsUzigQuote {
		return
	}
	baseToken, err := r.tokens.GetByID(ctx, pool.BaseTokenID)
	if err != nil {
		r.log.Warn("reactor: seed pricing token lookup failed", zap.Int64("token_id", pool.BaseTokenID), zap.Error(err))
		return
	}
	if baseToken.Exponent == 0 {
		return // LCD metadata gave no display-unit exponent; no seed price is written
	}
	quoteToken, err := r.tokens.GetByID(ctx, pool.QuoteTokenID)
	if err != nil {
		r.log.Warn("reactor: seed pricing quote token lookup failed", zap.Int64("token_id", pool.QuoteTokenID), zap.Error(err))
		return
	}

	baseLeg, quoteLeg, err := r.prices.FetchPoolReserves(ctx, pool.PairContract)
	if err != nil {
		r.log.Warn("reactor: fetch pool reserves failed", zap.String("pair_contract", pool.PairContract), zap.Error(err))
		return
	}
	price, ok := store.PriceFromReserves(
		store.TokenLegInfo{Denom: baseToken.Denom, Exponent: baseToken.Exponent},
		store.TokenLegInfo{Denom: quoteToken.Denom, Exponent: quoteToken.Exponent},
		baseLeg, quoteLeg)
	if !ok {
		return
	}

	if err := r.prices.UpsertPrice(ctx, pool.BaseTokenID, pool.ID, price, true); err != nil {
		r.log.Warn("reactor: seed price upsert failed", zap.Int64("pool_id", pool.ID), zap.Error(err))
		return
	}
	err = r.ohlcv.UpsertOHLCV1m(ctx, store.UpsertParams{
		PoolID:      pool.ID,
		BucketStart: store.BucketFloor(pool.CreatedAt),
		Price:       price,
		VolZig:      decimal.Zero,
		TradeInc:    0,
	})
	if err != nil {
		r.log.Warn("reactor: seed ohlcv upsert failed", zap.Int64("pool_id", pool.ID), zap.Error(err))
	}
}

// EvaluatePriceCross is a documented stub: price-target alerts need a
// watchlist this pipeline does not own yet.
func (r *Reactor) EvaluatePriceCross(ctx context.Context, tokenID int64) error {
	return ErrNoRule
}

// EvaluateWalletTrade is a documented stub: watched-wallet alerts need a
// watchlist this pipeline does not own yet.
func (r *Reactor) EvaluateWalletTrade(ctx context.Context, signer string) error {
	return ErrNoRule
}
