package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/notify"
)

// TestTokenAndPoolUpsertAreIdempotent exercises spec §8 property: a
// replayed create_pair event (or repeated token sighting) must never
// produce a duplicate row. Grounded on backendService/integration_test.go's
// style of standing up real collaborators against a live database rather
// than mocking the SQL layer.
func TestTokenAndPoolUpsertAreIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tokens := NewTokenRegistry(db, nil, zap.NewNop())
	baseID, err := tokens.UpsertTokenMinimal(ctx, "factory/contract/TOKEN")
	require.NoError(t, err)
	again, err := tokens.UpsertTokenMinimal(ctx, "factory/contract/TOKEN")
	require.NoError(t, err)
	assert.Equal(t, baseID, again, "upserting the same denom twice must resolve to the same token id")

	quoteID, err := tokens.UpsertTokenMinimal(ctx, "uzig")
	require.NoError(t, err)

	bus := notify.New(zap.NewNop(), nil)
	var gotCreate model.PairCreatedPayload
	var createCount int
	bus.Listen(model.TopicPairCreated, func(p model.NotifyPayload) {
		gotCreate = p.Data.(model.PairCreatedPayload)
		createCount++
	})

	pools := NewPoolRegistry(db, bus, zap.NewNop())
	params := UpsertPoolParams{
		PairContract:    "zig1pair1",
		FactoryContract: "zig1factory",
		BaseTokenID:     baseID,
		BaseDenom:       "factory/contract/TOKEN",
		QuoteTokenID:    quoteID,
		QuoteDenom:      "uzig",
		PairType:        model.PairXYK,
		Creator:         "zig1creator",
		CreateTxHash:    "ABCDEF",
		CreateHeight:    100,
	}

	poolID, err := pools.UpsertPool(ctx, params)
	require.NoError(t, err)
	assert.NotZero(t, poolID)

	poolIDAgain, err := pools.UpsertPool(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, poolID, poolIDAgain, "re-upserting an existing pair_contract must not create a second pool")

	// Wait for the async notify worker goroutine to deliver.
	require.Eventually(t, func() bool { return createCount > 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, createCount, "pair_created must fire exactly once, only on genuine creation")
	assert.Equal(t, "zig1pair1", gotCreate.PairContract)
	assert.True(t, gotCreate.IsUzigQuote)
}

// TestTradeSinkDedupesOnReplay exercises spec §8 property: replaying the
// same block's trade rows must not duplicate a row in the trades table,
// since (tx_hash, pool_id, msg_index, created_at) is a unique key handled
// with ON CONFLICT DO NOTHING.
func TestTradeSinkDedupesOnReplay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tokens := NewTokenRegistry(db, nil, zap.NewNop())
	baseID, err := tokens.UpsertTokenMinimal(ctx, "factory/contract/DEDUPE")
	require.NoError(t, err)
	quoteID, err := tokens.UpsertTokenMinimal(ctx, "uzig")
	require.NoError(t, err)

	pools := NewPoolRegistry(db, notify.New(zap.NewNop(), nil), zap.NewNop())
	poolID, err := pools.UpsertPool(ctx, UpsertPoolParams{
		PairContract:    "zig1pair2",
		FactoryContract: "zig1factory",
		BaseTokenID:     baseID,
		BaseDenom:       "factory/contract/DEDUPE",
		QuoteTokenID:    quoteID,
		QuoteDenom:      "uzig",
		PairType:        model.PairXYK,
		CreateHeight:    50,
	})
	require.NoError(t, err)

	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trade := model.Trade{
		CreatedAt:          createdAt,
		TxHash:             "DEADBEEF",
		PoolID:             poolID,
		MsgIndex:           0,
		Action:             model.ActionSwap,
		Direction:          model.DirBuy,
		Signer:             "zig1signer",
		OfferDenom:         "uzig",
		ReturnAmountBase:   "1000000",
		ReserveBaseDenom:   "factory/contract/DEDUPE",
		ReserveBaseAmount:  "1000000000",
		ReserveQuoteDenom:  "uzig",
		ReserveQuoteAmount: "500000000",
		Height:             50,
	}

	sink := NewTradeSink(db, zap.NewNop(), 10, time.Hour)
	require.NoError(t, sink.InsertTrade(trade))
	require.NoError(t, sink.DrainTrades())
	// Replay the identical row once more; the unique key must absorb it.
	require.NoError(t, sink.InsertTrade(trade))
	require.NoError(t, sink.DrainTrades())

	var count int
	require.NoError(t, db.Conn.QueryRowContext(ctx,
		`SELECT count(*) FROM trades WHERE tx_hash = $1`, "DEADBEEF").Scan(&count))
	assert.Equal(t, 1, count, "replaying the same trade must not duplicate it")
}

// TestIndexStateWatermarkAdvancesMonotonically exercises the resumability
// contract: LastHeight must reflect the most recent SetLastHeight call.
func TestIndexStateWatermarkAdvancesMonotonically(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	state := NewIndexStateStore(db)
	start, err := state.LastHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), start)

	require.NoError(t, state.SetLastHeight(ctx, 42))
	got, err := state.LastHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

// TestFeedStoreSinceIsStrictlyAfterWatermark exercises the Live
// Broadcaster pump's duplicate-free polling contract: a row exactly at
// the watermark must not be returned again on the next poll.
func TestFeedStoreSinceIsStrictlyAfterWatermark(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tokens := NewTokenRegistry(db, nil, zap.NewNop())
	baseID, err := tokens.UpsertTokenMinimal(ctx, "factory/contract/FEED")
	require.NoError(t, err)
	quoteID, err := tokens.UpsertTokenMinimal(ctx, "uzig")
	require.NoError(t, err)

	pools := NewPoolRegistry(db, notify.New(zap.NewNop(), nil), zap.NewNop())
	poolID, err := pools.UpsertPool(ctx, UpsertPoolParams{
		PairContract:    "zig1pair3",
		FactoryContract: "zig1factory",
		BaseTokenID:     baseID,
		BaseDenom:       "factory/contract/FEED",
		QuoteTokenID:    quoteID,
		QuoteDenom:      "uzig",
		PairType:        model.PairXYK,
		CreateHeight:    1,
	})
	require.NoError(t, err)

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	sink := NewTradeSink(db, zap.NewNop(), 10, time.Hour)
	require.NoError(t, sink.InsertTrade(model.Trade{
		CreatedAt: t1, TxHash: "TX1", PoolID: poolID, Action: model.ActionSwap, Direction: model.DirBuy,
		OfferDenom: "uzig", AskDenom: "factory/contract/FEED",
		ReturnAmountBase: "1", ReserveBaseDenom: "factory/contract/FEED", ReserveBaseAmount: "1",
		ReserveQuoteDenom: "uzig", ReserveQuoteAmount: "1", Height: 1,
	}))
	require.NoError(t, sink.InsertTrade(model.Trade{
		CreatedAt: t2, TxHash: "TX2", PoolID: poolID, Action: model.ActionSwap, Direction: model.DirBuy,
		OfferDenom: "uzig", AskDenom: "factory/contract/FEED",
		ReturnAmountBase: "1", ReserveBaseDenom: "factory/contract/FEED", ReserveBaseAmount: "1",
		ReserveQuoteDenom: "uzig", ReserveQuoteAmount: "1", Height: 1,
	}))
	require.NoError(t, sink.DrainTrades())

	feed := NewFeedStore(db)
	rows, err := feed.Since(ctx, t1.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = feed.Since(ctx, t1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TX2", rows[0].TxHash)

	rows, err = feed.Since(ctx, t2, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
