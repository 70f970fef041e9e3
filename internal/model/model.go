// Package model holds the relational data model shared across the
// indexing pipeline: tokens, pools, trades, prices and OHLCV bars.
package model

import "time"

// TokenType classifies how a denom was minted on chain.
type TokenType string

const (
	TokenNative  TokenType = "native"
	TokenFactory TokenType = "factory"
	TokenIBC     TokenType = "ibc"
	TokenCW20    TokenType = "cw20"
)

// NativeQuoteDenom is the chain's micro-denomination pricing unit.
const NativeQuoteDenom = "uzig"

// DefaultExponent is used for tokens discovered with no metadata yet.
const DefaultExponent = 6

// Token is unique by Denom. Metadata fields are filled in later by the
// Token Registry's LCD enrichment path.
type Token struct {
	ID            int64
	Denom         string
	Type          TokenType
	Name          *string
	Symbol        *string
	Display       *string
	Exponent      int
	TotalSupply   *string
	Twitter       *string
	Telegram      *string
	Website       *string
	HolderCount   *int64
	HolderCountAt *time.Time
	Security      *SecurityFlags
	SecurityAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SecurityFlags is a small set of heuristics populated by the Fast-Track
// Reactor's security-scan step. Stored as jsonb.
type SecurityFlags struct {
	Mintable        bool `json:"mintable"`
	HoneypotSuspect bool `json:"honeypot_suspect"`
	OwnerRenounced  bool `json:"owner_renounced"`
}

// PairType enumerates the DEX contract flavors a pool may be created by.
type PairType string

const (
	PairXYK                  PairType = "xyk"
	PairConcentrated         PairType = "concentrated"
	PairCustomConcentrated   PairType = "custom-concentrated"
)

// Pool is unique by PairContract.
type Pool struct {
	ID            int64
	PairContract  string
	DexID         int64
	ChainID       int64
	BaseTokenID   int64
	QuoteTokenID  int64
	BaseDenom     string
	QuoteDenom    string
	PairType      PairType
	IsUzigQuote   bool
	Creator       string
	CreateTxHash  string
	CreateHeight  int64
	CreatedAt     time.Time
}

// Action classifies the contract action that produced a Trade row.
type Action string

const (
	ActionSwap             Action = "swap"
	ActionProvideLiquidity Action = "provide"
	ActionWithdrawLiquidity Action = "withdraw"
)

// Direction classifies which side of the pool a trade took.
type Direction string

const (
	DirBuy      Direction = "buy"
	DirSell     Direction = "sell"
	DirProvide  Direction = "provide"
	DirWithdraw Direction = "withdraw"
)

// SizeClass buckets a trade's native-unit notional.
type SizeClass string

const (
	SizeShrimp SizeClass = "shrimp"
	SizeShark  SizeClass = "shark"
	SizeWhale  SizeClass = "whale"
)

// Trade is append-only; natural key (CreatedAt, TxHash, PoolID, MsgIndex)
// is enforced unique at the store layer.
type Trade struct {
	ID               int64
	CreatedAt        time.Time
	TxHash           string
	PoolID           int64
	MsgIndex         int
	Action           Action
	Direction        Direction
	Signer           string
	OfferDenom       string
	OfferAmountBase  *string // 78-digit decimal string, nil for provide/withdraw
	AskDenom         string
	AskAmountBase    *string
	ReturnAmountBase string
	ReserveBaseDenom  string
	ReserveBaseAmount  string
	ReserveQuoteDenom  string
	ReserveQuoteAmount string
	IsRouter         bool
	Height           int64
	SizeClass        *SizeClass
}

// PoolState is the last-observed reserves snapshot for a pool, overwritten
// on every swap.
type PoolState struct {
	PoolID        int64
	BaseDenom     string
	BaseReserve   string
	QuoteDenom    string
	QuoteReserve  string
	UpdatedAt     time.Time
}

// Price is the latest price row for (TokenID, PoolID).
type Price struct {
	TokenID      int64
	PoolID       int64
	PriceInZig   string // fixed (38,18)
	IsPairNative bool
	UpdatedAt    time.Time
}

// PriceTick is one point in the append-only price time series.
type PriceTick struct {
	ID         int64
	TokenID    int64
	PoolID     int64
	PriceInZig string
	ObservedAt time.Time
}

// OHLCV1m is a one-minute bucketed candle for a pool.
type OHLCV1m struct {
	PoolID      int64
	BucketStart time.Time
	Open        string
	High        string
	Low         string
	Close       string
	VolumeZig   string
	TradeCount  int64
}

// MatrixScope distinguishes pool-level from token-level rollups.
type MatrixScope string

const (
	ScopePool  MatrixScope = "pool"
	ScopeToken MatrixScope = "token"
)

// Bucket is a named rollup window.
type Bucket string

const (
	Bucket30m Bucket = "30m"
	Bucket1h  Bucket = "1h"
	Bucket4h  Bucket = "4h"
	Bucket24h Bucket = "24h"
)

// AllBuckets is the ordered set of rollup windows the Fast-Track Reactor
// recomputes on every pass.
var AllBuckets = []Bucket{Bucket30m, Bucket1h, Bucket4h, Bucket24h}

// BucketWindow returns the duration a bucket name represents.
func BucketWindow(b Bucket) time.Duration {
	switch b {
	case Bucket30m:
		return 30 * time.Minute
	case Bucket1h:
		return time.Hour
	case Bucket4h:
		return 4 * time.Hour
	case Bucket24h:
		return 24 * time.Hour
	default:
		return 0
	}
}

// MatrixRow is a rollup row, unique by (Scope, RefID, Bucket).
type MatrixRow struct {
	Scope          MatrixScope
	RefID          int64
	Bucket         Bucket
	Open           string
	High           string
	Low            string
	Close          string
	VolumeZig      string
	TradeCount     int64
	PriceChangePct string
	UpdatedAt      time.Time
}

// LargeTrade records a trade whose native notional crossed the large
// trade threshold at the moment a matrix rollup observed it.
type LargeTrade struct {
	ID        int64
	TradeID   int64
	PoolID    int64
	Bucket    Bucket
	ValueZig  string
	CreatedAt time.Time
}

// AlertType enumerates the kinds of alert rows the reactor may emit.
type AlertType string

const (
	AlertPriceCross  AlertType = "price_cross"
	AlertWalletTrade AlertType = "wallet_trade"
	AlertLargeTrade  AlertType = "large_trade"
	AlertTVLChange   AlertType = "tvl_change"
)

// Alert is a triggered-condition row.
type Alert struct {
	ID        int64
	AlertType AlertType
	PoolID    *int64
	TokenID   *int64
	Detail    string
	CreatedAt time.Time
}

// IndexState is the single-row high-water mark for resumable processing.
type IndexState struct {
	LastHeight int64
	UpdatedAt  time.Time
}

// NotifyPayload is a structured message published on the in-process bus.
type NotifyPayload struct {
	Topic string
	Data  interface{}
}

// PairCreatedPayload is the payload shape for the "pair_created" topic.
type PairCreatedPayload struct {
	PoolID       int64  `json:"pool_id"`
	PairContract string `json:"pair_contract"`
	BaseDenom    string `json:"base_denom"`
	QuoteDenom   string `json:"quote_denom"`
	BaseTokenID  int64  `json:"base_token_id"`
	QuoteTokenID int64  `json:"quote_token_id"`
	IsUzigQuote  bool   `json:"is_uzig_quote"`
}

const TopicPairCreated = "pair_created"
const TopicTradeInserted = "trade_inserted"
