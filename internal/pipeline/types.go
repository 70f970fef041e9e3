package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/parser"
)

// taskKind tags a scan record so tasks stay traceable back to the wasm
// action that produced them (spec §9: "prefer the tagged-record form for
// traceability" over bare closures).
type taskKind int

const (
	kindPoolUpsert taskKind = iota
	kindTrade
	kindMetaFetch
)

// poolUpsertTask is a scanned create_pair event, not yet resolved against
// the token registry.
type poolUpsertTask struct {
	txHash          string
	height          int64
	pairContract    string
	factoryContract string
	pairType        model.PairType
	creator         string
	base            parser.AssetLeg // denom only; amount unused here
	quote           parser.AssetLeg
}

// tradeTask is a scanned swap/provide_liquidity/withdraw_liquidity event,
// not yet resolved against the pool cache.
type tradeTask struct {
	txHash       string
	height       int64
	msgIndex     int
	action       model.Action
	pairContract string
	signer       string

	offerDenom string
	offerAmt   *string
	askDenom   string
	askAmt     *string
	returnAmt  string

	reserveLegs [2]*parser.AssetLeg

	swapAttrs parser.EventAttrs
	txEvents  []parser.RawEvent
}

// metaFetchTask is a first-time-sighting denom queued for LCD enrichment.
type metaFetchTask struct {
	denom string
}

// scanResult is everything the scan stage (§4.7 stage 2) collects before
// any draining happens.
type scanResult struct {
	pools  []poolUpsertTask
	trades []tradeTask
	metas  []metaFetchTask
}

// nativeLegZig extracts the native-quote leg of a two-leg amount pair, in
// display units (divided by 10^6), for size classification (spec §4.4).
func nativeLegZig(offerDenom string, offerAmt *string, askDenom string, askAmt *string) (decimal.Decimal, bool) {
	switch {
	case offerDenom == model.NativeQuoteDenom && offerAmt != nil:
		d, err := decimal.NewFromString(*offerAmt)
		if err != nil {
			return decimal.Zero, false
		}
		return d.Shift(-6), true
	case askDenom == model.NativeQuoteDenom && askAmt != nil:
		d, err := decimal.NewFromString(*askAmt)
		if err != nil {
			return decimal.Zero, false
		}
		return d.Shift(-6), true
	default:
		return decimal.Zero, false
	}
}
