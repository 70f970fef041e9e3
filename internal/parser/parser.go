package parser

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
)

// blockResultsEnvelope mirrors just enough of a CometBFT-style
// block_results response to pull per-tx events out of it. The RPC client
// itself is an external collaborator (spec §1); this is the decoding
// boundary the rest of the pipeline sits behind.
type blockResultsEnvelope struct {
	Result struct {
		TxsResults []struct {
			Events []wireEvent `json:"events"`
		} `json:"txs_results"`
	} `json:"result"`
}

type wireEvent struct {
	Type       string          `json:"type"`
	Attributes []wireAttribute `json:"attributes"`
}

type wireAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// decodeAttr tries base64 first (older CometBFT encodes attribute
// key/value as base64), falling back to the literal string. Tolerant by
// design: a malformed attribute never aborts the block.
func decodeAttr(s string) string {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		// Heuristic: only treat as base64 if round-tripping produced
		// printable content different from the input; otherwise a
		// plain numeric/hex string would be "successfully" but
		// incorrectly decoded.
		if isPrintable(decoded) && string(decoded) != s {
			return string(decoded)
		}
	}
	return s
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x09 || (c > 0x0d && c < 0x20) {
			return false
		}
	}
	return true
}

// ExtractTxEvents decodes one transaction's events out of the opaque
// block-results JSON blob.
func ExtractTxEvents(blockResultsJSON []byte, txIndex int) ([]RawEvent, error) {
	var env blockResultsEnvelope
	if err := json.Unmarshal(blockResultsJSON, &env); err != nil {
		return nil, fmt.Errorf("decode block_results: %w", err)
	}
	if txIndex < 0 || txIndex >= len(env.Result.TxsResults) {
		return nil, fmt.Errorf("tx index %d out of range (have %d)", txIndex, len(env.Result.TxsResults))
	}
	txResult := env.Result.TxsResults[txIndex]
	events := make([]RawEvent, 0, len(txResult.Events))
	for _, we := range txResult.Events {
		attrs := make(map[string]string, len(we.Attributes))
		for _, a := range we.Attributes {
			attrs[decodeAttr(a.Key)] = decodeAttr(a.Value)
		}
		events = append(events, RawEvent{Type: we.Type, Attrs: NewEventAttrs(attrs)})
	}
	return events, nil
}

// TxCount returns how many transactions are present in a block-results blob.
func TxCount(blockResultsJSON []byte) (int, error) {
	var env blockResultsEnvelope
	if err := json.Unmarshal(blockResultsJSON, &env); err != nil {
		return 0, fmt.Errorf("decode block_results: %w", err)
	}
	return len(env.Result.TxsResults), nil
}

// WasmByAction returns all "wasm" events whose "action" attribute equals
// action, preserving order.
func WasmByAction(events []RawEvent, action string) []EventAttrs {
	var out []EventAttrs
	for _, e := range events {
		if e.Type != "wasm" {
			continue
		}
		if v, ok := e.Attrs.Get("action"); ok && v == action {
			out = append(out, e.Attrs)
		}
	}
	return out
}

// BuildMsgSenderMap maps msg_index to the sender attribution found on
// "message" events, used to recover the on-chain EOA for a given
// sub-message.
func BuildMsgSenderMap(messageEvents []RawEvent) map[int64]string {
	out := make(map[int64]string)
	for _, e := range messageEvents {
		if e.Type != "message" {
			continue
		}
		sender, ok := e.Attrs.Get("sender")
		if !ok {
			continue
		}
		idx, ok := e.Attrs.MustInt("msg_index")
		if !ok {
			idx = int64(len(out))
		}
		out[idx] = sender
	}
	return out
}

// NormalizedPair is the result of splitting a "pair" attribute into base
// and quote denoms.
type NormalizedPair struct {
	Base  string
	Quote string
}

// NormalizePair splits the "pair" attribute (format "<denomA>-<denomB>"
// or "<a>, <b>") into {base, quote}. If one side is the native quote
// denom it is quote; otherwise stable lexical order picks quote, with
// the right-hand side winning ties.
func NormalizePair(pairAttr string) (NormalizedPair, bool) {
	sep := "-"
	if strings.Contains(pairAttr, ", ") {
		sep = ", "
	} else if strings.Contains(pairAttr, ",") {
		sep = ","
	}
	parts := strings.SplitN(pairAttr, sep, 2)
	if len(parts) != 2 {
		return NormalizedPair{}, false
	}
	left := strings.TrimSpace(parts[0])
	right := strings.TrimSpace(parts[1])
	if left == "" || right == "" {
		return NormalizedPair{}, false
	}

	switch {
	case right == model.NativeQuoteDenom:
		return NormalizedPair{Base: left, Quote: right}, true
	case left == model.NativeQuoteDenom:
		return NormalizedPair{Base: right, Quote: left}, true
	}

	// Neither side is native quote: stable lexical order picks quote,
	// tie-break (equal strings can't actually tie, but the rule is
	// "right-hand side wins") goes to the right-hand side.
	if left < right {
		return NormalizedPair{Base: left, Quote: right}, true
	}
	return NormalizedPair{Base: right, Quote: left}, true
}

// AssetLeg is one side of a two-legged reserve or asset list, denom and
// amount_base, or nil if that leg could not be resolved.
type AssetLeg struct {
	Denom      string
	AmountBase string
}

// ParseReservesKV parses a "reserves" attribute of the form
// "<denomA>: <amtA>, <denomB>: <amtB>" into exactly two legs; only ":"
// is accepted as the separator, and unresolved legs come back nil.
func ParseReservesKV(s string) [2]*AssetLeg {
	return parseTwoLegString(s, ":")
}

// ParseAssetsList parses an "assets"/"refund_assets" attribute of the
// form "<amtA><denomA>, <amtB><denomB>" (CosmWasm Coin.String() style,
// amount directly concatenated with denom) into exactly two legs.
func ParseAssetsList(s string) [2]*AssetLeg {
	parts := splitTopLevel(s, ',')
	var legs [2]*AssetLeg
	li := 0
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || li >= 2 {
			continue
		}
		leg := parseCoinString(p)
		if leg != nil {
			legs[li] = leg
			li++
		}
	}
	return legs
}

// parseCoinString parses "<amount><denom>" with no separator, the
// standard sdk.Coin.String() shape.
func parseCoinString(s string) *AssetLeg {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return nil
	}
	amt := s[:i]
	denom := strings.TrimSpace(s[i:])
	if denom == "" {
		return nil
	}
	return &AssetLeg{Denom: denom, AmountBase: amt}
}

// parseTwoLegString parses "key<sep> value, key<sep> value" shapes.
func parseTwoLegString(s, sep string) [2]*AssetLeg {
	var legs [2]*AssetLeg
	parts := splitTopLevel(s, ',')
	li := 0
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || li >= 2 {
			continue
		}
		kv := strings.SplitN(p, sep, 2)
		if len(kv) != 2 {
			continue
		}
		denom := strings.TrimSpace(kv[0])
		amt := DigitsOrNull(strings.TrimSpace(kv[1]))
		if denom == "" || amt == nil {
			continue
		}
		legs[li] = &AssetLeg{Denom: denom, AmountBase: *amt}
		li++
	}
	return legs
}

func splitTopLevel(s string, r rune) []string {
	return strings.FieldsFunc(s, func(c rune) bool { return c == r })
}

// DigitsOrNull accepts only strings of ASCII digits; anything else
// (including empty) returns nil.
func DigitsOrNull(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil
		}
	}
	return &s
}

// Sha256Hex reproduces the node's tx hash convention: uppercase hex of
// the sha256 digest of the raw tx bytes.
func Sha256Hex(txBytes []byte) string {
	sum := sha256.Sum256(txBytes)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ParseIntOrZero is a small convenience used by callers classifying
// msg_index attributes that are sometimes absent.
func ParseIntOrZero(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ResolveLegs applies the spec's fallback order for reserve/leg amounts:
// direct attributes (reserve_asset{1,2}_denom/amount) first, then a
// structured attribute under one of the given keys (e.g. "reserves",
// "assets", "refund_assets"), otherwise nil legs.
func ResolveLegs(attrs EventAttrs, structuredKeys ...string) [2]*AssetLeg {
	var legs [2]*AssetLeg

	d1, ok1 := attrs.Get("reserve_asset1_denom")
	a1, ok2 := attrs.Get("reserve_asset1_amount")
	if ok1 && ok2 {
		if amt := DigitsOrNull(a1); amt != nil {
			legs[0] = &AssetLeg{Denom: d1, AmountBase: *amt}
		}
	}
	d2, ok3 := attrs.Get("reserve_asset2_denom")
	a2, ok4 := attrs.Get("reserve_asset2_amount")
	if ok3 && ok4 {
		if amt := DigitsOrNull(a2); amt != nil {
			legs[1] = &AssetLeg{Denom: d2, AmountBase: *amt}
		}
	}
	if legs[0] != nil && legs[1] != nil {
		return legs
	}

	for _, key := range structuredKeys {
		raw, ok := attrs.Get(key)
		if !ok {
			continue
		}
		var structured [2]*AssetLeg
		if strings.Contains(raw, ":") {
			structured = parseTwoLegString(raw, ":")
		} else {
			structured = ParseAssetsList(raw)
		}
		if legs[0] == nil {
			legs[0] = structured[0]
		}
		if legs[1] == nil {
			legs[1] = structured[1]
		}
		if legs[0] != nil && legs[1] != nil {
			break
		}
	}
	return legs
}
