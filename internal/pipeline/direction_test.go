package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/parser"
)

func TestClassifyDirection(t *testing.T) {
	const base, quote = "factory/contract/TOKEN", "uzig"

	cases := []struct {
		name                   string
		offerDenom, askDenom   string
		want                   model.Direction
	}{
		{"offer is quote -> buy", quote, base, model.DirBuy},
		{"offer is base -> sell", base, quote, model.DirSell},
		{"neither offer matches, ask is base -> buy", "unknown", base, model.DirBuy},
		{"neither offer matches, ask is quote -> sell", "unknown", quote, model.DirSell},
		{"neither side recognized defaults to sell", "unknown", "also-unknown", model.DirSell},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyDirection(tc.offerDenom, tc.askDenom, base, quote)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsRouter_EmptyRouterAddrNeverMatches(t *testing.T) {
	attrs := parser.NewEventAttrs(map[string]string{"sender": "zig1anything"})
	assert.False(t, isRouter(attrs, nil, ""))
}

func TestIsRouter_SenderMatchesRouter(t *testing.T) {
	const router = "zig1router"
	attrs := parser.NewEventAttrs(map[string]string{"sender": router})
	assert.True(t, isRouter(attrs, nil, router))
}

func TestIsRouter_SameTxExecuteEventTargetsRouterWithMatchingMsgIndex(t *testing.T) {
	const router = "zig1router"
	swapAttrs := parser.NewEventAttrs(map[string]string{"sender": "zig1user", "msg_index": "2"})
	txEvents := []parser.RawEvent{
		{Type: "execute", Attrs: parser.NewEventAttrs(map[string]string{
			"_contract_address": router,
			"msg_index":         "2",
		})},
	}
	assert.True(t, isRouter(swapAttrs, txEvents, router))
}

func TestIsRouter_ExecuteEventWithDifferentMsgIndexDoesNotMatch(t *testing.T) {
	const router = "zig1router"
	swapAttrs := parser.NewEventAttrs(map[string]string{"sender": "zig1user", "msg_index": "2"})
	txEvents := []parser.RawEvent{
		{Type: "execute", Attrs: parser.NewEventAttrs(map[string]string{
			"_contract_address": router,
			"msg_index":         "5",
		})},
	}
	assert.False(t, isRouter(swapAttrs, txEvents, router))
}

func TestIsRouter_NoMsgIndexOnSwapMatchesUnconditionally(t *testing.T) {
	const router = "zig1router"
	swapAttrs := parser.NewEventAttrs(map[string]string{"sender": "zig1user"})
	txEvents := []parser.RawEvent{
		{Type: "execute", Attrs: parser.NewEventAttrs(map[string]string{"_contract_address": router})},
	}
	assert.True(t, isRouter(swapAttrs, txEvents, router))
}

func TestIsRouter_NoMatchingEvent(t *testing.T) {
	const router = "zig1router"
	swapAttrs := parser.NewEventAttrs(map[string]string{"sender": "zig1user"})
	txEvents := []parser.RawEvent{
		{Type: "transfer", Attrs: parser.NewEventAttrs(map[string]string{"_contract_address": router})},
	}
	assert.False(t, isRouter(swapAttrs, txEvents, router))
}
