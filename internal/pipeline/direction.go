package pipeline

import (
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/parser"
)

// classifyDirection implements spec §4.7's swap direction rule: buy if
// the offer denom is the pool's quote, sell if it's the pool's base,
// otherwise fall back to the symmetric rule on the ask denom.
func classifyDirection(offerDenom, askDenom, baseDenom, quoteDenom string) model.Direction {
	switch offerDenom {
	case quoteDenom:
		return model.DirBuy
	case baseDenom:
		return model.DirSell
	}
	switch askDenom {
	case baseDenom:
		return model.DirBuy
	case quoteDenom:
		return model.DirSell
	}
	return model.DirSell
}

// isRouter implements spec §4.7's router-detection rule: the swap's
// sender equals the configured router address, or any execute event in
// the same tx with the same msg_index targets the router.
func isRouter(swapAttrs parser.EventAttrs, txEvents []parser.RawEvent, routerAddr string) bool {
	if routerAddr == "" {
		return false
	}
	if sender, ok := swapAttrs.Get("sender"); ok && sender == routerAddr {
		return true
	}

	msgIndex, hasIdx := swapAttrs.MustInt("msg_index")
	for _, e := range txEvents {
		if e.Type != "execute" {
			continue
		}
		contract, ok := e.Attrs.Get("_contract_address")
		if !ok || contract != routerAddr {
			continue
		}
		if !hasIdx {
			return true
		}
		if idx, ok := e.Attrs.MustInt("msg_index"); ok && idx == msgIndex {
			return true
		}
	}
	return false
}
