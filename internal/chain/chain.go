// Package chain defines the interfaces for the two external
// collaborators this pipeline depends on but does not implement: the
// node's RPC client and the chain's LCD client. Concrete
// implementations live outside the core indexing pipeline (spec §1,
// "out of scope").
package chain

import "context"

// RPCClient returns raw block and block-results JSON for a height.
type RPCClient interface {
	// BlockJSON returns the raw JSON body of the node's block endpoint
	// for the given height.
	BlockJSON(ctx context.Context, height int64) ([]byte, error)
	// BlockResultsJSON returns the raw JSON body of the node's
	// block_results endpoint for the given height.
	BlockResultsJSON(ctx context.Context, height int64) ([]byte, error)
	// LatestHeight returns the chain's current block height, used by
	// the driver loop that feeds processHeight (itself out of scope;
	// this method exists so that loop has something to poll).
	LatestHeight(ctx context.Context) (int64, error)
}

// TokenMeta is what the LCD client returns for a denom lookup.
type TokenMeta struct {
	Name        string
	Symbol      string
	Display     string
	Exponent    int
	TotalSupply string
}

// LCDClient looks up token metadata and on-chain contract state by
// denom / contract address.
type LCDClient interface {
	// TokenMetaByDenom resolves human metadata for a denom.
	TokenMetaByDenom(ctx context.Context, denom string) (TokenMeta, error)
	// HolderCount returns the number of distinct holders of a denom.
	HolderCount(ctx context.Context, denom string) (int64, error)
	// SecurityScan returns the heuristic security flags for a denom.
	SecurityScan(ctx context.Context, denom string) (Mintable bool, HoneypotSuspect bool, OwnerRenounced bool, err error)
	// PoolReserves queries a pair contract directly for its current
	// reserves, used only by the fast-track seed-pricing step.
	PoolReserves(ctx context.Context, pairContract string) (baseDenom, baseAmount, quoteDenom, quoteAmount string, err error)
}
