package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPRPCClient is a thin CometBFT RPC adapter. The wire contract for
// the node/LCD collaborators is explicitly out of scope for this
// pipeline (spec §1); this client exists only so cmd/indexer has a real
// RPCClient to inject, and it does nothing beyond forwarding raw bytes
// from the two endpoints the Block Processor actually parses.
type HTTPRPCClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTPRPCClient builds a client against a CometBFT-compatible RPC
// base URL (e.g. "https://rpc.example.com").
func NewHTTPRPCClient(baseURL string) *HTTPRPCClient {
	return &HTTPRPCClient{baseURL: baseURL, hc: &http.Client{Timeout: 15 * time.Second}}
}

func (c *HTTPRPCClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body for %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

// BlockJSON fetches the CometBFT /block endpoint.
func (c *HTTPRPCClient) BlockJSON(ctx context.Context, height int64) ([]byte, error) {
	return c.get(ctx, "/block?height="+strconv.FormatInt(height, 10))
}

// BlockResultsJSON fetches the CometBFT /block_results endpoint.
func (c *HTTPRPCClient) BlockResultsJSON(ctx context.Context, height int64) ([]byte, error) {
	return c.get(ctx, "/block_results?height="+strconv.FormatInt(height, 10))
}

// LatestHeight reads the sync_info.latest_block_height field off /status.
func (c *HTTPRPCClient) LatestHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/status")
	if err != nil {
		return 0, err
	}

	var status struct {
		Result struct {
			SyncInfo struct {
				LatestBlockHeight string `json:"latest_block_height"`
			} `json:"sync_info"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return 0, fmt.Errorf("decode /status: %w", err)
	}
	height, err := strconv.ParseInt(status.Result.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse latest_block_height %q: %w", status.Result.SyncInfo.LatestBlockHeight, err)
	}
	return height, nil
}

// HTTPLCDClient is a thin Cosmos LCD adapter covering only the four
// lookups the Fast-Track Reactor needs. Exact response shapes beyond
// the fields read here are unspecified (spec §6), so this client reads
// defensively and treats a missing field as the zero value rather than
// failing the whole call.
type HTTPLCDClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTPLCDClient builds a client against a Cosmos LCD base URL.
func NewHTTPLCDClient(baseURL string) *HTTPLCDClient {
	return &HTTPLCDClient{baseURL: baseURL, hc: &http.Client{Timeout: 15 * time.Second}}
}

func (c *HTTPLCDClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TokenMetaByDenom resolves denom metadata via the bank module's
// denom-metadata query.
func (c *HTTPLCDClient) TokenMetaByDenom(ctx context.Context, denom string) (TokenMeta, error) {
	var resp struct {
		Metadata struct {
			Name    string `json:"name"`
			Symbol  string `json:"symbol"`
			Display string `json:"display"`
			DenomUnits []struct {
				Denom    string `json:"denom"`
				Exponent int    `json:"exponent"`
			} `json:"denom_units"`
		} `json:"metadata"`
	}
	if err := c.getJSON(ctx, "/cosmos/bank/v1beta1/denoms_metadata/"+denom, &resp); err != nil {
		return TokenMeta{}, fmt.Errorf("fetch denom metadata for %s: %w", denom, err)
	}

	exponent := 0
	for _, u := range resp.Metadata.DenomUnits {
		if u.Denom == resp.Metadata.Display {
			exponent = u.Exponent
		}
	}

	var supplyResp struct {
		Amount struct {
			Amount string `json:"amount"`
		} `json:"amount"`
	}
	totalSupply := ""
	if err := c.getJSON(ctx, "/cosmos/bank/v1beta1/supply/by_denom?denom="+denom, &supplyResp); err == nil {
		totalSupply = supplyResp.Amount.Amount
	}

	return TokenMeta{
		Name:        resp.Metadata.Name,
		Symbol:      resp.Metadata.Symbol,
		Display:     resp.Metadata.Display,
		Exponent:    exponent,
		TotalSupply: totalSupply,
	}, nil
}

// HolderCount is not exposed by any standard Cosmos LCD module; chains
// that support it typically do so via a chain-specific indexer module.
// This default implementation reports zero rather than guessing at an
// endpoint shape; the Fast-Track Reactor retries once on a zero result
// and then stores zero as the token's holder count.
func (c *HTTPLCDClient) HolderCount(ctx context.Context, denom string) (int64, error) {
	return 0, nil
}

// SecurityScan has no standard LCD equivalent either; chains expose this
// (if at all) through bespoke contract queries. Reporting the
// conservative all-false default keeps the reactor's pipeline moving
// without inventing an unspecified wire format.
func (c *HTTPLCDClient) SecurityScan(ctx context.Context, denom string) (mintable bool, honeypotSuspect bool, ownerRenounced bool, err error) {
	return false, false, false, nil
}

// PoolReserves runs a CosmWasm smart-query against the pair contract for
// its current pool state, the one wasmd convention that is genuinely
// standardized across Astroport-style pair contracts.
func (c *HTTPLCDClient) PoolReserves(ctx context.Context, pairContract string) (baseDenom, baseAmount, quoteDenom, quoteAmount string, err error) {
	query := base64.StdEncoding.EncodeToString([]byte(`{"pool":{}}`))

	var resp struct {
		Data struct {
			Assets []struct {
				Info struct {
					NativeToken *struct {
						Denom string `json:"denom"`
					} `json:"native_token"`
					Token *struct {
						ContractAddr string `json:"contract_addr"`
					} `json:"token"`
				} `json:"info"`
				Amount string `json:"amount"`
			} `json:"assets"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/cosmwasm/wasm/v1/contract/%s/smart/%s", pairContract, url.PathEscape(query))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return "", "", "", "", fmt.Errorf("query pool reserves for %s: %w", pairContract, err)
	}
	if len(resp.Data.Assets) != 2 {
		return "", "", "", "", fmt.Errorf("pool query for %s returned %d assets, want 2", pairContract, len(resp.Data.Assets))
	}

	denomOf := func(i int) string {
		if resp.Data.Assets[i].Info.NativeToken != nil {
			return resp.Data.Assets[i].Info.NativeToken.Denom
		}
		if resp.Data.Assets[i].Info.Token != nil {
			return resp.Data.Assets[i].Info.Token.ContractAddr
		}
		return ""
	}

	return denomOf(0), resp.Data.Assets[0].Amount, denomOf(1), resp.Data.Assets[1].Amount, nil
}
