package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/parser"
)

// blockEnvelope decodes just enough of the node's block response to
// recover each transaction's raw bytes (for hashing) and the block's
// timestamp, the two things processHeight needs beyond what
// block_results already gives it.
type blockEnvelope struct {
	Result struct {
		Block struct {
			Header struct {
				Time   string `json:"time"`
				Height string `json:"height"`
			} `json:"header"`
			Data struct {
				Txs []string `json:"txs"` // base64-encoded raw tx bytes
			} `json:"data"`
		} `json:"block"`
	} `json:"result"`
}

// decodedBlock is the typed shape processHeight works with after
// stepping over the opaque RPC JSON boundary.
type decodedBlock struct {
	TimeRFC3339 string
	TxHashes    []string
}

func decodeBlock(blockJSON []byte) (decodedBlock, error) {
	var env blockEnvelope
	if err := json.Unmarshal(blockJSON, &env); err != nil {
		return decodedBlock{}, fmt.Errorf("decode block: %w", err)
	}

	hashes := make([]string, 0, len(env.Result.Block.Data.Txs))
	for _, b64 := range env.Result.Block.Data.Txs {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			// Malformed tx encoding: skip, never abort the block (spec §7).
			hashes = append(hashes, "")
			continue
		}
		hashes = append(hashes, parser.Sha256Hex(raw))
	}

	return decodedBlock{
		TimeRFC3339: env.Result.Block.Header.Time,
		TxHashes:    hashes,
	}, nil
}
