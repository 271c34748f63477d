// Package hasher computes the content digest that links blocks together.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/carbonchain/carbon-credit-ledger/internal/models"
)

// BlockHash returns the lowercase hex SHA-256 digest of the block's
// canonical form. The hash field itself is excluded, so the digest can be
// recomputed from a stored block and compared against the stored value.
//
// Canonical form: the hashed fields are assembled into a map and marshaled
// with encoding/json, which writes map keys in lexicographic order at every
// nesting level. Metadata maps inside transactions therefore hash
// identically regardless of insertion order.
func BlockHash(b models.Block) string {
	txs := b.Transactions
	if txs == nil {
		txs = []models.Transaction{}
	}
	payload := map[string]any{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  txs,
		"previous_hash": b.PrevHash,
		"nonce":         b.Nonce,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// Only reachable with a non-serializable metadata value; metadata
		// arrives through JSON decoding, so it always marshals back.
		panic("hasher: block not serializable: " + err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
