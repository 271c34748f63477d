package models

// GenesisPrevHash is the sentinel previous-hash carried by the first block.
const GenesisPrevHash = "GENESIS"

// Block is an immutable, hash-linked batch of sealed transactions. The JSON
// representation is the stable form served to explorer/audit consumers and
// persisted as the raw snapshot.
type Block struct {
	Index        int64         `json:"index"`
	Timestamp    float64       `json:"timestamp"` // seconds since epoch
	PrevHash     string        `json:"previous_hash"`
	Nonce        int64         `json:"nonce"` // always 0, kept for format compatibility
	Transactions []Transaction `json:"transactions"`
	Hash         string        `json:"hash"`
}

// Clone returns a deep copy of the block and its transactions.
func (b Block) Clone() Block {
	out := b
	out.Transactions = make([]Transaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		out.Transactions[i] = tx.Clone()
	}
	return out
}
