package events

import "time"

type BlockSealed struct {
	Index        int64     `json:"index"`
	Hash         string    `json:"hash"`
	PreviousHash string    `json:"previous_hash"`
	TxCount      int       `json:"tx_count"`
	SealedAt     time.Time `json:"sealed_at"`
}
