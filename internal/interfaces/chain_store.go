package interfaces

import (
	"context"

	"github.com/carbonchain/carbon-credit-ledger/internal/models"
)

// ChainStore is the durable backing of the chain. SaveBlock must persist the
// block and all of its transactions as one atomic unit; GetBlocks returns
// every persisted block ordered by ascending index, with an empty slice (not
// an error) for a store that has never been written.
type ChainStore interface {
	SaveBlock(ctx context.Context, block models.Block) error
	GetBlocks(ctx context.Context) ([]models.Block, error)
}
