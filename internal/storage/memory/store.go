package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/carbonchain/carbon-credit-ledger/internal/interfaces"
	"github.com/carbonchain/carbon-credit-ledger/internal/models"
)

// MemoryChainStore is an in-memory implementation of interfaces.ChainStore.
// It is the zero-config default backend and the one the tests run against.
type MemoryChainStore struct {
	mu     sync.Mutex
	blocks []models.Block
}

func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{
		blocks: make([]models.Block, 0),
	}
}

// SaveBlock appends a deep copy of the block. The append of block plus
// transactions is trivially atomic under the store mutex.
func (m *MemoryChainStore) SaveBlock(ctx context.Context, block models.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if want := int64(len(m.blocks)) + 1; block.Index != want {
		return errors.Errorf("memory store: appending block index %d, want %d", block.Index, want)
	}
	m.blocks = append(m.blocks, block.Clone())
	return nil
}

// GetBlocks returns copies of all stored blocks in append (ascending index)
// order, so callers cannot mutate internal state.
func (m *MemoryChainStore) GetBlocks(ctx context.Context) ([]models.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]models.Block, len(m.blocks))
	for i, b := range m.blocks {
		copied[i] = b.Clone()
	}
	return copied, nil
}

// Corrupt overwrites a stored field in place. It exists for integrity tests
// that need to simulate tampering with the persisted ledger.
func (m *MemoryChainStore) Corrupt(index int64, mutate func(*models.Block)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.blocks {
		if m.blocks[i].Index == index {
			mutate(&m.blocks[i])
			return
		}
	}
}

// Compile-time check: ensure MemoryChainStore implements ChainStore.
var _ interfaces.ChainStore = (*MemoryChainStore)(nil)
