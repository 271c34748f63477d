package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonchain/carbon-credit-ledger/internal/hasher"
	"github.com/carbonchain/carbon-credit-ledger/internal/models"
	"github.com/carbonchain/carbon-credit-ledger/internal/storage/memory"
)

func newTestChain(t *testing.T) (*Chain, *memory.MemoryChainStore) {
	t.Helper()
	store := memory.NewMemoryChainStore()
	return New(context.Background(), store), store
}

func submitTx(t *testing.T, c *Chain, sender, recipient string, amount int64) int64 {
	t.Helper()
	tx, err := models.NewTransaction(sender, recipient, decimal.NewFromInt(amount), nil, models.KindTransfer)
	require.NoError(t, err)
	next, err := c.Submit(context.Background(), tx)
	require.NoError(t, err)
	return next
}

func TestNewCreatesGenesis(t *testing.T) {
	c, _ := newTestChain(t)

	require.Equal(t, 1, c.Length())

	genesis, err := c.LastBlock()
	require.NoError(t, err)
	assert.Equal(t, int64(1), genesis.Index)
	assert.Equal(t, models.GenesisPrevHash, genesis.PrevHash)
	assert.Equal(t, int64(0), genesis.Nonce)
	assert.Empty(t, genesis.Transactions)
	assert.Equal(t, hasher.BlockHash(genesis), genesis.Hash)
}

func TestNewRehydratesExistingChain(t *testing.T) {
	store := memory.NewMemoryChainStore()
	ctx := context.Background()

	first := New(ctx, store)
	ref := int64(7)
	_, err := first.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), &ref)
	require.NoError(t, err)
	head, err := first.LastBlock()
	require.NoError(t, err)

	// Simulated process restart: a fresh chain over the same store.
	second := New(ctx, store)
	require.Equal(t, first.Length(), second.Length())

	reloadedHead, err := second.LastBlock()
	require.NoError(t, err)
	assert.Equal(t, head.Hash, reloadedHead.Hash)
	require.NoError(t, second.Validate())

	// No second genesis was created on rehydration.
	assert.Equal(t, 2, second.Length())
}

func TestLastBlockOnUninitializedChain(t *testing.T) {
	var c Chain
	_, err := c.LastBlock()
	require.ErrorIs(t, err, ErrEmptyChain)
}

func TestSubmitBatchingThreshold(t *testing.T) {
	c, _ := newTestChain(t)

	for i := 0; i < 4; i++ {
		submitTx(t, c, "0xAAA", "0xBBB", 10)
	}
	assert.Equal(t, 1, c.Length(), "4 submissions stay pending")
	assert.Equal(t, 4, c.PendingCount())

	submitTx(t, c, "0xAAA", "0xBBB", 10)
	require.Equal(t, 2, c.Length(), "5th submission seals exactly one block")
	assert.Equal(t, 0, c.PendingCount())

	sealed, err := c.LastBlock()
	require.NoError(t, err)
	assert.Len(t, sealed.Transactions, 5)
}

func TestSubmitReturnsProspectiveIndex(t *testing.T) {
	c, _ := newTestChain(t)

	next := submitTx(t, c, "0xAAA", "0xBBB", 10)
	assert.Equal(t, int64(2), next, "chain has the genesis block, next block would be 2")
}

func TestSubmitRejectsInvalidTransaction(t *testing.T) {
	c, _ := newTestChain(t)

	_, err := c.Submit(context.Background(), models.Transaction{
		Sender:    "0xAAA",
		Recipient: "0xBBB",
		Amount:    decimal.NewFromInt(-5),
		Kind:      models.KindTransfer,
	})

	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, 0, c.PendingCount())
}

func TestIssueThenTransferScenario(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()
	ref := int64(7)

	issued, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), &ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), issued.Index)
	require.Len(t, issued.Transactions, 1)
	assert.Equal(t, models.KindIssue, issued.Transactions[0].Kind)
	assert.Equal(t, models.SystemSender, issued.Transactions[0].Sender)
	assert.True(t, issued.Transactions[0].Amount.Equal(decimal.NewFromInt(100)))

	transferred, err := c.TransferCredits(ctx, "0xAAA", "0xBBB", decimal.NewFromInt(40), &ref)
	require.NoError(t, err)
	assert.Equal(t, int64(3), transferred.Index)
	require.Len(t, transferred.Transactions, 1)
	assert.Equal(t, models.KindTransfer, transferred.Transactions[0].Kind)
	assert.Equal(t, issued.Hash, transferred.PrevHash)

	blocks := c.Blocks()
	require.Len(t, blocks, 3)
	require.NoError(t, c.Validate())
}

func TestMintCarriesExternalReference(t *testing.T) {
	c, _ := newTestChain(t)
	ref := int64(12)

	block, err := c.MintCredits(context.Background(), "0xNGO", decimal.NewFromInt(250), &ref,
		"0xdeadbeef", map[string]any{"project_title": "Mangrove Restoration"})
	require.NoError(t, err)

	require.Len(t, block.Transactions, 1)
	tx := block.Transactions[0]
	assert.Equal(t, models.KindMint, tx.Kind)
	assert.Equal(t, "0xdeadbeef", tx.ExternalRef)
	assert.Equal(t, "Mangrove Restoration", tx.Metadata["project_title"])
}

func TestChainLinkageAndContiguity(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(int64(i+1)), nil)
		require.NoError(t, err)
	}

	blocks := c.Blocks()
	require.Len(t, blocks, 6)
	for i, b := range blocks {
		assert.Equal(t, int64(i)+1, b.Index)
		if i == 0 {
			assert.Equal(t, models.GenesisPrevHash, b.PrevHash)
		} else {
			assert.Equal(t, blocks[i-1].Hash, b.PrevHash)
		}
	}
}

func TestRoundTripPersistence(t *testing.T) {
	store := memory.NewMemoryChainStore()
	ctx := context.Background()

	c := New(ctx, store)
	ref := int64(3)
	_, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), &ref)
	require.NoError(t, err)
	_, err = c.TransferCredits(ctx, "0xAAA", "0xBBB", decimal.NewFromInt(40), &ref)
	require.NoError(t, err)

	reloaded := New(ctx, store)
	for _, b := range reloaded.Blocks() {
		assert.Equal(t, b.Hash, hasher.BlockHash(b), "block %d hash must survive reload", b.Index)
	}
	require.NoError(t, reloaded.Validate())
}

func TestValidateDetectsTampering(t *testing.T) {
	store := memory.NewMemoryChainStore()
	ctx := context.Background()

	c := New(ctx, store)
	_, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	store.Corrupt(2, func(b *models.Block) {
		b.Transactions[0].Amount = decimal.NewFromInt(100000)
	})

	tampered := New(ctx, store)
	err = tampered.Validate()
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestValidateDetectsBrokenLinkage(t *testing.T) {
	store := memory.NewMemoryChainStore()
	ctx := context.Background()

	c := New(ctx, store)
	_, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), nil)
	require.NoError(t, err)
	_, err = c.IssueCredits(ctx, "0xBBB", decimal.NewFromInt(50), nil)
	require.NoError(t, err)

	store.Corrupt(3, func(b *models.Block) {
		b.PrevHash = "0000000000000000"
	})

	tampered := New(ctx, store)
	require.ErrorIs(t, tampered.Validate(), ErrIntegrity)
}

func TestBalanceFromChain(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()

	_, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), nil)
	require.NoError(t, err)
	_, err = c.TransferCredits(ctx, "0xAAA", "0xBBB", decimal.NewFromInt(40), nil)
	require.NoError(t, err)

	assert.True(t, c.Balance("0xAAA").Equal(decimal.NewFromInt(60)))
	assert.True(t, c.Balance("0xBBB").Equal(decimal.NewFromInt(40)))
	assert.True(t, c.Balance("0xNOBODY").IsZero())

	// Issuance does not debit the system sender below zero.
	assert.True(t, c.Balance(models.SystemSender).IsZero())
}

func TestTransactionsByProject(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()
	seven, nine := int64(7), int64(9)

	_, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), &seven)
	require.NoError(t, err)
	_, err = c.IssueCredits(ctx, "0xBBB", decimal.NewFromInt(30), &nine)
	require.NoError(t, err)
	_, err = c.TransferCredits(ctx, "0xAAA", "0xCCC", decimal.NewFromInt(10), &seven)
	require.NoError(t, err)

	txs := c.TransactionsByProject(seven)
	require.Len(t, txs, 2)
	assert.Equal(t, models.KindIssue, txs[0].Kind)
	assert.Equal(t, models.KindTransfer, txs[1].Kind)

	assert.Empty(t, c.TransactionsByProject(42))
}

func TestBlocksSnapshotIsIsolated(t *testing.T) {
	c, _ := newTestChain(t)
	ref := int64(1)
	_, err := c.IssueCredits(context.Background(), "0xAAA", decimal.NewFromInt(100), &ref)
	require.NoError(t, err)

	snapshot := c.Blocks()
	snapshot[1].Transactions[0].Recipient = "0xEVIL"
	*snapshot[1].Transactions[0].ProjectRef = 99

	fresh := c.Blocks()
	assert.Equal(t, "0xAAA", fresh[1].Transactions[0].Recipient)
	assert.Equal(t, int64(1), *fresh[1].Transactions[0].ProjectRef)
	require.NoError(t, c.Validate())
}

// failingStore persists nothing, for exercising the memory-only seal path.
type failingStore struct{}

func (failingStore) SaveBlock(ctx context.Context, block models.Block) error {
	return errors.New("disk on fire")
}

func (failingStore) GetBlocks(ctx context.Context) ([]models.Block, error) {
	return nil, errors.New("disk on fire")
}

func TestSealSurfacesPersistenceError(t *testing.T) {
	ctx := context.Background()

	// Unreachable store at startup resolves to an in-memory genesis.
	c := New(ctx, failingStore{})
	require.Equal(t, 1, c.Length())

	block, err := c.IssueCredits(ctx, "0xAAA", decimal.NewFromInt(100), nil)

	var persistence *PersistenceError
	require.ErrorAs(t, err, &persistence)
	assert.Equal(t, int64(2), persistence.Index)

	// The block still exists in memory and the chain remains consistent.
	require.NotNil(t, block)
	assert.Equal(t, 2, c.Length())
	require.NoError(t, c.Validate())
}

func TestCustomSealThreshold(t *testing.T) {
	store := memory.NewMemoryChainStore()
	c := New(context.Background(), store, WithSealThreshold(2))

	submitTx(t, c, "0xAAA", "0xBBB", 1)
	assert.Equal(t, 1, c.Length())
	submitTx(t, c, "0xAAA", "0xBBB", 2)
	assert.Equal(t, 2, c.Length())
}
