// Package chain implements the append-only, hash-linked carbon credit
// ledger: a pending buffer of submitted transactions, sealing of pending
// transactions into hash-linked blocks, and rehydration of the chain from
// its durable store at startup.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carbonchain/carbon-credit-ledger/internal/hasher"
	"github.com/carbonchain/carbon-credit-ledger/internal/interfaces"
	"github.com/carbonchain/carbon-credit-ledger/internal/logx"
	"github.com/carbonchain/carbon-credit-ledger/internal/models"
	"github.com/carbonchain/carbon-credit-ledger/internal/models/events"
)

var (
	// ErrEmptyChain is returned by LastBlock before initialization has
	// produced a genesis block. Unreachable through New, defined for
	// defensive callers.
	ErrEmptyChain = errors.New("chain: no blocks")

	// ErrIntegrity is wrapped by Validate when a stored block fails its
	// hash or linkage check.
	ErrIntegrity = errors.New("chain: integrity check failed")
)

// PersistenceError reports a block that was appended to the in-memory chain
// but could not be durably stored. The chain keeps growing so the ledger
// stays usable, but callers get the divergence as a typed error and can
// retry, queue, or abort the logical operation.
type PersistenceError struct {
	Index int64
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("chain: block %d not persisted: %v", e.Index, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DefaultSealThreshold is the pending-buffer size that triggers an
// automatic seal on Submit.
const DefaultSealThreshold = 5

const sealTopic = "block_sealed"

type Option func(*Chain)

// WithSealThreshold overrides the auto-seal batching threshold.
func WithSealThreshold(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithPublisher emits a BlockSealed event after every durably sealed block.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(c *Chain) {
		c.publisher = p
	}
}

// Chain is the sole writer of the ledger. One mutex serializes the pending
// buffer and the block list, so indices stay contiguous and previous_hash
// always references the true prior block; reads hand out deep copies.
//
// Construct exactly one per process and pass it down from the composition
// root.
type Chain struct {
	mu        sync.Mutex
	store     interfaces.ChainStore
	publisher interfaces.EventPublisher
	threshold int

	blocks  []models.Block
	pending []models.Transaction
}

// New rehydrates the chain from the store, or seals a genesis block (index
// 1, previous hash "GENESIS", no transactions) when the store is empty or
// unreachable. A store failure at startup is logged, not fatal: the chain
// comes up in memory and surfaces persistence errors on later seals.
func New(ctx context.Context, store interfaces.ChainStore, opts ...Option) *Chain {
	c := &Chain{
		store:     store,
		threshold: DefaultSealThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}

	blocks, err := store.GetBlocks(ctx)
	if err != nil {
		logx.Warn("CHAIN", "store unreachable at startup, starting from genesis: ", err)
		blocks = nil
	}
	if len(blocks) > 0 {
		c.blocks = blocks
		logx.Info("CHAIN", "rehydrated ", len(blocks), " blocks, head ", blocks[len(blocks)-1].Hash)
		return c
	}

	if _, err := c.Seal(ctx); err != nil {
		// Already logged inside Seal; genesis lives in memory only.
		logx.Warn("CHAIN", "genesis block is not durable")
	}
	return c
}

// Submit validates tx, appends it to the pending buffer and auto-seals once
// the buffer reaches the threshold. The returned value is the index the next
// sealed block would have, not a guarantee that tx has been sealed.
func (c *Chain) Submit(ctx context.Context, tx models.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, tx.Clone())
	if len(c.pending) >= c.threshold {
		if _, err := c.sealLocked(ctx); err != nil {
			return int64(len(c.blocks)) + 1, err
		}
	}
	return int64(len(c.blocks)) + 1, nil
}

// Seal snapshots the pending buffer into a new block, links it to the
// current head, hashes it, persists it and appends it to the in-memory
// chain. A persistence failure is returned as *PersistenceError together
// with the in-memory block.
func (c *Chain) Seal(ctx context.Context) (*models.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealLocked(ctx)
}

// sealLocked is the only mutator of the block list. Callers hold c.mu.
func (c *Chain) sealLocked(ctx context.Context) (*models.Block, error) {
	prevHash := models.GenesisPrevHash
	if n := len(c.blocks); n > 0 {
		prevHash = c.blocks[n-1].Hash
	}

	txs := make([]models.Transaction, len(c.pending))
	for i, tx := range c.pending {
		txs[i] = tx.Clone()
	}

	block := models.Block{
		Index:        int64(len(c.blocks)) + 1,
		Timestamp:    float64(time.Now().UnixNano()) / float64(time.Second),
		PrevHash:     prevHash,
		Nonce:        0,
		Transactions: txs,
	}
	block.Hash = hasher.BlockHash(block)

	var sealErr error
	if err := c.store.SaveBlock(ctx, block); err != nil {
		sealErr = &PersistenceError{Index: block.Index, Err: err}
		logx.Error("CHAIN", "block ", block.Index, " not durable: ", err)
	}

	c.pending = nil
	c.blocks = append(c.blocks, block)

	if sealErr == nil && c.publisher != nil {
		evt := events.BlockSealed{
			Index:        block.Index,
			Hash:         block.Hash,
			PreviousHash: block.PrevHash,
			TxCount:      len(block.Transactions),
			SealedAt:     time.Now(),
		}
		if err := c.publisher.Publish(sealTopic, evt); err != nil {
			logx.Warn("CHAIN", "publish ", sealTopic, " for block ", block.Index, ": ", err)
		}
	}

	out := block.Clone()
	return &out, sealErr
}

// submitAndSeal appends one transaction and seals immediately, regardless of
// the batching threshold, so the convenience operations get deterministic
// one-block-per-call ordering.
func (c *Chain) submitAndSeal(ctx context.Context, tx models.Transaction) (*models.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, tx.Clone())
	return c.sealLocked(ctx)
}

// IssueCredits records the creation of credits for a recipient and seals the
// block immediately. The sender is always the system address.
func (c *Chain) IssueCredits(ctx context.Context, recipient string, amount decimal.Decimal, projectRef *int64) (*models.Block, error) {
	tx, err := models.NewTransaction(models.SystemSender, recipient, amount, projectRef, models.KindIssue)
	if err != nil {
		return nil, err
	}
	return c.submitAndSeal(ctx, tx)
}

// MintCredits records credits minted against an external network, carrying
// the external transaction id and any extra context, and seals immediately.
func (c *Chain) MintCredits(ctx context.Context, recipient string, amount decimal.Decimal, projectRef *int64, externalRef string, metadata map[string]any) (*models.Block, error) {
	tx, err := models.NewTransaction(models.SystemSender, recipient, amount, projectRef, models.KindMint)
	if err != nil {
		return nil, err
	}
	tx.ExternalRef = externalRef
	tx.Metadata = metadata
	return c.submitAndSeal(ctx, tx)
}

// TransferCredits records a movement of credits between two holders and
// seals the block immediately.
func (c *Chain) TransferCredits(ctx context.Context, sender, recipient string, amount decimal.Decimal, projectRef *int64) (*models.Block, error) {
	tx, err := models.NewTransaction(sender, recipient, amount, projectRef, models.KindTransfer)
	if err != nil {
		return nil, err
	}
	return c.submitAndSeal(ctx, tx)
}

// LastBlock returns a copy of the most recently sealed block.
func (c *Chain) LastBlock() (models.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		return models.Block{}, ErrEmptyChain
	}
	return c.blocks[len(c.blocks)-1].Clone(), nil
}

// Blocks returns a deep-copied snapshot of the whole chain for
// explorer/audit consumers.
func (c *Chain) Blocks() []models.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return out
}

// Length returns the number of sealed blocks.
func (c *Chain) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// PendingCount returns the number of buffered, unsealed transactions.
func (c *Chain) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Balance derives a holder's balance from the sealed chain: everything
// received minus everything transferred away, floored at zero.
func (c *Chain) Balance(address string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	balance := decimal.Zero
	for _, b := range c.blocks {
		for _, tx := range b.Transactions {
			if tx.Recipient == address {
				balance = balance.Add(tx.Amount)
			}
			if tx.Sender == address && tx.Kind == models.KindTransfer {
				balance = balance.Sub(tx.Amount)
			}
		}
	}
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// TransactionsByProject returns every sealed transaction that references the
// given project, in chain order.
func (c *Chain) TransactionsByProject(projectRef int64) []models.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Transaction, 0)
	for _, b := range c.blocks {
		for _, tx := range b.Transactions {
			if tx.ProjectRef != nil && *tx.ProjectRef == projectRef {
				out = append(out, tx.Clone())
			}
		}
	}
	return out
}

// Validate walks the chain and checks index contiguity, previous-hash
// linkage and that every block's recomputed hash matches its stored hash.
// Any mismatch means the loaded ledger was tampered with or corrupted.
func (c *Chain) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := models.GenesisPrevHash
	for i, b := range c.blocks {
		if b.Index != int64(i)+1 {
			return fmt.Errorf("%w: block at position %d has index %d", ErrIntegrity, i, b.Index)
		}
		if b.PrevHash != prevHash {
			return fmt.Errorf("%w: block %d previous hash mismatch", ErrIntegrity, b.Index)
		}
		if recomputed := hasher.BlockHash(b); recomputed != b.Hash {
			return fmt.Errorf("%w: block %d hash mismatch", ErrIntegrity, b.Index)
		}
		prevHash = b.Hash
	}
	return nil
}
