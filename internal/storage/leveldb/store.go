// Package leveldb backs the chain with an embedded local LevelDB database,
// for deployments that want durability without running a database server.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/carbonchain/carbon-credit-ledger/internal/interfaces"
	"github.com/carbonchain/carbon-credit-ledger/internal/models"
)

const (
	prefixBlocks = "blocks:"
	indexKeySize = 8
)

// LevelDBChainStore stores one key per block: blocks:<uint64 BE index> with
// the block's JSON snapshot as value. Big-endian keys make the natural
// iteration order the ascending index order GetBlocks needs.
type LevelDBChainStore struct {
	dir string
	db  *leveldb.DB
}

// Open opens (or creates) the database directory.
func Open(dir string) (*LevelDBChainStore, error) {
	if dir == "" {
		return nil, errors.New("leveldb store: directory path cannot be empty")
	}
	db, err := leveldb.OpenFile(filepath.Clean(dir), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %s", dir)
	}
	return &LevelDBChainStore{dir: dir, db: db}, nil
}

func (s *LevelDBChainStore) Close() error {
	return s.db.Close()
}

func indexToKey(index int64) []byte {
	buf := make([]byte, indexKeySize)
	binary.BigEndian.PutUint64(buf, uint64(index))
	return append([]byte(prefixBlocks), buf...)
}

// SaveBlock writes the block snapshot under its index key. The write is
// synced so a sealed block survives a crash immediately after the call
// returns.
func (s *LevelDBChainStore) SaveBlock(ctx context.Context, block models.Block) error {
	raw, err := json.Marshal(block)
	if err != nil {
		return errors.Wrap(err, "marshal block snapshot")
	}

	batch := new(leveldb.Batch)
	batch.Put(indexToKey(block.Index), raw)
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrapf(err, "write block %d", block.Index)
	}
	return nil
}

// GetBlocks iterates the blocks: keyspace in ascending index order.
func (s *LevelDBChainStore) GetBlocks(ctx context.Context) ([]models.Block, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixBlocks)), nil)
	defer iter.Release()

	blocks := make([]models.Block, 0)
	for iter.Next() {
		var b models.Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, errors.Wrapf(err, "decode block at key %x", iter.Key())
		}
		blocks = append(blocks, b)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate blocks")
	}
	return blocks, nil
}

var _ interfaces.ChainStore = (*LevelDBChainStore)(nil)
