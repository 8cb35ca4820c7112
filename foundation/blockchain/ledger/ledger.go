// Package ledger implements durable storage of the canonical chain and
// the spendable-output index on top of a key-value store.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger/storage"
)

// EventHandler defines a function that is called when events occur in
// the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// txRecord is what the transaction table stores: the transaction plus
// the height of the block that confirmed it.
type txRecord struct {
	Tx          Tx     `json:"tx"`
	BlockHeight uint64 `json:"block_height"`
}

// Store manages the five ledger tables. Block appends are serialized so
// the chain height advances by exactly one per accepted block.
type Store struct {
	mu         sync.RWMutex
	kv         storage.KV
	evHandler  EventHandler
	height     uint64
	haveBlocks bool
}

// New constructs a ledger store over the specified key-value backend and
// validates the storage format stamp.
func New(kv storage.KV, evHandler EventHandler) (*Store, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	s := Store{
		kv:        kv,
		evHandler: ev,
	}

	stamp, err := kv.Get(keyFormat)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		batch := new(storage.Batch)
		batch.Put(keyFormat, []byte(formatVersion))
		if err := kv.Write(batch); err != nil {
			return nil, fmt.Errorf("stamping format: %w: %w", ErrStorage, err)
		}

	case err != nil:
		return nil, fmt.Errorf("reading format: %w: %w", ErrStorage, err)

	case string(stamp) != formatVersion:
		return nil, fmt.Errorf("database format %q, want %q: %w", stamp, formatVersion, ErrBadFormat)
	}

	value, err := kv.Get(keyHeight)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):

	case err != nil:
		return nil, fmt.Errorf("reading height: %w: %w", ErrStorage, err)

	default:
		height, err := decodeHeight(value)
		if err != nil {
			return nil, err
		}
		s.height = height
		s.haveBlocks = true
	}

	return &s, nil
}

// PutBlock persists the block and applies its UTXO changes atomically.
// Submitting a block already stored is a no-op. The block height must be
// exactly one above the current chain height, or zero on an empty chain;
// concurrent appends for the same height have exactly one winner.
func (s *Store) PutBlock(block Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.Hash()

	known, err := s.kv.Has(hashKey(hash))
	if err != nil {
		return fmt.Errorf("checking block hash: %w: %w", ErrStorage, err)
	}
	if known {
		s.evHandler("ledger: PutBlock: blk[%d]: already stored: %s", block.Header.Height, hash)
		return nil
	}

	switch {
	case !s.haveBlocks:
		if block.Header.Height != 0 {
			return fmt.Errorf("empty chain, got block %d: %w", block.Header.Height, ErrHeightMismatch)
		}
	default:
		if block.Header.Height != s.height+1 {
			return fmt.Errorf("got block %d, want %d: %w", block.Header.Height, s.height+1, ErrHeightMismatch)
		}
	}

	batch := new(storage.Batch)

	blockData, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encoding block: %w: %w", ErrStorage, err)
	}
	batch.Put(blockKey(block.Header.Height), blockData)
	batch.Put(hashKey(hash), encodeHeight(block.Header.Height))
	batch.Put(keyHeight, encodeHeight(block.Header.Height))

	if err := s.applyTransactions(batch, block); err != nil {
		return err
	}

	if err := s.kv.Write(batch); err != nil {
		return fmt.Errorf("writing block %d: %w: %w", block.Header.Height, ErrStorage, err)
	}

	s.height = block.Header.Height
	s.haveBlocks = true
	s.evHandler("ledger: PutBlock: blk[%d]: stored: %s: txs[%d]", block.Header.Height, hash, len(block.Trans))

	return nil
}

// applyTransactions records every transaction in the block, retires the
// UTXOs its inputs spend, and creates the UTXOs its outputs produce. The
// overlay maps let a transaction spend an output created earlier in the
// same block.
func (s *Store) applyTransactions(batch *storage.Batch, block Block) error {
	created := make(map[string]UTXO)
	removed := make(map[string]bool)

	for _, tx := range block.Trans {
		record, err := json.Marshal(txRecord{Tx: tx, BlockHeight: block.Header.Height})
		if err != nil {
			return fmt.Errorf("encoding tx %s: %w: %w", tx.TxID, ErrStorage, err)
		}
		batch.Put(txKey(tx.TxID), record)

		for _, input := range tx.Inputs {
			key := utxoKey(input.PreviousTxID, input.OutputIndex)

			if removed[string(key)] {
				return fmt.Errorf("input %s/%d: %w", input.PreviousTxID, input.OutputIndex, ErrUTXOSpent)
			}

			utxo, exists := created[string(key)]
			if !exists {
				value, err := s.kv.Get(key)
				switch {
				case errors.Is(err, storage.ErrKeyNotFound):
					return fmt.Errorf("input %s/%d: %w", input.PreviousTxID, input.OutputIndex, ErrUTXOSpent)
				case err != nil:
					return fmt.Errorf("reading utxo: %w: %w", ErrStorage, err)
				}
				if err := json.Unmarshal(value, &utxo); err != nil {
					return fmt.Errorf("decoding utxo: %w: %w", ErrStorage, err)
				}
			}

			removed[string(key)] = true
			batch.Delete(key)
			batch.Delete(addressKey(utxo.Address, input.PreviousTxID, input.OutputIndex))
		}

		for i, output := range tx.Outputs {
			utxo := UTXO{
				TxID:         tx.TxID,
				OutputIndex:  uint32(i),
				Value:        output.Value,
				ScriptPubKey: output.ScriptPubKey,
				Address:      output.Address,
				BlockHeight:  block.Header.Height,
			}

			value, err := json.Marshal(utxo)
			if err != nil {
				return fmt.Errorf("encoding utxo: %w: %w", ErrStorage, err)
			}

			key := utxoKey(tx.TxID, uint32(i))
			created[string(key)] = utxo
			batch.Put(key, value)
			batch.Put(addressKey(output.Address, tx.TxID, uint32(i)), key)
		}
	}

	return nil
}

// GetBlockByHeight returns the block stored at the specified height.
func (s *Store) GetBlockByHeight(height uint64) (Block, error) {
	value, err := s.kv.Get(blockKey(height))
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		return Block{}, fmt.Errorf("block %d: %w", height, ErrNotFound)
	case err != nil:
		return Block{}, fmt.Errorf("reading block %d: %w: %w", height, ErrStorage, err)
	}

	var block Block
	if err := json.Unmarshal(value, &block); err != nil {
		return Block{}, fmt.Errorf("decoding block %d: %w: %w", height, ErrStorage, err)
	}

	return block, nil
}

// GetBlockByHash returns the block stored under the specified hash.
func (s *Store) GetBlockByHash(hash string) (Block, error) {
	height, err := s.HeightForHash(hash)
	if err != nil {
		return Block{}, err
	}

	return s.GetBlockByHeight(height)
}

// HeightForHash resolves a block hash to its height.
func (s *Store) HeightForHash(hash string) (uint64, error) {
	value, err := s.kv.Get(hashKey(hash))
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		return 0, fmt.Errorf("block %s: %w", hash, ErrNotFound)
	case err != nil:
		return 0, fmt.Errorf("resolving hash: %w: %w", ErrStorage, err)
	}

	return decodeHeight(value)
}

// HasBlock reports whether a block with the specified hash is stored.
func (s *Store) HasBlock(hash string) (bool, error) {
	known, err := s.kv.Has(hashKey(hash))
	if err != nil {
		return false, fmt.Errorf("checking block hash: %w: %w", ErrStorage, err)
	}

	return known, nil
}

// GetTransaction returns a confirmed transaction and the height of the
// block that confirmed it.
func (s *Store) GetTransaction(txid string) (Tx, uint64, error) {
	value, err := s.kv.Get(txKey(txid))
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		return Tx{}, 0, fmt.Errorf("tx %s: %w", txid, ErrNotFound)
	case err != nil:
		return Tx{}, 0, fmt.Errorf("reading tx: %w: %w", ErrStorage, err)
	}

	var record txRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return Tx{}, 0, fmt.Errorf("decoding tx: %w: %w", ErrStorage, err)
	}

	return record.Tx, record.BlockHeight, nil
}

// HasTransaction reports whether the txid is confirmed in the ledger.
func (s *Store) HasTransaction(txid string) (bool, error) {
	known, err := s.kv.Has(txKey(txid))
	if err != nil {
		return false, fmt.Errorf("checking tx: %w: %w", ErrStorage, err)
	}

	return known, nil
}

// UTXOsForAddress returns every unspent output owned by the address. The
// sum of the values is the address balance.
func (s *Store) UTXOsForAddress(address string) ([]UTXO, error) {
	var utxos []UTXO

	err := s.kv.Iterate(addressPrefix(address), func(key, value []byte) error {
		utxoValue, err := s.kv.Get(value)
		if err != nil {
			return fmt.Errorf("address index points at missing utxo %s: %w: %w", value, ErrStorage, err)
		}

		var utxo UTXO
		if err := json.Unmarshal(utxoValue, &utxo); err != nil {
			return fmt.Errorf("decoding utxo: %w: %w", ErrStorage, err)
		}

		utxos = append(utxos, utxo)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return utxos, nil
}

// Balance sums the unspent outputs owned by the address.
func (s *Store) Balance(address string) (uint64, error) {
	utxos, err := s.UTXOsForAddress(address)
	if err != nil {
		return 0, err
	}

	var balance uint64
	for _, utxo := range utxos {
		balance += utxo.Value
	}

	return balance, nil
}

// ChainHeight returns the highest stored block height. An empty chain
// reports ErrEmptyChain.
func (s *Store) ChainHeight() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.haveBlocks {
		return 0, ErrEmptyChain
	}

	return s.height, nil
}

// LatestBlock returns the block at the chain tip.
func (s *Store) LatestBlock() (Block, error) {
	height, err := s.ChainHeight()
	if err != nil {
		return Block{}, err
	}

	return s.GetBlockByHeight(height)
}

// Headers returns up to max headers starting at fromHeight, stopping
// early if hashStop is produced.
func (s *Store) Headers(fromHeight uint64, max int, hashStop string) ([]BlockHeader, error) {
	tip, err := s.ChainHeight()
	if err != nil {
		if errors.Is(err, ErrEmptyChain) {
			return nil, nil
		}
		return nil, err
	}

	var headers []BlockHeader
	for height := fromHeight; height <= tip && len(headers) < max; height++ {
		block, err := s.GetBlockByHeight(height)
		if err != nil {
			return nil, err
		}

		headers = append(headers, block.Header)

		if hashStop != "" && block.Hash() == hashStop {
			break
		}
	}

	return headers, nil
}

// Locator builds the sparse list of recent block hashes used to find the
// common ancestor with a peer. The height gap doubles after the first 10
// entries and the genesis block is always included.
func (s *Store) Locator() ([]string, error) {
	tip, err := s.ChainHeight()
	if err != nil {
		if errors.Is(err, ErrEmptyChain) {
			return nil, nil
		}
		return nil, err
	}

	var hashes []string
	step := uint64(1)

	for height := tip; ; {
		block, err := s.GetBlockByHeight(height)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, block.Hash())

		if height == 0 {
			break
		}

		if len(hashes) >= 10 {
			step *= 2
		}

		if height < step {
			height = 0
			continue
		}
		height -= step
	}

	return hashes, nil
}

// FindForkHeight scans the locator hashes most-recent-first and returns
// the height of the first hash this node recognizes, or 0 if none match.
func (s *Store) FindForkHeight(locator []string) uint64 {
	for _, hash := range locator {
		height, err := s.HeightForHash(hash)
		if err == nil {
			return height
		}
	}

	return 0
}

// Flush forces durability of all written blocks.
func (s *Store) Flush() error {
	if err := s.kv.Flush(); err != nil {
		return fmt.Errorf("flush: %w: %w", ErrStorage, err)
	}

	return nil
}

// Close flushes and releases the underlying store. Safe to call during
// shutdown; callers bound it with a timeout.
func (s *Store) Close() error {
	if err := s.kv.Flush(); err != nil {
		s.kv.Close()
		return fmt.Errorf("flush on close: %w: %w", ErrStorage, err)
	}

	if err := s.kv.Close(); err != nil {
		return fmt.Errorf("close: %w: %w", ErrStorage, err)
	}

	return nil
}
