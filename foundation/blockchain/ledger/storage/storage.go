// Package storage provides the key-value storage implementations used by
// the ledger. All backends apply batches atomically so one block's writes
// either all land on disk or none do.
package storage

import "errors"

// ErrKeyNotFound is returned from Get when the key is not in the store.
var ErrKeyNotFound = errors.New("key not found")

// KV represents the behavior required by any package providing key-value
// storage support for the ledger.
type KV interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Write(batch *Batch) error
	Flush() error
	Close() error
}

// =============================================================================

// batchOp represents a single mutation recorded in a batch.
type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch collects a set of mutations to be applied atomically.
type Batch struct {
	ops []batchOp
}

// Put records a key-value write in the batch.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

// Delete records a key removal in the batch.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

// Len returns the number of mutations in the batch.
func (b *Batch) Len() int {
	return len(b.ops)
}

// =============================================================================

// prefixUpperBound returns the smallest key greater than every key with
// the specified prefix, or nil if no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}

	return nil
}
