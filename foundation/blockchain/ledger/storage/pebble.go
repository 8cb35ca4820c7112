package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// Pebble represents a KV implementation backed by cockroachdb/pebble.
// This implements the storage.KV interface.
type Pebble struct {
	db *pebble.DB
}

// NewPebble opens or creates a pebble database at the specified path.
func NewPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &Pebble{db: db}, nil
}

// Get retrieves the value stored under the key.
func (p *Pebble) Get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// The returned slice is only valid until the closer is closed.
	return append([]byte(nil), value...), nil
}

// Has reports whether the key exists in the store.
func (p *Pebble) Has(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()

	return true, nil
}

// Iterate walks every key carrying the specified prefix in lexical order.
func (p *Pebble) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// Write applies the batch atomically with a synced write.
func (p *Pebble) Write(batch *Batch) error {
	pb := p.db.NewBatch()
	for _, op := range batch.ops {
		if op.delete {
			if err := pb.Delete(op.key, nil); err != nil {
				return err
			}
			continue
		}
		if err := pb.Set(op.key, op.value, nil); err != nil {
			return err
		}
	}

	return p.db.Apply(pb, pebble.Sync)
}

// Flush forces buffered writes to disk.
func (p *Pebble) Flush() error {
	return p.db.Flush()
}

// Close releases the database resources.
func (p *Pebble) Close() error {
	return p.db.Close()
}
