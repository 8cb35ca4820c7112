package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB represents a KV implementation backed by goleveldb. This
// implements the storage.KV interface.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens or creates a leveldb database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &LevelDB{db: db}, nil
}

// Get retrieves the value stored under the key.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	return value, nil
}

// Has reports whether the key exists in the store.
func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

// Iterate walks every key carrying the specified prefix in lexical order.
func (l *LevelDB) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// Write applies the batch atomically with a synced write.
func (l *LevelDB) Write(batch *Batch) error {
	lb := new(leveldb.Batch)
	for _, op := range batch.ops {
		if op.delete {
			lb.Delete(op.key)
			continue
		}
		lb.Put(op.key, op.value)
	}

	return l.db.Write(lb, &opt.WriteOptions{Sync: true})
}

// Flush forces buffered writes to disk. Writes are already synced so
// this has nothing extra to do.
func (l *LevelDB) Flush() error {
	return nil
}

// Close releases the database resources.
func (l *LevelDB) Close() error {
	return l.db.Close()
}
