package storage

import (
	"bytes"
	"sort"
	"sync"
)

// Memory represents an in-memory KV implementation for testing and
// development profiles. This implements the storage.KV interface.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

// Get retrieves the value stored under the key.
func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[string(key)]
	if !exists {
		return nil, ErrKeyNotFound
	}

	return append([]byte(nil), value...), nil
}

// Has reports whether the key exists in the store.
func (m *Memory) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.data[string(key)]
	return exists, nil
}

// Iterate walks every key carrying the specified prefix in lexical order.
func (m *Memory) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if bytes.HasPrefix([]byte(key), prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	for _, key := range keys {
		m.mu.RLock()
		value, exists := m.data[key]
		m.mu.RUnlock()
		if !exists {
			continue
		}

		if err := fn([]byte(key), append([]byte(nil), value...)); err != nil {
			return err
		}
	}

	return nil
}

// Write applies the batch atomically.
func (m *Memory) Write(batch *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range batch.ops {
		if op.delete {
			delete(m.data, string(op.key))
			continue
		}
		m.data[string(op.key)] = append([]byte(nil), op.value...)
	}

	return nil
}

// Flush has nothing to do for the in-memory store.
func (m *Memory) Flush() error {
	return nil
}

// Close has nothing to do for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
