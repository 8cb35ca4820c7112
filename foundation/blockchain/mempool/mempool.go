// Package mempool maintains the pool of transactions broadcast but not
// yet included in a confirmed block. Admission is bounded and fee based;
// retrieval is prioritized through a pluggable selection strategy.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool/selector"
)

// Admission and state error kinds. Callers branch with errors.Is.
var (
	ErrTxTooLarge       = errors.New("transaction exceeds maximum size")
	ErrAlreadyInPool    = errors.New("transaction already in mempool")
	ErrAlreadyConfirmed = errors.New("transaction already confirmed")
	ErrNoInputs         = errors.New("transaction has no inputs")
	ErrNoOutputs        = errors.New("transaction has no outputs")
	ErrFeeTooLow        = errors.New("fee rate below minimum")
	ErrNotFound         = errors.New("transaction not in mempool")
	ErrNotReplaceable   = errors.New("original transaction does not signal RBF")
	ErrInputMismatch    = errors.New("replacement inputs do not match original")
)

// ReplaceReason describes why a replacement is being attempted. The RBF
// sequence gate applies to the protocol reasons, not to an operator
// forcing a replacement by hand.
type ReplaceReason string

const (
	ReasonRBFSignaled ReplaceReason = "rbf-signaled"
	ReasonHigherFee   ReplaceReason = "higher-fee"
	ReasonOperator    ReplaceReason = "operator"
)

// Entry is the stored form of a pending transaction.
type Entry = selector.Entry

// ConfirmationChecker is the narrow slice of the ledger the mempool
// needs: whether a txid is already confirmed.
type ConfirmationChecker interface {
	HasTransaction(txid string) (bool, error)
}

// Stats summarizes the pool for observability and fee estimation.
type Stats struct {
	Count      int     `json:"count"`
	TotalBytes int     `json:"total_bytes"`
	MinFeeRate float64 `json:"min_fee_rate"`
	MaxFeeRate float64 `json:"max_fee_rate"`
	AvgFeeRate float64 `json:"avg_fee_rate"`
}

// Config represents the configuration required to construct a mempool.
type Config struct {
	MaxPool    int
	MaxTxBytes int
	MinFeeRate float64
	Strategy   string
	Confirmed  ConfirmationChecker
}

// Mempool represents the pool of pending transactions keyed by txid.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]Entry
	cfg      Config
	selectFn selector.Func
}

// New constructs a mempool with the specified configuration. An empty
// strategy selects by fee rate.
func New(cfg Config) (*Mempool, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = selector.StrategyFeeRate
	}

	selectFn, err := selector.Retrieve(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]Entry),
		cfg:      cfg,
		selectFn: selectFn,
	}

	return &mp, nil
}

// Add admits a transaction into the pool. The txid is computed when
// absent. When the pool is full the lowest fee-rate tenth is evicted
// before the insert.
func (mp *Mempool) Add(tx ledger.Tx) (ledger.Tx, error) {
	if tx.TxID == "" {
		tx.TxID = tx.ComputeID()
	}

	size := tx.Size()
	if mp.cfg.MaxTxBytes > 0 && size > mp.cfg.MaxTxBytes {
		return ledger.Tx{}, fmt.Errorf("tx %s is %d bytes: %w", tx.TxID, size, ErrTxTooLarge)
	}

	if len(tx.Inputs) == 0 {
		return ledger.Tx{}, fmt.Errorf("tx %s: %w", tx.TxID, ErrNoInputs)
	}
	if len(tx.Outputs) == 0 {
		return ledger.Tx{}, fmt.Errorf("tx %s: %w", tx.TxID, ErrNoOutputs)
	}

	// Ledger read happens before the pool lock is taken so the lock is
	// never held across storage I/O.
	if mp.cfg.Confirmed != nil {
		confirmed, err := mp.cfg.Confirmed.HasTransaction(tx.TxID)
		if err != nil {
			return ledger.Tx{}, err
		}
		if confirmed {
			return ledger.Tx{}, fmt.Errorf("tx %s: %w", tx.TxID, ErrAlreadyConfirmed)
		}
	}

	feeRate := float64(tx.Fee) / float64(size)
	if feeRate < mp.cfg.MinFeeRate {
		return ledger.Tx{}, fmt.Errorf("tx %s rate %.4f: %w", tx.TxID, feeRate, ErrFeeTooLow)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.TxID]; exists {
		return ledger.Tx{}, fmt.Errorf("tx %s: %w", tx.TxID, ErrAlreadyInPool)
	}

	if mp.cfg.MaxPool > 0 && len(mp.pool) >= mp.cfg.MaxPool {
		mp.evictLowestTenth()
	}

	mp.pool[tx.TxID] = Entry{
		Tx:           tx,
		ReceivedTime: time.Now().UTC(),
		FeeRate:      feeRate,
		SizeBytes:    size,
		Dependencies: mp.dependencies(tx),
	}

	return tx, nil
}

// dependencies resolves which of the transaction's inputs reference
// other unconfirmed transactions in this pool. Callers hold the lock.
func (mp *Mempool) dependencies(tx ledger.Tx) []string {
	var deps []string
	seen := make(map[string]bool)

	for _, input := range tx.Inputs {
		if seen[input.PreviousTxID] {
			continue
		}
		if _, inPool := mp.pool[input.PreviousTxID]; inPool {
			deps = append(deps, input.PreviousTxID)
			seen[input.PreviousTxID] = true
		}
	}

	return deps
}

// evictLowestTenth drops the lowest fee-rate tenth of the pool, at
// least one entry. Callers hold the lock.
func (mp *Mempool) evictLowestTenth() {
	entries := make([]Entry, 0, len(mp.pool))
	for _, entry := range mp.pool {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FeeRate < entries[j].FeeRate
	})

	count := (len(entries) + 9) / 10
	for i := 0; i < count && i < len(entries); i++ {
		delete(mp.pool, entries[i].Tx.TxID)
	}
}

// Remove takes a transaction out of the pool, typically because a block
// confirmed it, and returns it.
func (mp *Mempool) Remove(txid string) (ledger.Tx, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	entry, exists := mp.pool[txid]
	if !exists {
		return ledger.Tx{}, fmt.Errorf("tx %s: %w", txid, ErrNotFound)
	}

	delete(mp.pool, txid)
	return entry.Tx, nil
}

// Replace performs replace-by-fee. The original must signal RBF for the
// protocol reasons, and the replacement must spend exactly the same
// previous transactions position for position. The returned value is
// the fee increase, floored at zero.
func (mp *Mempool) Replace(oldTxID string, newTx ledger.Tx, reason ReplaceReason) (uint64, error) {
	if newTx.TxID == "" {
		newTx.TxID = newTx.ComputeID()
	}

	size := newTx.Size()
	if size == 0 {
		return 0, fmt.Errorf("tx %s: %w", newTx.TxID, ErrTxTooLarge)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	old, exists := mp.pool[oldTxID]
	if !exists {
		return 0, fmt.Errorf("tx %s: %w", oldTxID, ErrNotFound)
	}

	if reason == ReasonRBFSignaled || reason == ReasonHigherFee {
		if !old.Tx.SignalsRBF() {
			return 0, fmt.Errorf("tx %s: %w", oldTxID, ErrNotReplaceable)
		}
	}

	if len(newTx.Inputs) != len(old.Tx.Inputs) {
		return 0, fmt.Errorf("tx %s has %d inputs, original %d: %w", newTx.TxID, len(newTx.Inputs), len(old.Tx.Inputs), ErrInputMismatch)
	}
	for i, input := range newTx.Inputs {
		if input.PreviousTxID != old.Tx.Inputs[i].PreviousTxID {
			return 0, fmt.Errorf("input %d spends %s, original %s: %w", i, input.PreviousTxID, old.Tx.Inputs[i].PreviousTxID, ErrInputMismatch)
		}
	}

	delete(mp.pool, oldTxID)
	mp.pool[newTx.TxID] = Entry{
		Tx:           newTx,
		ReceivedTime: time.Now().UTC(),
		FeeRate:      float64(newTx.Fee) / float64(size),
		SizeBytes:    size,
		Dependencies: mp.dependencies(newTx),
	}

	var increase uint64
	if newTx.Fee > old.Tx.Fee {
		increase = newTx.Fee - old.Tx.Fee
	}

	return increase, nil
}

// SelectForBlock returns transactions for the next block using the
// configured strategy. A dependency is always selected before any
// transaction that spends it.
func (mp *Mempool) SelectForBlock(maxCount int, maxBytes int) []ledger.Tx {
	entries := mp.Copy()
	return mp.selectFn(entries, maxCount, maxBytes)
}

// Get returns the entry stored for the txid.
func (mp *Mempool) Get(txid string) (Entry, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entry, exists := mp.pool[txid]
	return entry, exists
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Copy returns a snapshot of the pool entries.
func (mp *Mempool) Copy() []Entry {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entries := make([]Entry, 0, len(mp.pool))
	for _, entry := range mp.pool {
		entries = append(entries, entry)
	}

	return entries
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]Entry)
}

// Stats summarizes the pool. An empty pool reports zeros.
func (mp *Mempool) Stats() Stats {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if len(mp.pool) == 0 {
		return Stats{}
	}

	stats := Stats{Count: len(mp.pool)}

	var total float64
	first := true
	for _, entry := range mp.pool {
		stats.TotalBytes += entry.SizeBytes
		total += entry.FeeRate

		if first || entry.FeeRate < stats.MinFeeRate {
			stats.MinFeeRate = entry.FeeRate
		}
		if first || entry.FeeRate > stats.MaxFeeRate {
			stats.MaxFeeRate = entry.FeeRate
		}
		first = false
	}
	stats.AvgFeeRate = total / float64(len(mp.pool))

	return stats
}
