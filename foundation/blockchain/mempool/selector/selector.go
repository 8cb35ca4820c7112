// Package selector provides different transaction selecting algorithms
// for block assembly.
package selector

import (
	"fmt"
	"time"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
)

// List of the different select strategies.
const (
	StrategyFeeRate = "feerate"
	StrategyOldest  = "oldest"
)

// Map of the different select strategies with functions.
var strategies = map[string]Func{
	StrategyFeeRate: feeRateSelect,
	StrategyOldest:  oldestSelect,
}

// Entry represents a pending transaction with the metadata selection
// decisions are made on.
type Entry struct {
	Tx           ledger.Tx
	ReceivedTime time.Time
	FeeRate      float64
	SizeBytes    int
	Dependencies []string
}

// Func defines a function that selects transactions for the next block.
// Every strategy MUST respect dependency ordering: an entry may only be
// selected after all its in-pool dependencies. A maxCount or maxBytes
// of zero or less means unbounded. Selection stops when either budget
// would be exceeded.
type Func func(entries []Entry, maxCount int, maxBytes int) []ledger.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// pick walks the ordered entries selecting everything whose dependencies
// are already included, repeating until the budgets are hit or no entry
// can make progress. A transaction is never emitted before one of its
// dependencies.
func pick(ordered []Entry, maxCount int, maxBytes int) []ledger.Tx {
	if maxCount <= 0 {
		maxCount = len(ordered)
	}

	included := make(map[string]bool)
	var selected []ledger.Tx
	var totalBytes int

	for {
		progress := false

		for _, entry := range ordered {
			if included[entry.Tx.TxID] {
				continue
			}

			satisfied := true
			for _, dep := range entry.Dependencies {
				if !included[dep] {
					satisfied = false
					break
				}
			}
			if !satisfied {
				continue
			}

			if len(selected) >= maxCount {
				return selected
			}
			if maxBytes > 0 && totalBytes+entry.SizeBytes > maxBytes {
				return selected
			}

			included[entry.Tx.TxID] = true
			selected = append(selected, entry.Tx)
			totalBytes += entry.SizeBytes
			progress = true
		}

		if !progress {
			return selected
		}
	}
}
