package selector

import (
	"sort"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
)

// feeRateSelect orders the pool by descending fee rate and greedily
// selects while respecting dependencies and budgets. Ties break on age
// then txid so selection is deterministic.
var feeRateSelect = func(entries []Entry, maxCount int, maxBytes int) []ledger.Tx {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].FeeRate != ordered[j].FeeRate {
			return ordered[i].FeeRate > ordered[j].FeeRate
		}
		if !ordered[i].ReceivedTime.Equal(ordered[j].ReceivedTime) {
			return ordered[i].ReceivedTime.Before(ordered[j].ReceivedTime)
		}
		return ordered[i].Tx.TxID < ordered[j].Tx.TxID
	})

	return pick(ordered, maxCount, maxBytes)
}

// oldestSelect orders the pool first-come first-served. Useful in
// development profiles where fees are uniform.
var oldestSelect = func(entries []Entry, maxCount int, maxBytes int) []ledger.Tx {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)

	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].ReceivedTime.Equal(ordered[j].ReceivedTime) {
			return ordered[i].ReceivedTime.Before(ordered[j].ReceivedTime)
		}
		return ordered[i].Tx.TxID < ordered[j].Tx.TxID
	})

	return pick(ordered, maxCount, maxBytes)
}
