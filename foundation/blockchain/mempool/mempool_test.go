package mempool_test

import (
	"errors"
	"testing"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const destAddr = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"

// confirmedSet stands in for the ledger confirmation check.
type confirmedSet map[string]bool

func (c confirmedSet) HasTransaction(txid string) (bool, error) {
	return c[txid], nil
}

func newPool(t *testing.T, cfg mempool.Config) *mempool.Mempool {
	t.Helper()

	mp, err := mempool.New(cfg)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the mempool: %v", failed, err)
	}

	return mp
}

// makeTx builds a transaction spending the given previous txids with
// the fee tuned so distinct transactions get distinct fee rates.
func makeTx(prevTxIDs []string, fee uint64, sequence uint32, stamp uint64) ledger.Tx {
	tx := ledger.Tx{
		Outputs:   []ledger.TxOutput{{Value: 100, Address: destAddr}},
		TimeStamp: stamp,
		Fee:       fee,
	}
	for _, prev := range prevTxIDs {
		tx.Inputs = append(tx.Inputs, ledger.TxInput{PreviousTxID: prev, Sequence: sequence})
	}
	tx.TxID = tx.ComputeID()

	return tx
}

func Test_Admission(t *testing.T) {
	t.Log("Given the need to control admission into the mempool.")
	{
		mp := newPool(t, mempool.Config{MaxPool: 100, MaxTxBytes: 4096, Confirmed: confirmedSet{}})

		tx := makeTx([]string{"0xaaa"}, 50, ledger.SequenceFinal, 1)
		tx.TxID = ""
		added, err := mp.Add(tx)
		if err != nil {
			t.Fatalf("\t%s\tShould admit a valid transaction: %v", failed, err)
		}
		if added.TxID == "" {
			t.Fatalf("\t%s\tShould compute a txid when absent.", failed)
		}
		t.Logf("\t%s\tShould admit a valid transaction and compute its txid.", success)

		if _, err := mp.Add(added); !errors.Is(err, mempool.ErrAlreadyInPool) {
			t.Fatalf("\t%s\tShould reject the same txid twice: %v", failed, err)
		}
		if mp.Count() != 1 {
			t.Fatalf("\t%s\tDuplicate add should not grow the pool, count %d.", failed, mp.Count())
		}
		t.Logf("\t%s\tShould reject the same txid twice without growing the pool.", success)

		noIn := ledger.Tx{Outputs: []ledger.TxOutput{{Value: 1, Address: destAddr}}, Fee: 10}
		if _, err := mp.Add(noIn); !errors.Is(err, mempool.ErrNoInputs) {
			t.Fatalf("\t%s\tShould reject a transaction with no inputs: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a transaction with no inputs.", success)

		noOut := ledger.Tx{Inputs: []ledger.TxInput{{PreviousTxID: "0xbbb"}}, Fee: 10}
		if _, err := mp.Add(noOut); !errors.Is(err, mempool.ErrNoOutputs) {
			t.Fatalf("\t%s\tShould reject a transaction with no outputs: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a transaction with no outputs.", success)
	}
}

func Test_AdmissionConfirmedAndFee(t *testing.T) {
	t.Log("Given the need to reject confirmed and underpaying transactions.")
	{
		confirmed := makeTx([]string{"0xccc"}, 60, ledger.SequenceFinal, 2)
		mp := newPool(t, mempool.Config{
			MaxPool:    100,
			MinFeeRate: 0.01,
			Confirmed:  confirmedSet{confirmed.TxID: true},
		})

		if _, err := mp.Add(confirmed); !errors.Is(err, mempool.ErrAlreadyConfirmed) {
			t.Fatalf("\t%s\tShould reject an already confirmed transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an already confirmed transaction.", success)

		cheap := makeTx([]string{"0xddd"}, 0, ledger.SequenceFinal, 3)
		if _, err := mp.Add(cheap); !errors.Is(err, mempool.ErrFeeTooLow) {
			t.Fatalf("\t%s\tShould reject a fee rate below the floor: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a fee rate below the floor.", success)
	}
}

func Test_Eviction(t *testing.T) {
	t.Log("Given the need to evict the cheapest entries at capacity.")
	{
		mp := newPool(t, mempool.Config{MaxPool: 10, Confirmed: confirmedSet{}})

		var cheapest ledger.Tx
		for i := 0; i < 10; i++ {
			tx := makeTx([]string{"0xeee"}, uint64(10+i*10), ledger.SequenceFinal, uint64(i))
			if i == 0 {
				cheapest = tx
			}
			if _, err := mp.Add(tx); err != nil {
				t.Fatalf("\t%s\tShould fill the pool: %v", failed, err)
			}
		}

		incoming := makeTx([]string{"0xfff"}, 500, ledger.SequenceFinal, 99)
		if _, err := mp.Add(incoming); err != nil {
			t.Fatalf("\t%s\tShould admit a transaction into a full pool: %v", failed, err)
		}
		t.Logf("\t%s\tShould admit a transaction into a full pool.", success)

		if _, exists := mp.Get(cheapest.TxID); exists {
			t.Fatalf("\t%s\tShould evict the lowest fee-rate entry.", failed)
		}
		t.Logf("\t%s\tShould evict the lowest fee-rate entry.", success)

		if _, exists := mp.Get(incoming.TxID); !exists {
			t.Fatalf("\t%s\tShould contain the new transaction after eviction.", failed)
		}
		t.Logf("\t%s\tShould contain the new transaction after eviction.", success)

		if mp.Count() != 10 {
			t.Fatalf("\t%s\tPool should stay at capacity, count %d.", failed, mp.Count())
		}
		t.Logf("\t%s\tPool should stay at capacity.", success)
	}
}

func Test_SelectForBlock(t *testing.T) {
	t.Log("Given the need to select transactions respecting dependencies.")
	{
		mp := newPool(t, mempool.Config{MaxPool: 100, Confirmed: confirmedSet{}})

		parent := makeTx([]string{"0x111"}, 10, ledger.SequenceFinal, 1)
		if _, err := mp.Add(parent); err != nil {
			t.Fatalf("\t%s\tShould admit the parent: %v", failed, err)
		}

		// The child pays a much higher fee than its in-pool parent.
		child := makeTx([]string{parent.TxID}, 500, ledger.SequenceFinal, 2)
		if _, err := mp.Add(child); err != nil {
			t.Fatalf("\t%s\tShould admit the child: %v", failed, err)
		}

		other := makeTx([]string{"0x222"}, 100, ledger.SequenceFinal, 3)
		if _, err := mp.Add(other); err != nil {
			t.Fatalf("\t%s\tShould admit an independent transaction: %v", failed, err)
		}

		selected := mp.SelectForBlock(10, 0)
		position := make(map[string]int)
		for i, tx := range selected {
			position[tx.TxID] = i
		}

		pi, pOK := position[parent.TxID]
		ci, cOK := position[child.TxID]
		if !pOK || !cOK {
			t.Fatalf("\t%s\tShould select both parent and child.", failed)
		}
		if ci < pi {
			t.Fatalf("\t%s\tShould never select a child before its dependency.", failed)
		}
		t.Logf("\t%s\tShould never select a child before its dependency.", success)

		limited := mp.SelectForBlock(2, 0)
		if len(limited) != 2 {
			t.Fatalf("\t%s\tShould stop at the count budget, got %d.", failed, len(limited))
		}
		t.Logf("\t%s\tShould stop at the count budget.", success)
	}
}

func Test_ReplaceByFee(t *testing.T) {
	t.Log("Given the need to replace transactions by fee.")
	{
		mp := newPool(t, mempool.Config{MaxPool: 100, Confirmed: confirmedSet{}})

		// Sequence below the final value signals RBF.
		original := makeTx([]string{"0x333"}, 50, 100, 1)
		if _, err := mp.Add(original); err != nil {
			t.Fatalf("\t%s\tShould admit the original: %v", failed, err)
		}

		replacement := makeTx([]string{"0x333"}, 90, 99, 2)
		increase, err := mp.Replace(original.TxID, replacement, mempool.ReasonHigherFee)
		if err != nil {
			t.Fatalf("\t%s\tShould accept a higher-fee replacement with identical inputs: %v", failed, err)
		}
		if increase != 40 {
			t.Fatalf("\t%s\tShould report a fee increase of 40, got %d.", failed, increase)
		}
		t.Logf("\t%s\tShould accept a higher-fee replacement with identical inputs.", success)

		if _, exists := mp.Get(original.TxID); exists {
			t.Fatalf("\t%s\tOld txid should no longer be retrievable.", failed)
		}
		if _, exists := mp.Get(replacement.TxID); !exists {
			t.Fatalf("\t%s\tNew txid should be retrievable.", failed)
		}
		t.Logf("\t%s\tShould key the replacement under its own txid.", success)

		badInputs := makeTx([]string{"0x444"}, 200, 99, 3)
		if _, err := mp.Replace(replacement.TxID, badInputs, mempool.ReasonHigherFee); !errors.Is(err, mempool.ErrInputMismatch) {
			t.Fatalf("\t%s\tShould reject a replacement spending different coins: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a replacement spending different coins.", success)
	}
}

func Test_ReplaceRequiresSignal(t *testing.T) {
	t.Log("Given the need to gate RBF on the sequence signal.")
	{
		mp := newPool(t, mempool.Config{MaxPool: 100, Confirmed: confirmedSet{}})

		// Final sequence: does not signal RBF.
		original := makeTx([]string{"0x555"}, 50, ledger.SequenceFinal, 1)
		if _, err := mp.Add(original); err != nil {
			t.Fatalf("\t%s\tShould admit the original: %v", failed, err)
		}

		replacement := makeTx([]string{"0x555"}, 500, 1, 2)
		if _, err := mp.Replace(original.TxID, replacement, mempool.ReasonHigherFee); !errors.Is(err, mempool.ErrNotReplaceable) {
			t.Fatalf("\t%s\tShould reject replacement of a non-signaling original: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject replacement of a non-signaling original.", success)

		if _, err := mp.Replace(original.TxID, replacement, mempool.ReasonOperator); err != nil {
			t.Fatalf("\t%s\tShould allow an operator-forced replacement: %v", failed, err)
		}
		t.Logf("\t%s\tShould allow an operator-forced replacement.", success)

		if _, err := mp.Replace("0xmissing", replacement, mempool.ReasonOperator); !errors.Is(err, mempool.ErrNotFound) {
			t.Fatalf("\t%s\tShould reject replacing a missing entry: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject replacing a missing entry.", success)
	}
}

func Test_Stats(t *testing.T) {
	t.Log("Given the need to summarize the pool safely.")
	{
		mp := newPool(t, mempool.Config{MaxPool: 100, Confirmed: confirmedSet{}})

		stats := mp.Stats()
		if stats.Count != 0 || stats.AvgFeeRate != 0 || stats.MinFeeRate != 0 || stats.MaxFeeRate != 0 {
			t.Fatalf("\t%s\tEmpty pool should report zeros: %+v", failed, stats)
		}
		t.Logf("\t%s\tEmpty pool should report zeros.", success)

		for i := 0; i < 3; i++ {
			tx := makeTx([]string{"0x666"}, uint64(100*(i+1)), ledger.SequenceFinal, uint64(i))
			if _, err := mp.Add(tx); err != nil {
				t.Fatalf("\t%s\tShould admit transaction %d: %v", failed, i, err)
			}
		}

		stats = mp.Stats()
		if stats.Count != 3 || stats.TotalBytes == 0 {
			t.Fatalf("\t%s\tShould count entries and bytes: %+v", failed, stats)
		}
		if stats.MinFeeRate > stats.AvgFeeRate || stats.AvgFeeRate > stats.MaxFeeRate {
			t.Fatalf("\t%s\tFee rate summary should be ordered: %+v", failed, stats)
		}
		t.Logf("\t%s\tShould summarize fee rates in order.", success)
	}
}
