package fees_test

import (
	"testing"

	"github.com/kobaltchain/kobalt/foundation/blockchain/fees"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger/storage"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	minerAddr = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"
	destAddr  = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"
)

func testSystems(t *testing.T) (*ledger.Store, *mempool.Mempool) {
	t.Helper()

	store, err := ledger.New(storage.NewMemory(), nil)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the ledger: %v", failed, err)
	}

	mp, err := mempool.New(mempool.Config{MaxPool: 100, Confirmed: store})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the mempool: %v", failed, err)
	}

	return store, mp
}

func pendingTx(prev string, fee uint64, stamp uint64) ledger.Tx {
	tx := ledger.Tx{
		Inputs:    []ledger.TxInput{{PreviousTxID: prev, Sequence: ledger.SequenceFinal}},
		Outputs:   []ledger.TxOutput{{Value: 10, Address: destAddr}},
		TimeStamp: stamp,
		Fee:       fee,
	}
	tx.TxID = tx.ComputeID()

	return tx
}

func Test_MultiplierOrdering(t *testing.T) {
	t.Log("Given the need for faster targets to never price below slower ones.")
	{
		store, mp := testSystems(t)

		estimator := fees.New(fees.Config{
			Mempool:       mp,
			Ledger:        store,
			MinFeeRate:    0.001,
			LowCongestion: 1,
		})

		for i := 0; i < 5; i++ {
			if _, err := mp.Add(pendingTx("0xaaa", uint64(100+i), uint64(i))); err != nil {
				t.Fatalf("\t%s\tShould seed the mempool: %v", failed, err)
			}
		}

		next := estimator.Estimate(fees.NextBlock)
		fast := estimator.Estimate(fees.Fast)
		normal := estimator.Estimate(fees.Normal)
		slow := estimator.Estimate(fees.Slow)

		if next.FeeRate < fast.FeeRate || fast.FeeRate < normal.FeeRate || normal.FeeRate < slow.FeeRate {
			t.Fatalf("\t%s\tTargets should be ordered: %.4f %.4f %.4f %.4f", failed, next.FeeRate, fast.FeeRate, normal.FeeRate, slow.FeeRate)
		}
		t.Logf("\t%s\tShould order next >= fast >= normal >= slow.", success)
	}
}

func Test_Confidence(t *testing.T) {
	t.Log("Given the need to report confidence from data availability.")
	{
		store, mp := testSystems(t)

		estimator := fees.New(fees.Config{Mempool: mp, Ledger: store, MinFeeRate: 0.001})

		if est := estimator.Estimate(fees.Normal); est.Confidence != 0.5 {
			t.Fatalf("\t%s\tNo data should report 0.5, got %.2f.", failed, est.Confidence)
		}
		t.Logf("\t%s\tShould report 0.5 with no data.", success)

		if _, err := mp.Add(pendingTx("0xbbb", 100, 1)); err != nil {
			t.Fatalf("\t%s\tShould seed the mempool: %v", failed, err)
		}
		if est := estimator.Estimate(fees.Normal); est.Confidence != 0.7 {
			t.Fatalf("\t%s\tMempool only should report 0.7, got %.2f.", failed, est.Confidence)
		}
		t.Logf("\t%s\tShould report 0.7 with mempool data only.", success)

		// Confirm a block carrying a fee-paying transaction.
		cb := ledger.NewCoinbase(minerAddr, 100, 0, 1_700_000_000)
		paying := pendingTx(cb.TxID, 75, 1_700_000_010)
		block := ledger.Block{
			Header: ledger.BlockHeader{
				Height:        0,
				PrevBlockHash: signature.ZeroHash,
				TimeStamp:     1_700_000_000,
				MerkleRoot:    ledger.MerkleRoot([]ledger.Tx{cb}),
			},
			Trans: []ledger.Tx{cb},
		}
		if err := store.PutBlock(block); err != nil {
			t.Fatalf("\t%s\tShould store the genesis block: %v", failed, err)
		}

		cb1 := ledger.NewCoinbase(minerAddr, 100, 1, 1_700_000_100)
		spendBlock := ledger.Block{
			Header: ledger.BlockHeader{
				Height:        1,
				PrevBlockHash: block.Hash(),
				TimeStamp:     1_700_000_100,
				MerkleRoot:    ledger.MerkleRoot([]ledger.Tx{cb1, paying}),
			},
			Trans: []ledger.Tx{cb1, paying},
		}
		if err := store.PutBlock(spendBlock); err != nil {
			t.Fatalf("\t%s\tShould store the spending block: %v", failed, err)
		}

		if err := estimator.UpdateWithNewBlock(1); err != nil {
			t.Fatalf("\t%s\tShould record block fee stats: %v", failed, err)
		}

		if est := estimator.Estimate(fees.Normal); est.Confidence != 0.9 {
			t.Fatalf("\t%s\tBoth sources should report 0.9, got %.2f.", failed, est.Confidence)
		}
		t.Logf("\t%s\tShould report 0.9 with mempool and history data.", success)
	}
}

func Test_HistoryWindow(t *testing.T) {
	t.Log("Given the need to bound the block stats window.")
	{
		store, mp := testSystems(t)

		estimator := fees.New(fees.Config{
			Mempool:      mp,
			Ledger:       store,
			MinFeeRate:   0.001,
			WindowBlocks: 2,
		})

		prevHash := signature.ZeroHash
		for height := uint64(0); height < 4; height++ {
			cb := ledger.NewCoinbase(minerAddr, 100, height, 1_700_000_000+height)
			block := ledger.Block{
				Header: ledger.BlockHeader{
					Height:        height,
					PrevBlockHash: prevHash,
					TimeStamp:     1_700_000_000 + height,
					MerkleRoot:    ledger.MerkleRoot([]ledger.Tx{cb}),
				},
				Trans: []ledger.Tx{cb},
			}
			if err := store.PutBlock(block); err != nil {
				t.Fatalf("\t%s\tShould store block %d: %v", failed, height, err)
			}
			prevHash = block.Hash()

			if err := estimator.UpdateWithNewBlock(height); err != nil {
				t.Fatalf("\t%s\tShould record stats for block %d: %v", failed, height, err)
			}
		}

		history := estimator.History()
		if len(history) != 2 {
			t.Fatalf("\t%s\tWindow should hold 2 entries, got %d.", failed, len(history))
		}
		t.Logf("\t%s\tShould evict the oldest entries past the window.", success)

		if history[0].Height != 3 || history[1].Height != 2 {
			t.Fatalf("\t%s\tHistory should be most recent first: %d, %d.", failed, history[0].Height, history[1].Height)
		}
		t.Logf("\t%s\tShould keep history most recent first.", success)
	}
}
