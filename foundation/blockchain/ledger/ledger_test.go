package ledger_test

import (
	"errors"
	"testing"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger/storage"
	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	minerAddr = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"
	aliceAddr = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	bobAddr   = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

func newStore(t *testing.T) *ledger.Store {
	t.Helper()

	store, err := ledger.New(storage.NewMemory(), nil)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the ledger: %v", failed, err)
	}

	return store
}

func makeBlock(height uint64, prevHash string, trans []ledger.Tx) ledger.Block {
	return ledger.Block{
		Header: ledger.BlockHeader{
			Height:        height,
			PrevBlockHash: prevHash,
			TimeStamp:     1_700_000_000 + height,
			Difficulty:    1000,
			MerkleRoot:    ledger.MerkleRoot(trans),
		},
		Trans: trans,
	}
}

func spend(prev ledger.Tx, outputIndex uint32, outputs []ledger.TxOutput, fee uint64) ledger.Tx {
	tx := ledger.Tx{
		Inputs: []ledger.TxInput{
			{PreviousTxID: prev.TxID, OutputIndex: outputIndex, Sequence: ledger.SequenceFinal},
		},
		Outputs:   outputs,
		TimeStamp: prev.TimeStamp + 10,
		Fee:       fee,
	}
	tx.TxID = tx.ComputeID()

	return tx
}

func Test_ChainRoundTrip(t *testing.T) {
	t.Log("Given the need to store and retrieve a chain of blocks.")
	{
		store := newStore(t)

		if _, err := store.ChainHeight(); !errors.Is(err, ledger.ErrEmptyChain) {
			t.Fatalf("\t%s\tShould report an empty chain before any block: %v", failed, err)
		}
		t.Logf("\t%s\tShould report an empty chain before any block.", success)

		var blocks []ledger.Block
		prevHash := signature.ZeroHash
		for height := uint64(0); height < 4; height++ {
			cb := ledger.NewCoinbase(minerAddr, 50, height, 1_700_000_000+height)
			block := makeBlock(height, prevHash, []ledger.Tx{cb})

			if err := store.PutBlock(block); err != nil {
				t.Fatalf("\t%s\tShould be able to store block %d: %v", failed, height, err)
			}

			blocks = append(blocks, block)
			prevHash = block.Hash()
		}
		t.Logf("\t%s\tShould be able to store a chain of blocks.", success)

		height, err := store.ChainHeight()
		if err != nil || height != 3 {
			t.Fatalf("\t%s\tShould report chain height 3, got %d: %v", failed, height, err)
		}
		t.Logf("\t%s\tShould report the highest stored height.", success)

		for _, exp := range blocks {
			got, err := store.GetBlockByHeight(exp.Header.Height)
			if err != nil {
				t.Fatalf("\t%s\tShould retrieve block %d: %v", failed, exp.Header.Height, err)
			}
			if got.Hash() != exp.Hash() {
				t.Fatalf("\t%s\tBlock %d should round-trip to an equal block.", failed, exp.Header.Height)
			}

			byHash, err := store.GetBlockByHash(exp.Hash())
			if err != nil || byHash.Header.Height != exp.Header.Height {
				t.Fatalf("\t%s\tShould retrieve block %d by hash: %v", failed, exp.Header.Height, err)
			}
		}
		t.Logf("\t%s\tShould round-trip every block by height and by hash.", success)

		if _, err := store.GetBlockByHeight(99); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("\t%s\tShould report not found for a missing height: %v", failed, err)
		}
		t.Logf("\t%s\tShould report not found for a missing height.", success)
	}
}

func Test_UTXOLifecycle(t *testing.T) {
	t.Log("Given the need to create and retire unspent outputs.")
	{
		store := newStore(t)

		cb := ledger.NewCoinbase(minerAddr, 100, 0, 1_700_000_000)
		genesis := makeBlock(0, signature.ZeroHash, []ledger.Tx{cb})
		if err := store.PutBlock(genesis); err != nil {
			t.Fatalf("\t%s\tShould store the genesis block: %v", failed, err)
		}

		utxos, err := store.UTXOsForAddress(minerAddr)
		if err != nil || len(utxos) != 1 || utxos[0].Value != 100 {
			t.Fatalf("\t%s\tShould index one coinbase output of value 100: %v %v", failed, utxos, err)
		}
		t.Logf("\t%s\tShould index exactly one UTXO per output.", success)

		pay := spend(cb, 0, []ledger.TxOutput{
			{Value: 60, Address: aliceAddr},
			{Value: 30, Address: bobAddr},
		}, 10)
		cb1 := ledger.NewCoinbase(minerAddr, 100, 1, 1_700_000_100)
		block1 := makeBlock(1, genesis.Hash(), []ledger.Tx{cb1, pay})

		if err := store.PutBlock(block1); err != nil {
			t.Fatalf("\t%s\tShould store the spending block: %v", failed, err)
		}
		t.Logf("\t%s\tShould store a block spending a prior output.", success)

		utxos, err = store.UTXOsForAddress(minerAddr)
		if err != nil || len(utxos) != 1 || utxos[0].TxID != cb1.TxID {
			t.Fatalf("\t%s\tSpent coinbase should be retired: %v %v", failed, utxos, err)
		}
		t.Logf("\t%s\tShould retire exactly the spent UTXO.", success)

		balance, err := store.Balance(aliceAddr)
		if err != nil || balance != 60 {
			t.Fatalf("\t%s\tShould report balance 60 for alice, got %d: %v", failed, balance, err)
		}
		t.Logf("\t%s\tShould sum address balances from UTXOs.", success)

		doubleSpend := spend(cb, 0, []ledger.TxOutput{{Value: 90, Address: bobAddr}}, 10)
		cb2 := ledger.NewCoinbase(minerAddr, 100, 2, 1_700_000_200)
		block2 := makeBlock(2, block1.Hash(), []ledger.Tx{cb2, doubleSpend})

		if err := store.PutBlock(block2); !errors.Is(err, ledger.ErrUTXOSpent) {
			t.Fatalf("\t%s\tShould reject spending a retired UTXO: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a double-spend deterministically.", success)

		if height, _ := store.ChainHeight(); height != 1 {
			t.Fatalf("\t%s\tRejected block should not advance the chain, height %d.", failed, height)
		}
		t.Logf("\t%s\tShould leave the chain unchanged after a rejected block.", success)
	}
}

func Test_PutBlockIdempotent(t *testing.T) {
	t.Log("Given the need to accept a duplicate block submission safely.")
	{
		store := newStore(t)

		cb := ledger.NewCoinbase(minerAddr, 100, 0, 1_700_000_000)
		genesis := makeBlock(0, signature.ZeroHash, []ledger.Tx{cb})

		if err := store.PutBlock(genesis); err != nil {
			t.Fatalf("\t%s\tShould store the block the first time: %v", failed, err)
		}
		if err := store.PutBlock(genesis); err != nil {
			t.Fatalf("\t%s\tShould accept the same block twice without error: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the same block twice without error.", success)

		utxos, err := store.UTXOsForAddress(minerAddr)
		if err != nil || len(utxos) != 1 {
			t.Fatalf("\t%s\tShould not duplicate UTXOs on resubmission: %v %v", failed, utxos, err)
		}
		t.Logf("\t%s\tShould not duplicate UTXOs on resubmission.", success)
	}
}

func Test_HeightMismatch(t *testing.T) {
	t.Log("Given the need to serialize block appends.")
	{
		store := newStore(t)

		cb := ledger.NewCoinbase(minerAddr, 100, 0, 1_700_000_000)
		genesis := makeBlock(0, signature.ZeroHash, []ledger.Tx{cb})
		if err := store.PutBlock(genesis); err != nil {
			t.Fatalf("\t%s\tShould store the genesis block: %v", failed, err)
		}

		cb2 := ledger.NewCoinbase(minerAddr, 100, 2, 1_700_000_200)
		skipped := makeBlock(2, genesis.Hash(), []ledger.Tx{cb2})

		if err := store.PutBlock(skipped); !errors.Is(err, ledger.ErrHeightMismatch) {
			t.Fatalf("\t%s\tShould reject a block that skips a height: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block that skips a height.", success)
	}
}

func Test_LocatorAndForkHeight(t *testing.T) {
	t.Log("Given the need to build locators and find fork points.")
	{
		store := newStore(t)

		var hashes []string
		prevHash := signature.ZeroHash
		for height := uint64(0); height < 16; height++ {
			cb := ledger.NewCoinbase(minerAddr, 50, height, 1_700_000_000+height)
			block := makeBlock(height, prevHash, []ledger.Tx{cb})
			if err := store.PutBlock(block); err != nil {
				t.Fatalf("\t%s\tShould store block %d: %v", failed, height, err)
			}
			prevHash = block.Hash()
			hashes = append(hashes, prevHash)
		}

		locator, err := store.Locator()
		if err != nil {
			t.Fatalf("\t%s\tShould build a locator: %v", failed, err)
		}

		if locator[0] != hashes[15] {
			t.Fatalf("\t%s\tLocator should start at the tip.", failed)
		}
		t.Logf("\t%s\tLocator should start at the tip.", success)

		if locator[len(locator)-1] != hashes[0] {
			t.Fatalf("\t%s\tLocator should always include the genesis block.", failed)
		}
		t.Logf("\t%s\tLocator should always include the genesis block.", success)

		if len(locator) >= 16 {
			t.Fatalf("\t%s\tLocator should be sparse, got %d entries.", failed, len(locator))
		}
		t.Logf("\t%s\tLocator should be sparse over the chain.", success)

		fork := store.FindForkHeight([]string{"0xdeadbeef", hashes[7], hashes[3]})
		if fork != 7 {
			t.Fatalf("\t%s\tShould find fork at the first recognized hash, got %d.", failed, fork)
		}
		t.Logf("\t%s\tShould find fork at the first recognized hash.", success)

		if fork := store.FindForkHeight([]string{"0xdeadbeef"}); fork != 0 {
			t.Fatalf("\t%s\tShould report height 0 when nothing matches, got %d.", failed, fork)
		}
		t.Logf("\t%s\tShould report height 0 when nothing matches.", success)
	}
}

func Test_TransactionLookup(t *testing.T) {
	t.Log("Given the need to check confirmation status of transactions.")
	{
		store := newStore(t)

		cb := ledger.NewCoinbase(minerAddr, 100, 0, 1_700_000_000)
		genesis := makeBlock(0, signature.ZeroHash, []ledger.Tx{cb})
		if err := store.PutBlock(genesis); err != nil {
			t.Fatalf("\t%s\tShould store the genesis block: %v", failed, err)
		}

		tx, height, err := store.GetTransaction(cb.TxID)
		if err != nil || height != 0 || tx.TxID != cb.TxID {
			t.Fatalf("\t%s\tShould retrieve a confirmed transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould retrieve a confirmed transaction.", success)

		if _, _, err := store.GetTransaction("0xmissing"); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("\t%s\tShould report not found for an unknown txid: %v", failed, err)
		}
		t.Logf("\t%s\tShould report not found for an unknown txid.", success)
	}
}
