package p2p_test

import (
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger/storage"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
	"github.com/kobaltchain/kobalt/foundation/blockchain/p2p"
	"github.com/kobaltchain/kobalt/foundation/blockchain/peer"
	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const minerAddr = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"

func newEngine(t *testing.T) (*p2p.Engine, *ledger.Store) {
	t.Helper()

	store, err := ledger.New(storage.NewMemory(), nil)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the ledger: %v", failed, err)
	}

	mp, err := mempool.New(mempool.Config{
		MaxPool:    100,
		MaxTxBytes: 1 << 20,
		Confirmed:  store,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the mempool: %v", failed, err)
	}

	eng, err := p2p.New(p2p.Config{
		Host:       "test:9080",
		Version:    "test/1",
		Ledger:     store,
		Mempool:    mp,
		KnownPeers: peer.NewPeerSet(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the engine: %v", failed, err)
	}

	return eng, store
}

// makeBlock builds a block at difficulty zero so any hash counts as
// solved and test blocks do not need mining.
func makeBlock(height uint64, prevHash string, trans []ledger.Tx) ledger.Block {
	return ledger.Block{
		Header: ledger.BlockHeader{
			Height:        height,
			PrevBlockHash: prevHash,
			TimeStamp:     1_700_000_000 + height,
			Difficulty:    0,
			MerkleRoot:    ledger.MerkleRoot(trans),
		},
		Trans: trans,
	}
}

func seedChain(t *testing.T, store *ledger.Store, blocks uint64) []ledger.Block {
	t.Helper()

	var chain []ledger.Block
	prevHash := signature.ZeroHash
	for height := uint64(0); height < blocks; height++ {
		cb := ledger.NewCoinbase(minerAddr, 50, height, 1_700_000_000+height)
		block := makeBlock(height, prevHash, []ledger.Tx{cb})

		if err := store.PutBlock(block); err != nil {
			t.Fatalf("\t%s\tShould be able to seed block %d: %v", failed, height, err)
		}

		chain = append(chain, block)
		prevHash = block.Hash()
	}

	return chain
}

func Test_WireRoundTrip(t *testing.T) {
	t.Log("Given the need to move framed messages across a connection.")
	{
		t.Logf("\tTest 0:\tWhen writing and reading a headers request.")
		{
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			want := p2p.GetHeaders{
				Locator:  []string{"0xaa", "0xbb"},
				HashStop: "0xcc",
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- p2p.WriteMessage(client, p2p.MsgGetHeaders, want)
			}()

			msgType, data, err := p2p.ReadMessage(server)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the frame: %v", failed, err)
			}
			if writeErr := <-errCh; writeErr != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write the frame: %v", failed, writeErr)
			}
			if msgType != p2p.MsgGetHeaders {
				t.Fatalf("\t%s\tTest 0:\tShould see the written type: got %s", failed, msgType)
			}
			t.Logf("\t%s\tTest 0:\tShould round-trip the frame type.", success)

			got := p2p.GetHeaders{}
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould decode the payload: %v", failed, err)
			}
			if len(got.Locator) != 2 || got.Locator[0] != "0xaa" || got.HashStop != "0xcc" {
				t.Fatalf("\t%s\tTest 0:\tShould round-trip the payload: got %+v", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould round-trip the payload.", success)
		}

		t.Logf("\tTest 1:\tWhen delivering a block body for a data request.")
		{
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			cb := ledger.NewCoinbase(minerAddr, 50, 7, 1_700_000_700)
			want := makeBlock(7, signature.ZeroHash, []ledger.Tx{cb})

			errCh := make(chan error, 1)
			go func() {
				errCh <- p2p.WriteMessage(client, p2p.MsgBlock, p2p.BlockData{Block: want})
			}()

			msgType, data, err := p2p.ReadMessage(server)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to read the frame: %v", failed, err)
			}
			if writeErr := <-errCh; writeErr != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to write the frame: %v", failed, writeErr)
			}
			if msgType != p2p.MsgBlock {
				t.Fatalf("\t%s\tTest 1:\tShould carry the block delivery type: got %s", failed, msgType)
			}

			got := p2p.BlockData{}
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould decode the payload: %v", failed, err)
			}
			if got.Block.Hash() != want.Hash() {
				t.Fatalf("\t%s\tTest 1:\tShould deliver the same block: got %s", failed, got.Block.Hash())
			}
			t.Logf("\t%s\tTest 1:\tShould deliver the block body intact.", success)
		}

		t.Logf("\tTest 2:\tWhen reading a frame with the wrong magic.")
		{
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			go client.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x00, 0x00, 0x00, 0x00})

			if _, _, err := p2p.ReadMessage(server); !errors.Is(err, p2p.ErrBadMagic) {
				t.Fatalf("\t%s\tTest 2:\tShould reject the frame as foreign: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the frame as foreign.", success)
		}
	}
}

func Test_AcceptBlock(t *testing.T) {
	t.Log("Given the need to accept only blocks that extend the tip by one.")
	{
		t.Logf("\tTest 0:\tWhen a peer delivers a block two heights ahead.")
		{
			eng, store := newEngine(t)
			chain := seedChain(t, store, 3)
			tip := chain[len(chain)-1]

			cb := ledger.NewCoinbase(minerAddr, 50, 4, 1_700_000_400)
			skip := makeBlock(4, tip.Hash(), []ledger.Tx{cb})

			if err := eng.AcceptBlock(skip); !errors.Is(err, ledger.ErrHeightMismatch) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the block for height mismatch: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the block for height mismatch.", success)

			height, err := store.ChainHeight()
			if err != nil || height != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the chain height unchanged: got %d: %v", failed, height, err)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the chain height unchanged.", success)
		}

		t.Logf("\tTest 1:\tWhen a peer delivers the next sequential block.")
		{
			eng, store := newEngine(t)
			chain := seedChain(t, store, 3)
			tip := chain[len(chain)-1]

			cb := ledger.NewCoinbase(minerAddr, 50, 3, 1_700_000_300)
			next := makeBlock(3, tip.Hash(), []ledger.Tx{cb})

			if err := eng.AcceptBlock(next); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould accept the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould accept the block.", success)

			if err := eng.AcceptBlock(next); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould treat a known block as a no-op: %v", failed, err)
			}

			height, err := store.ChainHeight()
			if err != nil || height != 3 {
				t.Fatalf("\t%s\tTest 1:\tShould advance the chain height to 3: got %d: %v", failed, height, err)
			}
			t.Logf("\t%s\tTest 1:\tShould treat a known block as a no-op.", success)
		}

		t.Logf("\tTest 2:\tWhen a peer delivers a block with an unknown parent.")
		{
			eng, store := newEngine(t)
			seedChain(t, store, 3)

			cb := ledger.NewCoinbase(minerAddr, 50, 3, 1_700_000_300)
			orphan := makeBlock(3, "0x0000000000000000000000000000000000000000000000000000000000000099", []ledger.Tx{cb})

			if err := eng.AcceptBlock(orphan); !errors.Is(err, p2p.ErrOrphanBlock) {
				t.Fatalf("\t%s\tTest 2:\tShould reject the orphan block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the orphan block.", success)
		}

		t.Logf("\tTest 3:\tWhen a peer delivers a block with no transactions.")
		{
			eng, store := newEngine(t)
			chain := seedChain(t, store, 2)
			tip := chain[len(chain)-1]

			empty := makeBlock(2, tip.Hash(), nil)

			if err := eng.AcceptBlock(empty); !errors.Is(err, ledger.ErrInvalidBlock) {
				t.Fatalf("\t%s\tTest 3:\tShould reject the empty block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould reject the empty block.", success)
		}

		t.Logf("\tTest 4:\tWhen a peer delivers a block with transactions not bound by the header.")
		{
			eng, store := newEngine(t)
			chain := seedChain(t, store, 3)
			tip := chain[len(chain)-1]

			cb := ledger.NewCoinbase(minerAddr, 50, 3, 1_700_000_300)
			next := makeBlock(3, tip.Hash(), []ledger.Tx{cb})

			// Slip a forged payout in after the merkle root was computed.
			forged := ledger.Tx{
				TxID:      signature.Hash("not-the-content"),
				Inputs:    []ledger.TxInput{{PreviousTxID: cb.TxID, Sequence: ledger.SequenceFinal}},
				Outputs:   []ledger.TxOutput{{Value: 1_000_000, Address: minerAddr}},
				TimeStamp: 1_700_000_300,
			}
			next.Trans = append(next.Trans, forged)

			if err := eng.AcceptBlock(next); !errors.Is(err, ledger.ErrInvalidBlock) {
				t.Fatalf("\t%s\tTest 4:\tShould reject the forged block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould reject the forged block.", success)

			utxos, err := store.UTXOsForAddress(minerAddr)
			if err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to read the utxo set: %v", failed, err)
			}
			for _, utxo := range utxos {
				if utxo.Value == 1_000_000 {
					t.Fatalf("\t%s\tTest 4:\tShould not credit the forged output.", failed)
				}
			}
			t.Logf("\t%s\tTest 4:\tShould not credit the forged output.", success)
		}

		t.Logf("\tTest 5:\tWhen a peer delivers a next-height block that was never mined.")
		{
			eng, store := newEngine(t)
			chain := seedChain(t, store, 3)
			tip := chain[len(chain)-1]

			cb := ledger.NewCoinbase(minerAddr, 50, 3, 1_700_000_300)
			unsolved := makeBlock(3, tip.Hash(), []ledger.Tx{cb})
			unsolved.Header.Difficulty = 100_000

			if err := eng.AcceptBlock(unsolved); !errors.Is(err, ledger.ErrInvalidBlock) {
				t.Fatalf("\t%s\tTest 5:\tShould reject the unsolved block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould reject the unsolved block.", success)
		}
	}
}

func Test_ProcessHeaders(t *testing.T) {
	t.Log("Given the need to validate header batches for continuity.")
	{
		t.Logf("\tTest 0:\tWhen a batch is sequential with some stored blocks.")
		{
			eng, store := newEngine(t)
			chain := seedChain(t, store, 3)
			tip := chain[len(chain)-1]

			cb3 := ledger.NewCoinbase(minerAddr, 50, 3, 1_700_000_300)
			next3 := makeBlock(3, tip.Hash(), []ledger.Tx{cb3})
			cb4 := ledger.NewCoinbase(minerAddr, 50, 4, 1_700_000_400)
			next4 := makeBlock(4, next3.Hash(), []ledger.Tx{cb4})

			headers := []ledger.BlockHeader{chain[2].Header, next3.Header, next4.Header}

			fetch, err := eng.ProcessHeaders(headers)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the sequential batch: %v", failed, err)
			}
			if len(fetch) != 2 || fetch[0] != next3.Hash() || fetch[1] != next4.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould request only the missing blocks: got %v", failed, fetch)
			}
			t.Logf("\t%s\tTest 0:\tShould request only the missing blocks.", success)
		}

		t.Logf("\tTest 1:\tWhen a batch skips a height.")
		{
			eng, store := newEngine(t)
			chain := seedChain(t, store, 3)
			tip := chain[len(chain)-1]

			cb3 := ledger.NewCoinbase(minerAddr, 50, 3, 1_700_000_300)
			next3 := makeBlock(3, tip.Hash(), []ledger.Tx{cb3})
			cb5 := ledger.NewCoinbase(minerAddr, 50, 5, 1_700_000_500)
			gap5 := makeBlock(5, next3.Hash(), []ledger.Tx{cb5})

			headers := []ledger.BlockHeader{next3.Header, gap5.Header}

			fetch, err := eng.ProcessHeaders(headers)
			if !errors.Is(err, ledger.ErrHeightMismatch) {
				t.Fatalf("\t%s\tTest 1:\tShould abort the batch at the gap: %v", failed, err)
			}
			if len(fetch) != 1 || fetch[0] != next3.Hash() {
				t.Fatalf("\t%s\tTest 1:\tShould keep the headers before the gap: got %v", failed, fetch)
			}
			t.Logf("\t%s\tTest 1:\tShould abort the batch at the gap keeping earlier headers.", success)
		}
	}
}
