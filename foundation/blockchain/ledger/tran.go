package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// SequenceFinal is the input sequence value at or above which a
// transaction does not signal replace-by-fee.
const SequenceFinal uint32 = 0xfffffffe

// TxInput represents a reference to an output being spent.
type TxInput struct {
	PreviousTxID string `json:"previous_txid"`
	OutputIndex  uint32 `json:"previous_output_index"`
	ScriptSig    string `json:"script_sig"`
	Sequence     uint32 `json:"sequence"`
}

// TxOutput represents value being made spendable by an address.
type TxOutput struct {
	Value        uint64 `json:"value"`
	ScriptPubKey string `json:"script_pubkey"`
	Address      string `json:"address"`
}

// Tx represents a transfer of value between addresses.
type Tx struct {
	TxID      string     `json:"txid"`
	Inputs    []TxInput  `json:"inputs"`
	Outputs   []TxOutput `json:"outputs"`
	TimeStamp uint64     `json:"timestamp"`
	Fee       uint64     `json:"fee"`
}

// NewCoinbase constructs the reward transaction for a block. A coinbase
// carries no inputs and the block height is bound into the output script
// so the txid stays unique across blocks paying the same address.
func NewCoinbase(address string, reward uint64, height uint64, timestamp uint64) Tx {
	tx := Tx{
		Outputs: []TxOutput{
			{
				Value:        reward,
				ScriptPubKey: fmt.Sprintf("cb:%d", height),
				Address:      address,
			},
		},
		TimeStamp: timestamp,
	}
	tx.TxID = tx.ComputeID()

	return tx
}

// IsCoinbase reports whether this is a block reward transaction.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// ComputeID derives the transaction id from the transaction content.
// The id field itself is excluded so a transaction carrying its own id
// hashes to the same value.
func (tx Tx) ComputeID() string {
	content := struct {
		Inputs    []TxInput  `json:"inputs"`
		Outputs   []TxOutput `json:"outputs"`
		TimeStamp uint64     `json:"timestamp"`
		Fee       uint64     `json:"fee"`
	}{
		Inputs:    tx.Inputs,
		Outputs:   tx.Outputs,
		TimeStamp: tx.TimeStamp,
		Fee:       tx.Fee,
	}

	return signature.Hash(content)
}

// Size returns the byte size of the encoded transaction.
func (tx Tx) Size() int {
	data, err := json.Marshal(tx)
	if err != nil {
		return 0
	}

	return len(data)
}

// SignalsRBF reports whether any input opts the transaction into
// replace-by-fee.
func (tx Tx) SignalsRBF() bool {
	for _, input := range tx.Inputs {
		if input.Sequence < SequenceFinal {
			return true
		}
	}

	return false
}

// =============================================================================

// UTXO represents a spendable output owned by an address. UTXO values are
// derived from confirmed transactions and only ever created by the ledger.
type UTXO struct {
	TxID         string `json:"txid"`
	OutputIndex  uint32 `json:"output_index"`
	Value        uint64 `json:"value"`
	ScriptPubKey string `json:"script_pubkey"`
	Address      string `json:"address"`
	BlockHeight  uint64 `json:"block_height"`
}

// =============================================================================

// MerkleRoot folds the transaction ids pairwise into a single root hash.
// An odd layer duplicates its last entry, the bitcoin convention.
func MerkleRoot(trans []Tx) string {
	if len(trans) == 0 {
		return signature.ZeroHash
	}

	layer := make([]string, len(trans))
	for i, tx := range trans {
		layer[i] = tx.TxID
	}

	for len(layer) > 1 {
		if len(layer)%2 != 0 {
			layer = append(layer, layer[len(layer)-1])
		}

		next := make([]string, 0, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			next = append(next, signature.Hash([2]string{layer[i], layer[i+1]}))
		}
		layer = next
	}

	return layer[0]
}
