package ledger

import (
	"fmt"

	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Height        uint64 `json:"height"`
	PrevBlockHash string `json:"prev_block_hash"`
	TimeStamp     uint64 `json:"timestamp"`
	Nonce         uint64 `json:"nonce"`
	Difficulty    uint64 `json:"difficulty"`
	MerkleRoot    string `json:"merkle_root"`
}

// Block represents a group of transactions bound under one header.
type Block struct {
	Header BlockHeader `json:"header"`
	Trans  []Tx        `json:"trans"`
}

// Hash returns the unique hash for the block. Only the header is hashed;
// the merkle root binds the transactions into it.
func (b Block) Hash() string {
	return signature.Hash(b.Header)
}

// Hash returns the unique hash for the header.
func (bh BlockHeader) Hash() string {
	return signature.Hash(bh)
}

// RequiredZeros converts a difficulty value into the number of leading
// zero hex digits a solved block hash must carry.
func RequiredZeros(difficulty uint64) int {
	return int(difficulty / 1000)
}

// IsSolved reports whether the hash satisfies the difficulty.
func IsSolved(difficulty uint64, hash string) bool {
	if !signature.IsWellFormed(hash) {
		return false
	}

	return signature.LeadingZeros(hash) >= RequiredZeros(difficulty)
}

// ValidateContent checks the structural rules every block must satisfy
// regardless of where it sits in the chain.
func (b Block) ValidateContent() error {
	if len(b.Trans) == 0 {
		return fmt.Errorf("block %d carries no transactions: %w", b.Header.Height, ErrInvalidBlock)
	}

	for i, tx := range b.Trans {
		if tx.IsCoinbase() && i != 0 {
			return fmt.Errorf("coinbase at position %d: %w", i, ErrInvalidBlock)
		}
		if tx.TxID != tx.ComputeID() {
			return fmt.Errorf("transaction id mismatch for %s: %w", tx.TxID, ErrInvalidBlock)
		}
	}

	if b.Header.MerkleRoot != MerkleRoot(b.Trans) {
		return fmt.Errorf("merkle root does not match transactions: %w", ErrInvalidBlock)
	}

	return nil
}
