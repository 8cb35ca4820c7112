package public

import (
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
)

// statusInfo summarizes the node for its clients.
type statusInfo struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockHeight uint64 `json:"latest_block_height"`
	MempoolCount      int    `json:"mempool_count"`
	KnownPeers        int    `json:"known_peers"`
	ConnectedPeers    int    `json:"connected_peers"`
}

// blockInfo represents a block with its derived hash included.
type blockInfo struct {
	Hash   string             `json:"hash"`
	Header ledger.BlockHeader `json:"header"`
	Trans  []ledger.Tx        `json:"trans"`
}

func toBlockInfo(block ledger.Block) blockInfo {
	return blockInfo{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans,
	}
}

// confirmedTx carries a confirmed transaction with its block height.
type confirmedTx struct {
	Tx          ledger.Tx `json:"tx"`
	BlockHeight uint64    `json:"block_height"`
}

// balanceInfo reports the spendable value owned by an address.
type balanceInfo struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// replaceTxRequest asks for a pending transaction to be replaced.
type replaceTxRequest struct {
	OldTxID string    `json:"old_txid" validate:"required"`
	Tx      ledger.Tx `json:"tx" validate:"required"`
	Reason  string    `json:"reason"`
}
