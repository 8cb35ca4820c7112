package p2p

import (
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
)

// Inventory item types carried by Inv and GetData messages.
const (
	InvBlock = "block"
	InvTx    = "tx"
)

// Version opens the handshake and advertises what this node knows.
type Version struct {
	Version string `json:"version"`
	Host    string `json:"host"`
	Height  uint64 `json:"height"`
}

// Verack acknowledges a Version message and completes the handshake.
type Verack struct {
	Version string `json:"version"`
	Height  uint64 `json:"height"`
}

// Ping probes liveness and samples round-trip latency.
type Ping struct {
	Nonce uint64 `json:"nonce"`
}

// Pong answers a Ping, echoing its nonce.
type Pong struct {
	Nonce uint64 `json:"nonce"`
}

// GetAddr asks a peer for the peers it knows about.
type GetAddr struct{}

// Addr shares a set of known peer addresses.
type Addr struct {
	Hosts []string `json:"hosts"`
}

// GetHeight asks a peer for its chain tip.
type GetHeight struct{}

// Height reports the chain tip.
type Height struct {
	Height uint64 `json:"height"`
}

// GetBlocks requests headers for blocks after the fork point implied by
// the locator. The response is a Headers message, never raw blocks.
type GetBlocks struct {
	Locator  []string `json:"locator"`
	HashStop string   `json:"hash_stop,omitempty"`
}

// GetHeaders requests headers after the fork point implied by the locator.
type GetHeaders struct {
	Locator  []string `json:"locator"`
	HashStop string   `json:"hash_stop,omitempty"`
}

// Headers delivers a batch of sequential block headers.
type Headers struct {
	Headers []ledger.BlockHeader `json:"headers"`
}

// Inv announces items a peer has available.
type Inv struct {
	Type   string   `json:"type"`
	Hashes []string `json:"hashes"`
}

// GetData selectively fetches previously announced items.
type GetData struct {
	Type   string   `json:"type"`
	Hashes []string `json:"hashes"`
}

// BlockData delivers one full block in response to a GetData request.
type BlockData struct {
	Block ledger.Block `json:"block"`
}

// TxData delivers one full transaction in response to a GetData request.
type TxData struct {
	Tx ledger.Tx `json:"tx"`
}

// NewBlock announces a freshly accepted or mined block unsolicited.
type NewBlock struct {
	Block ledger.Block `json:"block"`
}

// NewTransaction announces a transaction accepted into the mempool.
type NewTransaction struct {
	Tx ledger.Tx `json:"tx"`
}
