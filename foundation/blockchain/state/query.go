package state

import (
	"github.com/kobaltchain/kobalt/foundation/blockchain/fees"
	"github.com/kobaltchain/kobalt/foundation/blockchain/genesis"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
	"github.com/kobaltchain/kobalt/foundation/blockchain/p2p"
	"github.com/kobaltchain/kobalt/foundation/blockchain/peer"
)

// Host returns this node's advertised host.
func (s *State) Host() string {
	return s.host
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// ChainHeight returns the height of the chain tip.
func (s *State) ChainHeight() (uint64, error) {
	return s.ledger.ChainHeight()
}

// LatestBlock returns the block at the chain tip.
func (s *State) LatestBlock() (ledger.Block, error) {
	return s.ledger.LatestBlock()
}

// BlockByHeight returns the block stored at the specified height.
func (s *State) BlockByHeight(height uint64) (ledger.Block, error) {
	return s.ledger.GetBlockByHeight(height)
}

// BlockByHash returns the block stored under the specified hash.
func (s *State) BlockByHash(hash string) (ledger.Block, error) {
	return s.ledger.GetBlockByHash(hash)
}

// Transaction returns a confirmed transaction and the height of the
// block that confirmed it.
func (s *State) Transaction(txid string) (ledger.Tx, uint64, error) {
	return s.ledger.GetTransaction(txid)
}

// UTXOsForAddress returns the spendable outputs owned by an address.
func (s *State) UTXOsForAddress(address string) ([]ledger.UTXO, error) {
	return s.ledger.UTXOsForAddress(address)
}

// Balance returns the sum of the spendable outputs owned by an address.
func (s *State) Balance(address string) (uint64, error) {
	return s.ledger.Balance(address)
}

// MempoolStats summarizes the pending pool.
func (s *State) MempoolStats() mempool.Stats {
	return s.mempool.Stats()
}

// MempoolEntries returns a copy of every pending entry.
func (s *State) MempoolEntries() []mempool.Entry {
	return s.mempool.Copy()
}

// MempoolTransaction returns a pending transaction by id.
func (s *State) MempoolTransaction(txid string) (mempool.Entry, bool) {
	return s.mempool.Get(txid)
}

// FeeEstimates returns the recommendation for every confirmation target.
func (s *State) FeeEstimates() []fees.Estimate {
	return s.fees.EstimateAll()
}

// FeeEstimate returns the recommendation for one confirmation target.
func (s *State) FeeEstimate(target fees.Target) fees.Estimate {
	return s.fees.Estimate(target)
}

// FeeHistory returns the recent per-block fee statistics.
func (s *State) FeeHistory() []fees.BlockStats {
	return s.fees.History()
}

// KnownPeers returns the peers this node knows about.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RankedPeers returns the known peers ordered best score first. The
// discovery operation dials in this order so well-behaved peers keep
// their connections ahead of misbehaving ones.
func (s *State) RankedPeers() []peer.Peer {
	return s.knownPeers.Ranked(s.host)
}

// ConnectedPeers reports every live connection with its score.
func (s *State) ConnectedPeers() []p2p.PeerStatus {
	return s.engine.Status()
}
