// Package state is the core API for the node and implements all the
// business rules and processing.
package state

import (
	"context"
	"errors"
	"sort"

	"github.com/kobaltchain/kobalt/foundation/blockchain/fees"
	"github.com/kobaltchain/kobalt/foundation/blockchain/genesis"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
	"github.com/kobaltchain/kobalt/foundation/blockchain/p2p"
	"github.com/kobaltchain/kobalt/foundation/blockchain/peer"
	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented
// by any package providing support for mining, syncing, peer discovery
// and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalShareTx(tx ledger.Tx)
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	Host           string
	Version        string
	Genesis        genesis.Genesis
	Ledger         *ledger.Store
	SelectStrategy string
	KnownPeers     *peer.PeerSet
	EvHandler      EventHandler
}

// State manages the blockchain node.
type State struct {
	host      string
	version   string
	genesis   genesis.Genesis
	evHandler EventHandler

	knownPeers *peer.PeerSet
	ledger     *ledger.Store
	mempool    *mempool.Mempool
	fees       *fees.Estimator
	engine     *p2p.Engine

	miners *minerSet

	Worker Worker
}

// New constructs the state, seeding the genesis block when the ledger
// is empty.
func New(cfg Config) (*State, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger store required")
	}
	if cfg.KnownPeers == nil {
		cfg.KnownPeers = peer.NewPeerSet()
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	mp, err := mempool.New(mempool.Config{
		MaxPool:    cfg.Genesis.MaxMempool,
		MaxTxBytes: cfg.Genesis.MaxTxBytes,
		MinFeeRate: cfg.Genesis.MinFeeRate,
		Strategy:   cfg.SelectStrategy,
		Confirmed:  cfg.Ledger,
	})
	if err != nil {
		return nil, err
	}

	s := State{
		host:       cfg.Host,
		version:    cfg.Version,
		genesis:    cfg.Genesis,
		evHandler:  ev,
		knownPeers: cfg.KnownPeers,
		ledger:     cfg.Ledger,
		mempool:    mp,
		miners:     newMinerSet(),
	}

	s.fees = fees.New(fees.Config{
		Mempool:    mp,
		Ledger:     cfg.Ledger,
		MinFeeRate: cfg.Genesis.MinFeeRate,
	})

	engine, err := p2p.New(p2p.Config{
		Host:            cfg.Host,
		Version:         cfg.Version,
		Ledger:          cfg.Ledger,
		Mempool:         mp,
		KnownPeers:      cfg.KnownPeers,
		EvHandler:       ev,
		OnBlockAccepted: s.onBlockAccepted,
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine

	if err := s.seedGenesisBlock(); err != nil {
		return nil, err
	}

	// The Worker is not set here. The call to worker.Run will assign
	// itself and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down, flushing the ledger last. The
// drain and flush run within the caller's deadline; on expiry the error
// is returned and the process is expected to exit anyway.
func (s *State) Shutdown(ctx context.Context) error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	done := make(chan error, 1)
	go func() {
		if s.Worker != nil {
			s.Worker.Shutdown()
		}

		if err := s.ledger.Flush(); err != nil {
			done <- err
			return
		}

		done <- s.ledger.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================

// seedGenesisBlock writes the height zero block paying out the genesis
// balances. A ledger that already has blocks is left untouched.
func (s *State) seedGenesisBlock() error {
	if _, err := s.ledger.ChainHeight(); err == nil {
		return nil
	} else if !errors.Is(err, ledger.ErrEmptyChain) {
		return err
	}

	addresses := make([]string, 0, len(s.genesis.Balances))
	for address := range s.genesis.Balances {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	timestamp := uint64(s.genesis.Date.Unix())
	cb := ledger.Tx{
		TimeStamp: timestamp,
	}
	for _, address := range addresses {
		cb.Outputs = append(cb.Outputs, ledger.TxOutput{
			Value:        s.genesis.Balances[address],
			ScriptPubKey: "cb:0",
			Address:      address,
		})
	}
	cb.TxID = cb.ComputeID()

	block := ledger.Block{
		Header: ledger.BlockHeader{
			Height:        0,
			PrevBlockHash: signature.ZeroHash,
			TimeStamp:     timestamp,
			Difficulty:    s.genesis.Difficulty,
			MerkleRoot:    ledger.MerkleRoot([]ledger.Tx{cb}),
		},
		Trans: []ledger.Tx{cb},
	}

	if err := s.ledger.PutBlock(block); err != nil {
		return err
	}

	s.evHandler("state: seeded genesis block [%s] with %d balances", block.Hash(), len(addresses))
	return nil
}

// onBlockAccepted runs after any block is persisted, locally mined or
// peer delivered. It clears confirmed transactions from the mempool,
// feeds the fee history and restarts any in-flight mining attempt that
// now targets a stale height.
func (s *State) onBlockAccepted(block ledger.Block) {
	for _, tx := range block.Trans {
		if _, err := s.mempool.Remove(tx.TxID); err != nil && !errors.Is(err, mempool.ErrNotFound) {
			s.evHandler("state: block accepted: remove tx %s: %s", tx.TxID, err)
		}
	}

	if err := s.fees.UpdateWithNewBlock(block.Header.Height); err != nil {
		s.evHandler("state: block accepted: fee history: %s", err)
	}

	if s.Worker != nil {
		s.Worker.SignalCancelMining()
	}
}

// =============================================================================

// SubmitTransaction routes a wallet submitted transaction through the
// mempool admission rules and shares it with the network.
func (s *State) SubmitTransaction(tx ledger.Tx) (ledger.Tx, error) {
	accepted, err := s.mempool.Add(tx)
	if err != nil {
		return ledger.Tx{}, err
	}

	s.evHandler("state: accepted transaction %s", accepted.TxID)

	if s.Worker != nil {
		s.Worker.SignalShareTx(accepted)
	}

	return accepted, nil
}

// ReplaceTransaction applies the replace-by-fee rules and shares the
// replacement on success. The returned value is the fee increase.
func (s *State) ReplaceTransaction(oldTxID string, newTx ledger.Tx, reason mempool.ReplaceReason) (uint64, error) {
	increase, err := s.mempool.Replace(oldTxID, newTx, reason)
	if err != nil {
		return 0, err
	}

	s.evHandler("state: replaced transaction %s [fee increase %d]", oldTxID, increase)

	if entry, exists := s.mempool.Get(newTx.TxID); exists && s.Worker != nil {
		s.Worker.SignalShareTx(entry.Tx)
	}

	return increase, nil
}

// =============================================================================

// SyncBlockchain checks the best known network height against the local
// tip and requests headers when behind. Re-issuing the request is safe:
// already stored blocks are skipped on the receiving side.
func (s *State) SyncBlockchain() error {
	host, bestHeight, found := s.engine.BestPeer()
	if !found {
		return nil
	}

	local, err := s.ledger.ChainHeight()
	if err != nil {
		return err
	}

	if bestHeight <= local {
		return nil
	}

	s.evHandler("state: sync: behind peer %s [local %d, network %d]", host, local, bestHeight)
	return s.engine.RequestHeaders(host)
}

// =============================================================================

// Engine returns the protocol engine for transport wiring.
func (s *State) Engine() *p2p.Engine {
	return s.engine
}
