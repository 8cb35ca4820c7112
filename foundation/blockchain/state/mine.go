package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
)

// Set of mining state errors.
var (
	ErrAlreadyMining = errors.New("miner is already running")
	ErrNotMining     = errors.New("miner is not running")
	ErrUnknownMiner  = errors.New("no miner registered under that id")
)

// MinerStatus reports the observable state of one miner identity.
type MinerStatus struct {
	MinerID     string    `json:"miner_id"`
	Address     string    `json:"address"`
	Mining      bool      `json:"mining"`
	BlocksMined uint64    `json:"blocks_mined"`
	HashRate    float64   `json:"hash_rate"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// minerSet tracks every miner identity this node has seen. Identities
// survive stop/start cycles so the blocks-mined counter accumulates.
type minerSet struct {
	mu     sync.Mutex
	miners map[string]*miner
}

type miner struct {
	address     string
	mining      bool
	blocksMined uint64
	hashRate    float64
	startedAt   time.Time
}

func newMinerSet() *minerSet {
	return &minerSet{
		miners: make(map[string]*miner),
	}
}

// =============================================================================

// StartMining flips the specified miner identity from idle to mining.
func (s *State) StartMining(minerID string, address string) error {
	s.miners.mu.Lock()
	defer s.miners.mu.Unlock()

	m, exists := s.miners.miners[minerID]
	if !exists {
		m = &miner{}
		s.miners.miners[minerID] = m
	}
	if m.mining {
		return fmt.Errorf("miner %s: %w", minerID, ErrAlreadyMining)
	}

	m.address = address
	m.mining = true
	m.startedAt = time.Now()

	s.evHandler("state: miner %s: started for address %s", minerID, address)

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// StopMining flips the specified miner identity back to idle. The
// mining loop observes the flag at the top of its next attempt.
func (s *State) StopMining(minerID string) error {
	s.miners.mu.Lock()
	defer s.miners.mu.Unlock()

	m, exists := s.miners.miners[minerID]
	if !exists {
		return fmt.Errorf("miner %s: %w", minerID, ErrUnknownMiner)
	}
	if !m.mining {
		return fmt.Errorf("miner %s: %w", minerID, ErrNotMining)
	}

	m.mining = false
	s.evHandler("state: miner %s: stopped", minerID)

	return nil
}

// MiningStatus reports the state of one miner identity.
func (s *State) MiningStatus(minerID string) (MinerStatus, error) {
	s.miners.mu.Lock()
	defer s.miners.mu.Unlock()

	m, exists := s.miners.miners[minerID]
	if !exists {
		return MinerStatus{}, fmt.Errorf("miner %s: %w", minerID, ErrUnknownMiner)
	}

	return minerStatus(minerID, m), nil
}

// MinerStatuses reports every miner identity this node has seen.
func (s *State) MinerStatuses() []MinerStatus {
	s.miners.mu.Lock()
	defer s.miners.mu.Unlock()

	statuses := make([]MinerStatus, 0, len(s.miners.miners))
	for id, m := range s.miners.miners {
		statuses = append(statuses, minerStatus(id, m))
	}

	return statuses
}

func minerStatus(id string, m *miner) MinerStatus {
	status := MinerStatus{
		MinerID:     id,
		Address:     m.address,
		Mining:      m.mining,
		BlocksMined: m.blocksMined,
		HashRate:    m.hashRate,
	}
	if m.mining {
		status.StartedAt = m.startedAt
	}

	return status
}

// ActiveMiners returns the ids of every identity currently mining.
func (s *State) ActiveMiners() []string {
	s.miners.mu.Lock()
	defer s.miners.mu.Unlock()

	var ids []string
	for id, m := range s.miners.miners {
		if m.mining {
			ids = append(ids, id)
		}
	}

	return ids
}

// =============================================================================

// MineNextBlock performs one mining attempt for the specified miner:
// assemble a coinbase plus the best mempool transactions, search for a
// solving nonce and persist the result. A height mismatch on persist
// means a competing block won the race; the caller just tries again.
func (s *State) MineNextBlock(ctx context.Context, minerID string) (ledger.Block, error) {
	s.miners.mu.Lock()
	m, exists := s.miners.miners[minerID]
	if !exists || !m.mining {
		s.miners.mu.Unlock()
		return ledger.Block{}, fmt.Errorf("miner %s: %w", minerID, ErrNotMining)
	}
	address := m.address
	s.miners.mu.Unlock()

	latest, err := s.ledger.LatestBlock()
	if err != nil {
		return ledger.Block{}, err
	}

	nextHeight := latest.Header.Height + 1
	difficulty := s.genesis.Difficulty + nextHeight/100

	cb := ledger.NewCoinbase(address, s.genesis.MiningReward, nextHeight, uint64(time.Now().UTC().Unix()))
	trans := append([]ledger.Tx{cb}, s.mempool.SelectForBlock(s.genesis.TransPerBlock, s.genesis.MaxBlockBytes)...)

	block, err := ledger.Mine(ctx, ledger.MineArgs{
		Height:        nextHeight,
		PrevBlockHash: latest.Hash(),
		Difficulty:    difficulty,
		Trans:         trans,
		EvHandler:     ledger.EventHandler(s.evHandler),
		Report: func(attempts uint64, elapsed time.Duration) {
			if elapsed > 0 {
				s.miners.mu.Lock()
				m.hashRate = float64(attempts) / elapsed.Seconds()
				s.miners.mu.Unlock()
			}
		},
		ReportInterval: time.Second,
	})
	if err != nil {
		return ledger.Block{}, err
	}

	if err := s.ledger.PutBlock(block); err != nil {
		return ledger.Block{}, err
	}

	s.miners.mu.Lock()
	m.blocksMined++
	s.miners.mu.Unlock()

	s.evHandler("state: miner %s: mined block %d [%s]", minerID, block.Header.Height, block.Hash())

	s.onBlockAccepted(block)
	s.engine.BroadcastBlock(block)

	return block, nil
}
