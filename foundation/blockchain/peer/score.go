package peer

import (
	"sync"
	"time"
)

// Set of scoring weights. Scores live in the range [0, minScore+maxScore]
// conceptually but are clamped to [minScore, maxScore] on read.
const (
	baseScore = 500
	minScore  = 0
	maxScore  = 1000

	validBlockReward  = 1
	validTransBatch   = 10
	validTransReward  = 2
	invalidPenalty    = 5
	connFailPenalty   = 10
	latencyThreshold  = 500 * time.Millisecond
	latencyPenalty    = 25
	uptimeBonusAt     = 10 * time.Minute
	uptimeBonus       = 10
)

// Score maintains the behavioural accounting for a single peer. It is
// updated by protocol level events and used only to rank and evict peers.
// Scores are never persisted across restarts.
type Score struct {
	mu                 sync.Mutex
	blocksReceived     uint64
	transReceived      uint64
	invalidMessages    uint64
	connectionFailures uint64
	lastValidBlock     time.Time
	averagePing        time.Duration
	connectedAt        time.Time
}

// NewScore constructs a score tracker starting at the neutral base.
func NewScore() *Score {
	return &Score{
		connectedAt: time.Now(),
	}
}

// ValidBlock records the receipt of a block that passed validation.
func (s *Score) ValidBlock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocksReceived++
	s.lastValidBlock = time.Now()
}

// ValidTransaction records the receipt of a transaction the mempool accepted.
func (s *Score) ValidTransaction() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transReceived++
}

// InvalidMessage records a message that failed decode or validation.
func (s *Score) InvalidMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidMessages++
}

// ConnectionFailure records a failed attempt to reach the peer.
func (s *Score) ConnectionFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectionFailures++
}

// RecordPing folds a round-trip sample into the exponential moving
// average: new_avg = (3*old_avg + sample) / 4.
func (s *Score) RecordPing(sample time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.averagePing == 0 {
		s.averagePing = sample
		return
	}

	s.averagePing = (3*s.averagePing + sample) / 4
}

// AveragePing returns the current ping moving average.
func (s *Score) AveragePing() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.averagePing
}

// Value computes the clamped score as of the specified time.
func (s *Score) Value(now time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	score := int64(baseScore)

	score += int64(s.blocksReceived) * validBlockReward
	score += int64(s.transReceived/validTransBatch) * validTransReward
	score -= int64(s.invalidMessages) * invalidPenalty
	score -= int64(s.connectionFailures) * connFailPenalty

	if s.averagePing > latencyThreshold {
		score -= latencyPenalty
	}

	if !s.connectedAt.IsZero() && now.Sub(s.connectedAt) >= uptimeBonusAt {
		score += uptimeBonus
	}

	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}

	return uint64(score)
}

// Counters returns the raw accounting behind the score for reporting.
func (s *Score) Counters() (blocks uint64, trans uint64, invalid uint64, connFails uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.blocksReceived, s.transReceived, s.invalidMessages, s.connectionFailures
}
