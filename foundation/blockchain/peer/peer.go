// Package peer maintains the peer related information such as the set
// of known peers and their behavioural score.
package peer

import (
	"sync"
	"time"
)

// Peer represents information about a node in the network.
type Peer struct {
	Host string
}

// New constructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]*Score
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]*Score),
	}
}

// Add adds a new node to the set with a fresh neutral score.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = NewScore()
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Score returns the score tracker for the specified peer, adding the peer
// first if it was not known.
func (ps *PeerSet) Score(peer Peer) *Score {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	score, exists := ps.set[peer]
	if !exists {
		score = NewScore()
		ps.set[peer] = score
	}

	return score
}

// Copy returns a list of the known peers, excluding the specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	return peers
}

// Count returns the number of known peers.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Ranked returns the known peers ordered best score first. Peers with higher
// scores are preferred for outbound connection retention.
func (ps *PeerSet) Ranked(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	type ranked struct {
		peer  Peer
		value uint64
	}

	rs := make([]ranked, 0, len(ps.set))
	for peer, score := range ps.set {
		if peer.Match(host) {
			continue
		}
		rs = append(rs, ranked{peer: peer, value: score.Value(time.Now())})
	}

	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].value > rs[j-1].value; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}

	peers := make([]Peer, len(rs))
	for i, r := range rs {
		peers[i] = r.peer
	}

	return peers
}
