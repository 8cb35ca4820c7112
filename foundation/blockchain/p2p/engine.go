package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
	"github.com/kobaltchain/kobalt/foundation/blockchain/peer"
	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// maxHeadersPerResponse caps how many headers one Headers message carries.
const maxHeadersPerResponse = 500

// defaultPingInterval paces the liveness probes sent to each peer.
const defaultPingInterval = 30 * time.Second

// dialTimeout bounds outbound connection attempts.
const dialTimeout = 5 * time.Second

// Set of engine level errors.
var (
	ErrOrphanBlock  = errors.New("previous hash does not resolve to a stored block")
	ErrBadHandshake = errors.New("peer did not complete the handshake")
	ErrNotConnected = errors.New("no connection to the specified peer")
)

// EventHandler defines a function that is called when events
// occur in the processing of messages.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start the engine.
type Config struct {
	Host            string
	Version         string
	Ledger          *ledger.Store
	Mempool         *mempool.Mempool
	KnownPeers      *peer.PeerSet
	EvHandler       EventHandler
	PingInterval    time.Duration
	OnBlockAccepted func(block ledger.Block)
}

// Engine maintains the set of live peer connections and moves blocks,
// transactions and chain metadata between them.
type Engine struct {
	host            string
	version         string
	ledger          *ledger.Store
	mempool         *mempool.Mempool
	knownPeers      *peer.PeerSet
	evHandler       EventHandler
	pingInterval    time.Duration
	onBlockAccepted func(block ledger.Block)

	mu       sync.RWMutex
	conns    map[string]*remote
	listener net.Listener

	wg        sync.WaitGroup
	shut      chan struct{}
	pingNonce uint64
}

// New constructs a protocol engine from the configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger store required")
	}
	if cfg.Mempool == nil {
		return nil, errors.New("mempool required")
	}
	if cfg.KnownPeers == nil {
		return nil, errors.New("peer set required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = defaultPingInterval
	}

	eng := Engine{
		host:            cfg.Host,
		version:         cfg.Version,
		ledger:          cfg.Ledger,
		mempool:         cfg.Mempool,
		knownPeers:      cfg.KnownPeers,
		evHandler:       ev,
		pingInterval:    pingInterval,
		onBlockAccepted: cfg.OnBlockAccepted,
		conns:           make(map[string]*remote),
		shut:            make(chan struct{}),
	}

	return &eng, nil
}

// =============================================================================

// remote represents one live peer connection. Message processing for a
// single remote is sequential; writes are serialized by their own mutex.
type remote struct {
	host     string
	conn     net.Conn
	outbound bool

	writeMu sync.Mutex

	mu      sync.Mutex
	version string
	height  uint64
	pings   map[uint64]time.Time
}

func (r *remote) send(msgType MsgType, payload any) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return WriteMessage(r.conn, msgType, payload)
}

func (r *remote) setTip(height uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if height > r.height {
		r.height = height
	}
}

// =============================================================================

// Run accepts inbound connections on the listener and starts the ping
// loop. It returns once the listener is set; serving happens in the
// background until Shutdown.
func (eng *Engine) Run(listener net.Listener) {
	eng.mu.Lock()
	eng.listener = listener
	eng.mu.Unlock()

	eng.wg.Add(2)

	go func() {
		defer eng.wg.Done()
		eng.acceptLoop(listener)
	}()

	go func() {
		defer eng.wg.Done()
		eng.pingLoop()
	}()

	eng.evHandler("p2p: engine: listening on %s", listener.Addr())
}

// Shutdown closes the listener and every live connection, then waits
// for the background goroutines within the bounds of the context.
func (eng *Engine) Shutdown(ctx context.Context) error {
	eng.evHandler("p2p: engine: shutdown: started")
	defer eng.evHandler("p2p: engine: shutdown: completed")

	close(eng.shut)

	eng.mu.Lock()
	if eng.listener != nil {
		eng.listener.Close()
	}
	for _, r := range eng.conns {
		r.conn.Close()
	}
	eng.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eng.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (eng *Engine) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-eng.shut:
				return
			default:
				eng.evHandler("p2p: engine: accept: ERROR: %s", err)
				continue
			}
		}

		eng.wg.Add(1)
		go func() {
			defer eng.wg.Done()
			eng.handleInbound(conn)
		}()
	}
}

// handleInbound performs the server side of the handshake: the remote
// must open with Version, we answer with Verack.
func (eng *Engine) handleInbound(conn net.Conn) {
	msgType, data, err := ReadMessage(conn)
	if err != nil || msgType != MsgVersion {
		eng.evHandler("p2p: engine: inbound %s: handshake failed", conn.RemoteAddr())
		conn.Close()
		return
	}

	var version Version
	if err := json.Unmarshal(data, &version); err != nil {
		conn.Close()
		return
	}

	height, _ := eng.localHeight()
	ack := Verack{Version: eng.version, Height: height}
	if err := WriteMessage(conn, MsgVerack, ack); err != nil {
		conn.Close()
		return
	}

	host := version.Host
	if host == "" {
		host = conn.RemoteAddr().String()
	}

	r := &remote{
		host:    host,
		conn:    conn,
		version: version.Version,
		height:  version.Height,
		pings:   make(map[uint64]time.Time),
	}

	eng.register(r)
	eng.readLoop(r)
}

// Connect dials the specified host, performs the client side of the
// handshake and starts reading from the new connection.
func (eng *Engine) Connect(host string) error {
	if host == eng.host {
		return nil
	}

	eng.mu.RLock()
	_, connected := eng.conns[host]
	eng.mu.RUnlock()
	if connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", host, dialTimeout)
	if err != nil {
		eng.knownPeers.Score(peer.New(host)).ConnectionFailure()
		return fmt.Errorf("dial %s: %w", host, err)
	}

	height, _ := eng.localHeight()
	version := Version{Version: eng.version, Host: eng.host, Height: height}
	if err := WriteMessage(conn, MsgVersion, version); err != nil {
		conn.Close()
		return fmt.Errorf("handshake with %s: %w", host, err)
	}

	msgType, data, err := ReadMessage(conn)
	if err != nil || msgType != MsgVerack {
		conn.Close()
		eng.knownPeers.Score(peer.New(host)).ConnectionFailure()
		return fmt.Errorf("%s: %w", host, ErrBadHandshake)
	}

	var ack Verack
	if err := json.Unmarshal(data, &ack); err != nil {
		conn.Close()
		return fmt.Errorf("%s: %w", host, ErrBadHandshake)
	}

	r := &remote{
		host:     host,
		conn:     conn,
		outbound: true,
		version:  ack.Version,
		height:   ack.Height,
		pings:    make(map[uint64]time.Time),
	}

	eng.register(r)

	eng.wg.Add(1)
	go func() {
		defer eng.wg.Done()
		eng.readLoop(r)
	}()

	return nil
}

func (eng *Engine) register(r *remote) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	eng.conns[r.host] = r
	eng.knownPeers.Add(peer.New(r.host))
	eng.evHandler("p2p: engine: connected to %s [version %s, height %d]", r.host, r.version, r.height)
}

func (eng *Engine) unregister(r *remote) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	delete(eng.conns, r.host)
	r.conn.Close()
	eng.evHandler("p2p: engine: disconnected from %s", r.host)
}

// readLoop processes the messages from one peer sequentially. A message
// that fails to decode or validate penalizes the peer and processing
// continues; an I/O failure tears the connection down.
func (eng *Engine) readLoop(r *remote) {
	defer eng.unregister(r)

	score := eng.knownPeers.Score(peer.New(r.host))

	for {
		msgType, data, err := ReadMessage(r.conn)
		if err != nil {
			if errors.Is(err, ErrBadMagic) || errors.Is(err, ErrUnknownType) || errors.Is(err, ErrOversized) {
				score.InvalidMessage()
			}
			return
		}

		if err := eng.dispatch(r, score, msgType, data); err != nil {
			score.InvalidMessage()
			eng.evHandler("p2p: engine: %s: %s rejected: %s", r.host, msgType, err)
		}
	}
}

func (eng *Engine) dispatch(r *remote, score *peer.Score, msgType MsgType, data []byte) error {
	switch msgType {
	case MsgPing:
		var ping Ping
		if err := json.Unmarshal(data, &ping); err != nil {
			return err
		}
		return r.send(MsgPong, Pong{Nonce: ping.Nonce})

	case MsgPong:
		var pong Pong
		if err := json.Unmarshal(data, &pong); err != nil {
			return err
		}
		r.mu.Lock()
		sent, exists := r.pings[pong.Nonce]
		delete(r.pings, pong.Nonce)
		r.mu.Unlock()
		if exists {
			score.RecordPing(time.Since(sent))
		}
		return nil

	case MsgGetAddr:
		return r.send(MsgAddr, Addr{Hosts: eng.hostList(r.host)})

	case MsgAddr:
		var addr Addr
		if err := json.Unmarshal(data, &addr); err != nil {
			return err
		}
		for _, host := range addr.Hosts {
			if !peer.New(host).Match(eng.host) {
				eng.knownPeers.Add(peer.New(host))
			}
		}
		return nil

	case MsgGetHeight:
		height, _ := eng.localHeight()
		return r.send(MsgHeight, Height{Height: height})

	case MsgHeight:
		var height Height
		if err := json.Unmarshal(data, &height); err != nil {
			return err
		}
		r.setTip(height.Height)
		return nil

	case MsgGetBlocks:
		// Headers-first: a blocks request is answered with headers and
		// the requester pulls the bodies it is missing through GetData.
		var req GetBlocks
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		return eng.serveHeaders(r, GetHeaders(req))

	case MsgGetHeaders:
		var req GetHeaders
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		return eng.serveHeaders(r, req)

	case MsgHeaders:
		var headers Headers
		if err := json.Unmarshal(data, &headers); err != nil {
			return err
		}
		fetch, err := eng.ProcessHeaders(headers.Headers)
		if len(fetch) > 0 {
			if sendErr := r.send(MsgGetData, GetData{Type: InvBlock, Hashes: fetch}); sendErr != nil {
				return sendErr
			}
		}
		return err

	case MsgInv:
		var inv Inv
		if err := json.Unmarshal(data, &inv); err != nil {
			return err
		}
		return eng.handleInv(r, inv)

	case MsgGetData:
		var req GetData
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		return eng.serveData(r, req)

	case MsgBlock:
		var blk BlockData
		if err := json.Unmarshal(data, &blk); err != nil {
			return err
		}
		return eng.receiveBlock(r, score, blk.Block)

	case MsgNewBlock:
		var blk NewBlock
		if err := json.Unmarshal(data, &blk); err != nil {
			return err
		}
		return eng.receiveBlock(r, score, blk.Block)

	case MsgTx:
		var tx TxData
		if err := json.Unmarshal(data, &tx); err != nil {
			return err
		}
		return eng.receiveTransaction(r, score, tx.Tx)

	case MsgNewTransaction:
		var tx NewTransaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return err
		}
		return eng.receiveTransaction(r, score, tx.Tx)

	case MsgVersion, MsgVerack:
		// Handshake already completed; a stray Version updates the tip.
		var version Version
		if err := json.Unmarshal(data, &version); err != nil {
			return err
		}
		r.setTip(version.Height)
		return nil
	}

	return fmt.Errorf("%s: %w", msgType, ErrUnknownType)
}

// =============================================================================

// serveHeaders answers a locator based request with headers starting
// after the fork point.
func (eng *Engine) serveHeaders(r *remote, req GetHeaders) error {
	forkHeight := eng.ledger.FindForkHeight(req.Locator)

	headers, err := eng.ledger.Headers(forkHeight+1, maxHeadersPerResponse, req.HashStop)
	if err != nil && !errors.Is(err, ledger.ErrEmptyChain) {
		return err
	}

	return r.send(MsgHeaders, Headers{Headers: headers})
}

// ProcessHeaders validates a header batch for strict sequential
// continuity against the local tip and returns the hashes that still
// need fetching. Acceptance aborts at the first out-of-sequence header;
// already stored hashes are skipped rather than treated as errors.
func (eng *Engine) ProcessHeaders(headers []ledger.BlockHeader) ([]string, error) {
	last, err := eng.localHeight()
	if err != nil && !errors.Is(err, ledger.ErrEmptyChain) {
		return nil, err
	}

	var fetch []string
	for _, header := range headers {
		if header.Height <= last {
			continue
		}
		if header.Height != last+1 {
			return fetch, fmt.Errorf("header %d after %d: %w", header.Height, last, ledger.ErrHeightMismatch)
		}
		last = header.Height

		stored, err := eng.ledger.HasBlock(header.Hash())
		if err != nil {
			return fetch, err
		}
		if !stored {
			fetch = append(fetch, header.Hash())
		}
	}

	return fetch, nil
}

func (eng *Engine) handleInv(r *remote, inv Inv) error {
	var fetch []string

	switch inv.Type {
	case InvBlock:
		for _, hash := range inv.Hashes {
			stored, err := eng.ledger.HasBlock(hash)
			if err != nil {
				return err
			}
			if !stored {
				fetch = append(fetch, hash)
			}
		}

	case InvTx:
		for _, txid := range inv.Hashes {
			if _, exists := eng.mempool.Get(txid); exists {
				continue
			}
			confirmed, err := eng.ledger.HasTransaction(txid)
			if err != nil {
				return err
			}
			if !confirmed {
				fetch = append(fetch, txid)
			}
		}

	default:
		return fmt.Errorf("inventory type %q: %w", inv.Type, ErrUnknownType)
	}

	if len(fetch) == 0 {
		return nil
	}

	return r.send(MsgGetData, GetData{Type: inv.Type, Hashes: fetch})
}

// serveData answers a selective fetch. Missing items are skipped, not
// errors: the requester may simply be behind or ahead of us.
func (eng *Engine) serveData(r *remote, req GetData) error {
	switch req.Type {
	case InvBlock:
		for _, hash := range req.Hashes {
			block, err := eng.ledger.GetBlockByHash(hash)
			if err != nil {
				continue
			}
			if err := r.send(MsgBlock, BlockData{Block: block}); err != nil {
				return err
			}
		}
		return nil

	case InvTx:
		for _, txid := range req.Hashes {
			entry, exists := eng.mempool.Get(txid)
			if !exists {
				continue
			}
			if err := r.send(MsgTx, TxData{Tx: entry.Tx}); err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("data type %q: %w", req.Type, ErrUnknownType)
}

// =============================================================================

// AcceptBlock validates a block received from the network and persists
// it if it extends the tip by exactly one. A block whose hash is
// already stored is a silent no-op. There is no fork resolution: a
// competing block at an occupied height is rejected.
func (eng *Engine) AcceptBlock(block ledger.Block) error {
	hash := block.Hash()
	if !signature.IsWellFormed(hash) {
		return fmt.Errorf("malformed hash %q: %w", hash, ledger.ErrInvalidBlock)
	}

	known, err := eng.ledger.HasBlock(hash)
	if err != nil {
		return err
	}
	if known {
		return nil
	}

	if err := block.ValidateContent(); err != nil {
		return err
	}

	if !ledger.IsSolved(block.Header.Difficulty, hash) {
		return fmt.Errorf("block %d does not satisfy its difficulty: %w", block.Header.Height, ledger.ErrInvalidBlock)
	}

	localHeight, err := eng.localHeight()
	switch {
	case errors.Is(err, ledger.ErrEmptyChain):
		if block.Header.Height != 0 || block.Header.PrevBlockHash != signature.ZeroHash {
			return fmt.Errorf("block %d on empty chain: %w", block.Header.Height, ledger.ErrHeightMismatch)
		}

	case err != nil:
		return err

	default:
		if block.Header.Height != localHeight+1 {
			return fmt.Errorf("block %d against tip %d: %w", block.Header.Height, localHeight, ledger.ErrHeightMismatch)
		}
		resolved, err := eng.ledger.HasBlock(block.Header.PrevBlockHash)
		if err != nil {
			return err
		}
		if !resolved {
			return fmt.Errorf("block %d: %w", block.Header.Height, ErrOrphanBlock)
		}
	}

	if err := eng.ledger.PutBlock(block); err != nil {
		return err
	}

	if eng.onBlockAccepted != nil {
		eng.onBlockAccepted(block)
	}

	return nil
}

// receiveBlock applies AcceptBlock for a peer delivered block, adjusts
// the peer's score and floods the block to every other peer.
func (eng *Engine) receiveBlock(r *remote, score *peer.Score, block ledger.Block) error {
	known, err := eng.ledger.HasBlock(block.Hash())
	if err == nil && known {
		return nil
	}

	if err := eng.AcceptBlock(block); err != nil {
		return err
	}

	score.ValidBlock()
	r.setTip(block.Header.Height)
	eng.evHandler("p2p: engine: %s: accepted block %d [%s]", r.host, block.Header.Height, block.Hash())

	eng.broadcast(MsgNewBlock, NewBlock{Block: block}, r.host)
	return nil
}

// receiveTransaction routes a peer delivered transaction through the
// mempool admission rules and floods it on acceptance.
func (eng *Engine) receiveTransaction(r *remote, score *peer.Score, tx ledger.Tx) error {
	accepted, err := eng.mempool.Add(tx)
	if err != nil {
		if errors.Is(err, mempool.ErrAlreadyInPool) || errors.Is(err, mempool.ErrAlreadyConfirmed) {
			return nil
		}
		return err
	}

	score.ValidTransaction()
	eng.evHandler("p2p: engine: %s: accepted transaction %s", r.host, accepted.TxID)

	eng.broadcast(MsgNewTransaction, NewTransaction{Tx: accepted}, r.host)
	return nil
}

// =============================================================================

// BroadcastBlock floods a locally produced block to every peer.
func (eng *Engine) BroadcastBlock(block ledger.Block) {
	eng.broadcast(MsgNewBlock, NewBlock{Block: block}, "")
}

// ShareTransaction floods a locally submitted transaction to every peer.
func (eng *Engine) ShareTransaction(tx ledger.Tx) {
	eng.broadcast(MsgNewTransaction, NewTransaction{Tx: tx}, "")
}

// RequestHeaders sends a locator anchored headers request to the
// specified peer.
func (eng *Engine) RequestHeaders(host string) error {
	eng.mu.RLock()
	r, exists := eng.conns[host]
	eng.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%s: %w", host, ErrNotConnected)
	}

	locator, err := eng.ledger.Locator()
	if err != nil && !errors.Is(err, ledger.ErrEmptyChain) {
		return err
	}

	return r.send(MsgGetHeaders, GetHeaders{Locator: locator})
}

// broadcast sends a message to every live connection except the one
// identified by exceptHost. The connection list is copied under the
// read lock; writes happen after release.
func (eng *Engine) broadcast(msgType MsgType, payload any, exceptHost string) {
	eng.mu.RLock()
	targets := make([]*remote, 0, len(eng.conns))
	for host, r := range eng.conns {
		if host == exceptHost {
			continue
		}
		targets = append(targets, r)
	}
	eng.mu.RUnlock()

	for _, r := range targets {
		if err := r.send(msgType, payload); err != nil {
			eng.evHandler("p2p: engine: broadcast %s to %s: ERROR: %s", msgType, r.host, err)
		}
	}
}

// pingLoop probes every live connection on a fixed interval so the
// round-trip average and liveness state stay fresh.
func (eng *Engine) pingLoop() {
	ticker := time.NewTicker(eng.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			eng.mu.RLock()
			targets := make([]*remote, 0, len(eng.conns))
			for _, r := range eng.conns {
				targets = append(targets, r)
			}
			eng.mu.RUnlock()

			for _, r := range targets {
				nonce := atomic.AddUint64(&eng.pingNonce, 1)
				r.mu.Lock()
				r.pings[nonce] = time.Now()
				r.mu.Unlock()
				if err := r.send(MsgPing, Ping{Nonce: nonce}); err != nil {
					eng.evHandler("p2p: engine: ping %s: ERROR: %s", r.host, err)
				}
			}

		case <-eng.shut:
			return
		}
	}
}

// =============================================================================

// PeerStatus describes one live connection for reporting.
type PeerStatus struct {
	Host        string        `json:"host"`
	Version     string        `json:"version"`
	Height      uint64        `json:"height"`
	Outbound    bool          `json:"outbound"`
	Score       uint64        `json:"score"`
	AveragePing time.Duration `json:"average_ping"`
}

// Status reports every live connection with its score.
func (eng *Engine) Status() []PeerStatus {
	eng.mu.RLock()
	defer eng.mu.RUnlock()

	now := time.Now()
	statuses := make([]PeerStatus, 0, len(eng.conns))
	for _, r := range eng.conns {
		score := eng.knownPeers.Score(peer.New(r.host))
		r.mu.Lock()
		status := PeerStatus{
			Host:        r.host,
			Version:     r.version,
			Height:      r.height,
			Outbound:    r.outbound,
			Score:       score.Value(now),
			AveragePing: score.AveragePing(),
		}
		r.mu.Unlock()
		statuses = append(statuses, status)
	}

	return statuses
}

// BestPeer returns the connected peer advertising the highest chain
// height. The boolean reports whether any peer is connected.
func (eng *Engine) BestPeer() (string, uint64, bool) {
	eng.mu.RLock()
	defer eng.mu.RUnlock()

	var bestHost string
	var bestHeight uint64
	var found bool

	for _, r := range eng.conns {
		r.mu.Lock()
		height := r.height
		r.mu.Unlock()

		if !found || height > bestHeight {
			bestHost = r.host
			bestHeight = height
			found = true
		}
	}

	return bestHost, bestHeight, found
}

// ConnectedCount returns the number of live connections.
func (eng *Engine) ConnectedCount() int {
	eng.mu.RLock()
	defer eng.mu.RUnlock()

	return len(eng.conns)
}

func (eng *Engine) localHeight() (uint64, error) {
	height, err := eng.ledger.ChainHeight()
	if err != nil {
		return 0, err
	}
	return height, nil
}

func (eng *Engine) hostList(exceptHost string) []string {
	peers := eng.knownPeers.Copy(eng.host)
	hosts := make([]string, 0, len(peers))
	for _, p := range peers {
		if p.Host == exceptHost {
			continue
		}
		hosts = append(hosts, p.Host)
	}
	return hosts
}
