// Package worker implements mining, chain synchronization, peer
// discovery and transaction sharing for the node.
package worker

import (
	"sync"
	"time"

	"github.com/kobaltchain/kobalt/foundation/blockchain/discovery"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/state"
)

// syncInterval paces the checks for falling behind the network.
const syncInterval = 30 * time.Second

// discoveryInterval paces the search for new peers to connect to.
const discoveryInterval = time.Minute

// maxTxShareRequests bounds the transaction sharing queue.
const maxTxShareRequests = 100

// Worker manages the background workflows for the node.
type Worker struct {
	state        *state.State
	discovery    *discovery.Discovery
	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
	txSharing    chan ledger.Tx
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package,
// and starts up all the background processes.
func Run(st *state.State, d *discovery.Discovery, evHandler state.EventHandler) {
	w := Worker{
		state:        st,
		discovery:    d,
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		txSharing:    make(chan ledger.Tx, maxTxShareRequests),
		evHandler:    evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Find peers and catch up with the network before starting
	// the support G's.
	w.runDiscoveryOperation()
	w.runSyncOperation()

	operations := []func(){
		w.miningOperations,
		w.syncOperations,
		w.discoveryOperations,
		w.shareTxOperations,
	}

	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a
// signal pending in the channel, just return since a mining operation
// will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation
// function to restart its attempt against the new chain tip.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareTx queues a transaction for sharing with the network. If
// the queue is full the transaction is dropped from sharing, it stays
// in the mempool.
func (w *Worker) SignalShareTx(tx ledger.Tx) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transaction not shared")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
