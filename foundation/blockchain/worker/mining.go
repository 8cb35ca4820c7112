package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/state"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation keeps producing blocks while any miner identity is
// active. A cancel signal aborts the in-flight attempt so the next one
// targets the fresh chain tip; it does not stop the loop.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	for {
		if w.isShutdown() {
			return
		}

		ids := w.state.ActiveMiners()
		if len(ids) == 0 {
			return
		}

		// Drain any stale cancel signal before starting the attempt.
		select {
		case <-w.cancelMining:
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())

		var wg sync.WaitGroup
		wg.Add(1)

		// This G exists to cancel the mining attempt.
		go func() {
			defer wg.Done()
			select {
			case <-w.cancelMining:
				w.evHandler("worker: runMiningOperation: MINING: cancel requested")
			case <-w.shut:
			case <-ctx.Done():
			}
			cancel()
		}()

		for _, minerID := range ids {
			block, err := w.state.MineNextBlock(ctx, minerID)
			if err != nil {
				switch {
				case errors.Is(err, state.ErrNotMining):

				case errors.Is(err, ledger.ErrHeightMismatch):
					w.evHandler("worker: runMiningOperation: MINING: lost the race for miner %s", minerID)

				case ctx.Err() != nil:
					w.evHandler("worker: runMiningOperation: MINING: CANCELLED: by request")

				default:
					w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
				}
			} else {
				w.evHandler("worker: runMiningOperation: MINING: miner %s produced block %d [%s]", minerID, block.Header.Height, block.Hash())
			}

			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		wg.Wait()
	}
}
