package worker

import "time"

// syncOperations periodically checks whether this node has fallen
// behind the network and requests headers when it has.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runSyncOperation()
			}
		case <-w.shut:
			w.evHandler("worker: syncOperations: received shut signal")
			return
		}
	}
}

// runSyncOperation issues one sync check. Requests are safely
// re-issuable: blocks that arrived in the meantime are skipped on the
// receiving side.
func (w *Worker) runSyncOperation() {
	w.evHandler("worker: runSyncOperation: started")
	defer w.evHandler("worker: runSyncOperation: completed")

	if err := w.state.SyncBlockchain(); err != nil {
		w.evHandler("worker: runSyncOperation: ERROR: %s", err)
	}
}
