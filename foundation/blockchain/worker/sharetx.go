package worker

// shareTxOperations floods locally submitted transactions to the
// network as they are signaled.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case tx := <-w.txSharing:
			if !w.isShutdown() {
				w.state.Engine().ShareTransaction(tx)
				w.evHandler("worker: shareTxOperations: shared tx %s", tx.TxID)
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}
