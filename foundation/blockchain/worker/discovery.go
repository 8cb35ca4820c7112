package worker

import (
	"context"
	"time"
)

// discoveryOperations periodically resolves the seed lists and dials
// any candidates this node is not yet connected to.
func (w *Worker) discoveryOperations() {
	w.evHandler("worker: discoveryOperations: G started")
	defer w.evHandler("worker: discoveryOperations: G completed")

	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runDiscoveryOperation()
			}
		case <-w.shut:
			w.evHandler("worker: discoveryOperations: received shut signal")
			return
		}
	}
}

// runDiscoveryOperation resolves and dials once. Failed dials are
// recorded against the candidate's score and skipped.
func (w *Worker) runDiscoveryOperation() {
	w.evHandler("worker: runDiscoveryOperation: started")
	defer w.evHandler("worker: runDiscoveryOperation: completed")

	engine := w.state.Engine()

	// Dial the known peers best score first so well-behaved peers keep
	// their connections. Connect is a no-op for peers already connected.
	for _, p := range w.state.RankedPeers() {
		if w.isShutdown() {
			return
		}

		if err := engine.Connect(p.Host); err != nil {
			w.evHandler("worker: runDiscoveryOperation: dial %s: %s", p.Host, err)
		}
	}

	if w.discovery == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, candidate := range w.discovery.Candidates(ctx) {
		if w.isShutdown() {
			return
		}

		if err := engine.Connect(candidate.Host()); err != nil {
			w.evHandler("worker: runDiscoveryOperation: dial %s: %s", candidate.Host(), err)
		}
	}
}
