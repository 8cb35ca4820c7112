// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kobaltchain/kobalt/business/web/errs"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
	"github.com/kobaltchain/kobalt/foundation/blockchain/state"
	"github.com/kobaltchain/kobalt/foundation/events"
	"github.com/kobaltchain/kobalt/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information for the chain.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest, err := h.State.LatestBlock()
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	status := statusInfo{
		LatestBlockHash:   latest.Hash(),
		LatestBlockHeight: latest.Header.Height,
		MempoolCount:      h.State.MempoolStats().Count,
		KnownPeers:        len(h.State.KnownPeers()),
		ConnectedPeers:    len(h.State.ConnectedPeers()),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// LatestBlock returns the block at the chain tip.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.LatestBlock()
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlockInfo(block), http.StatusOK)
}

// BlockByHeight returns the block stored at the specified height.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid height: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.BlockByHeight(height)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlockInfo(block), http.StatusOK)
}

// BlockByHash returns the block stored under the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.BlockByHash(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlockInfo(block), http.StatusOK)
}

// Transaction returns a confirmed transaction and its block height.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tx, height, err := h.State.Transaction(web.Param(r, "txid"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	info := confirmedTx{
		Tx:          tx,
		BlockHeight: height,
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// SubmitTransaction adds a new transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx ledger.Tx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "txid", tx.TxID, "fee", tx.Fee)

	accepted, err := h.State.SubmitTransaction(tx)
	if err != nil {
		return errs.NewTrusted(err, admissionStatus(err))
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"txid"`
	}{
		Status: "transaction added to mempool",
		TxID:   accepted.TxID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ReplaceTransaction applies the replace-by-fee rules to a pending
// transaction.
func (h Handlers) ReplaceTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req replaceTxRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	reason := mempool.ReplaceReason(req.Reason)
	if reason == "" {
		reason = mempool.ReasonRBFSignaled
	}

	increase, err := h.State.ReplaceTransaction(req.OldTxID, req.Tx, reason)
	if err != nil {
		return errs.NewTrusted(err, admissionStatus(err))
	}

	resp := struct {
		Status      string `json:"status"`
		TxID        string `json:"txid"`
		FeeIncrease uint64 `json:"fee_increase"`
	}{
		Status:      "transaction replaced",
		TxID:        req.Tx.TxID,
		FeeIncrease: increase,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.MempoolEntries(), http.StatusOK)
}

// MempoolStats returns a summary of the uncommitted transactions.
func (h Handlers) MempoolStats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.MempoolStats(), http.StatusOK)
}

// FeeEstimates returns the fee recommendation for every confirmation
// target.
func (h Handlers) FeeEstimates(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.FeeEstimates(), http.StatusOK)
}

// FeeHistory returns the recent per-block fee statistics.
func (h Handlers) FeeHistory(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.FeeHistory(), http.StatusOK)
}

// UTXOs returns the spendable outputs owned by an address.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	utxos, err := h.State.UTXOsForAddress(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, utxos, http.StatusOK)
}

// Balance returns the total spendable value owned by an address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	balance, err := h.State.Balance(address)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	info := balanceInfo{
		Address: address,
		Balance: balance,
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// admissionStatus maps mempool rejections to HTTP status codes.
func admissionStatus(err error) int {
	switch {
	case errors.Is(err, mempool.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mempool.ErrAlreadyInPool), errors.Is(err, mempool.ErrAlreadyConfirmed):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
