// Package private maintains the group of handlers for operator access.
package private

import (
	"context"
	"errors"
	"net/http"

	"github.com/kobaltchain/kobalt/business/web/errs"
	"github.com/kobaltchain/kobalt/foundation/blockchain/state"
	"github.com/kobaltchain/kobalt/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// startMiningRequest asks for a miner identity to start producing blocks.
type startMiningRequest struct {
	MinerID string `json:"miner_id" validate:"required"`
	Address string `json:"address" validate:"required"`
}

// connectPeerRequest asks the node to dial a peer.
type connectPeerRequest struct {
	Host string `json:"host" validate:"required"`
}

// StartMining flips a miner identity from idle to mining.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req startMiningRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.State.StartMining(req.MinerID, req.Address); err != nil {
		return errs.NewTrusted(err, miningStatusCode(err))
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining started",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StopMining flips a miner identity back to idle.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.StopMining(web.Param(r, "miner")); err != nil {
		return errs.NewTrusted(err, miningStatusCode(err))
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining stopped",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// MiningStatuses reports every miner identity this node has seen.
func (h Handlers) MiningStatuses(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.MinerStatuses(), http.StatusOK)
}

// MiningStatus reports the state of one miner identity.
func (h Handlers) MiningStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.State.MiningStatus(web.Param(r, "miner"))
	if err != nil {
		return errs.NewTrusted(err, miningStatusCode(err))
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Peers reports every live connection with its score.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.ConnectedPeers(), http.StatusOK)
}

// ConnectPeer dials the specified host and performs the handshake.
func (h Handlers) ConnectPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req connectPeerRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.State.Engine().Connect(req.Host); err != nil {
		return errs.NewTrusted(err, http.StatusBadGateway)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "connected",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Sync issues one synchronization check against the best known peer.
func (h Handlers) Sync(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.SyncBlockchain(); err != nil {
		return errs.NewTrusted(err, http.StatusBadGateway)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "sync requested",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// miningStatusCode maps mining state errors to HTTP status codes.
func miningStatusCode(err error) int {
	switch {
	case errors.Is(err, state.ErrUnknownMiner):
		return http.StatusNotFound
	case errors.Is(err, state.ErrAlreadyMining), errors.Is(err, state.ErrNotMining):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
