// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kobaltchain/kobalt/app/services/node/handlers/v1/private"
	"github.com/kobaltchain/kobalt/app/services/node/handlers/v1/public"
	"github.com/kobaltchain/kobalt/foundation/blockchain/state"
	"github.com/kobaltchain/kobalt/foundation/events"
	"github.com/kobaltchain/kobalt/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/node/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/blocks/latest", pbl.LatestBlock)
	app.Handle(http.MethodGet, version, "/blocks/height/:height", pbl.BlockByHeight)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/tx/confirmed/:txid", pbl.Transaction)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodPost, version, "/tx/replace", pbl.ReplaceTransaction)
	app.Handle(http.MethodGet, version, "/mempool", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/mempool/stats", pbl.MempoolStats)
	app.Handle(http.MethodGet, version, "/fees", pbl.FeeEstimates)
	app.Handle(http.MethodGet, version, "/fees/history", pbl.FeeHistory)
	app.Handle(http.MethodGet, version, "/utxos/:address", pbl.UTXOs)
	app.Handle(http.MethodGet, version, "/balance/:address", pbl.Balance)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodPost, version, "/mining/start", prv.StartMining)
	app.Handle(http.MethodPost, version, "/mining/stop/:miner", prv.StopMining)
	app.Handle(http.MethodGet, version, "/mining/status", prv.MiningStatuses)
	app.Handle(http.MethodGet, version, "/mining/status/:miner", prv.MiningStatus)
	app.Handle(http.MethodGet, version, "/peers", prv.Peers)
	app.Handle(http.MethodPost, version, "/peers/connect", prv.ConnectPeer)
	app.Handle(http.MethodPost, version, "/node/sync", prv.Sync)
}
