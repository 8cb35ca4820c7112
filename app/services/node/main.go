package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/kobaltchain/kobalt/app/services/node/handlers"
	"github.com/kobaltchain/kobalt/foundation/blockchain/discovery"
	"github.com/kobaltchain/kobalt/foundation/blockchain/genesis"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger/storage"
	"github.com/kobaltchain/kobalt/foundation/blockchain/peer"
	"github.com/kobaltchain/kobalt/foundation/blockchain/state"
	"github.com/kobaltchain/kobalt/foundation/blockchain/worker"
	"github.com/kobaltchain/kobalt/foundation/events"
	"github.com/kobaltchain/kobalt/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:5s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:8180"`
		}
		Node struct {
			P2PHost        string   `conf:"default:0.0.0.0:9080"`
			DBPath         string   `conf:"default:zblock/ledger"`
			Backend        string   `conf:"default:leveldb,help:leveldb pebble or memory"`
			GenesisPath    string   `conf:"default:zblock/genesis.json"`
			SelectStrategy string   `conf:"default:feerate"`
			StaticPeers    []string `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
			DNSSeeds       []string
			NetProfile     string `conf:"default:local,help:public or local"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	// Load the genesis file for the chain parameters and starting balances.
	gen, err := genesis.Load(cfg.Node.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// A peer set is a collection of known nodes in the network so transactions
	// and blocks can be shared.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.Node.StaticPeers {
		peerSet.Add(peer.New(host))
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send("%s", s)
	}

	// Open the key-value backend for the ledger.
	kv, err := openBackend(cfg.Node.Backend, cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open %s backend: %w", cfg.Node.Backend, err)
	}

	ldg, err := ledger.New(kv, ledger.EventHandler(ev))
	if err != nil {
		return fmt.Errorf("unable to open ledger: %w", err)
	}

	// The state value represents the node and provides an API for
	// application support.
	st, err := state.New(state.Config{
		Host:           cfg.Node.P2PHost,
		Version:        build,
		Genesis:        gen,
		Ledger:         ldg,
		SelectStrategy: cfg.Node.SelectStrategy,
		KnownPeers:     peerSet,
		EvHandler:      ev,
	})
	if err != nil {
		return err
	}

	// Stop the workers and flush the ledger within the shutdown budget.
	// If the flush cannot complete in time the process exits anyway.
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := st.Shutdown(ctx); err != nil {
			log.Infow("shutdown", "status", "state did not stop in time", "ERROR", err)
		}
	}()

	// Discovery resolves the static and DNS seed lists into dialable
	// candidates on an interval.
	dsc := discovery.New(discovery.Config{
		StaticSeeds: cfg.Node.StaticPeers,
		DNSSeeds:    cfg.Node.DNSSeeds,
		DefaultPort: 9080,
		Profile:     discovery.Profile(cfg.Node.NetProfile),
		EvHandler:   ev,
	})

	// The worker package implements the different workflows such as mining,
	// chain syncing, peer discovery and transaction sharing. The worker will
	// register itself with the state.
	worker.Run(st, dsc, state.EventHandler(ev))

	// =========================================================================
	// Start P2P Service

	p2pListener, err := net.Listen("tcp", cfg.Node.P2PHost)
	if err != nil {
		return fmt.Errorf("unable to bind p2p listener: %w", err)
	}
	st.Engine().Run(p2pListener)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, handlers.DebugMux(build, log)); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing public API support")

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing private API support")

	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	})

	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Stop the protocol engine within the shutdown budget. If peers
		// cannot be drained in time the process exits anyway.
		ctx, cancelP2P := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelP2P()

		log.Infow("shutdown", "status", "shutdown p2p engine started")
		if err := st.Engine().Shutdown(ctx); err != nil {
			log.Infow("shutdown", "status", "p2p engine did not drain in time", "ERROR", err)
		}

		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// openBackend selects the key-value store implementation for the ledger.
func openBackend(backend string, path string) (storage.KV, error) {
	switch backend {
	case "leveldb":
		return storage.NewLevelDB(path)
	case "pebble":
		return storage.NewPebble(path)
	case "memory":
		return storage.NewMemory(), nil
	}

	return nil, fmt.Errorf("unknown backend %q", backend)
}
