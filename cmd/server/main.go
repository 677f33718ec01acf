package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/discovery"
	"github.com/ryandielhenn/zephyrmesh/internal/config"
	"github.com/ryandielhenn/zephyrmesh/internal/logging"
	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/node"
	"github.com/ryandielhenn/zephyrmesh/pkg/overlay"
	"github.com/ryandielhenn/zephyrmesh/pkg/ranking"
	"github.com/ryandielhenn/zephyrmesh/pkg/resources"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
	"github.com/ryandielhenn/zephyrmesh/pkg/tasks"
	"github.com/ryandielhenn/zephyrmesh/pkg/transport"
)

const defaultPeerPort = "40102"

var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	cfgPath := flag.String("config", "", "path to a .yaml or .toml config file")
	flag.Parse()

	// 1. Configuration and logging
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "config:", e)
		}
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	telemetry.SetBuildInfo(version, gitSHA)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Node failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	oc := cfg.Overlay()
	advertise := cfg.Node.AdvertiseAddr
	if advertise == "" {
		advertise = "127.0.0.1"
	}

	// 2. Transport, collaborators and the overlay manager
	tr := transport.New(transport.Config{ID: oc.ClientID, ListenPort: oc.ListenPort}, logger.Named("transport"))
	taskReg := tasks.NewRegistry(logger.Named("tasks"))
	store := resources.NewStore(logger.Named("resources"))
	m := overlay.New(oc, tr,
		overlay.WithLogger(logger.Named("overlay")),
		overlay.WithTaskServer(taskReg),
		overlay.WithResourceServer(store),
	)
	tr.SetSink(m)
	m.SetRanker(ranking.New(m, logger.Named("ranking")))
	m.PublishLocalEndpoint(advertise, oc.ListenPort)

	logger.Info("Starting node",
		zap.String("id", oc.ClientID),
		zap.String("listen", cfg.Node.Listen),
		zap.String("seed", cfg.P2P.Seed),
		zap.Int("opt_num_peers", oc.OptNumPeers))

	// 3. Optional seed discovery
	if eps := cfg.Discovery.Etcd.Endpoints; len(eps) > 0 {
		revoke, err := registerEtcd(ctx, cfg, m, advertise, logger)
		if err != nil {
			return err
		}
		defer revoke()
	}
	if d := cfg.Discovery.DNS; d.Name != "" && d.Server != "" {
		lookupDNS(ctx, d, m, logger)
	}

	// 4. Peer listener and admin HTTP; one listener when they share an address
	admin := node.NewNode(m, cfg.HTTP.Addr, logger.Named("http"))
	servers := []*http.Server{}
	if cfg.Node.Listen == cfg.HTTP.Addr {
		admin.MountP2P(tr.Path(), tr.Handler())
	} else {
		p2pMux := http.NewServeMux()
		p2pMux.Handle(tr.Path(), tr.Handler())
		servers = append(servers, &http.Server{Addr: cfg.Node.Listen, Handler: p2pMux, ReadHeaderTimeout: 5 * time.Second})
	}
	servers = append(servers, &http.Server{Addr: admin.Addr(), Handler: admin.Router(), ReadHeaderTimeout: 5 * time.Second})

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("Listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(srv)
	}

	// 5. Manager loop until signalled
	loopErr := make(chan error, 1)
	go func() { loopErr <- m.Run(ctx, cfg.P2P.SyncInterval) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-errc:
	}

	m.Close()
	<-loopErr
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return runErr
}

func registerEtcd(ctx context.Context, cfg config.Config, m *overlay.Manager, advertise string, logger *zap.Logger) (func(), error) {
	ec := cfg.Discovery.Etcd
	cli, err := discovery.NewClient(ec.Endpoints, ec.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	port, _ := cfg.ListenPort()
	self := net.JoinHostPort(advertise, strconv.Itoa(port))

	leaseID, cancel, err := discovery.RegisterNode(ctx, cli, ec.Prefix, cfg.Node.ID, self, ec.LeaseTTL)
	if err != nil {
		cli.Close()
		return nil, err
	}
	logger.Info("Registered with etcd", zap.String("prefix", ec.Prefix), zap.String("addr", self))

	err = discovery.WatchPeers(ctx, cli, ec.Prefix, func(peers map[string]string) {
		for id, addr := range peers {
			host, port, err := node.SplitHostPort(addr, defaultPeerPort)
			if err != nil {
				logger.Warn("Bad registry entry", zap.String("peer", id), zap.String("addr", addr), zap.Error(err))
				continue
			}
			m.TryToAddPeer(session.PeerInfo{ID: id, Addr: host, Port: port})
		}
	})
	if err != nil {
		logger.Warn("Watching etcd failed", zap.Error(err))
	}

	return func() {
		cancel()
		revokeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_, _ = cli.Revoke(revokeCtx, leaseID)
		cli.Close()
	}, nil
}

func lookupDNS(ctx context.Context, d config.DNSConfig, m *overlay.Manager, logger *zap.Logger) {
	qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	seeds, bad, err := discovery.NewDNSSeeds(d.Server).Lookup(qctx, d.Name)
	if err != nil {
		logger.Warn("DNS seed lookup failed", zap.String("name", d.Name), zap.Error(err))
		return
	}
	for _, e := range bad {
		logger.Warn("Skipping DNS seed", zap.Error(e))
	}
	for _, s := range seeds {
		m.TryToAddPeer(s)
	}
	logger.Info("DNS seeds loaded", zap.String("name", d.Name), zap.Int("count", len(seeds)))
}
