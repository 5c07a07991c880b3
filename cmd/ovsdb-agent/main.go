package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openstack-charmers/charm-interface-ovsdb/internal/config"
	"github.com/openstack-charmers/charm-interface-ovsdb/internal/logging"
	"github.com/openstack-charmers/charm-interface-ovsdb/internal/telemetry"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/flags"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/gossip"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/node"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/registry"
)

// set with -ldflags "-X main.version=... -X main.gitSHA=..."
var (
	version = "dev"
	gitSHA  = "unknown"
)

const (
	eventBufSize    = 256
	shutdownTimeout = 5 * time.Second
)

func main() {
	os.Exit(agent())
}

// agent runs until a signal or a fatal error and returns the exit code. It
// is split from main so deferred cleanup runs before os.Exit.
func agent() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger, err := logging.New(cfg.LoggerLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logger.Sync()

	telemetry.SetBuildInfo(version, gitSHA)
	logger.Info("starting",
		zap.String("unit", cfg.UnitID),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("role", cfg.Role),
		zap.String("bus", cfg.Bus),
		zap.String("version", version),
	)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent stopped", zap.Error(err))
		return 1
	}
	logger.Info("stopped")
	return 0
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tc, err := cfg.TrackerConfig()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	events := make(chan ovsdb.Event, eventBufSize)

	var collab ovsdb.Collaborators
	collab.Binder = cfg.Binder()

	switch cfg.Bus {
	case config.BusEtcd:
		reg, stop, err := startEtcd(ctx, cfg, tc, logger)
		if err != nil {
			return err
		}
		defer stop()
		g.Go(func() error { return reg.Watch(ctx, events) })
		collab.Publisher = reg
		collab.Oracle = reg
		collab.Flags = reg

	case config.BusGossip:
		bus, stop, err := startGossip(ctx, cfg, events, logger)
		if err != nil {
			return err
		}
		defer stop()
		oracle, _ := cfg.StaticOracle(tc)
		collab.Publisher = bus
		collab.Oracle = oracle
		collab.Flags = flags.NewStore(cfg.InitialFlags...)
	}

	tracker, err := ovsdb.NewTracker(tc, collab, ovsdb.WithLogger(logger))
	if err != nil {
		return err
	}
	n := node.NewNode(tracker, logger.Named("node"), cfg.ResyncInterval)

	mux := http.NewServeMux()
	mux.Handle("/healthz", telemetry.Instrument("healthz", http.HandlerFunc(n.Healthz)))
	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(n.Info)))
	mux.Handle("/endpoints", telemetry.Instrument("endpoints", http.HandlerFunc(n.Endpoints)))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := n.Run(ctx, events); err != nil {
			return err
		}
		return errors.New("event source closed")
	})

	return g.Wait()
}

func startEtcd(
	ctx context.Context,
	cfg *config.Config,
	tc ovsdb.Config,
	logger *zap.Logger,
) (*registry.Registry, func(), error) {
	cli, err := registry.NewClient(cfg.EtcdEndpoints, cfg.EtcdDialTimeout)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(cli, tc.Endpoint, cfg.UnitID, cfg.EtcdLeaseTTL, logger.Named("registry"))

	err = retry.Do(
		func() error {
			if err := reg.Register(ctx, cfg.RelationID); err != nil {
				return err
			}
			for _, f := range cfg.InitialFlags {
				if err := reg.SetFlag(ctx, f); err != nil {
					return err
				}
			}
			if _, ok := cfg.StaticOracle(tc); ok {
				kind := "related"
				if tc.Quorum == ovsdb.PeerQuorum {
					kind = "peers"
				}
				return reg.SetExpected(ctx, kind, cfg.ExpectedUnits)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Warn("etcd registration failed", zap.Uint("attempt", attempt), zap.Error(err))
		}),
	)
	if err != nil {
		cli.Close()
		return nil, nil, fmt.Errorf("failed to register with etcd: %w", err)
	}

	stop := func() {
		revokeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := reg.Revoke(revokeCtx); err != nil {
			logger.Warn("lease revoke", zap.Error(err))
		}
		cli.Close()
	}
	return reg, stop, nil
}

func startGossip(
	ctx context.Context,
	cfg *config.Config,
	events chan<- ovsdb.Event,
	logger *zap.Logger,
) (*gossip.Bus, func(), error) {
	bus, err := gossip.New(ctx, gossip.Config{
		NodeName:      cfg.UnitID,
		BindAddr:      cfg.GossipBindAddr,
		Port:          cfg.GossipPort,
		RelationID:    cfg.RelationID,
		ProbeInterval: cfg.GossipProbeInterval,
		ProbeTimeout:  cfg.GossipProbeTimeout,
		Seeds:         cfg.GossipSeeds,
	}, events, logger.Named("gossip"))
	if err != nil {
		return nil, nil, err
	}

	err = retry.Do(
		func() error { return bus.Join(ctx) },
		retry.Context(ctx),
		retry.Attempts(5),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Warn("gossip join failed", zap.Uint("attempt", attempt), zap.Error(err))
		}),
	)
	if err != nil {
		bus.Shutdown()
		return nil, nil, err
	}

	stop := func() {
		if err := bus.Leave(shutdownTimeout); err != nil {
			logger.Warn("gossip leave", zap.Error(err))
		}
		if err := bus.Shutdown(); err != nil {
			logger.Warn("gossip shutdown", zap.Error(err))
		}
	}
	return bus, stop, nil
}
