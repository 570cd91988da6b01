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

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrdht/discovery"
	"github.com/ryandielhenn/zephyrdht/internal/config"
	"github.com/ryandielhenn/zephyrdht/internal/telemetry"
	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/clock"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/node"
	"github.com/ryandielhenn/zephyrdht/pkg/transport"
)

var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "zephyrdht-server",
		Short:        "Run one replicated key-value node over UDP with an HTTP client API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := newLogger(cfg.LogDev)
	if err != nil {
		return err
	}
	defer log.Sync()

	self, err := cfg.Address()
	if err != nil {
		return err
	}
	log = log.With(zap.Stringer("self", self))
	telemetry.SetBuildInfo(version, gitSHA)

	// 1. Pick the introducer: flag, then etcd, then ourselves
	introducer := self
	if cfg.Introducer != "" {
		if introducer, err = address.FromHostPort(cfg.Introducer, ""); err != nil {
			return err
		}
	} else if len(cfg.EtcdEndpoints) > 0 {
		log.Info("creating etcd client", zap.Strings("endpoints", cfg.EtcdEndpoints))
		cli, err := discovery.NewClient(cfg.EtcdEndpoints)
		if err != nil {
			return fmt.Errorf("etcd client: %w", err)
		}
		defer cli.Close()

		reg := discovery.NewRegistry(cli, cfg.EtcdPrefix, self, cfg.LeaseTTL, log)
		if err := reg.Register(ctx); err != nil {
			return err
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := reg.Close(rctx); err != nil {
				log.Warn("revoking lease", zap.Error(err))
			}
		}()
		if introducer, err = reg.Introducer(ctx); err != nil {
			return err
		}
		if peers, err := reg.Peers(ctx); err == nil {
			log.Info("registered peers", zap.Int("count", len(peers)))
		}
	}

	// 2. Node on a UDP endpoint, driven by a runner
	ep, err := transport.ListenUDP(self, cfg.QueueSize, log)
	if err != nil {
		return err
	}
	defer ep.Close()

	rounds := &clock.Rounds{}
	n := node.New(ep, rounds,
		node.WithGossipConfig(cfg.Gossip()),
		node.WithTxnTTL(cfg.TxnTTL),
		node.WithLogger(log),
		node.WithEvents(eventlog.Tee{eventlog.NewZap(log), telemetry.Events{}}),
	)
	if err := n.Start(introducer); err != nil {
		return err
	}
	log.Info("node started", zap.Stringer("introducer", introducer))
	runner := node.NewRunner(n, rounds, clockwork.NewRealClock(), cfg.RoundInterval)

	// 3. HTTP endpoints
	api := node.NewAPI(runner, cfg.RequestTimeout, log)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", api.Healthz)
	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(api.Info)))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.HandleFunc("/kv/", func(w http.ResponseWriter, req *http.Request) {
		telemetry.Instrument(methodToOp(req.Method), http.HandlerFunc(api.KV)).ServeHTTP(w, req)
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := runner.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()
	log.Info("node stopped", zap.Error(err))
	return err
}

func methodToOp(m string) string {
	switch m {
	case http.MethodGet:
		return "read"
	case http.MethodPut:
		return "update"
	case http.MethodPost:
		return "create"
	case http.MethodDelete:
		return "delete"
	default:
		return "other"
	}
}
