package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/elgohr-update/porkotron-constellation-1/consensus"
	"github.com/elgohr-update/porkotron-constellation-1/snapshot"
	"github.com/elgohr-update/porkotron-constellation-1/snapshot/peer"
)

func newRunCmd(configPath *string) *cobra.Command {
	var listenOverride string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the node's HTTP peer surface and health check loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if listenOverride != "" {
				cfg.ListenAddr = listenOverride
			}
			return runNode(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	bindRunFlags(flags, &listenOverride)
	return cmd
}

// bindRunFlags takes the *pflag.FlagSet directly (rather than through
// cobra's wrapper) since run's only CLI-specific flag doesn't need any of
// cobra's sugar.
func bindRunFlags(flags *pflag.FlagSet, listenOverride *string) {
	flags.StringVar(listenOverride, "listen", "", "override the config file's listen_addr")
}

func runNode(ctx context.Context, cfg Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	directory := peer.NewDirectory()
	for _, p := range cfg.Peers {
		nodeType := snapshot.PeerNodeTypeLight
		if p.Full {
			nodeType = snapshot.PeerNodeTypeFull
		}
		directory.Upsert(snapshot.PeerID(p.ID), snapshot.PeerData{Endpoint: p.Endpoint, NodeType: nodeType})
	}

	nodeState := peer.NewNodeState()
	fileStore := peer.NewFileStore()
	recent := snapshot.NewRecentSnapshotsHolder(cfg.RecentSnapshotNumber)
	rpcClient := peer.NewClient()

	metrics := snapshot.NewRedownloadMetrics(prometheus.DefaultRegisterer)
	driver := snapshot.NewRedownloadDriver(nodeState, fileStore, metrics)

	broadcaster := snapshot.NewBroadcaster(directory, rpcClient, recent, driver, nodeState, snapshot.BroadcastConfig{
		RecentSnapshotNumber:                  cfg.RecentSnapshotNumber,
		MaxInvalidSnapshotRate:                cfg.MaxInvalidSnapshotRate,
		SnapshotHeightRedownloadDelayInterval: cfg.SnapshotHeightRedownloadDelayInterval,
		PeerFanoutPerSecond:                   cfg.PeerFanoutPerSecond,
	})
	healthChecker := snapshot.NewHealthChecker(nodeState, broadcaster, cfg.HealthCheckInterval)

	lifecycle := consensus.NewLifecycleStore[snapshotRecord](cfg.SubstoreCapacity)
	defer lifecycle.Close()

	server := peer.NewServer(recent, newTrackingVerifier(lifecycle))
	mux := http.NewServeMux()
	mux.HandleFunc("/consensus/status", consensusStatusHandler(lifecycle))
	mux.Handle("/", server)
	if err := bindListener(ctx, cfg.ListenAddr, mux); err != nil {
		return err
	}

	nodeState.SetState(snapshot.NodeStateReady)
	log.Info("constellationd ready", "listen", cfg.ListenAddr, "peers", len(cfg.Peers))

	go healthChecker.RunClusterCheck(ctx)

	<-ctx.Done()
	log.Info("constellationd shutting down")
	return nil
}

// bindListener retries the initial listen with a bounded exponential
// backoff — the listen address may briefly be held by a process this one
// is replacing during a rolling restart.
func bindListener(ctx context.Context, addr string, handler http.Handler) error {
	var ln net.Listener
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)

	err := backoff.Retry(func() error {
		var err error
		ln, err = net.Listen("tcp", addr)
		return err
	}, b)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("peer http server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return nil
}
