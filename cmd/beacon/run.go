package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/crypto"
	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/internal/events"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/ledger"
	"github.com/eigerco/beacon/internal/metrics"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/internal/store"
	"github.com/eigerco/beacon/pkg/api"
	"github.com/eigerco/beacon/pkg/db/pebble"
	"github.com/eigerco/beacon/pkg/log"
	"github.com/eigerco/beacon/pkg/network/node"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a beacon node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	defaults := config.Default().Node
	cmd.Flags().String("data-dir", defaults.DataDir, "directory of the node database")
	cmd.Flags().String("listen", defaults.Listen, "QUIC listen address")
	cmd.Flags().String("http", defaults.HTTP, "HTTP listen address")
	cmd.Flags().StringSlice("peers", defaults.Peers, "peer addresses to connect to at startup")
	cmd.Flags().String("network-key", "", "hex Ed25519 seed of the network identity")
	_ = v.BindPFlag("node.data_dir", cmd.Flags().Lookup("data-dir"))
	_ = v.BindPFlag("node.listen", cmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("node.http", cmd.Flags().Lookup("http"))
	_ = v.BindPFlag("node.peers", cmd.Flags().Lookup("peers"))
	_ = v.BindPFlag("node.network_key", cmd.Flags().Lookup("network-key"))
	return cmd
}

// run starts the ledger, the QUIC node and the HTTP server and stops all
// of them when ctx ends or one of them fails
func run(ctx context.Context, cfg config.Config) error {
	if cfg.Node.NetworkKey == "" {
		return errors.New("node.network_key must be set, see beacon keygen")
	}
	_, networkKey, err := ed25519.KeyFromHex(cfg.Node.NetworkKey)
	if err != nil {
		return err
	}

	kv, err := pebble.Open(cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	st := store.New(kv)
	defer func() {
		if err := st.Close(); err != nil {
			log.Store.Error().Err(err).Msg("close database")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	clock, err := height.NewClock(cfg.Genesis.Time, cfg.Genesis.BlockDuration)
	if err != nil {
		return err
	}
	verifier, err := crypto.NewBLSVerifier(cfg.Node.VerifierCacheSize)
	if err != nil {
		return err
	}
	genesis, err := statetransition.NewGenesisState(cfg)
	if err != nil {
		return fmt.Errorf("genesis state: %w", err)
	}

	bus := events.NewBus(st.Events, collector, events.SinkFunc(logEvents))
	l, err := ledger.New(genesis, st, bus, ledger.Config{
		Clock:            clock,
		Verifier:         verifier,
		GasPrice:         cfg.Node.GasPrice,
		SnapshotInterval: cfg.Node.SnapshotInterval,
		Metrics:          collector,
	})
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}

	n, err := node.NewNode(ctx, node.Config{
		ChainHash:  cfg.Genesis.ChainHash,
		ListenAddr: cfg.Node.Listen,
		PrivateKey: networkKey,
	}, l)
	if err != nil {
		return err
	}
	server := api.NewServer(cfg.Node.HTTP, l, registry)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.Run(ctx)
	})
	g.Go(func() error {
		if err := n.Start(); err != nil {
			return err
		}
		connectPeers(ctx, n, cfg.Node)
		<-ctx.Done()
		return n.Stop()
	})
	g.Go(func() error {
		return server.Run(ctx)
	})

	log.Beacon.Info().
		Str("chain", cfg.Genesis.ChainHash).
		Uint64("height", uint64(l.Height())).
		Uint64("seq", l.Seq()).
		Msg("beacon node started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func connectPeers(ctx context.Context, n *node.Node, cfg config.Node) {
	for _, addr := range cfg.Peers {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		p, err := n.ConnectToPeer(dialCtx, addr)
		cancel()
		if err != nil {
			log.Network.Warn().Err(err).Str("addr", addr).Msg("connect to peer")
			continue
		}
		log.Network.Info().Str("addr", addr).Hex("key", p.Ed25519Key).Msg("connected to peer")
	}
}

func logEvents(h height.Height, evs []events.Event) error {
	for _, ev := range evs {
		log.Beacon.Info().Uint64("height", uint64(h)).Str("event", ev.Name()).Msg("event")
	}
	return nil
}
