package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artillery-go/artillery/internal/api"
	"github.com/artillery-go/artillery/internal/cluster"
	"github.com/artillery-go/artillery/internal/config"
	"github.com/artillery-go/artillery/internal/discovery"
	"github.com/artillery-go/artillery/internal/epidemic"
)

func init() {
	rootCmd.AddCommand(epidemicCmd)
	epidemicCmd.AddCommand(epidemicServeCmd)

	epidemicServeCmd.Flags().String("data-folder", ".artillery", "directory holding the persisted host_key")
	epidemicServeCmd.Flags().String("cluster-key", "default", "cluster key; datagrams with a different key are dropped")
	epidemicServeCmd.Flags().String("listen-addr", ":0", "UDP listen address")
	epidemicServeCmd.Flags().String("seed-node", "", "optional seed peer address to probe on startup")
	epidemicServeCmd.Flags().String("api-addr", "", "optional HTTP address to serve /health, /api/status, /metrics")
	epidemicServeCmd.Flags().Bool("discover", false, "find seed peers via UDP multicast beacon instead of --seed-node")
}

var epidemicCmd = &cobra.Command{
	Use:   "epidemic",
	Short: "Run the epidemic membership protocol",
}

var epidemicServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an epidemic node, probing peers and gossiping membership",
	RunE:  runEpidemicServe,
}

func runEpidemicServe(cmd *cobra.Command, args []string) error {
	dataFolder, _ := cmd.Flags().GetString("data-folder")
	clusterKey, _ := cmd.Flags().GetString("cluster-key")
	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	seedNode, _ := cmd.Flags().GetString("seed-node")
	apiAddr, _ := cmd.Flags().GetString("api-addr")
	discover, _ := cmd.Flags().GetBool("discover")

	hostKey, err := config.ReadHostKey(dataFolder)
	if err != nil {
		return fmt.Errorf("read host key: %w", err)
	}
	fmt.Fprintf(os.Stdout, "host key: %s\n", hostKey)

	cfg := epidemic.DefaultConfig()
	cfg.ClusterKey = []byte(clusterKey)
	cfg.ListenAddr = listenAddr

	ctx, cancel := signalContext()
	defer cancel()

	facade, err := cluster.New(ctx, hostKey, cfg)
	if err != nil {
		return fmt.Errorf("start epidemic reactor: %w", err)
	}
	fmt.Fprintf(os.Stdout, "listening on %s\n", facade.LocalAddr())

	if seedNode != "" {
		facade.AddSeedNode(seedNode)
	}

	if discover {
		disc, err := discovery.NewUDPMulticastDiscoverer(discovery.DefaultUDPMulticastConfig(facade.LocalAddr()))
		if err != nil {
			return fmt.Errorf("start discovery: %w", err)
		}
		go disc.Run(ctx)
		cluster.NewAPCluster(ctx, facade, disc)
	}

	if apiAddr != "" {
		srv := api.NewServer(facade, nil)
		srv.EnableMetrics()
		go func() {
			if err := http.ListenAndServe(apiAddr, srv.Handler()); err != nil {
				fmt.Fprintf(os.Stderr, "api server: %v\n", err)
			}
		}()
	}

	for ev := range facade.Events() {
		fmt.Fprintf(os.Stdout, "%s: %s (members=%d)\n", ev.Kind, ev.Member, len(ev.Snapshot))
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}
