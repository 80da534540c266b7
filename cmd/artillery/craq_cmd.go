package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artillery-go/artillery/internal/api"
	"github.com/artillery-go/artillery/internal/craq"
	"github.com/artillery-go/artillery/internal/craq/client"
	"github.com/artillery-go/artillery/internal/domain"
)

func init() {
	rootCmd.AddCommand(craqCmd)
	craqCmd.AddCommand(craqServeCmd)
	craqCmd.AddCommand(craqClientCmd)

	craqServeCmd.Flags().IntP("node-index", "i", 0, "this node's position in the chain")
	craqServeCmd.Flags().StringSliceP("chain-servers", "c", nil, "comma-separated list of host:port addresses, head first")
	craqServeCmd.Flags().String("listen-addr", "", "TCP listen address (defaults to this node's chain-servers entry)")
	craqServeCmd.Flags().Bool("cr-mode", false, "restrict reads to the tail only")
	craqServeCmd.Flags().String("api-addr", "", "optional HTTP address to serve /health, /api/status, /metrics")

	craqClientCmd.Flags().StringP("server", "s", "", "host:port of the node to call")
	craqClientCmd.Flags().StringP("method", "m", "write", "one of: write, read, test-and-set, version-query")
	craqClientCmd.Flags().StringP("value", "v", "", "value for write/test-and-set")
	craqClientCmd.Flags().Int64("expected", domain.NoVersion, "expected version for test-and-set")
	craqClientCmd.Flags().String("consistency", "strong", "read consistency: strong, eventual, eventual-max-bounded")
	craqClientCmd.Flags().Int64("bound", 0, "staleness bound for eventual-max-bounded reads")
}

var craqCmd = &cobra.Command{
	Use:   "craq",
	Short: "Run or drive the CRAQ replicated object store",
}

var craqServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start one node of a CRAQ chain",
	RunE:  runCraqServe,
}

var craqClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Issue a single request against a CRAQ node",
	RunE:  runCraqClient,
}

func runCraqServe(cmd *cobra.Command, args []string) error {
	index, _ := cmd.Flags().GetInt("node-index")
	servers, _ := cmd.Flags().GetStringSlice("chain-servers")
	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	crMode, _ := cmd.Flags().GetBool("cr-mode")
	apiAddr, _ := cmd.Flags().GetString("api-addr")

	if len(servers) == 0 {
		return fmt.Errorf("craq serve: --chain-servers is required")
	}

	nodes := make([]craq.ChainNode, len(servers))
	for i, addr := range servers {
		nodes[i] = craq.ChainNode{Addr: addr}
	}

	chain, err := craq.NewChain(nodes, index)
	if err != nil {
		return err
	}

	cfg := craq.DefaultConfig()
	if crMode {
		cfg.OperationMode = craq.Cr
	}

	node := craq.NewNode(chain, cfg)

	ctx, cancel := signalContext()
	defer cancel()

	if err := node.Connect(ctx); err != nil {
		return fmt.Errorf("connect chain: %w", err)
	}

	if listenAddr == "" {
		listenAddr = chain.GetNode().Addr
	}

	if apiAddr != "" {
		srv := api.NewServer(nil, node)
		srv.EnableMetrics()
		go func() {
			if err := http.ListenAndServe(apiAddr, srv.Handler()); err != nil {
				fmt.Fprintf(os.Stderr, "api server: %v\n", err)
			}
		}()
	}

	fmt.Fprintf(os.Stdout, "craq node %d/%d listening on %s (head=%v tail=%v)\n",
		chain.GetIndex(), chain.ChainSize(), listenAddr, chain.IsHead(), chain.IsTail())

	return node.ListenAndServe(ctx, listenAddr)
}

func runCraqClient(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	method, _ := cmd.Flags().GetString("method")
	value, _ := cmd.Flags().GetString("value")
	expected, _ := cmd.Flags().GetInt64("expected")
	consistency, _ := cmd.Flags().GetString("consistency")
	bound, _ := cmd.Flags().GetInt64("bound")

	if server == "" {
		return fmt.Errorf("craq client: --server is required")
	}

	c, err := client.Dial(server)
	if err != nil {
		return fmt.Errorf("dial %s: %w", server, err)
	}
	defer c.Close()

	switch strings.ToLower(method) {
	case "write":
		version, err := c.Write([]byte(value))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "version=%d\n", version)
	case "test-and-set":
		version, err := c.TestAndSet([]byte(value), expected)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "version=%d\n", version)
	case "read":
		model, err := parseConsistency(consistency)
		if err != nil {
			return err
		}
		val, dirty, err := c.Read(model, bound)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "value=%q dirty=%v\n", string(val), dirty)
	case "version-query":
		version, err := c.VersionQuery()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "version=%d\n", version)
	default:
		return fmt.Errorf("unknown method %q (want write, read, test-and-set, version-query)", method)
	}
	return nil
}

func parseConsistency(s string) (domain.ConsistencyModel, error) {
	switch strings.ToLower(s) {
	case "strong":
		return domain.Strong, nil
	case "eventual":
		return domain.Eventual, nil
	case "eventual-max-bounded":
		return domain.EventualMaxBounded, nil
	default:
		return 0, fmt.Errorf("unknown consistency %q", s)
	}
}
