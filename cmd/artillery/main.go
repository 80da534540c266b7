// Command artillery is a thin runner exposing the epidemic membership
// layer and the CRAQ object store as two cobra subcommands. It mirrors
// the shape of the original crate's example binaries (cball.rs,
// cball_ap_cluster.rs, craq_node.rs) rather than a full product CLI —
// CLI UX is out of spec.md's scope (§1); this exists only so the
// module is runnable at all.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "artillery",
	Short: "Artillery epidemic membership and CRAQ object store",
	Long: `Artillery runs two independent building blocks for small
self-organising clusters: an epidemic (SWIM-style) membership layer,
and a Chain Replication with Apportioned Queries (CRAQ) object store.`,
}
