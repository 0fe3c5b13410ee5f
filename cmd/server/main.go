// Package main is the entry point for the Polystats API server.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: track catalog, leaderboard values, session state machine
// - Application: identity resolution, page queries, search sessions, stats
// - Infrastructure: Polytrack client, Redis cache, background scheduler
// - Interface: HTTP endpoints
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "polystat",
	Short: "Leaderboard aggregation backend for Polytrack",
	Long: `Polystats resolves player identities, walks the official and community
track catalogs, and serves aggregate standings over HTTP.

Configuration comes from environment variables; flags override them.`,
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
