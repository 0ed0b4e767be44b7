package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flint",
		Short: "An event-driven HTTP/1.1 server",
		Long: `Flint serves HTTP/1.1 from a small set of epoll shards.

The serve command runs a demo application with public, parameterised
and authenticated routes next to an admin server exposing metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to the JSON config file (default "+configPathHint+")")

	rootCmd.AddCommand(
		serveCmd(),
		routesCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
