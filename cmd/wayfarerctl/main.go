// Command wayfarerctl talks to a running Wayfarer gateway over its HTTP API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	addr    string
	token   string
	timeout time.Duration
	asJSON  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wayfarerctl",
		Short:         "Wayfarer - resilient travel data gateway CLI",
		Long:          "Query weather, places and hotels through a Wayfarer gateway and manage its breakers, keys and cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&addr, "addr", envOr("WAYFARER_ADDR", "http://localhost:8000"), "Gateway base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("WAYFARER_ADMIN_TOKEN"), "Admin bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	rootCmd.AddCommand(
		weatherCmd(),
		placesCmd(),
		hotelsCmd(),
		statusCmd(),
		keysCmd(),
		clearCacheCmd(),
		resetBreakerCmd(),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
