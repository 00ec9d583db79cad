package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "venuemesh",
	Short: "Cross-venue perpetual-futures quote aggregator and arbitrage scanner",
	Long: `venuemesh ingests top-of-book quotes from multiple perpetual-futures
venues, aggregates the per-symbol best bid/ask across venues, detects
cross-venue arbitrage opportunities, and streams both to subscribed
clients over a WebSocket gateway.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCheckCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
