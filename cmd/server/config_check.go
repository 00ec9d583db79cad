package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"venuemesh/internal/config"
)

var configCheckCmd = &cobra.Command{
	Use:   "config-check",
	Short: "Load configuration from the environment and report validation errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		fmt.Printf("listen: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("cors origin: %s\n", cfg.Server.ClientCORSOrigin)
		fmt.Printf("min spread pct: %v  max realistic spread pct: %v\n", cfg.Pipeline.MinSpreadPct, cfg.Pipeline.MaxRealisticSpreadPct)
		fmt.Println("venues:")
		for _, v := range cfg.Venues {
			status := "disabled"
			if v.Enabled {
				status = "enabled"
			}
			fmt.Printf("  %-12s %-10s %-10s %s symbols=%v\n", v.Name, status, v.Transport, v.URL, v.Symbols)
		}
		return nil
	},
}
