package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - request tracking and rate limiting service",
	Long: `Ganymede is a request tracking and rate limiting service.

It sits in front of an application and admits or denies requests based on:
  - Per-IP, per-user, and per-tool rate limits
  - Tier-based quotas with time-of-day multipliers
  - Per-tier concurrent request ceilings
  - An optional shared Redis counter across instances

Every decision is recorded for statistics, Prometheus metrics, and an
optional SQLite audit trail.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
