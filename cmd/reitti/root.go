package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "reitti",
		Short: "AI-assisted security event routing",
		Long: `Reitti - AI-assisted security event routing

Reitti takes raw security telemetry in whatever shape it arrives,
normalizes it, asks an AI backend which capability services should
act on it, validates the answer against what those services actually
offer, and dispatches the surviving actions. Every decision lands on
an append-only audit trail.

When the AI backend is down, a deterministic rule engine takes over
so events keep moving.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "reitti.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`Reitti {{.Version}} - AI-assisted security event routing
`)
}
