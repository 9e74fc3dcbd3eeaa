package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/reitti/audit"
	"github.com/yairfalse/reitti/config"
)

var (
	trailEvent string
	trailSince time.Duration
	trailStats bool
)

// trailCmd reads the audit trail
var trailCmd = &cobra.Command{
	Use:   "trail",
	Short: "Inspect the audit trail",
	Long: `Trail replays audit entries as JSON lines: what was normalized,
which plan was chosen and why, and what each dispatch did. Filter to
one event to see its full decision history.`,
	Example: `  reitti trail --since 1h
  reitti trail --event evt-a1b2c3-4
  reitti trail --stats`,
	RunE: runTrail,
}

func init() {
	rootCmd.AddCommand(trailCmd)
	trailCmd.Flags().StringVar(&trailEvent, "event", "", "Show only entries for one event ID")
	trailCmd.Flags().DurationVar(&trailSince, "since", 24*time.Hour, "How far back to replay")
	trailCmd.Flags().BoolVar(&trailStats, "stats", false, "Print trail size and sequence instead of entries")
}

func runTrail(cmd *cobra.Command, args []string) error {
	// The trail is readable without opening the full pipeline
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if trailStats {
		stats := audit.StatsFromDir(cfg.Audit.Dir)
		fmt.Printf("files: %d\nbytes: %d\nlast sequence: %d\n",
			stats.FileCount, stats.TotalBytes, stats.LastSequence)
		return nil
	}

	encoder := json.NewEncoder(os.Stdout)

	if trailEvent != "" {
		entries, err := audit.EntriesForEvent(cfg.Audit.Dir, trailEvent)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := encoder.Encode(entry); err != nil {
				return err
			}
		}
		return nil
	}

	since := time.Now().Add(-trailSince)
	return audit.Replay(cfg.Audit.Dir, since, func(entry *audit.Entry) error {
		return encoder.Encode(entry)
	})
}
