package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/reitti/ingest"
)

var (
	sweepInstruction string
	sweepLoop        bool
	sweepInterval    time.Duration
)

// sweepCmd drains the S3 drop bucket
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Process pending objects from the S3 drop bucket",
	Long: `Sweep lists every object under the unprocessed prefix of the
configured bucket, runs each through the pipeline, uploads a results
file next to the archived copy and removes the original. Objects that
fail stay in place for the next sweep.`,
	Example: `  reitti sweep
  reitti sweep --loop --interval 2m`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVarP(&sweepInstruction, "instruction", "i", "", "Routing instruction passed to the planner")
	sweepCmd.Flags().BoolVar(&sweepLoop, "loop", false, "Keep sweeping on an interval instead of exiting")
	sweepCmd.Flags().DurationVar(&sweepInterval, "interval", 5*time.Minute, "Sweep interval in loop mode")
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx, sweepInstruction)
	if err != nil {
		return err
	}
	defer p.Close()

	flush := setupTelemetry(ctx, p.cfg.Telemetry, p.logger)
	defer flush()

	sweeper, err := ingest.NewBucketSweeper(ctx, p.cfg.Ingest)
	if err != nil {
		return err
	}

	stats, err := sweeper.Sweep(ctx, p.orch)
	if err != nil {
		return err
	}
	fmt.Printf("processed %d, skipped %d, failed %d\n",
		stats.ObjectsProcessed, stats.ObjectsSkipped, stats.ObjectsFailed)

	if !sweepLoop {
		return nil
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats, err := sweeper.Sweep(ctx, p.orch)
			if err != nil {
				p.logger.WithContext(ctx).Error().Err(err).Msg("sweep failed")
				continue
			}
			fmt.Printf("processed %d, skipped %d, failed %d\n",
				stats.ObjectsProcessed, stats.ObjectsSkipped, stats.ObjectsFailed)
		case <-ctx.Done():
			return nil
		}
	}
}
