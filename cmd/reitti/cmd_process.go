package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/reitti/ingest"
	"github.com/yairfalse/reitti/orchestrator"
	"github.com/yairfalse/reitti/types"
)

var processInstruction string

// processCmd runs one local file through the pipeline
var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process a local telemetry file",
	Long: `Process runs every record in a local file through the pipeline:
normalization, planning, validation and dispatch. The file format is
taken from the extension (.json, .csv, .log).`,
	Example: `  reitti process alerts.json
  reitti process firewall.log -i "check if these IPs are malicious"
  reitti process events.csv --config prod.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringVarP(&processInstruction, "instruction", "i", "", "Routing instruction passed to the planner")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx, processInstruction)
	if err != nil {
		return err
	}
	defer p.Close()

	flush := setupTelemetry(ctx, p.cfg.Telemetry, p.logger)
	defer flush()

	batch, err := ingest.ProcessFile(ctx, p.orch, args[0])
	if err != nil {
		return err
	}

	return printBatchSummary(batch.Processed, batch.Failed, batchOutcomes(batch))
}

// batchOutcome is the per-event summary printed after a run
type batchOutcome struct {
	EventID string                 `json:"event_id"`
	Source  types.PlanSource       `json:"plan_source,omitempty"`
	Actions int                    `json:"actions"`
	Results []types.DispatchStatus `json:"results,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func batchOutcomes(batch *orchestrator.BatchResult) []batchOutcome {
	outcomes := make([]batchOutcome, 0, len(batch.Results))
	for _, r := range batch.Results {
		out := batchOutcome{EventID: r.EventID}
		if r.Plan != nil {
			out.Source = r.Plan.Source
			out.Actions = len(r.Plan.Actions)
		}
		for _, dr := range r.Results {
			out.Results = append(out.Results, dr.Status)
		}
		if r.Err != nil {
			out.Error = r.Err.Error()
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func printBatchSummary(processed, failed int, outcomes []batchOutcome) error {
	summary := map[string]interface{}{
		"processed": processed,
		"failed":    failed,
		"events":    outcomes,
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to print summary: %w", err)
	}
	return nil
}
