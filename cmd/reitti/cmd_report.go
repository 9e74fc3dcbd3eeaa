package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/reitti/storage"
)

var (
	reportEvent  string
	reportBatch  string
	reportRecent int
)

// reportCmd queries the result store
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Query stored processing outcomes",
	Long: `Report prints what the pipeline decided and dispatched, from the
local result store. Query one event, one batch, or the most recent
outcomes.`,
	Example: `  reitti report --event evt-a1b2c3-4
  reitti report --batch alerts.json
  reitti report --recent 20`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportEvent, "event", "", "Show the outcome for one event ID")
	reportCmd.Flags().StringVar(&reportBatch, "batch", "", "Show every outcome from one batch")
	reportCmd.Flags().IntVar(&reportRecent, "recent", 10, "Show the N most recent outcomes")
}

func runReport(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(cmd.Context(), "")
	if err != nil {
		return err
	}
	defer p.Close()

	switch {
	case reportEvent != "":
		record, err := p.store.GetOutcome(reportEvent)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("no outcome recorded for %s", reportEvent)
		}
		return printRecords([]*storage.OutcomeRecord{record})

	case reportBatch != "":
		records, err := p.store.ListBatch(reportBatch)
		if err != nil {
			return err
		}
		return printRecords(records)

	default:
		records, err := p.store.ListRecent(reportRecent)
		if err != nil {
			return err
		}
		return printRecords(records)
	}
}

func printRecords(records []*storage.OutcomeRecord) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return err
		}
	}
	return nil
}
