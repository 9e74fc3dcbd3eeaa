package main

import (
	"context"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yairfalse/reitti/ingest"
	"github.com/yairfalse/reitti/telemetry"
)

var (
	consumeInstruction string
	consumeMetricsAddr string
)

// consumeCmd long-polls the configured SQS queue
var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume events from the SQS queue until interrupted",
	Long: `Consume long-polls the configured queue and runs every message
through the pipeline. Messages are deleted after processing; messages
whose records all fail stay on the queue for redelivery. A metrics
endpoint is served while the consumer runs.`,
	Example: `  reitti consume
  reitti consume --metrics :9090 -i "enrich and ticket"`,
	RunE: runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
	consumeCmd.Flags().StringVarP(&consumeInstruction, "instruction", "i", "", "Routing instruction passed to the planner")
	consumeCmd.Flags().StringVar(&consumeMetricsAddr, "metrics", ":9090", "Metrics server address")
}

func runConsume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx, consumeInstruction)
	if err != nil {
		return err
	}
	defer p.Close()

	flush := setupTelemetry(ctx, p.cfg.Telemetry, p.logger)
	defer flush()

	consumer, err := ingest.NewQueueConsumer(ctx, p.cfg.Ingest)
	if err != nil {
		return err
	}

	var group run.Group

	// Signal handling
	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	// Queue consumer
	consumeCtx, cancelConsume := context.WithCancel(ctx)
	group.Add(func() error {
		return consumer.Run(consumeCtx, p.orch)
	}, func(error) {
		cancelConsume()
	})

	// Metrics endpoint, only when telemetry came up
	if telemetry.PrometheusRegistry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:              consumeMetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Add(func() error {
			p.logger.WithContext(ctx).Info().
				Str("addr", consumeMetricsAddr).
				Msg("starting metrics server")
			return server.ListenAndServe()
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	err = group.Run()
	if _, ok := err.(run.SignalError); ok {
		p.logger.WithContext(ctx).Info().Msg("shutting down")
		return nil
	}
	if err == context.Canceled || err == http.ErrServerClosed {
		return nil
	}
	return err
}
