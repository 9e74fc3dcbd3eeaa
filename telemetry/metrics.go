package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Pipeline metrics, registered against the global meter at startup
var (
	EventsProcessed       metric.Int64Counter
	NormalizationFailures metric.Int64Counter
	AdapterFailures       metric.Int64Counter
	FallbackActivations   metric.Int64Counter
	ActionsDispatched     metric.Int64Counter
	DispatchDuration      metric.Float64Histogram
	PipelineDuration      metric.Float64Histogram
)

// initPipelineMetrics registers all pipeline instruments
func initPipelineMetrics() error {
	var err error

	EventsProcessed, err = Meter.Int64Counter(
		"reitti.events.processed.total",
		metric.WithDescription("Total number of events run through the routing pipeline"),
		metric.WithUnit("events"),
	)
	if err != nil {
		return err
	}

	NormalizationFailures, err = Meter.Int64Counter(
		"reitti.normalize.failures.total",
		metric.WithDescription("Total number of raw inputs that failed normalization"),
		metric.WithUnit("inputs"),
	)
	if err != nil {
		return err
	}

	AdapterFailures, err = Meter.Int64Counter(
		"reitti.adapter.failures.total",
		metric.WithDescription("Total number of AI backend failures by reason"),
		metric.WithUnit("failures"),
	)
	if err != nil {
		return err
	}

	FallbackActivations, err = Meter.Int64Counter(
		"reitti.fallback.activations.total",
		metric.WithDescription("Total number of plans produced by the rule-based fallback"),
		metric.WithUnit("plans"),
	)
	if err != nil {
		return err
	}

	ActionsDispatched, err = Meter.Int64Counter(
		"reitti.actions.dispatched.total",
		metric.WithDescription("Total number of dispatched actions by status"),
		metric.WithUnit("actions"),
	)
	if err != nil {
		return err
	}

	DispatchDuration, err = Meter.Float64Histogram(
		"reitti.dispatch.duration",
		metric.WithDescription("Latency of individual service calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	PipelineDuration, err = Meter.Float64Histogram(
		"reitti.pipeline.duration",
		metric.WithDescription("End-to-end processing time per event"),
		metric.WithUnit("ms"),
	)
	return err
}

// RecordAdapterFailure increments the adapter failure counter with its
// reason code. Safe to call before InitOTEL; the instrument is nil then.
func RecordAdapterFailure(ctx context.Context, backend, reason string) {
	if AdapterFailures == nil {
		return
	}
	AdapterFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("reason", reason),
		))
}

// RecordDispatch records one dispatch outcome and its latency
func RecordDispatch(ctx context.Context, service, status string, durationMs float64) {
	if ActionsDispatched == nil {
		return
	}
	ActionsDispatched.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("status", status),
		))
	DispatchDuration.Record(ctx, durationMs,
		metric.WithAttributes(attribute.String("service", service)))
}

// RecordEventProcessed counts one completed pipeline run
func RecordEventProcessed(ctx context.Context, source string, durationMs float64) {
	if EventsProcessed == nil {
		return
	}
	EventsProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("plan_source", source)))
	PipelineDuration.Record(ctx, durationMs,
		metric.WithAttributes(attribute.String("plan_source", source)))
}
