package main

import (
	"context"
	"time"

	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/telemetry"
)

// setupTelemetry wires tracing and metrics. Returns a shutdown func
// that flushes exporters; safe to call even when setup partially
// failed.
func setupTelemetry(ctx context.Context, cfg config.TelemetryConfig, logger *telemetry.Logger) func() {
	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "reitti",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTELEndpoint:   cfg.Endpoint,
		Insecure:       cfg.Insecure,
	})
	if err != nil {
		logger.WithContext(ctx).Warn().
			Err(err).
			Msg("telemetry init failed, continuing without export")
		return func() {}
	}

	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.WithContext(flushCtx).Warn().
				Err(err).
				Msg("telemetry shutdown failed")
		}
	}
}
