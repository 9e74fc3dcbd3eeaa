// Package ingest feeds raw security telemetry into the pipeline from
// local files, S3 buckets and SQS queues.
package ingest

import (
	"context"

	"github.com/yairfalse/reitti/normalizer"
	"github.com/yairfalse/reitti/orchestrator"
)

// Processor runs one batch of raw records through the pipeline. The
// orchestrator satisfies this; tests substitute fakes.
type Processor interface {
	ProcessBatch(ctx context.Context, data []byte, format normalizer.Format, batchID string) *orchestrator.BatchResult
}
