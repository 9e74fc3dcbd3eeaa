package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/normalizer"
	"github.com/yairfalse/reitti/orchestrator"
	"github.com/yairfalse/reitti/telemetry"
	"github.com/yairfalse/reitti/types"
)

// S3API is the slice of the S3 client the sweeper needs
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// BucketSweeper drains a drop bucket: every object under the
// unprocessed prefix is processed, its results are written next to the
// archive copy, and the original is removed.
type BucketSweeper struct {
	client            S3API
	bucket            string
	unprocessedPrefix string
	processedPrefix   string
	logger            *telemetry.Logger
	now               func() time.Time
}

// SweepStats summarizes one bucket sweep
type SweepStats struct {
	ObjectsProcessed int
	ObjectsSkipped   int
	ObjectsFailed    int
}

// NewBucketSweeper builds a sweeper using ambient AWS credentials
func NewBucketSweeper(ctx context.Context, cfg config.IngestConfig) (*BucketSweeper, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket sweeping requires ingest.bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewBucketSweeperWithClient(s3.NewFromConfig(awsCfg), cfg), nil
}

// NewBucketSweeperWithClient builds a sweeper around an existing client
func NewBucketSweeperWithClient(client S3API, cfg config.IngestConfig) *BucketSweeper {
	return &BucketSweeper{
		client:            client,
		bucket:            cfg.Bucket,
		unprocessedPrefix: cfg.UnprocessedPrefix,
		processedPrefix:   cfg.ProcessedPrefix,
		logger:            telemetry.NewLogger("bucket-sweeper"),
		now:               time.Now,
	}
}

// Sweep processes every pending object once. Objects with unsupported
// extensions stay in place; a failing object is logged and left for
// the next sweep rather than stopping the run.
func (b *BucketSweeper) Sweep(ctx context.Context, proc Processor) (SweepStats, error) {
	var stats SweepStats

	var continuation *string
	for {
		page, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(b.unprocessedPrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to list bucket: %w", err)
		}

		for _, obj := range page.Contents {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			key := aws.ToString(obj.Key)
			if key == b.unprocessedPrefix {
				continue
			}

			format, ok := normalizer.FormatForPath(key)
			if !ok {
				stats.ObjectsSkipped++
				b.logger.WithContext(ctx).Warn().
					Str("key", key).
					Msg("skipping object with unsupported extension")
				continue
			}

			if err := b.sweepObject(ctx, proc, key, format); err != nil {
				stats.ObjectsFailed++
				b.logger.WithContext(ctx).Error().
					Err(err).
					Str("key", key).
					Msg("failed to process object")
				continue
			}
			stats.ObjectsProcessed++
		}

		if page.NextContinuationToken == nil {
			break
		}
		continuation = page.NextContinuationToken
	}

	b.logger.WithContext(ctx).Info().
		Int("processed", stats.ObjectsProcessed).
		Int("skipped", stats.ObjectsSkipped).
		Int("failed", stats.ObjectsFailed).
		Msg("bucket sweep complete")
	return stats, nil
}

// sweepObject downloads, processes and archives a single object
func (b *BucketSweeper) sweepObject(ctx context.Context, proc Processor, key string, format normalizer.Format) error {
	obj, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	data, err := io.ReadAll(obj.Body)
	_ = obj.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	batch := proc.ProcessBatch(ctx, data, format, key)

	name := path.Base(key)
	stamp := b.now().UTC().Format("20060102T150405")

	if err := b.uploadResults(ctx, name, stamp, batch); err != nil {
		return err
	}
	return b.archive(ctx, key, name, stamp)
}

// objectResult is the serialized per-event outcome in the results file
type objectResult struct {
	EventID string                 `json:"event_id"`
	Plan    *types.ActionPlan      `json:"plan,omitempty"`
	Results []types.DispatchResult `json:"results,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// uploadResults writes the batch outcome under processed/results/
func (b *BucketSweeper) uploadResults(ctx context.Context, name, stamp string, batch *orchestrator.BatchResult) error {
	results := make([]objectResult, 0, len(batch.Results))
	for _, r := range batch.Results {
		out := objectResult{EventID: r.EventID, Plan: r.Plan, Results: r.Results}
		if r.Err != nil {
			out.Error = r.Err.Error()
		}
		results = append(results, out)
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"source":    name,
		"processed": batch.Processed,
		"failed":    batch.Failed,
		"results":   results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	resultKey := fmt.Sprintf("%sresults/%s_%s_results.json", b.processedPrefix, stamp, name)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(resultKey),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload results: %w", err)
	}
	return nil
}

// archive moves the original object under the processed prefix
func (b *BucketSweeper) archive(ctx context.Context, key, name, stamp string) error {
	archiveKey := fmt.Sprintf("%s%s_%s", b.processedPrefix, stamp, name)
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(b.bucket + "/" + key),
		Key:        aws.String(archiveKey),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s after archiving: %w", key, err)
	}
	return nil
}
