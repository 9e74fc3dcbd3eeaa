package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/normalizer"
	"github.com/yairfalse/reitti/telemetry"
)

// SQSAPI is the slice of the SQS client the consumer needs
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// QueueConsumer long-polls an SQS queue of JSON event payloads. A
// message is deleted only after its batch ran; failed messages become
// visible again for redelivery.
type QueueConsumer struct {
	client   SQSAPI
	queueURL string
	waitTime int32
	logger   *telemetry.Logger
}

// NewQueueConsumer builds a consumer using ambient AWS credentials
func NewQueueConsumer(ctx context.Context, cfg config.IngestConfig) (*QueueConsumer, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("queue consumption requires ingest.queue_url")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewQueueConsumerWithClient(sqs.NewFromConfig(awsCfg), cfg), nil
}

// NewQueueConsumerWithClient builds a consumer around an existing client
func NewQueueConsumerWithClient(client SQSAPI, cfg config.IngestConfig) *QueueConsumer {
	wait := int32(20)
	if cfg.PollInterval > 0 && cfg.PollInterval < 20*time.Second {
		wait = int32(cfg.PollInterval / time.Second)
	}
	return &QueueConsumer{
		client:   client,
		queueURL: cfg.QueueURL,
		waitTime: wait,
		logger:   telemetry.NewLogger("queue-consumer"),
	}
}

// Run consumes until the context is cancelled. Receive errors back off
// briefly instead of spinning.
func (q *QueueConsumer) Run(ctx context.Context, proc Processor) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := q.Poll(ctx, proc); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.WithContext(ctx).Error().
				Err(err).
				Msg("receive failed, backing off")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Poll performs one long-poll receive and processes what it gets
func (q *QueueConsumer) Poll(ctx context.Context, proc Processor) error {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     q.waitTime,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range out.Messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batchID := aws.ToString(msg.MessageId)
		if batchID == "" {
			batchID = uuid.NewString()
		}
		batch := proc.ProcessBatch(ctx, []byte(aws.ToString(msg.Body)), normalizer.FormatJSON, batchID)

		// Every record rejected means a poison message; deleting it
		// would lose data silently, so leave it for the DLQ policy.
		if batch.Processed == 0 && batch.Failed > 0 {
			q.logger.WithContext(ctx).Warn().
				Str("message_id", batchID).
				Int("failed", batch.Failed).
				Msg("message produced no processable events, leaving for redelivery")
			continue
		}

		_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
		if err != nil {
			q.logger.WithContext(ctx).Error().
				Err(err).
				Str("message_id", batchID).
				Msg("failed to delete message")
		}
	}
	return nil
}
