package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/normalizer"
	"github.com/yairfalse/reitti/orchestrator"
)

// fakeProcessor records batches and fabricates outcomes
type fakeProcessor struct {
	mu      sync.Mutex
	batches map[string][]byte
	failAll bool
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{batches: make(map[string][]byte)}
}

func (f *fakeProcessor) ProcessBatch(ctx context.Context, data []byte, format normalizer.Format, batchID string) *orchestrator.BatchResult {
	f.mu.Lock()
	f.batches[batchID] = data
	f.mu.Unlock()

	if f.failAll {
		return &orchestrator.BatchResult{BatchID: batchID, Failed: 1}
	}
	return &orchestrator.BatchResult{
		BatchID:   batchID,
		Processed: 1,
		Results: []*orchestrator.ProcessResult{
			{EventID: "evt-1", State: orchestrator.StateDone},
		},
	}
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"severity":"high"}]`), 0644))

	proc := newFakeProcessor()
	batch, err := ProcessFile(context.Background(), proc, path)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Processed)
	assert.Contains(t, proc.batches, "alerts.json")
}

func TestProcessFile_Rejections(t *testing.T) {
	dir := t.TempDir()
	proc := newFakeProcessor()

	_, err := ProcessFile(context.Background(), proc, filepath.Join(dir, "alerts.xml"))
	assert.Error(t, err, "unsupported extension")

	_, err = ProcessFile(context.Background(), proc, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = ProcessFile(context.Background(), proc, empty)
	assert.Error(t, err)
}

// mockS3 is an in-memory bucket
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMockS3(objects map[string][]byte) *mockS3 {
	return &mockS3{objects: objects}
}

func (m *mockS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &s3.ListObjectsV2Output{}
	for key := range m.objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", aws.ToString(params.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[aws.ToString(params.Key)] = data
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source := strings.TrimPrefix(aws.ToString(params.CopySource), aws.ToString(params.Bucket)+"/")
	data, ok := m.objects[source]
	if !ok {
		return nil, fmt.Errorf("no such source: %s", source)
	}
	m.objects[aws.ToString(params.Key)] = data
	return &s3.CopyObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := aws.ToString(params.Key)
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

func sweeperConfig() config.IngestConfig {
	return config.IngestConfig{
		Bucket:            "drop-bucket",
		UnprocessedPrefix: "unprocessed/",
		ProcessedPrefix:   "processed/",
	}
}

func TestSweep_ProcessesAndArchives(t *testing.T) {
	client := newMockS3(map[string][]byte{
		"unprocessed/alerts.json": []byte(`[{"severity":"high"}]`),
	})
	sweeper := NewBucketSweeperWithClient(client, sweeperConfig())
	proc := newFakeProcessor()

	stats, err := sweeper.Sweep(context.Background(), proc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ObjectsProcessed)

	// Original gone, archive and results present
	keys := client.keys()
	assert.NotContains(t, keys, "unprocessed/alerts.json")

	var sawArchive, sawResults bool
	for _, key := range keys {
		if strings.HasPrefix(key, "processed/results/") && strings.HasSuffix(key, "_alerts.json_results.json") {
			sawResults = true
		} else if strings.HasPrefix(key, "processed/") && strings.HasSuffix(key, "_alerts.json") {
			sawArchive = true
		}
	}
	assert.True(t, sawResults, "results file missing: %v", keys)
	assert.True(t, sawArchive, "archive copy missing: %v", keys)

	assert.Contains(t, proc.batches, "unprocessed/alerts.json")
}

func TestSweep_SkipsUnsupportedExtensions(t *testing.T) {
	client := newMockS3(map[string][]byte{
		"unprocessed/readme.pdf":  []byte("not telemetry"),
		"unprocessed/alerts.json": []byte(`[{"severity":"low"}]`),
	})
	sweeper := NewBucketSweeperWithClient(client, sweeperConfig())

	stats, err := sweeper.Sweep(context.Background(), newFakeProcessor())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ObjectsProcessed)
	assert.Equal(t, 1, stats.ObjectsSkipped)
	assert.Contains(t, client.keys(), "unprocessed/readme.pdf")
}

func TestSweep_EmptyBucket(t *testing.T) {
	client := newMockS3(map[string][]byte{})
	sweeper := NewBucketSweeperWithClient(client, sweeperConfig())

	stats, err := sweeper.Sweep(context.Background(), newFakeProcessor())
	require.NoError(t, err)
	assert.Zero(t, stats.ObjectsProcessed)
}

// mockSQS serves a fixed set of messages
type mockSQS struct {
	mu       sync.Mutex
	messages []sqstypes.Message
	deleted  []string
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &sqs.ReceiveMessageOutput{Messages: m.messages}
	m.messages = nil
	return out, nil
}

func (m *mockSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleted = append(m.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func queueConfig() config.IngestConfig {
	return config.IngestConfig{QueueURL: "https://sqs.us-east-1.amazonaws.com/123456789012/events"}
}

func TestPoll_ProcessesAndDeletes(t *testing.T) {
	client := &mockSQS{messages: []sqstypes.Message{
		{
			MessageId:     aws.String("msg-1"),
			Body:          aws.String(`[{"severity":"high"}]`),
			ReceiptHandle: aws.String("rh-1"),
		},
	}}
	consumer := NewQueueConsumerWithClient(client, queueConfig())
	proc := newFakeProcessor()

	require.NoError(t, consumer.Poll(context.Background(), proc))

	assert.Contains(t, proc.batches, "msg-1")
	assert.Equal(t, []string{"rh-1"}, client.deleted)
}

func TestPoll_PoisonMessageLeftForRedelivery(t *testing.T) {
	client := &mockSQS{messages: []sqstypes.Message{
		{
			MessageId:     aws.String("msg-bad"),
			Body:          aws.String(`not json at all`),
			ReceiptHandle: aws.String("rh-bad"),
		},
	}}
	consumer := NewQueueConsumerWithClient(client, queueConfig())
	proc := newFakeProcessor()
	proc.failAll = true

	require.NoError(t, consumer.Poll(context.Background(), proc))
	assert.Empty(t, client.deleted)
}
