package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/yairfalse/reitti/config"
)

func init() {
	Register("bedrock", newBedrock)
}

const (
	defaultBedrockModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	anthropicVersion    = "bedrock-2023-05-31"
	defaultMaxTokens    = 2000
	defaultTemperature  = 0.1
)

// bedrockBackend runs completions against AWS Bedrock using the
// anthropic messages body shape
type bedrockBackend struct {
	client      *bedrockruntime.Client
	model       string
	maxTokens   int
	temperature float32
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float32            `json:"temperature"`
	System           string             `json:"system"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func newBedrock(cfg config.AIConfig) (Planner, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(regionOrDefault(cfg.Region)))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	backend := &bedrockBackend{
		client:      bedrockruntime.NewFromConfig(awscfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if backend.model == "" {
		backend.model = defaultBedrockModel
	}
	if backend.maxTokens == 0 {
		backend.maxTokens = defaultMaxTokens
	}
	if backend.temperature == 0 {
		backend.temperature = defaultTemperature
	}

	return &adapter{name: "bedrock", backend: backend}, nil
}

func regionOrDefault(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}

func (b *bedrockBackend) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        b.maxTokens,
		Temperature:      b.temperature,
		System:           system,
		Messages:         []anthropicMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("model returned no content")
	}
	return resp.Content[0].Text, nil
}
