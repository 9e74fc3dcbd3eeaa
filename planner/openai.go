package planner

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yairfalse/reitti/config"
)

func init() {
	Register("openai", newOpenAI)
}

const defaultOpenAIModel = "gpt-4o-mini"

// openaiBackend runs completions through the OpenAI chat API
type openaiBackend struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func newOpenAI(cfg config.AIConfig) (Planner, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("openai backend requires %s to be set", keyEnv)
	}

	backend := &openaiBackend{
		client:      openai.NewClient(apiKey),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if backend.model == "" {
		backend.model = defaultOpenAIModel
	}
	if backend.maxTokens == 0 {
		backend.maxTokens = defaultMaxTokens
	}
	if backend.temperature == 0 {
		backend.temperature = defaultTemperature
	}

	return &adapter{name: "openai", backend: backend}, nil
}

func (o *openaiBackend) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               o.model,
		MaxCompletionTokens: o.maxTokens,
		Temperature:         o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
