package planner

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/yairfalse/reitti/config"
)

func init() {
	Register("gemini", newGemini)
}

const defaultGeminiModel = "gemini-2.0-flash"

// geminiBackend runs completions through the Gemini API
type geminiBackend struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
}

func newGemini(cfg config.AIConfig) (Planner, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "GEMINI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini backend requires %s to be set", keyEnv)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	backend := &geminiBackend{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if backend.model == "" {
		backend.model = defaultGeminiModel
	}
	if backend.maxTokens == 0 {
		backend.maxTokens = defaultMaxTokens
	}
	if backend.temperature == 0 {
		backend.temperature = defaultTemperature
	}

	return &adapter{name: "gemini", backend: backend}, nil
}

func (g *geminiBackend) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   int32(g.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned no content")
	}
	return text, nil
}
