package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEngine generates embeddings using Google's GenAI API.
type GenAIEngine struct {
	client *genai.Client
	model  string
}

// NewGenAIEngine creates a GenAI embedding engine with its own client.
func NewGenAIEngine(ctx context.Context, apiKey, model string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}
	return NewGenAIEngineFromClient(client, model), nil
}

// NewGenAIEngineFromClient wraps an existing client.
func NewGenAIEngineFromClient(c *genai.Client, model string) *GenAIEngine {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GenAIEngine{client: c, model: model}
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return res.Embeddings[0].Values, nil
}

func (e *GenAIEngine) Dimensions() int { return 0 }
func (e *GenAIEngine) Name() string    { return "genai:" + e.model }
