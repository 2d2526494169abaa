// Package embedding turns payload text into fixed-length vectors for the
// similarity tier of the cache. Engines: "hash" (offline feature hashing),
// "ollama" (local server) and "genai" (Google GenAI).
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/pario-ai/glimpse/pkg/config"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the dimensionality of embeddings, or 0 if the
	// engine only learns it from the first response.
	Dimensions() int
	Name() string
}

// NewEngine creates an embedding engine from configuration.
func NewEngine(ctx context.Context, cfg config.EmbeddingConfig, apiKey string) (Engine, error) {
	switch cfg.Provider {
	case "", "hash":
		return NewHashEngine(cfg.Dimensions), nil
	case "ollama":
		return NewOllamaEngine(cfg.OllamaURL, cfg.OllamaModel), nil
	case "genai":
		return NewGenAIEngine(ctx, apiKey, cfg.GenAIModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'hash', 'ollama' or 'genai')", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Zero vectors have similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	if n == 0 {
		return v
	}
	inv := 1 / math.Sqrt(n)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
