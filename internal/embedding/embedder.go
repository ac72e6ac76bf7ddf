// Package embedding turns catalog text into fixed-length vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/pricecat/internal/metrics"
)

// ErrEmbedding is wrapped by every failure of an Embedder: provider
// unavailable, malformed input or a rejected batch.
var ErrEmbedding = errors.New("embedding failed")

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	// Empty text is rejected with ErrEmbedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one vector per text, in input order.
	// An empty input returns an empty result without calling the provider.
	// Failure is whole-call: no partial results are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// Must match the vector index dimension of the store.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API or a compatible server.
	ProviderOpenAI ProviderType = "openai"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	Provider ProviderType

	// Model is the embedding model name (provider-specific).
	// Ollama: "all-minilm:l6-v2" (384-dim), "nomic-embed-text" (768-dim)
	// OpenAI: "text-embedding-3-small" (1536-dim)
	Model string

	// Dimension is the required output dimension.
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// RequestsPerSecond limits provider calls; 0 disables limiting.
	RequestsPerSecond float64
}

// New creates an Embedder based on the provided configuration.
func New(cfg Config, mc *metrics.Collector) (Embedder, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}

	var e Embedder
	var err error
	switch cfg.Provider {
	case ProviderOllama, "":
		e, err = NewOllama(cfg, mc)
	case ProviderOpenAI:
		e, err = NewOpenAI(cfg, mc)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		e = NewRateLimited(e, cfg.RequestsPerSecond, 1)
	}
	return e, nil
}

// wrapErr marks err as an embedding failure unless it already is one.
func wrapErr(op string, err error) error {
	if errors.Is(err, ErrEmbedding) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrEmbedding, op, err)
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
