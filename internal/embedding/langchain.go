package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/pricecat/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainEmbedder wraps a langchaingo embedder with dimension validation,
// error classification and timing metrics.
type LangchainEmbedder struct {
	model     embeddings.Embedder
	modelName string
	dimension int
	metrics   *metrics.Collector
}

// NewLangchainEmbedder wraps an existing langchaingo embedder.
func NewLangchainEmbedder(model embeddings.Embedder, modelName string, dimension int, mc *metrics.Collector) *LangchainEmbedder {
	return &LangchainEmbedder{
		model:     model,
		modelName: modelName,
		dimension: dimension,
		metrics:   mc,
	}
}

// NewOllama creates an embedder backed by an Ollama server.
func NewOllama(cfg Config, mc *metrics.Collector) (*LangchainEmbedder, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.OllamaHost != "" {
		opts = append(opts, ollama.WithServerURL(cfg.OllamaHost))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	model, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return NewLangchainEmbedder(model, cfg.Model, cfg.Dimension, mc), nil
}

// NewOpenAI creates an embedder backed by the OpenAI embeddings API.
func NewOpenAI(cfg Config, mc *metrics.Collector) (*LangchainEmbedder, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	model, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}
	return NewLangchainEmbedder(model, cfg.Model, cfg.Dimension, mc), nil
}

// Embed generates an embedding vector for text.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmbedding)
	}

	textLen := len(text)
	slog.Debug("embedding text", "model", e.modelName, "text_len", textLen)

	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	e.metrics.RecordItems(metrics.OpEmbedding, time.Since(start), 1)
	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "text_len", textLen, "duration_ms", elapsedMs(start), "error", err)
		return nil, wrapErr("embed", err)
	}

	if len(vector) != e.dimension {
		return nil, fmt.Errorf("%w: dimension mismatch: got %d, want %d", ErrEmbedding, len(vector), e.dimension)
	}

	slog.Debug("embedding complete", "model", e.modelName, "text_len", textLen, "duration_ms", elapsedMs(start))
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmbedding, i)
		}
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	e.metrics.RecordItems(metrics.OpEmbedding, time.Since(start), len(texts))
	if err != nil {
		slog.Warn("batch embedding failed", "model", e.modelName, "count", len(texts), "duration_ms", elapsedMs(start), "error", err)
		return nil, wrapErr("embed batch", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: count mismatch: got %d, want %d", ErrEmbedding, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d dimension mismatch: got %d, want %d", ErrEmbedding, i, len(v), e.dimension)
		}
	}

	slog.Debug("batch embedding complete", "model", e.modelName, "count", len(texts), "duration_ms", elapsedMs(start))
	return vectors, nil
}

// Model returns the embedding model name.
func (e *LangchainEmbedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *LangchainEmbedder) Dimension() int {
	return e.dimension
}
