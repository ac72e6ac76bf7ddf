package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/pricecat/internal/embedding"
	"github.com/raphaelgruber/pricecat/internal/metrics"
	"github.com/raphaelgruber/pricecat/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultBatchSize is used when VectorizeOptions.BatchSize is not positive.
const DefaultBatchSize = 20

var tracer = otel.Tracer("github.com/raphaelgruber/pricecat/internal/service")

// VectorizeOptions configures one pipeline run.
type VectorizeOptions struct {
	BatchSize int
	// Force re-embeds items that already have a vector.
	Force bool
}

// BatchResult is the outcome of one page of the traversal.
type BatchResult struct {
	Offset   int   `json:"offset"`
	Size     int   `json:"size"`
	Embedded int   `json:"embedded"`
	Err      error `json:"-"`
}

// OK reports whether the batch was embedded and saved.
func (b BatchResult) OK() bool { return b.Err == nil }

func (b BatchResult) MarshalJSON() ([]byte, error) {
	type plain BatchResult
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(b)}
	if b.Err != nil {
		out.Error = b.Err.Error()
	}
	return json.Marshal(out)
}

func (b *BatchResult) UnmarshalJSON(data []byte) error {
	type plain BatchResult
	var in struct {
		plain
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = BatchResult(in.plain)
	if in.Error != "" {
		b.Err = errors.New(in.Error)
	}
	return nil
}

// RunSummary aggregates a pipeline run. Processed counts traversed rows,
// including rows of failed batches and rows that needed no embedding.
type RunSummary struct {
	Processed     int           `json:"processed"`
	Total         int           `json:"total"`
	Embedded      int           `json:"embedded"`
	FailedBatches int           `json:"failed_batches"`
	Batches       []BatchResult `json:"batches"`
}

func (s *RunSummary) add(b BatchResult) {
	s.Batches = append(s.Batches, b)
	s.Processed += b.Size
	if b.OK() {
		s.Embedded += b.Embedded
	} else {
		s.FailedBatches++
	}
}

// VectorizeService walks the catalog and writes embeddings back to the store.
type VectorizeService struct {
	store        CatalogStore
	embedder     embedding.Embedder
	metrics      *metrics.Collector
	logger       *slog.Logger
	embedTimeout time.Duration
	format       TextFormatter
}

// NewVectorizeService creates a pipeline. embedTimeout bounds each batch's
// embedding call; zero leaves it unbounded.
func NewVectorizeService(store CatalogStore, embedder embedding.Embedder, embedTimeout time.Duration, mc *metrics.Collector, logger *slog.Logger) *VectorizeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorizeService{
		store:        store,
		embedder:     embedder,
		metrics:      mc,
		logger:       logger,
		embedTimeout: embedTimeout,
		format:       EmbeddingText,
	}
}

// SetFormatter replaces the embedding text format.
func (s *VectorizeService) SetFormatter(f TextFormatter) {
	if f != nil {
		s.format = f
	}
}

// Execute runs one traversal of the catalog. The item count is read once at
// the start; rows added during the run may be left for the next run. A
// failing batch is logged and skipped, so the only error returned is a
// failure to count.
func (s *VectorizeService) Execute(ctx context.Context, opts VectorizeOptions) (*RunSummary, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count items: %w", ErrStore, err)
	}

	summary := &RunSummary{Total: total, Batches: []BatchResult{}}
	s.logger.Info("vectorize: starting", "total", total, "batch_size", batchSize, "force", opts.Force)

	for offset := 0; offset < total; {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("vectorize: cancelled", "offset", offset, "error", err)
			break
		}

		page, err := s.scan(ctx, batchSize, offset)
		if err != nil {
			// The page length is unknown; skip a full page.
			summary.add(BatchResult{Offset: offset, Err: err})
			s.metrics.RecordBatch(false)
			s.logger.Error("vectorize: scan failed", "offset", offset, "error", err)
			offset += batchSize
			continue
		}
		if len(page) == 0 {
			break
		}

		result := s.processBatch(ctx, offset, page, opts.Force)
		summary.add(result)
		s.metrics.RecordBatch(result.OK())
		offset += len(page)
	}

	s.logger.Info("vectorize: finished",
		"processed", summary.Processed,
		"total", summary.Total,
		"embedded", summary.Embedded,
		"failed_batches", summary.FailedBatches)
	return summary, nil
}

func (s *VectorizeService) scan(ctx context.Context, limit, offset int) ([]models.CatalogItem, error) {
	start := time.Now()
	page, err := s.store.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: find all at %d: %w", ErrStore, offset, err)
	}
	s.metrics.RecordItems(metrics.OpStoreScan, time.Since(start), len(page))
	return page, nil
}

func (s *VectorizeService) processBatch(ctx context.Context, offset int, page []models.CatalogItem, force bool) BatchResult {
	ctx, span := tracer.Start(ctx, "vectorize.batch")
	defer span.End()
	span.SetAttributes(attribute.Int("offset", offset), attribute.Int("size", len(page)))

	result := BatchResult{Offset: offset, Size: len(page)}

	toEmbed := make([]models.CatalogItem, 0, len(page))
	for _, item := range page {
		if force || !item.HasEmbedding() {
			toEmbed = append(toEmbed, item)
		}
	}
	span.SetAttributes(attribute.Int("to_embed", len(toEmbed)))
	if len(toEmbed) == 0 {
		return result
	}

	texts := make([]string, len(toEmbed))
	for i, item := range toEmbed {
		texts[i] = s.format(item)
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed")
		s.logger.Error("vectorize: batch embedding failed", "offset", offset, "batch", len(toEmbed), "error", err)
		return result
	}

	for i := range toEmbed {
		toEmbed[i].Embedding = vectors[i]
	}

	start := time.Now()
	if err := s.store.SaveBatch(ctx, toEmbed); err != nil {
		result.Err = fmt.Errorf("%w: save batch at %d: %w", ErrStore, offset, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "save")
		s.logger.Error("vectorize: batch save failed", "offset", offset, "batch", len(toEmbed), "error", err)
		return result
	}
	s.metrics.RecordItems(metrics.OpStoreWrite, time.Since(start), len(toEmbed))

	result.Embedded = len(toEmbed)
	s.logger.Debug("vectorize: batch saved", "offset", offset, "embedded", result.Embedded)
	return result
}

func (s *VectorizeService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}

	type embedResult struct {
		vectors [][]float32
		err     error
	}
	done := make(chan embedResult, 1)
	go func() {
		v, err := s.embedder.EmbedBatch(ctx, texts)
		done <- embedResult{v, err}
	}()

	var vectors [][]float32
	select {
	case r := <-done:
		if r.err != nil {
			if !errors.Is(r.err, embedding.ErrEmbedding) {
				return nil, fmt.Errorf("%w: %w", embedding.ErrEmbedding, r.err)
			}
			return nil, r.err
		}
		vectors = r.vectors
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", embedding.ErrEmbedding, ctx.Err())
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", embedding.ErrEmbedding, len(vectors), len(texts))
	}
	return vectors, nil
}
