package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/pricecat/internal/embedding"
	"github.com/raphaelgruber/pricecat/internal/metrics"
	"github.com/raphaelgruber/pricecat/internal/models"
)

// DefaultSearchLimit is used when a search does not specify a limit.
const DefaultSearchLimit = 10

// SearchService answers free-text queries with the nearest catalog items.
type SearchService struct {
	store    CatalogStore
	embedder embedding.Embedder
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(store CatalogStore, embedder embedding.Embedder, mc *metrics.Collector, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		store:    store,
		embedder: embedder,
		metrics:  mc,
		logger:   logger,
	}
}

// Search embeds query and returns up to limit items by similarity.
// A blank query returns an empty list without calling the embedder.
// Embedding and store failures are returned, never hidden behind an
// empty result.
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]models.CatalogItem, error) {
	if strings.TrimSpace(query) == "" {
		return []models.CatalogItem{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if !errors.Is(err, embedding.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", embedding.ErrEmbedding, err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	start := time.Now()
	items, err := s.store.SearchBySimilarity(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrStore, err)
	}
	s.metrics.RecordItems(metrics.OpStoreSearch, time.Since(start), len(items))

	s.logger.Debug("search complete", "query_len", len(query), "limit", limit, "results", len(items))
	return items, nil
}

// Get returns the most recent edition of code, or nil if absent.
func (s *SearchService) Get(ctx context.Context, code string) (*models.CatalogItem, error) {
	item, err := s.store.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %w", ErrStore, code, err)
	}
	return item, nil
}
