// Package memory is an in-process catalog and job store using brute-force
// cosine search. It backs tests and the "memory" store setting.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/raphaelgruber/pricecat/internal/models"
)

// ErrVectorLengthMismatch is returned when a query vector and a stored
// vector differ in length.
var ErrVectorLengthMismatch = errors.New("vector length mismatch")

// Store holds catalog items ordered by identity key, plus ingestion jobs.
type Store struct {
	mu    sync.RWMutex
	items map[string]models.CatalogItem
	keys  []string // sorted

	jobs map[string]models.IngestionJob
}

func New() *Store {
	return &Store{
		items: make(map[string]models.CatalogItem),
		jobs:  make(map[string]models.IngestionJob),
	}
}

// Save upserts one item.
func (s *Store) Save(ctx context.Context, item models.CatalogItem) error {
	return s.SaveBatch(ctx, []models.CatalogItem{item})
}

// SaveBatch upserts all items under one lock; nothing is written if any
// item is invalid.
func (s *Store) SaveBatch(_ context.Context, items []models.CatalogItem) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		key := item.Key()
		existing, ok := s.items[key]
		if !ok {
			i := sort.SearchStrings(s.keys, key)
			s.keys = slices.Insert(s.keys, i, key)
		}
		s.items[key] = models.Merge(existing, item)
	}
	return nil
}

// FindByCode returns the item with the highest year for code.
func (s *Store) FindByCode(_ context.Context, code string) (*models.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.CatalogItem
	for _, item := range s.items {
		if item.Code != code {
			continue
		}
		if found == nil || item.Year > found.Year {
			c := copyItem(item)
			found = &c
		}
	}
	return found, nil
}

func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// FindAll pages through items in identity key order.
func (s *Store) FindAll(_ context.Context, limit, offset int) ([]models.CatalogItem, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid page: limit=%d offset=%d", limit, offset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= len(s.keys) {
		return []models.CatalogItem{}, nil
	}
	end := min(offset+limit, len(s.keys))
	out := make([]models.CatalogItem, 0, end-offset)
	for _, key := range s.keys[offset:end] {
		out = append(out, copyItem(s.items[key]))
	}
	return out, nil
}

// SearchBySimilarity ranks embedded items by cosine distance.
func (s *Store) SearchBySimilarity(_ context.Context, embedding []float32, limit int) ([]models.CatalogItem, error) {
	if limit <= 0 {
		return []models.CatalogItem{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		key      string
		distance float64
	}
	hits := make([]scored, 0, len(s.items))
	for _, key := range s.keys {
		item := s.items[key]
		if !item.HasEmbedding() {
			continue
		}
		d, err := CosineDistance(embedding, item.Embedding)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", key, err)
		}
		hits = append(hits, scored{key: key, distance: d})
	}

	slices.SortStableFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]models.CatalogItem, len(hits))
	for i, h := range hits {
		out[i] = copyItem(s.items[h.key])
	}
	return out, nil
}

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1
// from everything.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrVectorLengthMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

func copyItem(item models.CatalogItem) models.CatalogItem {
	return item.Copy()
}
