package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/vectorstore/memory"
)

const testDim = 8

// fakeEmbedder maps text to a letter-frequency vector. Calls listed in
// failCalls (1-based) fail; block makes every call wait for ctx.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	texts     [][]string
	failCalls map[int]bool
	block     bool
}

func letterVector(text string) []float32 {
	v := make([]float32, testDim)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[(r-'a')%testDim]++
		}
	}
	v[0] += 0.5
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.texts = append(f.texts, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failCalls[call] {
		return nil, fmt.Errorf("provider unavailable on call %d", call)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return testDim }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) embeddedTexts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, batch := range f.texts {
		n += len(batch)
	}
	return n
}

var errStoreDown = errors.New("store down")

// flakyStore wraps the memory store and fails selected calls.
type flakyStore struct {
	*memory.Store
	mu             sync.Mutex
	saveCalls      int
	failSaveCalls  map[int]bool
	failFindOffset map[int]bool
	failCount      bool
	failSearch     bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New()}
}

// flakyJobStore fails the next failSaves job writes.
type flakyJobStore struct {
	*memory.Store
	mu        sync.Mutex
	failSaves int
}

func (f *flakyJobStore) SaveJob(ctx context.Context, job *models.IngestionJob) error {
	f.mu.Lock()
	fail := f.failSaves > 0
	if fail {
		f.failSaves--
	}
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.Store.SaveJob(ctx, job)
}

func (f *flakyStore) SaveBatch(ctx context.Context, items []models.CatalogItem) error {
	f.mu.Lock()
	f.saveCalls++
	call := f.saveCalls
	f.mu.Unlock()
	if f.failSaveCalls[call] {
		return errStoreDown
	}
	return f.Store.SaveBatch(ctx, items)
}

func (f *flakyStore) FindAll(ctx context.Context, limit, offset int) ([]models.CatalogItem, error) {
	if f.failFindOffset[offset] {
		return nil, errStoreDown
	}
	return f.Store.FindAll(ctx, limit, offset)
}

func (f *flakyStore) Count(ctx context.Context) (int, error) {
	if f.failCount {
		return 0, errStoreDown
	}
	return f.Store.Count(ctx)
}

func (f *flakyStore) SearchBySimilarity(ctx context.Context, emb []float32, limit int) ([]models.CatalogItem, error) {
	if f.failSearch {
		return nil, errStoreDown
	}
	return f.Store.SearchBySimilarity(ctx, emb, limit)
}

// conflictingJobStore returns a version conflict for the first n saves.
type conflictingJobStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (c *conflictingJobStore) SaveJob(ctx context.Context, job *models.IngestionJob) error {
	c.mu.Lock()
	c.saves++
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return fmt.Errorf("%w: simulated", models.ErrVersionConflict)
	}
	c.mu.Unlock()
	return c.Store.SaveJob(ctx, job)
}

func seedItems(n, embedded int) []models.CatalogItem {
	items := make([]models.CatalogItem, n)
	for i := range items {
		items[i] = models.CatalogItem{
			Code:        fmt.Sprintf("C%02d", i),
			Year:        2024,
			Description: fmt.Sprintf("partida numero %d", i),
			Unit:        "m2",
			PriceTotal:  models.Price(float64(10 + i)),
		}
		if i < embedded {
			items[i].Embedding = letterVector(items[i].Description)
		}
	}
	return items
}
