package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pricecat/internal/events"
	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/service"
	"github.com/raphaelgruber/pricecat/internal/vectorstore/memory"
)

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constEmbedder) Model() string  { return "const" }
func (constEmbedder) Dimension() int { return 2 }

func TestOnJobCompleted_VectorizesCatalog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SaveBatch(ctx, []models.CatalogItem{
		{Code: "A01", Year: 2024, Description: "excavation"},
		{Code: "A02", Year: 2024, Description: "concrete"},
	}))

	s := New(Deps{
		Catalog:   store,
		Jobs:      service.NewJobService(store, nil, logger),
		Vectorize: service.NewVectorizeService(store, constEmbedder{}, time.Second, nil, logger),
	}, logger)

	s.onJobCompleted(ctx, events.JobEvent{Type: events.JobCompleted, JobID: "abc12345"})

	require.Eventually(t, func() bool { return !s.vectorizing.Load() }, 2*time.Second, 5*time.Millisecond)
	stats, err := service.CollectStats(ctx, store, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Embedded)
}

func TestOnJobCompleted_SkipsWhileRunning(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	require.NoError(t, store.Save(context.Background(), models.CatalogItem{Code: "A01", Year: 2024}))

	s := New(Deps{
		Catalog:   store,
		Vectorize: service.NewVectorizeService(store, constEmbedder{}, time.Second, nil, logger),
	}, logger)
	s.vectorizing.Store(true)

	s.onJobCompleted(context.Background(), events.JobEvent{Type: events.JobCompleted, JobID: "abc12345"})

	item, err := store.FindByCode(context.Background(), "A01")
	require.NoError(t, err)
	assert.False(t, item.HasEmbedding())
}
