package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(code string, year int, emb ...float32) models.CatalogItem {
	return models.CatalogItem{
		Code:        code,
		Year:        year,
		Description: "task " + code,
		PriceTotal:  models.Price(10),
		Embedding:   emb,
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	for range 3 {
		require.NoError(t, s.Save(ctx, item("A01", 2024)))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveMergesFields(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Save(ctx, item("A01", 2024, 1, 0)))
	require.NoError(t, s.Save(ctx, models.CatalogItem{Code: "A01", Year: 2024, Unit: "m2"}))

	got, err := s.FindByCode(ctx, "A01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "task A01", got.Description)
	assert.Equal(t, "m2", got.Unit)
	assert.Equal(t, []float32{1, 0}, got.Embedding)
}

func TestSaveWritesZeroTotal(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Save(ctx, item("A01", 2024)))
	require.NoError(t, s.Save(ctx, models.CatalogItem{Code: "A01", Year: 2024, PriceTotal: models.Price(0)}))

	got, err := s.FindByCode(ctx, "A01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.Price(0), got.PriceTotal)
}

func TestSaveBatchRejectsInvalidAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.SaveBatch(ctx, []models.CatalogItem{item("A01", 2024), {Year: 2024}})
	require.Error(t, err)

	n, _ := s.Count(ctx)
	assert.Zero(t, n)
}

func TestFindByCodeReturnsLatestEdition(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveBatch(ctx, []models.CatalogItem{item("A01", 2022), item("A01", 2024), item("A01", 2023)}))

	got, err := s.FindByCode(ctx, "A01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year)

	missing, err := s.FindByCode(ctx, "ZZZ")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindAllVisitsEveryItemOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	var items []models.CatalogItem
	for i := range 23 {
		items = append(items, item(fmt.Sprintf("C%02d", 22-i), 2024))
	}
	require.NoError(t, s.SaveBatch(ctx, items))

	for _, batch := range []int{1, 5, 7, 23, 50} {
		t.Run(fmt.Sprintf("batch %d", batch), func(t *testing.T) {
			seen := map[string]int{}
			var order []string
			for offset := 0; ; offset += batch {
				page, err := s.FindAll(ctx, batch, offset)
				require.NoError(t, err)
				if len(page) == 0 {
					break
				}
				for _, it := range page {
					seen[it.Key()]++
					order = append(order, it.Key())
				}
			}
			assert.Len(t, seen, 23)
			for key, n := range seen {
				assert.Equal(t, 1, n, key)
			}
			assert.IsIncreasing(t, order)
		})
	}

	page, err := s.FindAll(ctx, 10, 23)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSearchBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveBatch(ctx, []models.CatalogItem{
		item("B", 2024, 1, 0),
		item("A", 2024, 1, 0),
		item("C", 2024, 0, 1),
		item("D", 2024),
	}))

	got, err := s.SearchBySimilarity(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"2024_A", "2024_B", "2024_C"}, keys(got))

	top, err := s.SearchBySimilarity(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024_C"}, keys(top))
}

func TestSearchBySimilarityDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, item("A", 2024, 1, 0)))

	_, err := s.SearchBySimilarity(ctx, []float32{1, 0, 0}, 5)
	require.ErrorIs(t, err, ErrVectorLengthMismatch)
}

func TestCosineDistance(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)

	d, err = CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-9)

	d, err = CosineDistance([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestReturnedItemsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, item("A", 2024, 1, 0)))

	got, _ := s.FindByCode(ctx, "A")
	got.Embedding[0] = 42

	again, _ := s.FindByCode(ctx, "A")
	assert.Equal(t, float32(1), again.Embedding[0])
}

func TestJobVersioning(t *testing.T) {
	ctx := context.Background()
	s := New()

	job := &models.IngestionJob{ID: "j1", Status: models.JobStatusProcessing, CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, job))
	assert.Equal(t, 1, job.Version)
	require.Error(t, s.CreateJob(ctx, job))

	first, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	second, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)

	first.Progress = 10
	require.NoError(t, s.SaveJob(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Progress = 20
	require.ErrorIs(t, s.SaveJob(ctx, second), models.ErrVersionConflict)

	stored, _ := s.GetJob(ctx, "j1")
	assert.Equal(t, 10, stored.Progress)

	missing, err := s.GetJob(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListJobsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		require.NoError(t, s.CreateJob(ctx, &models.IngestionJob{ID: id, CreatedAt: base.Add(offsets[i])}))
	}

	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "mid", jobs[1].ID)
}

func keys(items []models.CatalogItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key()
	}
	return out
}
