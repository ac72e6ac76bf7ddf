//go:build integration

package qdrant

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/pricecat/internal/models"
)

var testStore *Store

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:v1.13.4",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor:   wait.ForLog("Qdrant gRPC listening").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start Qdrant container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6334")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testStore, err = New(fmt.Sprintf("%s:%s", host, port.Port()), "catalog_items_test")
	if err != nil {
		log.Fatalf("connect to qdrant: %v", err)
	}

	code := m.Run()

	_ = testStore.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func reset(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_ = testStore.DeleteCollection(ctx)
	require.NoError(t, testStore.EnsureCollection(ctx, 2))
}

func TestSaveMerges(t *testing.T) {
	reset(t)
	ctx := context.Background()

	require.NoError(t, testStore.Save(ctx, models.CatalogItem{Code: "A01", Year: 2024, Description: "Excavation", PriceTotal: models.Price(10)}))
	require.NoError(t, testStore.Save(ctx, models.CatalogItem{Code: "A01", Year: 2024, Embedding: []float32{1, 0}}))

	n, err := testStore.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := testStore.FindByCode(ctx, "A01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Excavation", got.Description)
	assert.Equal(t, models.Price(10.0), got.PriceTotal)
	assert.Equal(t, []float32{1, 0}, got.Embedding)
}

func TestFindAllVisitsEveryPoint(t *testing.T) {
	reset(t)
	ctx := context.Background()

	var items []models.CatalogItem
	for i := range 7 {
		items = append(items, models.CatalogItem{Code: fmt.Sprintf("A%02d", i), Year: 2024})
	}
	require.NoError(t, testStore.SaveBatch(ctx, items))

	seen := map[string]bool{}
	for offset := 0; ; offset += 3 {
		page, err := testStore.FindAll(ctx, 3, offset)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, it := range page {
			assert.False(t, seen[it.Key()], "duplicate %s", it.Key())
			seen[it.Key()] = true
		}
	}
	assert.Len(t, seen, 7)

	// A cold offset is located without walking earlier pages.
	testStore.resetCursors()
	page, err := testStore.FindAll(ctx, 10, 5)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestSearchSkipsUnembedded(t *testing.T) {
	reset(t)
	ctx := context.Background()

	require.NoError(t, testStore.SaveBatch(ctx, []models.CatalogItem{
		{Code: "A01", Year: 2024, Embedding: []float32{1, 0}},
		{Code: "A02", Year: 2024, Embedding: []float32{0, 1}},
		{Code: "A03", Year: 2024},
	}))

	got, err := testStore.SearchBySimilarity(ctx, []float32{1, 0.1}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A01", got[0].Code)
	assert.Equal(t, "A02", got[1].Code)
}
