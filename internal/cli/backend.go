package cli

import (
	"context"

	"github.com/raphaelgruber/pricecat/internal/app"
	"github.com/raphaelgruber/pricecat/internal/client"
	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/service"
)

// jobReader is the read side of ingestion jobs, local or remote.
type jobReader interface {
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
	ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error)
}

// backend is what read commands need from either the local store or a server.
type backend interface {
	jobReader
	Search(ctx context.Context, query string, limit int) ([]models.CatalogItem, error)
	GetItem(ctx context.Context, code string) (*models.CatalogItem, error)
	Vectorize(ctx context.Context, batchSize int, force bool) (*service.RunSummary, error)
	Stats(ctx context.Context) (service.CatalogStats, error)
}

type localBackend struct {
	app *app.App
}

func (b localBackend) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	return b.app.Jobs.Get(ctx, id)
}

func (b localBackend) ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	return b.app.Jobs.List(ctx, limit)
}

func (b localBackend) Search(ctx context.Context, query string, limit int) ([]models.CatalogItem, error) {
	return b.app.Search.Search(ctx, query, limit)
}

func (b localBackend) GetItem(ctx context.Context, code string) (*models.CatalogItem, error) {
	return b.app.Search.Get(ctx, code)
}

func (b localBackend) Vectorize(ctx context.Context, batchSize int, force bool) (*service.RunSummary, error) {
	return b.app.Vectorize.Execute(ctx, service.VectorizeOptions{BatchSize: batchSize, Force: force})
}

func (b localBackend) Stats(ctx context.Context) (service.CatalogStats, error) {
	return service.CollectStats(ctx, b.app.Catalog, 0)
}

type remoteBackend struct {
	*client.Client
}

func (b remoteBackend) Stats(ctx context.Context) (service.CatalogStats, error) {
	resp, err := b.Client.Stats(ctx)
	if err != nil {
		return service.CatalogStats{}, err
	}
	return resp.Catalog, nil
}
