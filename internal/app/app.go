// Package app wires configuration into stores, the embedder and the catalog
// services. It is shared by the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/raphaelgruber/pricecat/internal/config"
	"github.com/raphaelgruber/pricecat/internal/db"
	"github.com/raphaelgruber/pricecat/internal/embedding"
	"github.com/raphaelgruber/pricecat/internal/events"
	"github.com/raphaelgruber/pricecat/internal/metrics"
	"github.com/raphaelgruber/pricecat/internal/service"
	"github.com/raphaelgruber/pricecat/internal/vectorstore/memory"
	"github.com/raphaelgruber/pricecat/internal/vectorstore/qdrant"
)

// App holds all dependencies for one process.
type App struct {
	Catalog   service.CatalogStore
	Embedder  embedding.Embedder
	Jobs      *service.JobService
	Search    *service.SearchService
	Vectorize *service.VectorizeService
	Import    *service.ImportService
	Metrics   *metrics.Collector

	cfg    config.Config
	logger *slog.Logger
	db     *db.Client
	qdrant *qdrant.Store
	memory *memory.Store
	nc     *nats.Conn
}

// New connects the configured backends and builds the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		Metrics: metrics.NewCollector(),
	}

	jobStore, err := a.openStores(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:          embedding.ProviderType(cfg.EmbedProvider),
		Model:             cfg.EmbedModel,
		Dimension:         cfg.EmbedDimension,
		OllamaHost:        cfg.OllamaHost,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		RequestsPerSecond: cfg.EmbedRate,
	}, a.Metrics)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Embedder = embedder

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			// Events are optional; the catalog keeps working without them.
			logger.Warn("nats unavailable, job events disabled", "url", cfg.NATSURL, "error", err)
		} else {
			a.nc = nc
			publisher = events.NewNATSPublisher(nc)
		}
	}

	a.Jobs = service.NewJobService(jobStore, publisher, logger)
	a.Search = service.NewSearchService(a.Catalog, embedder, a.Metrics, logger)
	a.Vectorize = service.NewVectorizeService(a.Catalog, embedder, cfg.EmbedTimeout, a.Metrics, logger)
	a.Import = service.NewImportService(a.Catalog, a.Jobs, cfg.CurrentYear, a.Metrics, logger)
	return a, nil
}

// openStores sets a.Catalog and returns the job store for cfg.Store.
// Jobs always live in SurrealDB unless the memory store is selected.
func (a *App) openStores(ctx context.Context) (service.JobStore, error) {
	if a.cfg.Store == config.StoreMemory {
		a.memory = memory.New()
		a.Catalog = a.memory
		return a.memory, nil
	}

	client, err := db.NewClient(ctx, db.Config{
		URL:       a.cfg.SurrealDBURL,
		Namespace: a.cfg.SurrealDBNamespace,
		Database:  a.cfg.SurrealDBDatabase,
		Username:  a.cfg.SurrealDBUser,
		Password:  a.cfg.SurrealDBPass,
		AuthLevel: a.cfg.SurrealDBAuthLevel,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.db = client

	if err := client.InitSchema(ctx, a.cfg.EmbedDimension); err != nil {
		return nil, err
	}

	if a.cfg.Store == config.StoreQdrant {
		store, err := qdrant.New(a.cfg.QdrantAddr, a.cfg.QdrantCollection)
		if err != nil {
			return nil, err
		}
		a.qdrant = store
		if err := store.EnsureCollection(ctx, a.cfg.EmbedDimension); err != nil {
			return nil, err
		}
		a.Catalog = store
	} else {
		a.Catalog = client
	}
	return client, nil
}

// NATS returns the event connection, or nil when events are disabled.
func (a *App) NATS() *nats.Conn {
	return a.nc
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// WipeData deletes all catalog items and jobs. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	if a.memory != nil {
		// Nothing outlives the process.
		return nil
	}
	if err := a.db.WipeData(ctx); err != nil {
		return err
	}
	if a.qdrant != nil {
		if err := a.qdrant.DeleteCollection(ctx); err != nil {
			return err
		}
		return a.qdrant.EnsureCollection(ctx, a.cfg.EmbedDimension)
	}
	return nil
}

// Close releases all connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.qdrant != nil {
		if err := a.qdrant.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
