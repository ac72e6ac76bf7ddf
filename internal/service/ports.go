// Package service provides the catalog use cases: ingestion job tracking,
// vectorization and semantic search.
package service

import (
	"context"
	"errors"

	"github.com/raphaelgruber/pricecat/internal/models"
)

var (
	// ErrStore wraps any failure reported by a CatalogStore or JobStore.
	ErrStore = errors.New("store failure")

	// ErrJobNotFound is returned for job ids the store has never seen.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when mutating a completed or failed job.
	ErrJobTerminal = errors.New("job already finished")

	// ErrInvalidProgress is returned when a progress update would move backwards.
	ErrInvalidProgress = errors.New("progress cannot decrease")
)

// CatalogStore persists catalog items and answers nearest-neighbour queries.
type CatalogStore interface {
	// Save upserts one item by identity key, merging provided fields.
	Save(ctx context.Context, item models.CatalogItem) error

	// SaveBatch upserts items with the same semantics as Save.
	SaveBatch(ctx context.Context, items []models.CatalogItem) error

	// FindByCode returns the most recent edition of code, or nil if absent.
	FindByCode(ctx context.Context, code string) (*models.CatalogItem, error)

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)

	// FindAll returns up to limit items in a stable order starting at offset.
	FindAll(ctx context.Context, limit, offset int) ([]models.CatalogItem, error)

	// SearchBySimilarity returns up to limit embedded items ordered by
	// ascending cosine distance to embedding, ties broken by identity key.
	SearchBySimilarity(ctx context.Context, embedding []float32, limit int) ([]models.CatalogItem, error)
}

// JobStore persists ingestion jobs as versioned records.
type JobStore interface {
	// CreateJob inserts a new job at version 1.
	CreateJob(ctx context.Context, job *models.IngestionJob) error

	// GetJob returns the stored job, or nil if absent.
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)

	// SaveJob replaces the stored record if its version still equals
	// job.Version, then increments job.Version. A stale version returns
	// models.ErrVersionConflict.
	SaveJob(ctx context.Context, job *models.IngestionJob) error

	// ListJobs returns up to limit jobs, most recently created first.
	ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error)
}
