package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/pricecat/internal/metrics"
	"github.com/raphaelgruber/pricecat/internal/models"
)

// ImportOptions configures an import run.
type ImportOptions struct {
	FileName  string
	SourceRef string
	// ChunkSize is the number of rows written per SaveBatch call.
	ChunkSize int
}

// ImportService writes extracted rows to the catalog while reporting
// progress on an ingestion job, the way the extractor does.
type ImportService struct {
	store       CatalogStore
	jobs        *JobService
	defaultYear int
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// NewImportService creates an import service. Rows without a year get
// defaultYear.
func NewImportService(store CatalogStore, jobs *JobService, defaultYear int, mc *metrics.Collector, logger *slog.Logger) *ImportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{
		store:       store,
		jobs:        jobs,
		defaultYear: defaultYear,
		metrics:     mc,
		logger:      logger,
	}
}

// Import starts a job, upserts rows chunk by chunk and finalizes the job.
// Invalid rows are skipped and noted in the job log. Once the job exists,
// any failure fails it and is returned together with the latest snapshot.
func (s *ImportService) Import(ctx context.Context, rows []models.CatalogItem, opts ImportOptions) (*models.IngestionJob, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultBatchSize
	}

	job, err := s.jobs.Start(ctx, opts.FileName, opts.SourceRef)
	if err != nil {
		return nil, err
	}

	valid := make([]models.CatalogItem, 0, len(rows))
	var skipped []string
	totalPages := 0
	for i, row := range rows {
		row.Normalize(s.defaultYear)
		if err := row.Validate(); err != nil {
			skipped = append(skipped, fmt.Sprintf("row %d skipped: %v", i+1, err))
			continue
		}
		totalPages = max(totalPages, row.Page)
		valid = append(valid, row)
	}

	if len(skipped) > 0 {
		next, err := s.jobs.Advance(ctx, job.ID, JobUpdate{Logs: skipped})
		if err != nil {
			return s.abort(ctx, job, err)
		}
		job = next
	}

	for start := 0; start < len(valid); start += chunkSize {
		end := min(start+chunkSize, len(valid))
		chunk := valid[start:end]

		t0 := time.Now()
		if err := s.store.SaveBatch(ctx, chunk); err != nil {
			return s.abort(ctx, job, fmt.Errorf("%w: save rows %d-%d: %w", ErrStore, start+1, end, err))
		}
		s.metrics.RecordItems(metrics.OpStoreWrite, time.Since(t0), len(chunk))

		last := chunk[len(chunk)-1]
		progress := end * 100 / len(valid)
		next, err := s.jobs.Advance(ctx, job.ID, JobUpdate{
			Progress: &progress,
			Meta: &models.JobMeta{
				PageNumber:     last.Page,
				TotalPages:     totalPages,
				CurrentChapter: last.Chapter,
				LastItem:       &last,
			},
			Logs:       []string{fmt.Sprintf("saved rows %d-%d of %d", start+1, end, len(valid))},
			ItemsAdded: len(chunk),
		})
		if err != nil {
			return s.abort(ctx, job, err)
		}
		job = next
		s.logger.Debug("import: chunk saved", "job_id", job.ID, "rows", len(chunk), "progress", progress)
	}

	done, err := s.jobs.Complete(ctx, job.ID)
	if err != nil {
		return s.abort(ctx, job, err)
	}
	return done, nil
}

// abort fails the job with cause. The job is failed even when ctx is
// already cancelled. If that write fails too, the last known snapshot is
// returned.
func (s *ImportService) abort(ctx context.Context, job *models.IngestionJob, cause error) (*models.IngestionJob, error) {
	s.logger.Error("import failed", "job_id", job.ID, "error", cause)
	failed, err := s.jobs.Fail(context.WithoutCancel(ctx), job.ID, cause.Error())
	if err != nil {
		s.logger.Error("import: could not fail job", "job_id", job.ID, "error", err)
		return job, cause
	}
	return failed, cause
}
