package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/raphaelgruber/pricecat/internal/events"
	"github.com/raphaelgruber/pricecat/internal/models"
)

// DefaultJobListLimit caps List when no limit is given.
const DefaultJobListLimit = 50

// JobUpdate is one incremental report from the extractor.
type JobUpdate struct {
	// Progress, when set, must not be lower than the stored value.
	// Values above 100 are clamped.
	Progress *int
	// Meta, when set, replaces the current position snapshot.
	Meta *models.JobMeta
	// Logs are appended in order.
	Logs []string
	// ItemsAdded is added to the job's item total.
	ItemsAdded int
}

// JobService owns the ingestion job lifecycle. Reads are plain snapshots;
// every write is a full-record replace guarded by the record version.
type JobService struct {
	store     JobStore
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewJobService creates a job service. publisher may be nil.
func NewJobService(store JobStore, publisher events.Publisher, logger *slog.Logger) *JobService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String()[:8] },
	}
}

// Start creates a job in processing state with progress 0.
func (s *JobService) Start(ctx context.Context, fileName, sourceRef string) (*models.IngestionJob, error) {
	now := s.now()
	job := &models.IngestionJob{
		ID:            s.newID(),
		Status:        models.JobStatusProcessing,
		FileName:      fileName,
		FileSourceRef: sourceRef,
		Logs:          []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: create job: %w", ErrStore, err)
	}

	s.logger.Info("job started", "job_id", job.ID, "file", fileName)
	s.publish(ctx, events.JobStarted, *job)
	return job, nil
}

// Get returns the current snapshot of a job. Polling has no side effects.
func (s *JobService) Get(ctx context.Context, id string) (*models.IngestionJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get job %s: %w", ErrStore, id, err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// List returns recent jobs, most recent first.
func (s *JobService) List(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	if limit <= 0 {
		limit = DefaultJobListLimit
	}
	jobs, err := s.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %w", ErrStore, err)
	}
	return jobs, nil
}

// Advance applies an extractor update to a processing job.
func (s *JobService) Advance(ctx context.Context, id string, u JobUpdate) (*models.IngestionJob, error) {
	return s.mutate(ctx, id, func(job *models.IngestionJob) error {
		return applyUpdate(job, u)
	})
}

// Complete finalizes a job as completed with progress 100.
func (s *JobService) Complete(ctx context.Context, id string) (*models.IngestionJob, error) {
	job, err := s.mutate(ctx, id, func(job *models.IngestionJob) error {
		return finish(job, models.JobStatusCompleted, "")
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("job completed", "job_id", id, "items", job.TotalItems)
	s.publish(ctx, events.JobCompleted, *job)
	return job, nil
}

// Fail finalizes a job as failed with the given reason.
func (s *JobService) Fail(ctx context.Context, id, reason string) (*models.IngestionJob, error) {
	job, err := s.mutate(ctx, id, func(job *models.IngestionJob) error {
		return finish(job, models.JobStatusFailed, reason)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn("job failed", "job_id", id, "reason", reason)
	s.publish(ctx, events.JobFailed, *job)
	return job, nil
}

// Wait polls the job every interval until it is terminal or ctx is done.
// onUpdate, when set, receives every snapshot read.
func (s *JobService) Wait(ctx context.Context, id string, interval time.Duration, onUpdate func(models.IngestionJob)) (*models.IngestionJob, error) {
	return WaitForJob(ctx, s.Get, id, interval, onUpdate)
}

// WaitForJob polls get until the job is terminal or ctx is done. It backs
// JobService.Wait and remote watchers alike.
func WaitForJob(ctx context.Context, get func(context.Context, string) (*models.IngestionJob, error), id string, interval time.Duration, onUpdate func(models.IngestionJob)) (*models.IngestionJob, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := get(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(*job)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// mutate reads the job, applies fn to a copy and writes it back with the
// version it read. Version conflicts are retried with backoff; every other
// error is returned as is.
func (s *JobService) mutate(ctx context.Context, id string, fn func(*models.IngestionJob) error) (*models.IngestionJob, error) {
	var result *models.IngestionJob

	op := func() error {
		current, err := s.store.GetJob(ctx, id)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: get job %s: %w", ErrStore, id, err))
		}
		if current == nil {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrJobNotFound, id))
		}

		next := current.Clone()
		if err := fn(&next); err != nil {
			return backoff.Permanent(err)
		}
		next.UpdatedAt = s.now()

		if err := s.store.SaveJob(ctx, &next); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				s.logger.Debug("job write conflict, retrying", "job_id", id, "version", current.Version)
				return err
			}
			return backoff.Permanent(fmt.Errorf("%w: save job %s: %w", ErrStore, id, err))
		}
		result = &next
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(conflictBackoff(), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func conflictBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 8)
}

func (s *JobService) publish(ctx context.Context, t events.Type, job models.IngestionJob) {
	if err := s.publisher.PublishJob(ctx, events.NewJobEvent(t, job)); err != nil {
		s.logger.Warn("publish job event failed", "job_id", job.ID, "event", t, "error", err)
	}
}

func applyUpdate(job *models.IngestionJob, u JobUpdate) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, job.ID, job.Status)
	}
	if u.ItemsAdded < 0 {
		return fmt.Errorf("items added cannot be negative: %d", u.ItemsAdded)
	}
	if u.Progress != nil {
		p := min(max(*u.Progress, 0), 100)
		if p < job.Progress {
			return fmt.Errorf("%w: %d -> %d", ErrInvalidProgress, job.Progress, p)
		}
		job.Progress = p
	}
	if u.Meta != nil {
		meta := *u.Meta
		if meta.LastItem != nil {
			last := meta.LastItem.WithoutEmbedding()
			meta.LastItem = &last
		}
		job.CurrentMeta = &meta
	}
	job.TotalItems += u.ItemsAdded
	job.Logs = append(job.Logs, u.Logs...)
	return nil
}

func finish(job *models.IngestionJob, status models.JobStatus, reason string) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, job.ID, job.Status)
	}
	job.Status = status
	if status == models.JobStatusCompleted {
		job.Progress = 100
		job.Error = nil
		return nil
	}
	job.Error = &reason
	return nil
}
