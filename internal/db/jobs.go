package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobRow is the stored shape of an ingestion job.
type jobRow struct {
	ID            surrealmodels.RecordID `json:"id"`
	Status        string                 `json:"status"`
	Progress      int                    `json:"progress"`
	FileName      string                 `json:"file_name"`
	FileSourceRef *string                `json:"file_source_ref,omitempty"`
	TotalItems    int                    `json:"total_items"`
	CurrentMeta   *models.JobMeta        `json:"current_meta,omitempty"`
	Logs          []string               `json:"logs"`
	Error         *string                `json:"error,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func (r jobRow) toModel() (models.IngestionJob, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.IngestionJob{}, err
	}
	job := models.IngestionJob{
		ID:          id,
		Status:      models.JobStatus(r.Status),
		Progress:    r.Progress,
		FileName:    r.FileName,
		TotalItems:  r.TotalItems,
		CurrentMeta: r.CurrentMeta,
		Logs:        r.Logs,
		Error:       r.Error,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.FileSourceRef != nil {
		job.FileSourceRef = *r.FileSourceRef
	}
	if job.Logs == nil {
		job.Logs = []string{}
	}
	return job, nil
}

// recordIDString extracts the string part of a record id.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// jobContent is the full record written for job at version. Absent optional
// fields are left out so they are stored as NONE.
func jobContent(job *models.IngestionJob, version int) map[string]any {
	logs := job.Logs
	if logs == nil {
		logs = []string{}
	}
	data := map[string]any{
		"status":      string(job.Status),
		"progress":    job.Progress,
		"file_name":   job.FileName,
		"total_items": job.TotalItems,
		"logs":        logs,
		"version":     version,
		"created_at":  job.CreatedAt.UTC(),
		"updated_at":  job.UpdatedAt.UTC(),
	}
	if job.FileSourceRef != "" {
		data["file_source_ref"] = job.FileSourceRef
	}
	if job.CurrentMeta != nil {
		data["current_meta"] = metaContent(*job.CurrentMeta)
	}
	if job.Error != nil {
		data["error"] = *job.Error
	}
	return data
}

func metaContent(meta models.JobMeta) map[string]any {
	out := map[string]any{
		"page_number":     meta.PageNumber,
		"total_pages":     meta.TotalPages,
		"current_chapter": meta.CurrentChapter,
	}
	if meta.LastItem != nil {
		item := meta.LastItem.WithoutEmbedding()
		fields := item.Fields()
		delete(fields, "key")
		out["last_item"] = fields
	}
	return out
}

// CreateJob inserts job at version 1.
func (c *Client) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("ingest_job", $id) CONTENT $data RETURN NONE
	`, map[string]any{
		"id":   job.ID,
		"data": jobContent(job, 1),
	})
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, wrapQueryError(err))
	}
	job.Version = 1
	return nil
}

// GetJob returns the job, or nil if absent.
func (c *Client) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM type::record("ingest_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// SaveJob replaces the job record if the stored version still matches
// job.Version.
func (c *Client) SaveJob(ctx context.Context, job *models.IngestionJob) error {
	next := job.Version + 1
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		UPDATE type::record("ingest_job", $id) CONTENT $data
		WHERE version = $expected
		RETURN AFTER
	`, map[string]any{
		"id":       job.ID,
		"data":     jobContent(job, next),
		"expected": job.Version,
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, wrapQueryError(err))
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		job.Version = next
		return nil
	}

	existing, err := c.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("save job %s: %w", job.ID, ErrNotFound)
	}
	return fmt.Errorf("%w: job %s at version %d, write based on %d", ErrVersionConflict, job.ID, existing.Version, job.Version)
}

// ListJobs returns up to limit jobs, newest first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM ingest_job ORDER BY created_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := []models.IngestionJob{}
	if results == nil || len(*results) == 0 {
		return jobs, nil
	}
	for _, row := range (*results)[0].Result {
		job, err := row.toModel()
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
