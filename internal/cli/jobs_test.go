package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/service"
)

// scriptedJobs returns the queued snapshots in order, repeating the last.
type scriptedJobs struct {
	snapshots []models.IngestionJob
	calls     int
}

func (s *scriptedJobs) GetJob(_ context.Context, id string) (*models.IngestionJob, error) {
	if len(s.snapshots) == 0 {
		return nil, service.ErrJobNotFound
	}
	i := min(s.calls, len(s.snapshots)-1)
	s.calls++
	job := s.snapshots[i]
	return &job, nil
}

func (s *scriptedJobs) ListJobs(context.Context, int) ([]models.IngestionJob, error) {
	return s.snapshots, nil
}

func sampleJob() models.IngestionJob {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return models.IngestionJob{
		ID:         "abc12345",
		Status:     models.JobStatusProcessing,
		Progress:   40,
		FileName:   "catalog-2024.pdf",
		TotalItems: 120,
		CurrentMeta: &models.JobMeta{
			PageNumber:     12,
			TotalPages:     30,
			CurrentChapter: "Earthworks",
		},
		Logs:      []string{"page 12 parsed"},
		Version:   3,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}
}

func TestWriteJob_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJob(&buf, sampleJob(), "yaml"))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "abc12345", got["id"])
	assert.Equal(t, "processing", got["status"])
	assert.Equal(t, 40, got["progress"])
	meta, ok := got["current_meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Earthworks", meta["current_chapter"])
}

func TestWriteJob_Formats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJob(&buf, sampleJob(), "json"))
	assert.Contains(t, buf.String(), `"file_name": "catalog-2024.pdf"`)

	buf.Reset()
	require.NoError(t, writeJob(&buf, sampleJob(), "text"))
	assert.Contains(t, buf.String(), "Page: 12/30")
	assert.Contains(t, buf.String(), "page 12 parsed")

	assert.Error(t, writeJob(&buf, sampleJob(), "xml"))
}

func TestPrintJobList(t *testing.T) {
	var buf bytes.Buffer
	printJobList(&buf, nil)
	assert.Equal(t, "No jobs found\n", buf.String())

	buf.Reset()
	printJobList(&buf, []models.IngestionJob{sampleJob()})
	assert.Contains(t, buf.String(), "abc12345")
	assert.Contains(t, buf.String(), "40%")
}

func TestWatchJob(t *testing.T) {
	running := sampleJob()
	done := sampleJob()
	done.Status = models.JobStatusCompleted
	done.Progress = 100

	jobs := &scriptedJobs{snapshots: []models.IngestionJob{running, running, done}}
	var seen []int
	got, err := service.WaitForJob(context.Background(), jobs.GetJob, "abc12345", time.Millisecond, func(j models.IngestionJob) {
		seen = append(seen, j.Progress)
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, []int{40, 40, 100}, seen)
}

func TestWatchJob_NotFound(t *testing.T) {
	_, err := service.WaitForJob(context.Background(), (&scriptedJobs{}).GetJob, "missing", time.Millisecond, nil)
	assert.ErrorIs(t, err, service.ErrJobNotFound)
}

func TestWatchJob_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	jobs := &scriptedJobs{snapshots: []models.IngestionJob{sampleJob()}}
	_, err := service.WaitForJob(ctx, jobs.GetJob, "abc12345", 5*time.Millisecond, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPrintSummary_ListsFailedBatches(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &service.RunSummary{
		Processed: 15, Total: 15, Embedded: 10, FailedBatches: 1,
		Batches: []service.BatchResult{
			{Offset: 0, Size: 5, Embedded: 5},
			{Offset: 5, Size: 5, Err: errors.New("provider unavailable")},
			{Offset: 10, Size: 5, Embedded: 5},
		},
	})
	assert.Contains(t, buf.String(), "Processed 15/15 items, embedded 10")
	assert.Contains(t, buf.String(), "offset 5 failed: provider unavailable")
}
