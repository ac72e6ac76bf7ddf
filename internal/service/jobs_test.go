package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/pricecat/internal/events"
	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/vectorstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (r *recordingPublisher) PublishJob(_ context.Context, ev events.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func progress(p int) *int { return &p }

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewJobService(memory.New(), pub, nil)

	job, err := svc.Start(ctx, "catalogo-2024.pdf", "s3://bucket/catalogo-2024.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Zero(t, job.Progress)
	assert.Len(t, job.ID, 8)

	_, err = svc.Advance(ctx, job.ID, JobUpdate{
		Progress:   progress(40),
		Meta:       &models.JobMeta{PageNumber: 4, TotalPages: 10, CurrentChapter: "Excavaciones", LastItem: &models.CatalogItem{Code: "A01", Embedding: []float32{1}}},
		Logs:       []string{"page 4 done"},
		ItemsAdded: 12,
	})
	require.NoError(t, err)

	snap, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, snap.Progress)
	assert.Equal(t, 12, snap.TotalItems)
	assert.Equal(t, []string{"page 4 done"}, snap.Logs)
	require.NotNil(t, snap.CurrentMeta)
	assert.Equal(t, "A01", snap.CurrentMeta.LastItem.Code)
	assert.Nil(t, snap.CurrentMeta.LastItem.Embedding)

	done, err := svc.Complete(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Nil(t, done.Error)

	assert.Equal(t, []events.Type{events.JobStarted, events.JobCompleted}, pub.types())
}

func TestJobGetUnknown(t *testing.T) {
	svc := NewJobService(memory.New(), nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.Advance(context.Background(), "missing", JobUpdate{})
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobProgressCannotDecrease(t *testing.T) {
	ctx := context.Background()
	svc := NewJobService(memory.New(), nil, nil)
	job, err := svc.Start(ctx, "f.pdf", "")
	require.NoError(t, err)

	_, err = svc.Advance(ctx, job.ID, JobUpdate{Progress: progress(50)})
	require.NoError(t, err)

	_, err = svc.Advance(ctx, job.ID, JobUpdate{Progress: progress(30)})
	require.ErrorIs(t, err, ErrInvalidProgress)

	updated, err := svc.Advance(ctx, job.ID, JobUpdate{Progress: progress(250)})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
}

func TestJobTerminalStability(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewJobService(memory.New(), pub, nil)
	job, err := svc.Start(ctx, "f.pdf", "")
	require.NoError(t, err)

	failed, err := svc.Fail(ctx, job.ID, "page 3 unreadable")
	require.NoError(t, err)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "page 3 unreadable", *failed.Error)

	_, err = svc.Complete(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobTerminal)
	_, err = svc.Fail(ctx, job.ID, "again")
	require.ErrorIs(t, err, ErrJobTerminal)
	_, err = svc.Advance(ctx, job.ID, JobUpdate{Logs: []string{"late"}})
	require.ErrorIs(t, err, ErrJobTerminal)

	for range 3 {
		snap, err := svc.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, snap.Status)
		assert.Equal(t, "page 3 unreadable", *snap.Error)
		assert.Empty(t, snap.Logs)
		assert.True(t, snap.Status.IsTerminal())
	}

	assert.Equal(t, []events.Type{events.JobStarted, events.JobFailed}, pub.types())
}

func TestJobRetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := &conflictingJobStore{Store: memory.New()}
	svc := NewJobService(store, nil, nil)
	job, err := svc.Start(ctx, "f.pdf", "")
	require.NoError(t, err)

	store.conflicts = 2
	updated, err := svc.Advance(ctx, job.ID, JobUpdate{Logs: []string{"one"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, updated.Logs)
	assert.Equal(t, 3, store.saves)
}

func TestJobConcurrentAdvancesKeepEveryLog(t *testing.T) {
	ctx := context.Background()
	svc := NewJobService(memory.New(), nil, nil)
	job, err := svc.Start(ctx, "f.pdf", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Advance(ctx, job.ID, JobUpdate{Logs: []string{"line"}, ItemsAdded: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Logs, 8)
	assert.Equal(t, 8, snap.TotalItems)
}

func TestJobList(t *testing.T) {
	ctx := context.Background()
	svc := NewJobService(memory.New(), nil, nil)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	var ids []string
	for range 3 {
		job, err := svc.Start(ctx, "f.pdf", "")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	jobs, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[2].ID)
}

func TestJobWait(t *testing.T) {
	ctx := context.Background()
	svc := NewJobService(memory.New(), nil, nil)
	job, err := svc.Start(ctx, "f.pdf", "")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = svc.Complete(ctx, job.ID)
	}()

	var seen []models.JobStatus
	final, err := svc.Wait(ctx, job.ID, 5*time.Millisecond, func(j models.IngestionJob) {
		seen = append(seen, j.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, models.JobStatusProcessing, seen[0])
	assert.Equal(t, models.JobStatusCompleted, seen[len(seen)-1])
}

func TestJobWaitHonoursContext(t *testing.T) {
	svc := NewJobService(memory.New(), nil, nil)
	job, err := svc.Start(context.Background(), "f.pdf", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, err := svc.Wait(ctx, job.ID, 5*time.Millisecond, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.JobStatusProcessing, snap.Status)
}
