package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/pricecat/internal/models"
)

func (s *Store) CreateJob(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	job.Version = 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	out := job.Clone()
	return &out, nil
}

func (s *Store) SaveJob(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %s does not exist", job.ID)
	}
	if stored.Version != job.Version {
		return fmt.Errorf("%w: job %s at version %d, write based on %d", models.ErrVersionConflict, job.ID, stored.Version, job.Version)
	}
	job.Version++
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) ListJobs(_ context.Context, limit int) ([]models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.IngestionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	slices.SortFunc(out, func(a, b models.IngestionJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
