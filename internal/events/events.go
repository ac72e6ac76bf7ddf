// Package events publishes ingestion job lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/raphaelgruber/pricecat/internal/models"
)

// Type is the kind of job event.
type Type string

const (
	JobStarted   Type = "started"
	JobCompleted Type = "completed"
	JobFailed    Type = "failed"
)

// SubjectPrefix is prepended to the event type to form the NATS subject.
const SubjectPrefix = "pricecat.jobs."

// JobEvent is emitted on job creation and on its terminal transition.
type JobEvent struct {
	Type       Type             `json:"type"`
	JobID      string           `json:"job_id"`
	Status     models.JobStatus `json:"status"`
	FileName   string           `json:"file_name"`
	TotalItems int              `json:"total_items"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// Subject returns the subject the event is published on.
func (e JobEvent) Subject() string {
	return SubjectPrefix + string(e.Type)
}

// NewJobEvent builds the event for a job snapshot.
func NewJobEvent(t Type, job models.IngestionJob) JobEvent {
	ev := JobEvent{
		Type:       t,
		JobID:      job.ID,
		Status:     job.Status,
		FileName:   job.FileName,
		TotalItems: job.TotalItems,
		At:         job.UpdatedAt,
	}
	if job.Error != nil {
		ev.Error = *job.Error
	}
	return ev
}

// Publisher delivers job events. Delivery is best effort.
type Publisher interface {
	PublishJob(ctx context.Context, ev JobEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishJob(context.Context, JobEvent) error { return nil }
