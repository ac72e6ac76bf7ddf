package models

import (
	"errors"
	"time"
)

// ErrVersionConflict is returned by job stores when a write was based on a
// stale version of the record.
var ErrVersionConflict = errors.New("version conflict")

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobMeta is the extractor's position within the source document.
type JobMeta struct {
	PageNumber     int          `json:"page_number,omitempty" yaml:"page_number,omitempty"`
	TotalPages     int          `json:"total_pages,omitempty" yaml:"total_pages,omitempty"`
	CurrentChapter string       `json:"current_chapter,omitempty" yaml:"current_chapter,omitempty"`
	LastItem       *CatalogItem `json:"last_item,omitempty" yaml:"last_item,omitempty"`
}

// IngestionJob tracks the import of one source document.
type IngestionJob struct {
	ID            string    `json:"id" yaml:"id"`
	Status        JobStatus `json:"status" yaml:"status"`
	Progress      int       `json:"progress" yaml:"progress"`
	FileName      string    `json:"file_name" yaml:"file_name"`
	FileSourceRef string    `json:"file_source_ref,omitempty" yaml:"file_source_ref,omitempty"`
	TotalItems    int       `json:"total_items" yaml:"total_items"`
	CurrentMeta   *JobMeta  `json:"current_meta,omitempty" yaml:"current_meta,omitempty"`
	Logs          []string  `json:"logs" yaml:"logs"`
	Error         *string   `json:"error,omitempty" yaml:"error,omitempty"`
	Version       int       `json:"version" yaml:"version"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy, so transitions never touch a shared snapshot.
func (j IngestionJob) Clone() IngestionJob {
	out := j
	out.Logs = append([]string(nil), j.Logs...)
	if j.CurrentMeta != nil {
		meta := *j.CurrentMeta
		if meta.LastItem != nil {
			item := meta.LastItem.Copy().WithoutEmbedding()
			meta.LastItem = &item
		}
		out.CurrentMeta = &meta
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}
