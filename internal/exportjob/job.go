package exportjob

import (
	"errors"
	"time"
)

// Status is a job's lifecycle state. Transitions only move forward:
// pending -> processing -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("export job not found")

// Job represents one "render this student's attendance into this format"
// request. ArtifactPath is set only once completed; ErrorMessage only
// once failed.
type Job struct {
	JobID         string     `json:"jobId"`
	RequestedBy   string     `json:"requestedBy,omitempty"`
	StudentID     string     `json:"studentId"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	Format        string     `json:"format"`
	Status        Status     `json:"status"`
	ArtifactPath  string     `json:"artifactPath,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	DownloadCount int        `json:"downloadCount"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
