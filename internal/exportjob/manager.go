package exportjob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"attendance-export/internal/export"
	"attendance-export/internal/logging"
	"attendance-export/internal/queue"
)

// MessageTypeExport labels queue messages carrying an export job id.
const MessageTypeExport = "export"

// JobStore is the persistence surface the manager needs.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Job, error)
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID, artifactPath string) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
	IncrementDownload(ctx context.Context, jobID string) error
	ListExpired(ctx context.Context, now time.Time) ([]Job, error)
	Delete(ctx context.Context, jobID string) error
}

// ArtifactRenderer produces one artifact file for a job.
type ArtifactRenderer interface {
	Render(ctx context.Context, format, studentID string, startDate, endDate *time.Time, outputPath string) (int, error)
}

// Manager owns the export job lifecycle: it creates jobs, dispatches them
// to the queue, executes them, and sweeps expired ones. All collaborators
// are injected; there is no process-wide state.
type Manager struct {
	jobs          JobStore
	queue         queue.Queue
	renderer      ArtifactRenderer
	clock         Clock
	ids           IDGenerator
	storageRoot   string
	retentionDays int
	log           *logrus.Entry
}

// NewManager wires a manager from its collaborators.
func NewManager(jobs JobStore, q queue.Queue, renderer ArtifactRenderer, clock Clock, ids IDGenerator, storageRoot string, retentionDays int) *Manager {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Manager{
		jobs:          jobs,
		queue:         q,
		renderer:      renderer,
		clock:         clock,
		ids:           ids,
		storageRoot:   storageRoot,
		retentionDays: retentionDays,
		log:           logging.Component("export-jobs"),
	}
}

// CreateJob validates the request, persists a pending job, schedules
// exactly one asynchronous execution, and returns immediately. The caller
// never blocks on render completion; execution failures are recorded on
// the job, not returned here.
func (m *Manager) CreateJob(ctx context.Context, requestedBy, studentID, format string, startDate, endDate *time.Time) (Job, error) {
	if studentID == "" {
		return Job{}, errors.New("student id required")
	}
	if !export.ValidFormat(format) {
		return Job{}, fmt.Errorf("unsupported export format: %s", format)
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		return Job{}, errors.New("end date must not be before start date")
	}

	job := Job{
		JobID:       m.ids.New(),
		RequestedBy: requestedBy,
		StudentID:   studentID,
		StartDate:   startDate,
		EndDate:     endDate,
		Format:      format,
		Status:      StatusPending,
		ExpiresAt:   m.clock.Now().AddDate(0, 0, m.retentionDays),
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("persist export job: %w", err)
	}

	if err := m.queue.Publish(ctx, queue.Message{Type: MessageTypeExport, Body: []byte(job.JobID)}); err != nil {
		// The job would otherwise dangle in pending forever.
		m.log.WithError(err).WithField("job_id", job.JobID).Error("queue publish failed")
		_ = m.jobs.MarkFailed(ctx, job.JobID, "failed to schedule execution: "+err.Error())
		return m.jobs.Get(ctx, job.JobID)
	}

	m.log.WithFields(logrus.Fields{"job_id": job.JobID, "student_id": studentID, "format": format}).
		Info("export job created")
	return job, nil
}

// Execute runs a single job to a terminal state. Every code path resolves
// to completed or failed; the returned error exists for worker logging
// only and is never surfaced to the job's creator.
func (m *Manager) Execute(ctx context.Context, jobID string) error {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if err := m.jobs.MarkProcessing(ctx, jobID); err != nil {
		// Already picked up or already terminal; nothing to do.
		return fmt.Errorf("job %s not pending: %w", jobID, err)
	}

	outputPath, err := m.resolveArtifactPath(job)
	if err == nil {
		_, err = m.renderer.Render(ctx, job.Format, job.StudentID, job.StartDate, job.EndDate, outputPath)
	}

	// The terminal transition must land even when ctx was canceled
	// mid-render, or a shutdown strands the job in processing with no
	// recovery path on restart.
	terminalCtx := context.WithoutCancel(ctx)
	if err != nil {
		m.log.WithError(err).WithField("job_id", jobID).Error("export job failed")
		if markErr := m.jobs.MarkFailed(terminalCtx, jobID, err.Error()); markErr != nil {
			return fmt.Errorf("mark job %s failed: %w", jobID, markErr)
		}
		return nil
	}

	if err := m.jobs.MarkCompleted(terminalCtx, jobID, outputPath); err != nil {
		return fmt.Errorf("mark job %s completed: %w", jobID, err)
	}
	m.log.WithField("job_id", jobID).Info("export job completed")
	return nil
}

// resolveArtifactPath builds <root>/<owner|anonymous>/attendance_<student>_<ts>.<format>
// and ensures the owner directory exists.
func (m *Manager) resolveArtifactPath(job Job) (string, error) {
	owner := job.RequestedBy
	if owner == "" {
		owner = "anonymous"
	}
	dir := filepath.Join(m.storageRoot, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	timestamp := m.clock.Now().Format("20060102_150405")
	filename := fmt.Sprintf("attendance_%s_%s.%s", job.StudentID, timestamp, job.Format)
	return filepath.Join(dir, filename), nil
}

// GetJob returns a job by id.
func (m *Manager) GetJob(ctx context.Context, jobID string) (Job, error) {
	return m.jobs.Get(ctx, jobID)
}

// ListJobs returns an owner's jobs, newest first.
func (m *Manager) ListJobs(ctx context.Context, ownerID string) ([]Job, error) {
	return m.jobs.ListByOwner(ctx, ownerID)
}

// TrackDownload increments a job's download counter. Callers are expected
// to check status == completed before allowing a download; the counter
// itself does not gate on status.
func (m *Manager) TrackDownload(ctx context.Context, jobID string) error {
	return m.jobs.IncrementDownload(ctx, jobID)
}

// CleanupExpired removes jobs whose expiry has passed along with their
// artifact files. A file that cannot be deleted is logged but never
// aborts the sweep; the job row is removed regardless. Returns the count
// of removed jobs.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := m.jobs.ListExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired jobs: %w", err)
	}

	removed := 0
	for _, job := range expired {
		if job.ArtifactPath != "" {
			if err := os.Remove(job.ArtifactPath); err != nil && !os.IsNotExist(err) {
				m.log.WithError(err).WithField("path", job.ArtifactPath).Error("failed to delete expired artifact")
			}
		}
		if err := m.jobs.Delete(ctx, job.JobID); err != nil {
			m.log.WithError(err).WithField("job_id", job.JobID).Error("failed to delete expired job")
			continue
		}
		removed++
	}
	if removed > 0 {
		m.log.WithField("removed", removed).Info("expired export jobs cleaned up")
	}
	return removed, nil
}
