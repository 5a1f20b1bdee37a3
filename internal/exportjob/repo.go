package exportjob

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists export jobs in Postgres. Forward-only status
// transitions are enforced in the UPDATE predicates, so a terminal job
// can never move back to pending or processing.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const jobColumns = `job_id, requested_by, student_id, start_date, end_date, format, status,
	artifact_path, error_message, download_count, expires_at, created_at, updated_at`

// Create persists a new job row.
func (r *Repository) Create(ctx context.Context, job Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO export_jobs (job_id, requested_by, student_id, start_date, end_date, format, status, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, job.JobID, job.RequestedBy, job.StudentID, job.StartDate, job.EndDate, job.Format, string(job.Status), job.ExpiresAt)
	return err
}

// Get returns a job by id, or ErrNotFound.
func (r *Repository) Get(ctx context.Context, jobID string) (Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// ListByOwner returns an owner's jobs, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM export_jobs
		WHERE requested_by = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkProcessing moves a pending job to processing.
func (r *Repository) MarkProcessing(ctx context.Context, jobID string) error {
	return r.transition(ctx, `
		UPDATE export_jobs SET status = 'processing', updated_at = NOW()
		WHERE job_id = $1 AND status = 'pending'
	`, jobID)
}

// MarkCompleted moves a processing job to completed and records its artifact.
func (r *Repository) MarkCompleted(ctx context.Context, jobID, artifactPath string) error {
	return r.transition(ctx, `
		UPDATE export_jobs SET status = 'completed', artifact_path = $2, updated_at = NOW()
		WHERE job_id = $1 AND status = 'processing'
	`, jobID, artifactPath)
}

// MarkFailed moves a non-terminal job to failed and records the error.
func (r *Repository) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	return r.transition(ctx, `
		UPDATE export_jobs SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE job_id = $1 AND status IN ('pending', 'processing')
	`, jobID, errorMessage)
}

// IncrementDownload atomically bumps the download counter.
func (r *Repository) IncrementDownload(ctx context.Context, jobID string) error {
	return r.transition(ctx, `
		UPDATE export_jobs SET download_count = download_count + 1, updated_at = NOW()
		WHERE job_id = $1
	`, jobID)
}

// ListExpired returns all jobs whose expiry has passed, any status.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM export_jobs WHERE expires_at < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Delete removes a job row.
func (r *Repository) Delete(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM export_jobs WHERE job_id = $1`, jobID)
	return err
}

func (r *Repository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var status string
	var start, end sql.NullTime
	if err := row.Scan(&job.JobID, &job.RequestedBy, &job.StudentID, &start, &end, &job.Format,
		&status, &job.ArtifactPath, &job.ErrorMessage, &job.DownloadCount,
		&job.ExpiresAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	if start.Valid {
		t := start.Time
		job.StartDate = &t
	}
	if end.Valid {
		t := end.Time
		job.EndDate = &t
	}
	return job, nil
}
