package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"attendance-export/internal/exportjob"
)

// MemoryJobStore is an in-memory exportjob store. It enforces the same
// forward-only transitions as the SQL store so lifecycle tests mean
// something.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]exportjob.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]exportjob.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job exportjob.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("duplicate job id %q", job.JobID)
	}
	s.jobs[job.JobID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (exportjob.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return exportjob.Job{}, exportjob.ErrNotFound
	}
	return job, nil
}

func (s *MemoryJobStore) ListByOwner(_ context.Context, ownerID string) ([]exportjob.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []exportjob.Job
	for _, job := range s.jobs {
		if job.RequestedBy == ownerID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryJobStore) MarkProcessing(_ context.Context, jobID string) error {
	return s.transition(jobID, func(job *exportjob.Job) bool {
		if job.Status != exportjob.StatusPending {
			return false
		}
		job.Status = exportjob.StatusProcessing
		return true
	})
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID, artifactPath string) error {
	return s.transition(jobID, func(job *exportjob.Job) bool {
		if job.Status != exportjob.StatusProcessing {
			return false
		}
		job.Status = exportjob.StatusCompleted
		job.ArtifactPath = artifactPath
		return true
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID, errorMessage string) error {
	return s.transition(jobID, func(job *exportjob.Job) bool {
		if job.Status != exportjob.StatusPending && job.Status != exportjob.StatusProcessing {
			return false
		}
		job.Status = exportjob.StatusFailed
		job.ErrorMessage = errorMessage
		return true
	})
}

func (s *MemoryJobStore) IncrementDownload(_ context.Context, jobID string) error {
	return s.transition(jobID, func(job *exportjob.Job) bool {
		job.DownloadCount++
		return true
	})
}

func (s *MemoryJobStore) ListExpired(_ context.Context, now time.Time) ([]exportjob.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []exportjob.Job
	for _, job := range s.jobs {
		if job.ExpiresAt.Before(now) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *MemoryJobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return exportjob.ErrNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryJobStore) transition(jobID string, apply func(*exportjob.Job) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return exportjob.ErrNotFound
	}
	if !apply(&job) {
		return exportjob.ErrNotFound
	}
	s.jobs[jobID] = job
	return nil
}
