package testutil

import (
	"context"
	gosync "sync"
	"time"

	"attendance-export/internal/sync"
)

// MemoryStatusStore is an in-memory append-only sync log.
type MemoryStatusStore struct {
	mu   gosync.Mutex
	rows []sync.Status
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{}
}

func (s *MemoryStatusStore) Append(_ context.Context, row sync.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row.ID = int64(len(s.rows) + 1)
	s.rows = append(s.rows, row)
	return nil
}

func (s *MemoryStatusStore) LastSuccessful(_ context.Context) (*sync.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *sync.Status
	for i := range s.rows {
		row := s.rows[i]
		if !row.Success {
			continue
		}
		if best == nil || row.EndTime.After(best.EndTime) {
			best = &row
		}
	}
	return best, nil
}

func (s *MemoryStatusStore) Recent(_ context.Context, limit int) ([]sync.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 5
	}
	var out []sync.Status
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.rows[i])
	}
	return out, nil
}

// Rows returns a copy of everything appended so far, oldest first.
func (s *MemoryStatusStore) Rows() []sync.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sync.Status, len(s.rows))
	copy(out, s.rows)
	return out
}

// FakeUpstream serves canned entries and records every incremental
// checkpoint it was asked for.
type FakeUpstream struct {
	mtx gosync.Mutex

	All     []sync.Entry
	Updated []sync.Entry

	AllErr     error
	UpdatedErr error

	SinceParams []time.Time
}

func (u *FakeUpstream) FetchAll(_ context.Context) ([]sync.Entry, error) {
	if u.AllErr != nil {
		return nil, u.AllErr
	}
	return u.All, nil
}

func (u *FakeUpstream) FetchUpdatedSince(_ context.Context, since time.Time) ([]sync.Entry, error) {
	u.mtx.Lock()
	u.SinceParams = append(u.SinceParams, since)
	u.mtx.Unlock()
	if u.UpdatedErr != nil {
		return nil, u.UpdatedErr
	}
	return u.Updated, nil
}
