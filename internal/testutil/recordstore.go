package testutil

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"attendance-export/internal/attendance"
)

// MemoryRecordStore holds attendance records keyed by external id. Its
// upsert counts a record as processed only when it is new or its data
// actually changed, matching the SQL store's change-detecting conflict
// clause. Provenance fields (LastSyncedAt, SyncSource) never count as
// changes on their own.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]attendance.Record

	// BatchSizes records the size of every UpsertBatch call, in order.
	BatchSizes []int
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]attendance.Record)}
}

func (s *MemoryRecordStore) UpsertBatch(_ context.Context, records []attendance.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchSizes = append(s.BatchSizes, len(records))
	changed := 0
	for _, rec := range records {
		prev, ok := s.records[rec.ExternalID]
		if !ok || recordDataChanged(prev, rec) {
			changed++
		}
		s.records[rec.ExternalID] = rec
	}
	return changed, nil
}

func (s *MemoryRecordStore) CountAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records)), nil
}

// ListByStudent returns a student's records ordered by date then start
// time, bounded by the query's inclusive date window.
func (s *MemoryRecordStore) ListByStudent(_ context.Context, q attendance.Query) ([]attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.Record
	for _, rec := range s.records {
		if rec.StudentID != q.StudentID {
			continue
		}
		if q.StartDate != nil && rec.Date.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && rec.Date.After(*q.EndDate) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

// Get returns the stored record for an external id, if any.
func (s *MemoryRecordStore) Get(externalID string) (attendance.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[externalID]
	return rec, ok
}

// Put seeds a record directly, bypassing change detection.
func (s *MemoryRecordStore) Put(rec attendance.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ExternalID] = rec
}

func recordDataChanged(prev, next attendance.Record) bool {
	if prev.StudentID != next.StudentID ||
		prev.StudentName != next.StudentName ||
		prev.StudentNumber != next.StudentNumber ||
		prev.RegisterID != next.RegisterID ||
		prev.ClassName != next.ClassName ||
		!prev.Date.Equal(next.Date) ||
		prev.StartTime != next.StartTime ||
		prev.EndTime != next.EndTime ||
		prev.Status != next.Status {
		return true
	}
	if (prev.CheckInTime == nil) != (next.CheckInTime == nil) {
		return true
	}
	if prev.CheckInTime != nil && !prev.CheckInTime.Equal(*next.CheckInTime) {
		return true
	}
	return !bytes.Equal(prev.DeviceInfo, next.DeviceInfo) ||
		!bytes.Equal(prev.LocationData, next.LocationData)
}
