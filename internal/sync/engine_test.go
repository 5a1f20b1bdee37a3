package sync_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-export/internal/attendance"
	"attendance-export/internal/sync"
	"attendance-export/internal/testutil"
)

func makeEntries(n int) []sync.Entry {
	entries := make([]sync.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, sync.Entry{
			ID:          sync.FlexString(fmt.Sprintf("ext-%d", i)),
			StudentID:   sync.FlexString(fmt.Sprintf("stu-%d", i%10)),
			StudentName: "Student",
			ClassName:   "Mathematics",
			Date:        "2024-03-04",
			StartTime:   "09:00",
			EndTime:     "10:00",
			Status:      "present",
		})
	}
	return entries
}

func newTestEngine(upstream *testutil.FakeUpstream, batchSize int) (*sync.Engine, *testutil.MemoryRecordStore, *testutil.MemoryStatusStore, *testutil.FixedClock) {
	records := testutil.NewMemoryRecordStore()
	status := testutil.NewMemoryStatusStore()
	clock := testutil.NewFixedClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	engine := sync.NewEngine(upstream, records, status, clock, batchSize)
	return engine, records, status, clock
}

func TestFullSyncUpsertsInBatches(t *testing.T) {
	upstream := &testutil.FakeUpstream{All: makeEntries(1200)}
	engine, records, status, _ := newTestEngine(upstream, 500)

	res, err := engine.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sync.TypeFull, res.SyncType)
	assert.Equal(t, 1200, res.RecordsProcessed)
	assert.Equal(t, []int{500, 500, 200}, records.BatchSizes)

	rows := status.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, sync.TypeFull, rows[0].SyncType)
	assert.True(t, rows[0].Success)
	assert.Equal(t, 1200, rows[0].RecordsProcessed)
	assert.Empty(t, rows[0].ErrorMessage)
}

func TestFullSyncUnchangedRerunProcessesNothing(t *testing.T) {
	upstream := &testutil.FakeUpstream{All: makeEntries(20)}
	engine, records, _, clock := newTestEngine(upstream, 500)
	ctx := context.Background()

	first, err := engine.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, first.RecordsProcessed)

	// Provenance stamps change every run but must not count as data changes.
	clock.Advance(time.Hour)
	second, err := engine.FullSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.RecordsProcessed)

	total, err := records.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
}

func TestFullSyncUpstreamFailure(t *testing.T) {
	upstream := &testutil.FakeUpstream{AllErr: errors.New("connection refused")}
	engine, records, status, _ := newTestEngine(upstream, 500)

	_, err := engine.FullSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full sync failed")
	assert.Contains(t, err.Error(), "connection refused")

	rows := status.Rows()
	require.Len(t, rows, 1, "a failed run still appends its status row")
	assert.False(t, rows[0].Success)
	assert.Contains(t, rows[0].ErrorMessage, "connection refused")
	assert.Zero(t, rows[0].RecordsProcessed)

	total, err := records.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

type failingRecordStore struct {
	*testutil.MemoryRecordStore
	err error
}

func (s *failingRecordStore) UpsertBatch(ctx context.Context, records []attendance.Record) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.MemoryRecordStore.UpsertBatch(ctx, records)
}

func TestFullSyncUpsertFailureRecordsFailureRow(t *testing.T) {
	upstream := &testutil.FakeUpstream{All: makeEntries(5)}
	records := &failingRecordStore{MemoryRecordStore: testutil.NewMemoryRecordStore(), err: errors.New("deadlock detected")}
	status := testutil.NewMemoryStatusStore()
	clock := testutil.NewFixedClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	engine := sync.NewEngine(upstream, records, status, clock, 500)

	_, err := engine.FullSync(context.Background())
	require.Error(t, err)

	rows := status.Rows()
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Success)
	assert.Contains(t, rows[0].ErrorMessage, "deadlock detected")
}

func TestIncrementalSyncFirstRunUsesEpoch(t *testing.T) {
	upstream := &testutil.FakeUpstream{Updated: makeEntries(3)}
	engine, _, _, _ := newTestEngine(upstream, 500)

	res, err := engine.IncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.RecordsProcessed)

	require.Len(t, upstream.SinceParams, 1)
	assert.Equal(t, time.Unix(0, 0).UTC(), upstream.SinceParams[0])
}

func TestIncrementalSyncUsesLastSuccessfulEndTime(t *testing.T) {
	upstream := &testutil.FakeUpstream{}
	engine, _, status, _ := newTestEngine(upstream, 500)
	ctx := context.Background()

	failedEnd := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	okEnd := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, status.Append(ctx, sync.Status{SyncType: sync.TypeFull, EndTime: okEnd, Success: true}))
	require.NoError(t, status.Append(ctx, sync.Status{SyncType: sync.TypeIncremental, EndTime: failedEnd, Success: false}))

	_, err := engine.IncrementalSync(ctx)
	require.NoError(t, err)

	require.Len(t, upstream.SinceParams, 1)
	assert.Equal(t, okEnd, upstream.SinceParams[0], "failed runs never advance the checkpoint")
}

func TestIncrementalSyncEmptyStillRecordsRow(t *testing.T) {
	upstream := &testutil.FakeUpstream{}
	engine, _, status, _ := newTestEngine(upstream, 500)

	res, err := engine.IncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.RecordsProcessed)

	rows := status.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, sync.TypeIncremental, rows[0].SyncType)
	assert.True(t, rows[0].Success)
	assert.Zero(t, rows[0].RecordsProcessed)
}

func TestIncrementalSyncOverwritesWithLatestStatus(t *testing.T) {
	upstream := &testutil.FakeUpstream{Updated: []sync.Entry{{
		ID:        sync.FlexString("7"),
		StudentID: sync.FlexString("stu-7"),
		Date:      "2024-03-04",
		Status:    "late",
	}}}
	engine, records, _, _ := newTestEngine(upstream, 500)
	ctx := context.Background()

	records.Put(attendance.Record{
		ExternalID: "7",
		StudentID:  "stu-7",
		Date:       time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Status:     attendance.StatusPresent,
	})

	res, err := engine.IncrementalSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsProcessed)

	got, ok := records.Get("7")
	require.True(t, ok)
	assert.Equal(t, attendance.StatusLate, got.Status)

	total, err := records.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "same external id must not create a second record")
}

func TestGetSyncStats(t *testing.T) {
	upstream := &testutil.FakeUpstream{All: makeEntries(7)}
	engine, _, _, _ := newTestEngine(upstream, 500)
	ctx := context.Background()

	stats, err := engine.GetSyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "never-synced", stats.SyncStatus)
	assert.Nil(t, stats.LastSuccessfulSync)
	assert.Zero(t, stats.TotalRecords)

	_, err = engine.FullSync(ctx)
	require.NoError(t, err)

	stats, err = engine.GetSyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "active", stats.SyncStatus)
	require.NotNil(t, stats.LastSuccessfulSync)
	assert.Equal(t, sync.TypeFull, stats.LastSuccessfulSync.SyncType)
	assert.Equal(t, 7, stats.LastSuccessfulSync.RecordsProcessed)
	assert.Equal(t, int64(7), stats.TotalRecords)
	require.Len(t, stats.RecentSyncs, 1)
}
