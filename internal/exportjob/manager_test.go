package exportjob_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-export/internal/export"
	"attendance-export/internal/exportjob"
	"attendance-export/internal/queue"
	"attendance-export/internal/testutil"
)

type stubRenderer struct {
	mu    sync.Mutex
	err   error
	count int
	paths []string
}

func (r *stubRenderer) Render(_ context.Context, _, _ string, _, _ *time.Time, outputPath string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	if err := os.WriteFile(outputPath, []byte("artifact"), 0o644); err != nil {
		return 0, err
	}
	r.paths = append(r.paths, outputPath)
	return r.count, nil
}

type failQueue struct{}

func (failQueue) Publish(context.Context, queue.Message) error {
	return errors.New("broker unavailable")
}

func (failQueue) Consume(context.Context) (<-chan queue.Message, error) {
	ch := make(chan queue.Message)
	close(ch)
	return ch, nil
}

func newTestManager(t *testing.T, q queue.Queue, renderer exportjob.ArtifactRenderer) (*exportjob.Manager, *testutil.MemoryJobStore, *testutil.FixedClock) {
	t.Helper()
	store := testutil.NewMemoryJobStore()
	clock := testutil.NewFixedClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	mgr := exportjob.NewManager(store, q, renderer, clock, &testutil.SeqIDs{}, t.TempDir(), 7)
	return mgr, store, clock
}

func TestCreateJobValidation(t *testing.T) {
	mgr, _, _ := newTestManager(t, queue.NewInMemory(4), &stubRenderer{})
	ctx := context.Background()
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	_, err := mgr.CreateJob(ctx, "user-1", "", export.FormatCSV, nil, nil)
	assert.Error(t, err)

	_, err = mgr.CreateJob(ctx, "user-1", "stu-1", "docx", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")

	_, err = mgr.CreateJob(ctx, "user-1", "stu-1", export.FormatCSV, &start, &end)
	assert.Error(t, err)
}

func TestCreateJobPersistsPendingAndPublishes(t *testing.T) {
	q := queue.NewInMemory(4)
	mgr, store, clock := newTestManager(t, q, &stubRenderer{})
	ctx := context.Background()

	job, err := mgr.CreateJob(ctx, "user-1", "stu-1", export.FormatJSON, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "job-1", job.JobID)
	assert.Equal(t, exportjob.StatusPending, job.Status)
	assert.Equal(t, clock.Now().AddDate(0, 0, 7), job.ExpiresAt)

	stored, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, exportjob.StatusPending, stored.Status)

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		assert.Equal(t, exportjob.MessageTypeExport, msg.Type)
		assert.Equal(t, job.JobID, string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestCreateJobPublishFailureMarksFailed(t *testing.T) {
	mgr, _, _ := newTestManager(t, failQueue{}, &stubRenderer{})

	job, err := mgr.CreateJob(context.Background(), "user-1", "stu-1", export.FormatCSV, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, exportjob.StatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "failed to schedule execution")
}

func TestExecuteCompletesJob(t *testing.T) {
	renderer := &stubRenderer{count: 3}
	mgr, _, _ := newTestManager(t, queue.NewInMemory(4), renderer)
	ctx := context.Background()

	job, err := mgr.CreateJob(ctx, "user-1", "stu-1", export.FormatCSV, nil, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Execute(ctx, job.JobID))

	done, err := mgr.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, exportjob.StatusCompleted, done.Status)
	assert.Empty(t, done.ErrorMessage)

	require.NotEmpty(t, done.ArtifactPath)
	assert.Equal(t, "user-1", filepath.Base(filepath.Dir(done.ArtifactPath)))
	assert.Equal(t, "attendance_stu-1_20240310_120000.csv", filepath.Base(done.ArtifactPath))
	assert.FileExists(t, done.ArtifactPath)
}

func TestExecuteAnonymousOwnerDirectory(t *testing.T) {
	mgr, _, _ := newTestManager(t, queue.NewInMemory(4), &stubRenderer{})
	ctx := context.Background()

	job, err := mgr.CreateJob(ctx, "", "stu-1", export.FormatPDF, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Execute(ctx, job.JobID))

	done, err := mgr.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", filepath.Base(filepath.Dir(done.ArtifactPath)))
}

func TestExecuteRenderFailureMarksFailed(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("disk full")}
	mgr, _, _ := newTestManager(t, queue.NewInMemory(4), renderer)
	ctx := context.Background()

	job, err := mgr.CreateJob(ctx, "user-1", "stu-1", export.FormatCSV, nil, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Execute(ctx, job.JobID), "render failures land on the job, not the caller")

	failed, err := mgr.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, exportjob.StatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "disk full")
	assert.Empty(t, failed.ArtifactPath)
}

func TestExecuteIsSingleShot(t *testing.T) {
	mgr, _, _ := newTestManager(t, queue.NewInMemory(4), &stubRenderer{})
	ctx := context.Background()

	job, err := mgr.CreateJob(ctx, "user-1", "stu-1", export.FormatCSV, nil, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Execute(ctx, job.JobID))
	assert.Error(t, mgr.Execute(ctx, job.JobID), "a terminal job must not be re-executed")

	done, err := mgr.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, exportjob.StatusCompleted, done.Status)
}

func TestTrackDownload(t *testing.T) {
	mgr, _, _ := newTestManager(t, queue.NewInMemory(4), &stubRenderer{})
	ctx := context.Background()

	job, err := mgr.CreateJob(ctx, "user-1", "stu-1", export.FormatCSV, nil, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.TrackDownload(ctx, job.JobID))
	require.NoError(t, mgr.TrackDownload(ctx, job.JobID))

	got, err := mgr.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DownloadCount)

	assert.ErrorIs(t, mgr.TrackDownload(ctx, "nope"), exportjob.ErrNotFound)
}

func TestListJobsNewestFirst(t *testing.T) {
	q := queue.NewInMemory(8)
	store := testutil.NewMemoryJobStore()
	clock := testutil.NewFixedClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i, id := range []string{"job-a", "job-b", "job-c"} {
		require.NoError(t, store.Create(ctx, exportjob.Job{
			JobID:       id,
			RequestedBy: "user-1",
			StudentID:   "stu-1",
			Format:      export.FormatCSV,
			Status:      exportjob.StatusPending,
			CreatedAt:   clock.Now().Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Create(ctx, exportjob.Job{
		JobID: "job-other", RequestedBy: "user-2", StudentID: "stu-2",
		Format: export.FormatCSV, Status: exportjob.StatusPending, CreatedAt: clock.Now(),
	}))

	mgr := exportjob.NewManager(store, q, &stubRenderer{}, clock, &testutil.SeqIDs{}, t.TempDir(), 7)
	jobs, err := mgr.ListJobs(ctx, "user-1")
	require.NoError(t, err)

	require.Len(t, jobs, 3)
	assert.Equal(t, "job-c", jobs[0].JobID)
	assert.Equal(t, "job-a", jobs[2].JobID)
}

// ctxSensitiveStore refuses writes once the context is canceled, the way
// a SQL store's ExecContext does.
type ctxSensitiveStore struct {
	*testutil.MemoryJobStore
}

func (s *ctxSensitiveStore) MarkProcessing(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryJobStore.MarkProcessing(ctx, jobID)
}

func (s *ctxSensitiveStore) MarkCompleted(ctx context.Context, jobID, artifactPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryJobStore.MarkCompleted(ctx, jobID, artifactPath)
}

func (s *ctxSensitiveStore) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryJobStore.MarkFailed(ctx, jobID, errorMessage)
}

// cancelingRenderer cancels the run context mid-render, like a worker
// shutting down while a job is in flight.
type cancelingRenderer struct {
	cancel context.CancelFunc
	err    error
}

func (r *cancelingRenderer) Render(ctx context.Context, _, _ string, _, _ *time.Time, outputPath string) (int, error) {
	r.cancel()
	if r.err != nil {
		return 0, r.err
	}
	if err := os.WriteFile(outputPath, []byte("artifact"), 0o644); err != nil {
		return 0, err
	}
	return 1, nil
}

func TestExecuteResolvesJobDespiteShutdown(t *testing.T) {
	cases := []struct {
		name       string
		renderErr  error
		wantStatus exportjob.Status
	}{
		{"render interrupted", context.Canceled, exportjob.StatusFailed},
		{"render finished first", nil, exportjob.StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &ctxSensitiveStore{MemoryJobStore: testutil.NewMemoryJobStore()}
			clock := testutil.NewFixedClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			renderer := &cancelingRenderer{cancel: cancel, err: tc.renderErr}
			mgr := exportjob.NewManager(store, queue.NewInMemory(4), renderer, clock, &testutil.SeqIDs{}, t.TempDir(), 7)

			job, err := mgr.CreateJob(ctx, "user-1", "stu-1", export.FormatCSV, nil, nil)
			require.NoError(t, err)

			require.NoError(t, mgr.Execute(ctx, job.JobID))

			done, err := mgr.GetJob(context.Background(), job.JobID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, done.Status, "job must never stay in processing")
			if tc.renderErr != nil {
				assert.Contains(t, done.ErrorMessage, "context canceled")
			}
		})
	}
}

func TestCleanupExpired(t *testing.T) {
	mgr, store, clock := newTestManager(t, queue.NewInMemory(4), &stubRenderer{})
	ctx := context.Background()

	artifact := filepath.Join(t.TempDir(), "old.csv")
	require.NoError(t, os.WriteFile(artifact, []byte("stale"), 0o644))

	require.NoError(t, store.Create(ctx, exportjob.Job{
		JobID:        "job-old",
		StudentID:    "stu-1",
		Format:       export.FormatCSV,
		Status:       exportjob.StatusCompleted,
		ArtifactPath: artifact,
		ExpiresAt:    clock.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.Create(ctx, exportjob.Job{
		JobID:     "job-fresh",
		StudentID: "stu-1",
		Format:    export.FormatCSV,
		Status:    exportjob.StatusCompleted,
		ExpiresAt: clock.Now().Add(time.Hour),
	}))

	removed, err := mgr.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, artifact)
	_, err = store.Get(ctx, "job-old")
	assert.ErrorIs(t, err, exportjob.ErrNotFound)
	_, err = store.Get(ctx, "job-fresh")
	assert.NoError(t, err)
}

func TestCleanupExpiredMissingArtifactIsFine(t *testing.T) {
	mgr, store, clock := newTestManager(t, queue.NewInMemory(4), &stubRenderer{})
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, exportjob.Job{
		JobID:        "job-old",
		StudentID:    "stu-1",
		Format:       export.FormatCSV,
		Status:       exportjob.StatusCompleted,
		ArtifactPath: filepath.Join(t.TempDir(), "already-gone.csv"),
		ExpiresAt:    clock.Now().Add(-time.Hour),
	}))

	removed, err := mgr.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
