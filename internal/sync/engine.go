package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"attendance-export/internal/attendance"
	"attendance-export/internal/logging"
)

// SyncSource is the provenance tag stamped on every synced record.
const SyncSource = "main-app"

var syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attendance_sync_runs_total",
	Help: "Sync runs by type and outcome.",
}, []string{"type", "outcome"})

// Clock abstracts time retrieval for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Upstream is the system-of-record the engine pulls from.
type Upstream interface {
	FetchAll(ctx context.Context) ([]Entry, error)
	FetchUpdatedSince(ctx context.Context, since time.Time) ([]Entry, error)
}

// RecordStore receives synced records.
type RecordStore interface {
	UpsertBatch(ctx context.Context, records []attendance.Record) (int, error)
	CountAll(ctx context.Context) (int64, error)
}

// StatusStore is the append-only sync log.
type StatusStore interface {
	Append(ctx context.Context, s Status) error
	LastSuccessful(ctx context.Context) (*Status, error)
	Recent(ctx context.Context, limit int) ([]Status, error)
}

// Result reports one completed sync run.
type Result struct {
	SyncType         string    `json:"syncType"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	RecordsProcessed int       `json:"recordsProcessed"`
}

// Engine pulls attendance data from upstream and merges it into the
// record store via idempotent upserts keyed on external id. It keeps no
// in-process state; full and incremental runs must not execute
// concurrently; serializing invocations is the caller's responsibility.
type Engine struct {
	upstream  Upstream
	records   RecordStore
	status    StatusStore
	clock     Clock
	batchSize int
	log       *logrus.Entry
}

// NewEngine wires an engine from its collaborators.
func NewEngine(upstream Upstream, records RecordStore, status StatusStore, clock Clock, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Engine{
		upstream:  upstream,
		records:   records,
		status:    status,
		clock:     clock,
		batchSize: batchSize,
		log:       logging.Component("sync-engine"),
	}
}

// FullSync pulls the complete upstream dataset and upserts it in fixed
// size batches. One status row is appended whether the run succeeds or
// fails; on failure the error is re-thrown to the caller after the row
// is recorded. No internal retries.
func (e *Engine) FullSync(ctx context.Context) (Result, error) {
	e.log.Info("starting full sync")
	start := e.clock.Now()
	processed := 0

	runErr := func() error {
		entries, err := e.upstream.FetchAll(ctx)
		if err != nil {
			return fmt.Errorf("fetch upstream data: %w", err)
		}
		e.log.WithField("records", len(entries)).Info("received upstream dataset")

		for i := 0; i < len(entries); i += e.batchSize {
			end := i + e.batchSize
			if end > len(entries) {
				end = len(entries)
			}
			n, err := e.upsertEntries(ctx, entries[i:end])
			processed += n
			if err != nil {
				return err
			}
		}
		return nil
	}()

	end := e.clock.Now()
	e.recordStatus(ctx, TypeFull, start, end, processed, runErr)

	if runErr != nil {
		syncRuns.WithLabelValues(TypeFull, "failure").Inc()
		return Result{}, fmt.Errorf("full sync failed: %w", runErr)
	}
	syncRuns.WithLabelValues(TypeFull, "success").Inc()
	e.log.WithField("records_processed", processed).Info("full sync completed")
	return Result{SyncType: TypeFull, StartTime: start, EndTime: end, RecordsProcessed: processed}, nil
}

// IncrementalSync pulls only records updated since the checkpoint: the
// end time of the most recent successful sync of either type, or the
// epoch when none exists. An empty upstream response still records a
// zero-processed status row.
func (e *Engine) IncrementalSync(ctx context.Context) (Result, error) {
	e.log.Info("starting incremental sync")
	start := e.clock.Now()
	processed := 0

	runErr := func() error {
		checkpoint, err := e.checkpoint(ctx)
		if err != nil {
			return fmt.Errorf("resolve sync checkpoint: %w", err)
		}
		e.log.WithField("since", checkpoint.Format(time.RFC3339)).Info("fetching updated records")

		entries, err := e.upstream.FetchUpdatedSince(ctx, checkpoint)
		if err != nil {
			return fmt.Errorf("fetch updated records: %w", err)
		}
		if len(entries) == 0 {
			e.log.Info("no new records to process")
			return nil
		}

		n, err := e.upsertEntries(ctx, entries)
		processed += n
		return err
	}()

	end := e.clock.Now()
	e.recordStatus(ctx, TypeIncremental, start, end, processed, runErr)

	if runErr != nil {
		syncRuns.WithLabelValues(TypeIncremental, "failure").Inc()
		return Result{}, fmt.Errorf("incremental sync failed: %w", runErr)
	}
	syncRuns.WithLabelValues(TypeIncremental, "success").Inc()
	e.log.WithField("records_processed", processed).Info("incremental sync completed")
	return Result{SyncType: TypeIncremental, StartTime: start, EndTime: end, RecordsProcessed: processed}, nil
}

func (e *Engine) checkpoint(ctx context.Context) (time.Time, error) {
	last, err := e.status.LastSuccessful(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if last == nil {
		return time.Unix(0, 0).UTC(), nil
	}
	return last.EndTime, nil
}

func (e *Engine) upsertEntries(ctx context.Context, entries []Entry) (int, error) {
	now := e.clock.Now()
	records := make([]attendance.Record, 0, len(entries))
	for _, entry := range entries {
		rec, err := Transform(entry, now)
		if err != nil {
			return 0, fmt.Errorf("transform record %s: %w", entry.ID, err)
		}
		records = append(records, rec)
	}
	n, err := e.records.UpsertBatch(ctx, records)
	if err != nil {
		return n, fmt.Errorf("upsert batch: %w", err)
	}
	return n, nil
}

// recordStatus appends the run's status row. Append failures are logged
// and swallowed so they never mask the run's own outcome.
func (e *Engine) recordStatus(ctx context.Context, syncType string, start, end time.Time, processed int, runErr error) {
	s := Status{
		SyncType:         syncType,
		StartTime:        start,
		EndTime:          end,
		RecordsProcessed: processed,
		Success:          runErr == nil,
	}
	if runErr != nil {
		s.ErrorMessage = runErr.Error()
	}
	if err := e.status.Append(ctx, s); err != nil {
		e.log.WithError(err).Error("failed to record sync status")
	}
}

// Transform maps an upstream entry to an internal record. It is pure
// except for the two provenance fields, which are stamped from now.
func Transform(entry Entry, now time.Time) (attendance.Record, error) {
	rec := attendance.Record{
		ExternalID:    string(entry.ID),
		StudentID:     string(entry.StudentID),
		StudentName:   entry.StudentName,
		StudentNumber: entry.StudentNumber,
		RegisterID:    string(entry.RegisterID),
		ClassName:     entry.ClassName,
		StartTime:     entry.StartTime,
		EndTime:       entry.EndTime,
		Status:        attendance.Status(entry.Status),
		LastSyncedAt:  now,
		SyncSource:    SyncSource,
	}
	if rec.StudentName == "" {
		rec.StudentName = "Unknown"
	}
	if !rec.Status.Valid() {
		rec.Status = attendance.StatusAbsent
	}

	rec.Date = now
	if entry.Date != "" {
		if t, err := parseUpstreamTime(entry.Date); err == nil {
			rec.Date = t
		}
	}
	if entry.CheckInTime != "" {
		if t, err := parseUpstreamTime(entry.CheckInTime); err == nil {
			rec.CheckInTime = &t
		}
	}

	var err error
	if rec.DeviceInfo, err = normalizeRaw(entry.DeviceInfo); err != nil {
		return attendance.Record{}, fmt.Errorf("device info: %w", err)
	}
	if rec.LocationData, err = normalizeRaw(entry.LocationData); err != nil {
		return attendance.Record{}, fmt.Errorf("location data: %w", err)
	}
	return rec, nil
}

// normalizeRaw handles metadata that may arrive as encoded text or as an
// already-structured value: a JSON string is parsed into its structured
// form, anything else passes through, and absent values stay nil.
func normalizeRaw(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		if !json.Valid([]byte(encoded)) {
			return nil, fmt.Errorf("encoded metadata is not valid JSON")
		}
		return json.RawMessage(encoded), nil
	}
	return raw, nil
}

func parseUpstreamTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", value)
}
