package attendance

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, external_id, student_id, student_name, student_number, register_id,
	class_name, date, start_time, end_time, status, check_in_time,
	device_info, location_data, last_synced_at, sync_source, created_at, updated_at`

// UpsertBatch writes records keyed on external_id. Rows whose mutable
// fields are unchanged are skipped, so the returned count reflects only
// true inserts and updates. Each upsert is atomic per record; no
// read-then-write from the caller.
func (r *Repository) UpsertBatch(ctx context.Context, records []Record) (int, error) {
	processed := 0
	for _, rec := range records {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO attendance_records (
				external_id, student_id, student_name, student_number, register_id,
				class_name, date, start_time, end_time, status, check_in_time,
				device_info, location_data, last_synced_at, sync_source
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (external_id) DO UPDATE SET
				student_id = EXCLUDED.student_id,
				student_name = EXCLUDED.student_name,
				student_number = EXCLUDED.student_number,
				register_id = EXCLUDED.register_id,
				class_name = EXCLUDED.class_name,
				date = EXCLUDED.date,
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				status = EXCLUDED.status,
				check_in_time = EXCLUDED.check_in_time,
				device_info = EXCLUDED.device_info,
				location_data = EXCLUDED.location_data,
				last_synced_at = EXCLUDED.last_synced_at,
				sync_source = EXCLUDED.sync_source,
				updated_at = NOW()
			WHERE (attendance_records.student_id, attendance_records.student_name,
				attendance_records.student_number, attendance_records.register_id,
				attendance_records.class_name, attendance_records.date,
				attendance_records.start_time, attendance_records.end_time,
				attendance_records.status, attendance_records.check_in_time,
				attendance_records.device_info, attendance_records.location_data)
			IS DISTINCT FROM
				(EXCLUDED.student_id, EXCLUDED.student_name,
				EXCLUDED.student_number, EXCLUDED.register_id,
				EXCLUDED.class_name, EXCLUDED.date,
				EXCLUDED.start_time, EXCLUDED.end_time,
				EXCLUDED.status, EXCLUDED.check_in_time,
				EXCLUDED.device_info, EXCLUDED.location_data)
		`, rec.ExternalID, rec.StudentID, rec.StudentName, rec.StudentNumber, rec.RegisterID,
			rec.ClassName, rec.Date, rec.StartTime, rec.EndTime, string(rec.Status), rec.CheckInTime,
			nullableJSON(rec.DeviceInfo), nullableJSON(rec.LocationData), rec.LastSyncedAt, rec.SyncSource)
		if err != nil {
			return processed, fmt.Errorf("upsert record %s: %w", rec.ExternalID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return processed, err
		}
		processed += int(affected)
	}
	return processed, nil
}

// ListByStudent returns a student's records ordered by date then start time.
// Both date bounds are inclusive when present.
func (r *Repository) ListByStudent(ctx context.Context, q Query) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE student_id = $1`
	args := []any{q.StudentID}
	if q.StartDate != nil {
		args = append(args, *q.StartDate)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if q.EndDate != nil {
		args = append(args, *q.EndDate)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date ASC, start_time ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// GetByExternalID returns a single record, or nil when absent.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE external_id = $1`, externalID)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CountAll returns the total number of synced records.
func (r *Repository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var status string
	var deviceInfo, locationData []byte
	var checkIn sql.NullTime
	var lastSynced sql.NullTime
	if err := row.Scan(&rec.ID, &rec.ExternalID, &rec.StudentID, &rec.StudentName, &rec.StudentNumber,
		&rec.RegisterID, &rec.ClassName, &rec.Date, &rec.StartTime, &rec.EndTime, &status, &checkIn,
		&deviceInfo, &locationData, &lastSynced, &rec.SyncSource, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	if checkIn.Valid {
		t := checkIn.Time
		rec.CheckInTime = &t
	}
	if lastSynced.Valid {
		rec.LastSyncedAt = lastSynced.Time
	}
	rec.DeviceInfo = deviceInfo
	rec.LocationData = locationData
	return rec, nil
}

// nullableJSON maps empty raw JSON to SQL NULL so absent upstream metadata
// stays NULL instead of an empty string that jsonb would reject.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
