package sync

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Sync types.
const (
	TypeFull        = "full"
	TypeIncremental = "incremental"
)

// Status is one append-only row per sync attempt; rows are never mutated
// after creation. The most recent successful row's EndTime is the
// checkpoint for the next incremental sync.
type Status struct {
	ID               int64     `json:"id"`
	SyncType         string    `json:"syncType"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	RecordsProcessed int       `json:"recordsProcessed"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// StatusRepository persists the sync status log in Postgres.
type StatusRepository struct {
	db *sql.DB
}

// NewStatusRepository creates a repo.
func NewStatusRepository(db *sql.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// Append inserts one status row.
func (r *StatusRepository) Append(ctx context.Context, s Status) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_status (sync_type, start_time, end_time, records_processed, success, error_message)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, s.SyncType, s.StartTime, s.EndTime, s.RecordsProcessed, s.Success, s.ErrorMessage)
	return err
}

// LastSuccessful returns the most recent successful row of either type,
// or nil when no sync has succeeded yet.
func (r *StatusRepository) LastSuccessful(ctx context.Context) (*Status, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, sync_type, start_time, end_time, records_processed, success, error_message, created_at
		FROM sync_status
		WHERE success = TRUE
		ORDER BY end_time DESC
		LIMIT 1
	`)
	s, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Recent returns the latest attempts, newest first.
func (r *StatusRepository) Recent(ctx context.Context, limit int) ([]Status, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sync_type, start_time, end_time, records_processed, success, error_message, created_at
		FROM sync_status
		ORDER BY end_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Status
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (Status, error) {
	var s Status
	err := row.Scan(&s.ID, &s.SyncType, &s.StartTime, &s.EndTime, &s.RecordsProcessed,
		&s.Success, &s.ErrorMessage, &s.CreatedAt)
	return s, err
}
