package sync

import (
	"context"
	"time"
)

// LastSync summarizes the most recent successful run.
type LastSync struct {
	SyncType         string    `json:"syncType"`
	Time             time.Time `json:"time"`
	RecordsProcessed int       `json:"recordsProcessed"`
}

// Stats is the operator-facing view of the sync subsystem.
type Stats struct {
	LastSuccessfulSync *LastSync `json:"lastSuccessfulSync"`
	TotalRecords       int64     `json:"totalRecords"`
	SyncStatus         string    `json:"syncStatus"`
	RecentSyncs        []Status  `json:"recentSyncs"`
}

// GetSyncStats reports the last successful sync, the total record count,
// and the last 5 attempts.
func (e *Engine) GetSyncStats(ctx context.Context) (Stats, error) {
	last, err := e.status.LastSuccessful(ctx)
	if err != nil {
		return Stats{}, err
	}
	total, err := e.records.CountAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	recent, err := e.status.Recent(ctx, 5)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalRecords: total,
		SyncStatus:   "never-synced",
		RecentSyncs:  recent,
	}
	if last != nil {
		stats.SyncStatus = "active"
		stats.LastSuccessfulSync = &LastSync{
			SyncType:         last.SyncType,
			Time:             last.EndTime,
			RecordsProcessed: last.RecordsProcessed,
		}
	}
	return stats, nil
}
