package attendance

import (
	"encoding/json"
	"time"
)

// Status is the attendance outcome for a single session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}

// Record is a single synced attendance entry. ExternalID is the upstream
// system's identifier and is the dedup key for upserts; the internal id
// is separate and assigned by the store.
type Record struct {
	ID            string          `json:"id"`
	ExternalID    string          `json:"externalId"`
	StudentID     string          `json:"studentId"`
	StudentName   string          `json:"studentName"`
	StudentNumber string          `json:"studentNumber"`
	RegisterID    string          `json:"registerId"`
	ClassName     string          `json:"className"`
	Date          time.Time       `json:"date"`
	StartTime     string          `json:"startTime"`
	EndTime       string          `json:"endTime"`
	Status        Status          `json:"status"`
	CheckInTime   *time.Time      `json:"checkInTime,omitempty"`
	DeviceInfo    json.RawMessage `json:"deviceInfo,omitempty"`
	LocationData  json.RawMessage `json:"locationData,omitempty"`
	LastSyncedAt  time.Time       `json:"lastSyncedAt"`
	SyncSource    string          `json:"syncSource"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Query filters records for a student, optionally bounded by an inclusive
// date window.
type Query struct {
	StudentID string
	StartDate *time.Time
	EndDate   *time.Time
}
