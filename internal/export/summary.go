package export

import (
	"fmt"

	"attendance-export/internal/attendance"
)

// Summary holds the per-status counts every output format reports.
type Summary struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

// Summarize counts records by status.
func Summarize(records []attendance.Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case attendance.StatusPresent:
			s.Present++
		case attendance.StatusLate:
			s.Late++
		case attendance.StatusAbsent:
			s.Absent++
		}
	}
	return s
}

// Total returns the number of counted records.
func (s Summary) Total() int {
	return s.Present + s.Late + s.Absent
}

// Percent returns count as a percentage of the total, 0 when the total is 0.
func (s Summary) Percent(count int) float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// formatPercent renders a percentage with one decimal, e.g. "66.7%".
func (s Summary) formatPercent(count int) string {
	return fmt.Sprintf("%.1f%%", s.Percent(count))
}
