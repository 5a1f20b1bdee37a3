package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

// Service computes attendance statistics with SQL aggregates over the
// synced record store. Read-only.
type Service struct {
	db *sql.DB
}

// NewService creates a service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Summary is a student's aggregate attendance over a period.
type Summary struct {
	StudentID      string  `json:"studentId"`
	TotalClasses   int     `json:"totalClasses"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	AttendanceRate float64 `json:"attendanceRate"`
}

// TrendPoint is per-period status counts.
type TrendPoint struct {
	Period  string `json:"period"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Late    int    `json:"late"`
	Total   int    `json:"total"`
}

// MissedClass counts absences for one class.
type MissedClass struct {
	ClassName string `json:"className"`
	Absences  int    `json:"absences"`
}

// DayStats is attendance grouped by weekday.
type DayStats struct {
	Day            string  `json:"day"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	Total          int     `json:"total"`
	AttendanceRate float64 `json:"attendanceRate"`
}

// Insights are derived attendance patterns for a student.
type Insights struct {
	MostMissedClasses []MissedClass `json:"mostMissedClasses"`
	AttendanceByDay   []DayStats    `json:"attendanceByDay"`
}

// GetStudentSummary returns per-status counts and the attendance rate
// (present plus late over total) for a student, optionally date-bounded.
func (s *Service) GetStudentSummary(ctx context.Context, studentID, startDate, endDate string) (Summary, error) {
	query := `SELECT status, COUNT(*) FROM attendance_records WHERE student_id = $1`
	args := []any{studentID}
	if startDate != "" {
		args = append(args, startDate)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if endDate != "" {
		args = append(args, endDate)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " GROUP BY status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	summary := Summary{StudentID: studentID}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, err
		}
		switch status {
		case "present":
			summary.Present = count
		case "absent":
			summary.Absent = count
		case "late":
			summary.Late = count
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	summary.TotalClasses = summary.Present + summary.Absent + summary.Late
	summary.AttendanceRate = attendanceRate(summary.Present, summary.Late, summary.TotalClasses)
	return summary, nil
}

// GetAttendanceTrends groups a student's records by day, week, or month
// and returns per-period status counts in chronological order.
func (s *Service) GetAttendanceTrends(ctx context.Context, studentID, startDate, endDate, interval string) ([]TrendPoint, error) {
	var periodExpr string
	switch interval {
	case "day":
		periodExpr = `to_char(date, 'YYYY-MM-DD')`
	case "week":
		periodExpr = `to_char(date, 'IYYY-"W"IW')`
	default:
		periodExpr = `to_char(date, 'YYYY-MM')`
	}

	query := `SELECT ` + periodExpr + ` AS period, status, COUNT(*)
		FROM attendance_records WHERE student_id = $1`
	args := []any{studentID}
	if startDate != "" {
		args = append(args, startDate)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if endDate != "" {
		args = append(args, endDate)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " GROUP BY period, status ORDER BY period ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrendPoint
	index := map[string]int{}
	for rows.Next() {
		var period, status string
		var count int
		if err := rows.Scan(&period, &status, &count); err != nil {
			return nil, err
		}
		i, ok := index[period]
		if !ok {
			points = append(points, TrendPoint{Period: period})
			i = len(points) - 1
			index[period] = i
		}
		switch status {
		case "present":
			points[i].Present = count
		case "absent":
			points[i].Absent = count
		case "late":
			points[i].Late = count
		}
		points[i].Total += count
	}
	return points, rows.Err()
}

// GetAttendanceInsights returns the classes a student misses most and
// attendance broken down by weekday.
func (s *Service) GetAttendanceInsights(ctx context.Context, studentID string) (Insights, error) {
	insights := Insights{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT class_name, COUNT(*) AS absences
		FROM attendance_records
		WHERE student_id = $1 AND status = 'absent'
		GROUP BY class_name
		ORDER BY absences DESC
		LIMIT 5
	`, studentID)
	if err != nil {
		return Insights{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var mc MissedClass
		if err := rows.Scan(&mc.ClassName, &mc.Absences); err != nil {
			return Insights{}, err
		}
		insights.MostMissedClasses = append(insights.MostMissedClasses, mc)
	}
	if err := rows.Err(); err != nil {
		return Insights{}, err
	}

	dayRows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(DOW FROM date)::int AS dow, status, COUNT(*)
		FROM attendance_records
		WHERE student_id = $1
		GROUP BY dow, status
		ORDER BY dow ASC, status ASC
	`, studentID)
	if err != nil {
		return Insights{}, err
	}
	defer dayRows.Close()

	dayNames := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	byDay := map[int]*DayStats{}
	var order []int
	for dayRows.Next() {
		var dow, count int
		var status string
		if err := dayRows.Scan(&dow, &status, &count); err != nil {
			return Insights{}, err
		}
		stats, ok := byDay[dow]
		if !ok {
			stats = &DayStats{Day: dayNames[dow%7]}
			byDay[dow] = stats
			order = append(order, dow)
		}
		switch status {
		case "present":
			stats.Present = count
		case "absent":
			stats.Absent = count
		case "late":
			stats.Late = count
		}
		stats.Total += count
	}
	if err := dayRows.Err(); err != nil {
		return Insights{}, err
	}
	for _, dow := range order {
		stats := byDay[dow]
		stats.AttendanceRate = attendanceRate(stats.Present, stats.Late, stats.Total)
		insights.AttendanceByDay = append(insights.AttendanceByDay, *stats)
	}
	return insights, nil
}

// attendanceRate counts late arrivals as attended, rounded to one
// decimal; 0 when there are no records.
func attendanceRate(present, late, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present+late)/float64(total)*1000) / 10
}
