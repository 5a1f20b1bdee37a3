package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"attendance-export/internal/attendance"
)

type jsonPeriod struct {
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
}

type jsonRecord struct {
	Date        string  `json:"date"`
	ClassName   string  `json:"className"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
	Status      string  `json:"status"`
	CheckInTime *string `json:"checkInTime"`
}

type jsonExport struct {
	StudentID     string       `json:"studentId"`
	StudentName   string       `json:"studentName"`
	StudentNumber string       `json:"studentNumber"`
	Period        jsonPeriod   `json:"period"`
	TotalRecords  int          `json:"totalRecords"`
	Summary       Summary      `json:"summary"`
	Records       []jsonRecord `json:"records"`
}

// writeJSON renders records as a single structured object. Dates are
// serialized as YYYY-MM-DD and check-in times as RFC 3339 so the output
// is stable and unambiguous.
func writeJSON(records []attendance.Record, studentID string, startDate, endDate *time.Time, outputPath string) error {
	out := jsonExport{
		StudentID:     studentID,
		StudentName:   "Unknown Student",
		StudentNumber: "Unknown",
		TotalRecords:  len(records),
		Summary:       Summarize(records),
		Records:       make([]jsonRecord, 0, len(records)),
	}
	if len(records) > 0 {
		if records[0].StudentName != "" {
			out.StudentName = records[0].StudentName
		}
		if records[0].StudentNumber != "" {
			out.StudentNumber = records[0].StudentNumber
		}
	}
	if startDate != nil {
		s := startDate.Format(dateLayout)
		out.Period.StartDate = &s
	}
	if endDate != nil {
		e := endDate.Format(dateLayout)
		out.Period.EndDate = &e
	}

	for _, rec := range records {
		jr := jsonRecord{
			Date:      rec.Date.Format(dateLayout),
			ClassName: rec.ClassName,
			StartTime: rec.StartTime,
			EndTime:   rec.EndTime,
			Status:    string(rec.Status),
		}
		if rec.CheckInTime != nil {
			c := rec.CheckInTime.Format(time.RFC3339)
			jr.CheckInTime = &c
		}
		out.Records = append(out.Records, jr)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write json artifact: %w", err)
	}
	return nil
}
