package export

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"attendance-export/internal/attendance"
	"attendance-export/internal/logging"
)

// Supported output formats. The format name doubles as the artifact's
// file extension.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
	FormatJSON = "json"
)

const (
	placeholder = "N/A"
	dateLayout  = "2006-01-02"
	timeLayout  = "15:04:05"
)

// ValidFormat reports whether format names a supported encoding.
func ValidFormat(format string) bool {
	switch format {
	case FormatCSV, FormatXLSX, FormatPDF, FormatJSON:
		return true
	}
	return false
}

// ContentType returns the MIME type served for a format's artifact.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// RecordSource yields the attendance records feeding a render.
type RecordSource interface {
	ListByStudent(ctx context.Context, q attendance.Query) ([]attendance.Record, error)
}

// Renderer turns a student's attendance history into one artifact file.
// It never mutates the record store.
type Renderer struct {
	records RecordSource
	log     *logrus.Entry
}

// NewRenderer creates a renderer over a record source.
func NewRenderer(records RecordSource) *Renderer {
	return &Renderer{records: records, log: logging.Component("renderer")}
}

// Render fetches a student's records and writes exactly one artifact at
// outputPath. An unsupported format is rejected before any query or file
// I/O. Returns the number of data records written.
func (r *Renderer) Render(ctx context.Context, format, studentID string, startDate, endDate *time.Time, outputPath string) (int, error) {
	if !ValidFormat(format) {
		return 0, fmt.Errorf("unsupported export format: %s", format)
	}

	records, err := r.records.ListByStudent(ctx, attendance.Query{
		StudentID: studentID,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch attendance records: %w", err)
	}
	r.log.WithFields(logrus.Fields{"student_id": studentID, "records": len(records), "format": format}).
		Info("rendering export")

	switch format {
	case FormatCSV:
		err = writeCSV(records, outputPath)
	case FormatXLSX:
		err = writeXLSX(records, outputPath)
	case FormatPDF:
		err = writePDF(records, studentID, startDate, endDate, outputPath)
	case FormatJSON:
		err = writeJSON(records, studentID, startDate, endDate, outputPath)
	}
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return placeholder
	}
	return t.Format(dateLayout)
}

func formatCheckIn(t *time.Time) string {
	if t == nil {
		return placeholder
	}
	return t.Format(timeLayout)
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}
