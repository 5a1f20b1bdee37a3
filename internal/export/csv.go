package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"attendance-export/internal/attendance"
)

var csvHeader = []string{"Date", "Class", "Start Time", "End Time", "Status", "Check-in Time"}

// writeCSV renders records as tabular text with one header row and one
// row per record. Missing fields render as the placeholder.
func writeCSV(records []attendance.Record, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create csv artifact: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			formatDate(rec.Date),
			orPlaceholder(rec.ClassName),
			orPlaceholder(rec.StartTime),
			orPlaceholder(rec.EndTime),
			orPlaceholder(string(rec.Status)),
			formatCheckIn(rec.CheckInTime),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv artifact: %w", err)
	}
	return nil
}
