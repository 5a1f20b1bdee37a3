package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"attendance-export/internal/attendance"
)

const sheetName = "Attendance Records"

// writeXLSX renders records as a single-sheet workbook: bold header row,
// one row per record, then a blank row and a labeled summary block.
func writeXLSX(records []attendance.Record, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	// Fixed widths per field for readability.
	widths := []struct {
		col   string
		width float64
	}{
		{"A", 15}, {"B", 30}, {"C", 12}, {"D", 12}, {"E", 12}, {"F", 18},
	}
	for _, w := range widths {
		if err := f.SetColWidth(sheetName, w.col, w.col, w.width); err != nil {
			return err
		}
	}

	if err := f.SetSheetRow(sheetName, "A1", &[]any{
		"Date", "Class", "Start Time", "End Time", "Status", "Check-in Time",
	}); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "F1", bold); err != nil {
		return err
	}

	row := 2
	for _, rec := range records {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheetName, cell, &[]any{
			formatDate(rec.Date),
			orPlaceholder(rec.ClassName),
			orPlaceholder(rec.StartTime),
			orPlaceholder(rec.EndTime),
			orPlaceholder(string(rec.Status)),
			formatCheckIn(rec.CheckInTime),
		}); err != nil {
			return err
		}
		row++
	}

	// Blank row, then the summary block.
	row++
	summary := Summarize(records)
	summaryRows := []struct {
		label string
		count int
	}{
		{"Present", summary.Present},
		{"Late", summary.Late},
		{"Absent", summary.Absent},
	}
	if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Summary Statistics"); err != nil {
		return err
	}
	row++
	for _, s := range summaryRows {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheetName, cell, &[]any{
			s.label, s.count, summary.formatPercent(s.count),
		}); err != nil {
			return err
		}
		row++
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("write xlsx artifact: %w", err)
	}
	return nil
}
