package export

import (
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"attendance-export/internal/attendance"
)

// pdfLayout tracks the running vertical cursor and fixed column offsets
// while rows are emitted.
type pdfLayout struct {
	left    float64
	offsets [6]float64
	y       float64
	rowH    float64
	breakY  float64
	resetY  float64
}

func newPDFLayout() *pdfLayout {
	l := &pdfLayout{left: 50, y: 150, rowH: 20, breakY: 700, resetY: 50}
	widths := []float64{80, 150, 70, 70, 70, 90}
	x := l.left
	for i, w := range widths {
		l.offsets[i] = x
		x += w
	}
	return l
}

func (l *pdfLayout) headerRow(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	for i, label := range []string{"Date", "Class", "Start", "End", "Status", "Check-in"} {
		pdf.Text(l.offsets[i], l.y, label)
	}
	pdf.SetFont("Helvetica", "", 10)
	l.y += l.rowH
}

// advance starts a new page and re-emits the header row once the cursor
// passes the printable area.
func (l *pdfLayout) advance(pdf *gofpdf.Fpdf) {
	if l.y > l.breakY {
		pdf.AddPage()
		l.y = l.resetY
		l.headerRow(pdf)
	}
}

func statusColor(status attendance.Status) (r, g, b int) {
	switch status {
	case attendance.StatusPresent:
		return 0, 128, 0
	case attendance.StatusLate:
		return 255, 140, 0
	case attendance.StatusAbsent:
		return 200, 0, 0
	}
	return 0, 0, 0
}

// writePDF renders a paginated report: title, student line, optional
// period line, a table that repeats its header on page overflow, status
// values in a distinct color per status, and a trailing summary.
func writePDF(records []attendance.Record, studentID string, startDate, endDate *time.Time, outputPath string) error {
	studentName := "Unknown Student"
	studentNumber := "Unknown"
	if len(records) > 0 {
		if records[0].StudentName != "" {
			studentName = records[0].StudentName
		}
		if records[0].StudentNumber != "" {
			studentNumber = records[0].StudentNumber
		}
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(50, 70, "Attendance Report")
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(50, 100, fmt.Sprintf("Student: %s (%s)", studentName, studentNumber))
	if startDate != nil && endDate != nil {
		pdf.Text(50, 120, fmt.Sprintf("Period: %s to %s", startDate.Format(dateLayout), endDate.Format(dateLayout)))
	}

	l := newPDFLayout()
	l.headerRow(pdf)

	for _, rec := range records {
		l.advance(pdf)
		pdf.Text(l.offsets[0], l.y, formatDate(rec.Date))
		pdf.Text(l.offsets[1], l.y, truncate(pdf, orPlaceholder(rec.ClassName), 140))
		pdf.Text(l.offsets[2], l.y, orPlaceholder(rec.StartTime))
		pdf.Text(l.offsets[3], l.y, orPlaceholder(rec.EndTime))

		r, g, b := statusColor(rec.Status)
		pdf.SetTextColor(r, g, b)
		pdf.Text(l.offsets[4], l.y, orPlaceholder(string(rec.Status)))
		pdf.SetTextColor(0, 0, 0)

		pdf.Text(l.offsets[5], l.y, formatCheckIn(rec.CheckInTime))
		l.y += l.rowH
	}

	// Summary section; give it room on a fresh page if the table ran long.
	l.y += l.rowH
	if l.y > l.breakY-4*l.rowH {
		pdf.AddPage()
		l.y = l.resetY
	}
	summary := Summarize(records)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(l.left, l.y, "Summary")
	pdf.SetFont("Helvetica", "", 12)
	l.y += l.rowH
	pdf.Text(l.left, l.y, fmt.Sprintf("Present: %d (%s)", summary.Present, summary.formatPercent(summary.Present)))
	l.y += l.rowH
	pdf.Text(l.left, l.y, fmt.Sprintf("Late: %d (%s)", summary.Late, summary.formatPercent(summary.Late)))
	l.y += l.rowH
	pdf.Text(l.left, l.y, fmt.Sprintf("Absent: %d (%s)", summary.Absent, summary.formatPercent(summary.Absent)))

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("write pdf artifact: %w", err)
	}
	return nil
}

// truncate shortens s until it fits within width points.
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 1 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
