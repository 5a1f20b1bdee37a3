package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttendanceRate(t *testing.T) {
	cases := []struct {
		name                 string
		present, late, total int
		want                 float64
	}{
		{"no records", 0, 0, 0, 0},
		{"all present", 10, 0, 10, 100},
		{"late counts as attended", 1, 1, 3, 66.7},
		{"all absent", 0, 0, 4, 0},
		{"rounded to one decimal", 1, 0, 3, 33.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, attendanceRate(tc.present, tc.late, tc.total))
		})
	}
}
