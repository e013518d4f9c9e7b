package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// PrintTable writes an aligned table. Widths are measured in terminal cells
// so member names with wide characters stay aligned.
func PrintTable(w io.Writer, headers []string, rows [][]string, footers []string) {
	cols := len(headers)
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}

	colWidths := make([]int, cols)
	measure := func(row []string) {
		for i, c := range row {
			if width := runewidth.StringWidth(c); width > colWidths[i] {
				colWidths[i] = width
			}
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}
	measure(footers)

	line := func(row []string) {
		cells := make([]string, cols)
		for i := range cells {
			var c string
			if i < len(row) {
				c = row[i]
			}
			cells[i] = runewidth.FillRight(c, colWidths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}

	if len(headers) > 0 {
		line(headers)
	}
	for _, row := range rows {
		line(row)
	}
	// skipped footer cells print as padding
	if len(footers) > 0 {
		line(footers)
	}
}

func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
}

func FormatHours(h float64) string {
	return fmt.Sprintf("%.2f", h)
}

// PeriodLabel renders a month as "October 2026".
func PeriodLabel(month time.Month, year int) string {
	return fmt.Sprintf("%s %d", month, year)
}

// ParseMonth reads a "2006-01" month flag.
func ParseMonth(s string) (time.Month, int, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return t.Month(), t.Year(), nil
}
