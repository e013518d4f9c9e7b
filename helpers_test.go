package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{name: "zero", input: 0, expected: "0:00:00"},
		{name: "seconds", input: 42 * time.Second, expected: "0:00:42"},
		{name: "hours and minutes", input: 2*time.Hour + 30*time.Minute, expected: "2:30:00"},
		{name: "over a day", input: 26*time.Hour + 5*time.Second, expected: "26:00:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.input))
		})
	}
}

func TestFormatHours(t *testing.T) {
	assert.Equal(t, "0.00", FormatHours(0))
	assert.Equal(t, "7.00", FormatHours(7))
	assert.Equal(t, "1.33", FormatHours(4.0/3))
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "October 2026", PeriodLabel(time.October, 2026))
}

func TestParseMonth(t *testing.T) {
	m, y, err := ParseMonth(" 2026-09 ")
	require.NoError(t, err)
	assert.Equal(t, time.September, m)
	assert.Equal(t, 2026, y)

	_, _, err = ParseMonth("September")
	assert.Error(t, err)
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf,
		[]string{"User", "Hours"},
		[][]string{{"alice", "7.00"}, {"花子", "12.50"}},
		[]string{"Total", "19.50"},
	)

	expected := "" +
		"User   Hours\n" +
		"alice  7.00\n" +
		"花子   12.50\n" +
		"Total  19.50\n"
	assert.Equal(t, expected, buf.String())
}

func TestPrintTableRaggedRows(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, nil, [][]string{{"Monthly Report for October 2026"}, nil, {"a", "b", "c"}}, nil)

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	assert.Len(t, lines, 3)
	assert.Equal(t, "Monthly Report for October 2026", string(lines[0]))
	assert.Empty(t, lines[1])
}
