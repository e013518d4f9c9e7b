package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 19, hour, minute, 0, 0, time.UTC)
}

func events(user string, times ...time.Time) []Event {
	out := make([]Event, len(times))
	for i, ts := range times {
		out[i] = Event{Timestamp: ts, User: user}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		logins   []Event
		logouts  []Event
		expected map[string]UserMonthlyStats
	}{
		{
			name:    "two sessions",
			logins:  events("alice", at(9, 0), at(13, 0)),
			logouts: events("alice", at(12, 0), at(17, 0)),
			expected: map[string]UserMonthlyStats{
				"alice": {User: "alice", TotalHours: 7, LoginCount: 2},
			},
		},
		{
			name:    "login without logout",
			logins:  events("alice", at(9, 0)),
			logouts: nil,
			expected: map[string]UserMonthlyStats{
				"alice": {User: "alice", TotalHours: 0, LoginCount: 1},
			},
		},
		{
			name:    "logout before the first login is unused",
			logins:  events("alice", at(9, 0)),
			logouts: events("alice", at(8, 0), at(10, 30)),
			expected: map[string]UserMonthlyStats{
				"alice": {User: "alice", TotalHours: 1.5, LoginCount: 1},
			},
		},
		{
			name:    "logout at the login instant does not close it",
			logins:  events("alice", at(9, 0)),
			logouts: events("alice", at(9, 0)),
			expected: map[string]UserMonthlyStats{
				"alice": {User: "alice", TotalHours: 0, LoginCount: 1},
			},
		},
		{
			name:    "logouts only",
			logins:  events("alice", at(9, 0)),
			logouts: append(events("alice", at(10, 0)), events("bob", at(11, 0))...),
			expected: map[string]UserMonthlyStats{
				"alice": {User: "alice", TotalHours: 1, LoginCount: 1},
			},
		},
		{
			name:     "no events",
			expected: map[string]UserMonthlyStats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Aggregate(tt.logins, tt.logouts)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAggregateIgnoresInputOrder(t *testing.T) {
	logins := append(events("alice", at(13, 0), at(9, 0)), events("bob", at(10, 0))...)
	logouts := append(events("bob", at(12, 15)), events("alice", at(17, 0), at(12, 0))...)

	result := Aggregate(logins, logouts)

	require.Contains(t, result, "alice")
	require.Contains(t, result, "bob")
	assert.InDelta(t, 7.0, result["alice"].TotalHours, 1e-9)
	assert.Equal(t, 2, result["alice"].LoginCount)
	assert.InDelta(t, 2.25, result["bob"].TotalHours, 1e-9)
	assert.Equal(t, 1, result["bob"].LoginCount)
}

func TestAggregateGreedyPairing(t *testing.T) {
	// 09:00 takes the only logout, so the 10:00 login stays open
	logins := events("alice", at(9, 0), at(10, 0))
	logouts := events("alice", at(11, 0))

	result := Aggregate(logins, logouts)

	assert.InDelta(t, 2.0, result["alice"].TotalHours, 1e-9)
	assert.Equal(t, 2, result["alice"].LoginCount)
}
