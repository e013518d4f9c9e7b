package main

import (
	"sort"
	"time"
)

// Aggregate pairs each user's logins with their logouts and sums the
// session lengths. Logins are taken in time order and each one consumes
// the earliest unused logout strictly after it; a login without such a
// logout adds no hours but still counts as a login. Users with logouts
// only are left out.
func Aggregate(logins, logouts []Event) map[string]UserMonthlyStats {
	in := groupByUser(logins)
	out := groupByUser(logouts)

	stats := make(map[string]UserMonthlyStats, len(in))
	for user, starts := range in {
		ends := out[user]
		used := make([]bool, len(ends))

		var total time.Duration
		for _, start := range starts {
			for j, end := range ends {
				if used[j] || !end.After(start) {
					continue
				}
				used[j] = true
				total += end.Sub(start)
				break
			}
		}

		stats[user] = UserMonthlyStats{
			User:       user,
			TotalHours: total.Hours(),
			LoginCount: len(starts),
		}
	}

	return stats
}

func groupByUser(events []Event) map[string][]time.Time {
	byUser := make(map[string][]time.Time)
	for _, ev := range events {
		byUser[ev.User] = append(byUser[ev.User], ev.Timestamp)
	}
	for _, ts := range byUser {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	}
	return byUser
}
