package ghstats

import "time"

const dayLayout = "2006-01-02"

// CurrentStreak counts consecutive days with at least one event, walking back from today.
// A day without events yet does not break the streak: when today is empty the count
// starts at yesterday. Days are compared as UTC calendar dates.
func CurrentStreak(events []time.Time, today time.Time) int {
	days := make(map[string]struct{}, len(events))
	for _, at := range events {
		days[at.UTC().Format(dayLayout)] = struct{}{}
	}

	day := today.UTC()
	if _, ok := days[day.Format(dayLayout)]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for {
		if _, ok := days[day.Format(dayLayout)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

// distinctDays returns how many different UTC dates the events fall on.
func distinctDays(events []time.Time) int {
	days := make(map[string]struct{}, len(events))
	for _, at := range events {
		days[at.UTC().Format(dayLayout)] = struct{}{}
	}
	return len(days)
}
