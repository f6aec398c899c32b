// Package analytics computes the dashboard KPIs from a snapshot of requests.
// Everything here is a pure function of its inputs.
package analytics

import (
	"fmt"
	"strings"
	"time"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	All     Period = "all"
)

// ParsePeriod accepts daily|weekly|monthly|all and the day|week|month
// aliases. An empty value yields def.
func ParsePeriod(raw string, def Period) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return def, nil
	case "day", "daily":
		return Daily, nil
	case "week", "weekly":
		return Weekly, nil
	case "month", "monthly":
		return Monthly, nil
	case "all":
		return All, nil
	}
	return "", fmt.Errorf("invalid period %q (expected daily|weekly|monthly|all)", raw)
}

// Bounds returns the [start, end) range of the period containing now, in UTC.
// Weeks start on Monday. All starts at the Unix epoch and ends at now.
func Bounds(p Period, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case Daily:
		return day, day.AddDate(0, 0, 1)
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case Monthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	return time.Unix(0, 0).UTC(), now
}

// buckets returns the trend series starts: hours for a day, days otherwise.
func buckets(p Period, start, end time.Time) []time.Time {
	var out []time.Time
	switch p {
	case Daily:
		for i := 0; i < 24; i++ {
			out = append(out, start.Add(time.Duration(i)*time.Hour))
		}
	case Weekly, Monthly:
		for t := start; t.Before(end); t = t.AddDate(0, 0, 1) {
			out = append(out, t)
		}
	}
	return out
}

func label(t time.Time, p Period) string {
	if p == Daily {
		return t.Format("15:00")
	}
	return t.Format("2006-01-02")
}
