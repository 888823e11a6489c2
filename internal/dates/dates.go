// Package dates computes week and month buckets and walks calendar days.
// It is shared by the scheduler (recurrence cadence) and the reports
// (trend buckets and pagination).
package dates

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the size of a time bucket.
type Granularity string

const (
	Week  Granularity = "week"
	Month Granularity = "month"
)

func (g Granularity) Valid() bool {
	return g == Week || g == Month
}

// ParseWeekday accepts English weekday names ("monday", "Sun", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// Midnight truncates t to the start of its calendar day, keeping the location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Range returns the bounds of the bucket holding t: start is the first
// instant of the bucket and end is one second before the next bucket starts.
// Any granularity other than Week is treated as Month.
func Range(t time.Time, g Granularity, weekStart time.Weekday) (start, end time.Time) {
	if g == Week {
		offset := (int(t.Weekday()) - int(weekStart) + 7) % 7
		start = Midnight(t).AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7).Add(-time.Second)
		return start, end
	}
	y, m, _ := t.Date()
	start = time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// DateRange is Range on calendar days: both bounds are midnights and the
// range is inclusive.
func DateRange(t time.Time, g Granularity, weekStart time.Weekday) (start, end time.Time) {
	start, end = Range(t, g, weekStart)
	return start, Midnight(end)
}

// AddMonths adds n months, clamping the day to the end of the target month
// (Jan 31 + 1 month is Feb 28, or Feb 29 on leap years).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// AddWeeks adds n weeks.
func AddWeeks(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// Days lists every calendar day from start to end, both included.
// It returns nil when start is after end.
func Days(start, end time.Time) []time.Time {
	start, end = Midnight(start), Midnight(end)
	if start.After(end) {
		return nil
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Min returns the earliest of a and b.
func Min(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// Max returns the latest of a and b.
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
