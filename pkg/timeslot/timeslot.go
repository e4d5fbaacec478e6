// Package timeslot provides the interval arithmetic shared by timetable and
// session conflict checking. Intervals are half-open [start, end) over an
// arbitrary integer ordinal: minute-of-day for recurring weekly slots,
// epoch milliseconds for one-off sessions.
package timeslot

import (
	"fmt"
	"time"
)

// Interval is a half-open [Start, End) range over a comparable ordinal.
type Interval struct {
	Start int64
	End   int64
}

// Overlaps reports whether two half-open intervals intersect. Touching
// boundaries (a.End == b.Start) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Valid reports whether the interval has positive length.
func (a Interval) Valid() bool {
	return a.Start < a.End
}

// ParseClock converts a strict "HH:MM" string into minutes since midnight.
// All four clock positions must be digits; anything else is rejected.
func ParseClock(value string) (int, error) {
	if len(value) != 5 || value[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", value)
	}
	for _, i := range [4]int{0, 1, 3, 4} {
		if value[i] < '0' || value[i] > '9' {
			return 0, fmt.Errorf("invalid time %q: want HH:MM", value)
		}
	}
	hh := int(value[0]-'0')*10 + int(value[1]-'0')
	mm := int(value[3]-'0')*10 + int(value[4]-'0')
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", value)
	}
	return hh*60 + mm, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ClockInterval builds a minute-of-day interval from two "HH:MM" strings.
// It fails when either time is malformed or start is not before end.
func ClockInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	iv := Interval{Start: int64(s), End: int64(e)}
	if !iv.Valid() {
		return Interval{}, fmt.Errorf("start %s must be before end %s", start, end)
	}
	return iv, nil
}

// SessionInterval builds an epoch-millisecond interval for a one-off
// session anchored at startsAt with the given duration.
func SessionInterval(startsAt time.Time, durationMinutes int) (Interval, error) {
	if durationMinutes <= 0 {
		return Interval{}, fmt.Errorf("duration must be positive, got %d", durationMinutes)
	}
	start := startsAt.UTC()
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return Interval{Start: start.UnixMilli(), End: end.UnixMilli()}, nil
}

// ValidDay reports whether day is an ISO day-of-week (1=Monday .. 7=Sunday).
func ValidDay(day int) bool {
	return day >= 1 && day <= 7
}

var dayNames = [8]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayName returns the English name for an ISO day-of-week, or an empty
// string when the day is out of range.
func DayName(day int) string {
	if !ValidDay(day) {
		return ""
	}
	return dayNames[day]
}

// DateOf truncates a timestamp to its UTC calendar day. Sessions conflict
// only within the same calendar day.
func DateOf(ts time.Time) time.Time {
	t := ts.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
