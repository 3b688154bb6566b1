// Package schedule implements the pure time arithmetic behind consultation
// booking: grid alignment, business-hours rules, and conflict detection
// against externally sourced busy intervals. It performs no I/O.
package schedule

import "time"

// Engine-wide scheduling constants. Every bookable slot starts on the grid,
// runs for the default duration, and existing sessions get a one-sided
// cooldown buffer appended before conflict checks.
const (
	GridMinutes            = 15
	DefaultDurationMinutes = 30
	BufferMinutes          = 5
)

// ToEpochMs converts a time to Unix epoch milliseconds.
func ToEpochMs(t time.Time) int64 {
	return t.UnixMilli()
}

// AddMinutes returns t shifted forward by the given number of minutes.
func AddMinutes(t time.Time, minutes int) time.Time {
	return t.Add(time.Duration(minutes) * time.Minute)
}

// RoundUpToGrid rounds an epoch-millisecond instant up to the next grid
// boundary. Instants already on the grid are returned unchanged.
func RoundUpToGrid(ms int64, gridMinutes int) int64 {
	grid := int64(gridMinutes) * 60_000
	rem := ms % grid
	if rem == 0 {
		return ms
	}
	return ms + grid - rem
}

// IsOnGrid reports whether an epoch-millisecond instant falls exactly on a
// grid boundary.
func IsOnGrid(ms int64, gridMinutes int) bool {
	return ms%(int64(gridMinutes)*60_000) == 0
}

// IntervalsOverlap reports whether [aStart, aEnd) and [bStart, bEnd) overlap.
// Intervals that merely touch at a boundary do not overlap.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd int64) bool {
	return aStart < bEnd && bStart < aEnd
}

// Rules describes the single business-hours window the engine operates in.
// The engine is deliberately single-timezone: all slot math happens in one
// named location, not per user.
type Rules struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	Weekdays  map[time.Weekday]bool
}

// DefaultRules returns Monday-Friday 09:00-17:00 in the given location.
func DefaultRules(loc *time.Location) Rules {
	if loc == nil {
		loc = time.UTC
	}
	return Rules{
		Location:  loc,
		StartHour: 9,
		EndHour:   17,
		Weekdays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
	}
}

// IsWithinBusinessHours reports whether t falls on a business weekday inside
// the [StartHour, EndHour) window, evaluated in the rules' location.
func (r Rules) IsWithinBusinessHours(t time.Time) bool {
	local := t.In(r.Location)
	if !r.Weekdays[local.Weekday()] {
		return false
	}
	hour := local.Hour()
	return hour >= r.StartHour && hour < r.EndHour
}
