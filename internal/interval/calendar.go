package interval

import (
	"fmt"
	"time"
)

// StartOfDay returns local midnight of the calendar day containing t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// NextDay returns local midnight of the calendar day after the one containing t.
// Days are counted on the wall clock, so a DST day is 23 or 25 hours long.
func NextDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, loc)
}

func IsWeekend(t time.Time, loc *time.Location) bool {
	switch t.In(loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

// SplitByDay cuts iv at every local midnight in loc.
func SplitByDay(iv Interval, loc *time.Location) []Interval {
	if iv.Empty() {
		return nil
	}
	var out []Interval
	cursor := iv.Start
	for cursor.Before(iv.End) {
		end := earliest(NextDay(cursor, loc), iv.End)
		out = append(out, Interval{Start: cursor, End: end})
		cursor = end
	}
	return out
}

// ExcludeWeekend splits iv into local days and keeps only the pieces that fall
// on Monday through Friday in loc.
func ExcludeWeekend(iv Interval, loc *time.Location) []Interval {
	var out []Interval
	for _, piece := range SplitByDay(iv, loc) {
		if IsWeekend(piece.Start, loc) {
			continue
		}
		out = append(out, piece)
	}
	return out
}

// ExcludeWeekendAll applies ExcludeWeekend to every interval of a sorted list.
func ExcludeWeekendAll(list []Interval, loc *time.Location) []Interval {
	out := make([]Interval, 0, len(list))
	for _, iv := range list {
		out = append(out, ExcludeWeekend(iv, loc)...)
	}
	return out
}

// TimeOfDay is a wall-clock time such as 07:00.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	if t.Hour < 0 || t.Minute < 0 || t.Minute > 59 || t.Hour > 24 || (t.Hour == 24 && t.Minute != 0) {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return t, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Before reports whether t is earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Hour*60+t.Minute < o.Hour*60+o.Minute
}

// On returns the instant at t on the local calendar day containing day.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	ld := day.In(loc)
	return time.Date(ld.Year(), ld.Month(), ld.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// ClipToBand restricts a single-day interval to [from, to) local time on that
// day. It returns false when nothing of iv falls inside the band.
func ClipToBand(iv Interval, loc *time.Location, from, to TimeOfDay) (Interval, bool) {
	if iv.Empty() {
		return Interval{}, false
	}
	band := Interval{Start: from.On(iv.Start, loc), End: to.On(iv.Start, loc)}
	return Intersect(iv, band)
}
