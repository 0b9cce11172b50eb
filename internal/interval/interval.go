package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
// An interval whose End is not after Start is empty and is dropped by every
// operation in this package.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns the interval starting at start and lasting d.
func New(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

func (iv Interval) Empty() bool { return !iv.End.After(iv.Start) }

func (iv Interval) Duration() time.Duration {
	if iv.Empty() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Contains reports whether other lies fully inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Intersect returns the overlap of a and b, or false when they do not overlap.
func Intersect(a, b Interval) (Interval, bool) {
	out := Interval{Start: latest(a.Start, b.Start), End: earliest(a.End, b.End)}
	if out.Empty() {
		return Interval{}, false
	}
	return out, true
}

// Normalize drops empty intervals, sorts by start and merges intervals that
// overlap or touch. The input slice is not modified.
func Normalize(list []Interval) []Interval {
	out := make([]Interval, 0, len(list))
	for _, iv := range list {
		if !iv.Empty() {
			out = append(out, iv)
		}
	}
	if len(out) < 2 {
		return out
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].End.Before(out[j].End)
		}
		return out[i].Start.Before(out[j].Start)
	})

	merged := out[:1]
	for _, iv := range out[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// IntersectAll folds the per-participant lists into the set of instants every
// list covers. No lists means no common time.
func IntersectAll(lists [][]Interval) []Interval {
	if len(lists) == 0 {
		return nil
	}
	acc := Normalize(lists[0])
	for _, l := range lists[1:] {
		if len(acc) == 0 {
			return acc
		}
		acc = intersectSorted(acc, Normalize(l))
	}
	return acc
}

// intersectSorted is a merge sweep over two normalized lists.
func intersectSorted(a, b []Interval) []Interval {
	out := make([]Interval, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if ov, ok := Intersect(a[i], b[j]); ok {
			out = append(out, ov)
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Invert returns window minus the union of busy. busy may be unsorted and
// overlapping, and may extend outside the window.
func Invert(busy []Interval, window Interval) []Interval {
	if window.Empty() {
		return nil
	}
	blocked := Clip(busy, window)

	free := make([]Interval, 0, len(blocked)+1)
	cursor := window.Start
	for _, b := range blocked {
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

// Clip intersects every interval with window and normalizes the result.
func Clip(list []Interval, window Interval) []Interval {
	out := make([]Interval, 0, len(list))
	for _, iv := range list {
		if ov, ok := Intersect(iv, window); ok {
			out = append(out, ov)
		}
	}
	return Normalize(out)
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
