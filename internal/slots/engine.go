package slots

import (
	"time"

	"meeting-scheduler/internal/interval"
)

// Pass names the search stage that produced a slot.
type Pass string

const (
	PassNearTerm Pass = "near_term"
	PassMidTerm  Pass = "mid_term"
	PassSameDay  Pass = "same_day"
)

// Policy holds the business-hours rules applied to a chosen slot.
type Policy struct {
	Location *time.Location
	DayStart interval.TimeOfDay
	DayEnd   interval.TimeOfDay
	// NearTerm bounds the late-biased first pass, measured from now.
	NearTerm time.Duration
	// Granularity snaps candidate starts inside their free interval when the
	// snapped start still leaves room for the meeting.
	Granularity time.Duration
}

const DefaultLocation = "Europe/Rome"

// DefaultPolicy is 07:00-20:00 Europe/Rome, a three day near-term pass and
// five minute starts.
func DefaultPolicy() Policy {
	loc, err := time.LoadLocation(DefaultLocation)
	if err != nil {
		loc = time.UTC
	}
	return Policy{
		Location:    loc,
		DayStart:    interval.TimeOfDay{Hour: 7},
		DayEnd:      interval.TimeOfDay{Hour: 20},
		NearTerm:    72 * time.Hour,
		Granularity: 5 * time.Minute,
	}
}

type Request struct {
	// Free holds one list per participant.
	Free     [][]interval.Interval
	Duration time.Duration
	Now      time.Time
	// Deadline is the latest instant the meeting may end.
	Deadline time.Time
}

type Choice struct {
	Slot interval.Interval
	Pass Pass
}

type Engine struct {
	p Policy
}

func NewEngine(p Policy) *Engine {
	if p.Location == nil {
		p.Location = time.UTC
	}
	return &Engine{p: p}
}

func (e *Engine) Policy() Policy { return e.p }

// Select picks the single meeting slot every participant can attend, or
// reports false when none exists. Passes run in order and the first match
// wins: latest start in [tomorrow, min(now+near, deadline)], then earliest in
// [min(now+near, deadline), deadline], then latest in [now, tomorrow).
func (e *Engine) Select(req Request) (Choice, bool) {
	if req.Duration <= 0 || !req.Deadline.After(req.Now) {
		return Choice{}, false
	}
	pieces := e.bookable(req)
	if len(pieces) == 0 {
		return Choice{}, false
	}

	tomorrow := interval.NextDay(req.Now, e.p.Location)
	nearEnd := req.Now.Add(e.p.NearTerm)
	if nearEnd.After(req.Deadline) {
		nearEnd = req.Deadline
	}

	passes := []struct {
		pass   Pass
		window interval.Interval
		latest bool
	}{
		{PassNearTerm, interval.Interval{Start: tomorrow, End: nearEnd}, true},
		{PassMidTerm, interval.Interval{Start: nearEnd, End: req.Deadline}, false},
		{PassSameDay, interval.Interval{Start: req.Now, End: tomorrow}, true},
	}
	for _, p := range passes {
		if slot, ok := e.pick(pieces, p.window, req.Duration, p.latest); ok {
			return Choice{Slot: slot, Pass: p.pass}, true
		}
	}
	return Choice{}, false
}

// bookable returns the common free time cut into single-day weekday pieces
// inside business hours.
func (e *Engine) bookable(req Request) []interval.Interval {
	common := interval.IntersectAll(req.Free)
	common = interval.Clip(common, interval.Interval{Start: req.Now, End: req.Deadline})

	var out []interval.Interval
	for _, iv := range common {
		for _, day := range interval.ExcludeWeekend(iv, e.p.Location) {
			if piece, ok := interval.ClipToBand(day, e.p.Location, e.p.DayStart, e.p.DayEnd); ok {
				out = append(out, piece)
			}
		}
	}
	return out
}

func (e *Engine) pick(pieces []interval.Interval, window interval.Interval, d time.Duration, latest bool) (interval.Interval, bool) {
	var (
		best  interval.Interval
		found bool
	)
	for _, piece := range pieces {
		sub, ok := interval.Intersect(piece, window)
		if !ok {
			continue
		}
		start, ok := e.anchor(sub, d, latest)
		if !ok {
			continue
		}
		cand := interval.New(start, d)
		switch {
		case !found:
			best, found = cand, true
		case latest && cand.Start.After(best.Start):
			best = cand
		case !latest && cand.Start.Before(best.Start):
			best = cand
		}
	}
	return best, found
}

// anchor places a d-long start on sub's end (latest) or start edge. A start
// snapped to the granularity is preferred; the raw edge is used when the
// snapped one no longer fits.
func (e *Engine) anchor(sub interval.Interval, d time.Duration, latest bool) (time.Time, bool) {
	if sub.Duration() < d {
		return time.Time{}, false
	}
	if latest {
		edge := sub.End.Add(-d)
		if start := e.floor(edge); !start.Before(sub.Start) {
			return start, true
		}
		return edge, true
	}
	if start := e.ceil(sub.Start); !start.Add(d).After(sub.End) {
		return start, true
	}
	return sub.Start, true
}

func (e *Engine) floor(t time.Time) time.Time {
	if e.p.Granularity <= 0 {
		return t
	}
	return t.Truncate(e.p.Granularity)
}

func (e *Engine) ceil(t time.Time) time.Time {
	if e.p.Granularity <= 0 {
		return t
	}
	f := t.Truncate(e.p.Granularity)
	if f.Equal(t) {
		return t
	}
	return f.Add(e.p.Granularity)
}
