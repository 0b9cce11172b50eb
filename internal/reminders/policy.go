package reminders

import (
	"time"

	"meeting-scheduler/internal/calls"
)

// Policy throttles availability reminders for participants without a
// connected calendar and decides when waiting on them is pointless.
type Policy struct {
	MaxReminders int
	Interval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxReminders: 3, Interval: 8 * time.Hour}
}

// NeedsReminder reports whether link should get an availability request now.
// An unrecognized response status is reminded rather than trusted.
func (p Policy) NeedsReminder(link calls.Participant, now time.Time) bool {
	if link.HasCalendar {
		return false
	}
	status, known := calls.ParseResponseStatus(string(link.Response))
	if !known {
		return true
	}
	if status != calls.ResponseWaiting {
		return false
	}
	if link.RemindersSent >= p.MaxReminders {
		return false
	}
	if link.LastReminderAt == nil {
		return true
	}
	return now.Sub(*link.LastReminderAt) >= p.Interval
}

// ShouldCancel reports whether the call must be abandoned: someone refused,
// or the deadline passed before everyone answered.
func (p Policy) ShouldCancel(c calls.Call, links []calls.Participant, now time.Time) (bool, calls.CancelReason) {
	for _, l := range links {
		if status, _ := calls.ParseResponseStatus(string(l.Response)); status.Refused() {
			return true, calls.CancelDeclined
		}
	}
	if c.Deadline != nil && !now.Before(*c.Deadline) && !ReadyToSchedule(links) {
		return true, calls.CancelDeadlinePassed
	}
	return false, ""
}

// NonCalendar returns the links that answer through availability requests.
func NonCalendar(links []calls.Participant) []calls.Participant {
	out := make([]calls.Participant, 0, len(links))
	for _, l := range links {
		if !l.HasCalendar {
			out = append(out, l)
		}
	}
	return out
}

// EveryoneAccepted is true for a non-empty list whose links all accepted.
func EveryoneAccepted(nonCalendar []calls.Participant) bool {
	if len(nonCalendar) == 0 {
		return false
	}
	for _, l := range nonCalendar {
		if status, _ := calls.ParseResponseStatus(string(l.Response)); status != calls.ResponseAccepted {
			return false
		}
	}
	return true
}

// ReadyToSchedule is true when no manual answer is outstanding. Calls with
// calendar-linked participants only are ready right away.
func ReadyToSchedule(links []calls.Participant) bool {
	nc := NonCalendar(links)
	return len(nc) == 0 || EveryoneAccepted(nc)
}
