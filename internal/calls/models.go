package calls

import (
	"strings"
	"time"

	"meeting-scheduler/internal/interval"
)

// Call is a meeting being organized between an organizer and its participants.
//
// Invariants:
// - DurationMinutes is one of the configured allowed durations.
// - Deadline, when set, is after CreatedAt.
// - Only the orchestrator moves Status, and only through conditional updates.
type Call struct {
	ID          string `json:"id" db:"id"`
	OrganizerID string `json:"organizer_id" db:"organizer_id"`

	Title           string `json:"title" db:"title"`
	Kind            Kind   `json:"kind" db:"kind"`
	DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"`
	Notes           string `json:"notes,omitempty" db:"notes"`

	Status Status `json:"status" db:"status"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	Deadline    *time.Time `json:"deadline,omitempty" db:"deadline"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`

	// Provider-side identifiers of the created meeting.
	MeetingLink string `json:"meeting_link,omitempty" db:"meeting_link"`
	EventID     string `json:"event_id,omitempty" db:"event_id"`

	CancelReason CancelReason `json:"cancel_reason,omitempty" db:"cancel_reason"`
	// ReconnectParticipantID names the link whose calendar credential was
	// revoked; its notice is a reconnect request.
	ReconnectParticipantID string `json:"-" db:"reconnect_participant_id"`

	// NoticePending is set together with a transition to scheduled or canceled
	// and cleared once the matching notifications went out.
	NoticePending bool `json:"-" db:"notice_pending"`
}

func (c Call) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// Slot returns the scheduled meeting interval, if any.
func (c Call) Slot() (interval.Interval, bool) {
	if c.ScheduledAt == nil {
		return interval.Interval{}, false
	}
	return interval.New(*c.ScheduledAt, c.Duration()), true
}

// Participant links one invitee to a call.
type Participant struct {
	CallID        string `json:"call_id" db:"call_id"`
	ParticipantID string `json:"participant_id" db:"participant_id"`

	// UserID is set for registered users; it keys their calendar credential.
	UserID string `json:"user_id,omitempty" db:"user_id"`
	Name   string `json:"name" db:"name"`
	Email  string `json:"email" db:"email"`

	HasCalendar bool   `json:"has_calendar" db:"has_calendar"`
	CalendarID  string `json:"-" db:"calendar_id"`

	Response ResponseStatus `json:"response_status" db:"response_status"`

	// AccessToken keys the participant's availability link. Empty for
	// calendar-linked participants.
	AccessToken string `json:"-" db:"access_token"`

	LastReminderAt *time.Time `json:"last_reminder_at,omitempty" db:"last_reminder_at"`
	RemindersSent  int        `json:"reminders_sent" db:"reminders_sent"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Submission is one window of manually submitted availability.
// Submissions are immutable once stored.
type Submission struct {
	CallID          string    `json:"call_id" db:"call_id"`
	ParticipantID   string    `json:"participant_id" db:"participant_id"`
	Start           time.Time `json:"start" db:"start_at"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
}

func (s Submission) Interval() interval.Interval {
	return interval.New(s.Start, time.Duration(s.DurationMinutes)*time.Minute)
}

type Status string

const (
	StatusProcessing Status = "processing"
	StatusScheduled  Status = "scheduled"
	StatusCanceled   Status = "canceled"
	StatusEnded      Status = "ended"
)

// ParseStatus normalizes a stored status. Unknown values are rejected.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusProcessing, StatusScheduled, StatusCanceled, StatusEnded:
		return st, true
	default:
		return Status(s), false
	}
}

func (s Status) Terminal() bool { return s == StatusCanceled || s == StatusEnded }

type ResponseStatus string

const (
	ResponseWaiting  ResponseStatus = "waiting"
	ResponseAccepted ResponseStatus = "accepted"
	ResponseDeclined ResponseStatus = "declined"
	ResponseCanceled ResponseStatus = "canceled"
	ResponseEnded    ResponseStatus = "ended"
)

// ParseResponseStatus normalizes a stored response status. The raw value is
// returned with ok=false when it is not recognized so callers can decide how
// to treat it.
func ParseResponseStatus(s string) (ResponseStatus, bool) {
	switch rs := ResponseStatus(strings.ToLower(strings.TrimSpace(s))); rs {
	case ResponseWaiting, ResponseAccepted, ResponseDeclined, ResponseCanceled, ResponseEnded:
		return rs, true
	default:
		return ResponseStatus(s), false
	}
}

func (r ResponseStatus) Known() bool {
	_, ok := ParseResponseStatus(string(r))
	return ok
}

// Refused reports a response that blocks the call outright.
func (r ResponseStatus) Refused() bool { return r == ResponseDeclined || r == ResponseCanceled }

type Kind string

const (
	KindScreening  Kind = "screening"
	KindValidation Kind = "validation"
	KindFinal      Kind = "final"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindScreening, KindValidation, KindFinal:
		return k, true
	default:
		return "", false
	}
}

type CancelReason string

const (
	CancelDeclined          CancelReason = "declined"
	CancelDeadlinePassed    CancelReason = "deadline_passed"
	CancelNoCommonSlot      CancelReason = "no_common_slot"
	CancelCredentialRevoked CancelReason = "credential_revoked"
)

// Transition describes a conditional status change of a call.
type Transition struct {
	To Status

	ScheduledAt  *time.Time
	MeetingLink  string
	EventID      string
	CancelReason CancelReason

	ReconnectParticipantID string

	NoticePending bool

	// LinkStatus, when set, is applied to every participant link whose current
	// response is in LinkFrom (all links when LinkFrom is empty).
	LinkStatus ResponseStatus
	LinkFrom   []ResponseStatus
}
