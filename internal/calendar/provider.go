package calendar

import (
	"context"
	"strings"
	"time"

	"meeting-scheduler/internal/interval"
)

// Provider is a provider-agnostic calendar boundary.
// Keep provider specifics (SDK types, conference payloads) behind it.
type Provider interface {
	// FreeBusy returns the busy intervals of calendarID inside window.
	FreeBusy(ctx context.Context, accessToken, calendarID string, window interval.Interval) ([]interval.Interval, error)
	// CreateEvent creates the meeting. When an event with req.EventID already
	// exists it is moved to req's times and attendees if they differ, and
	// returned.
	CreateEvent(ctx context.Context, accessToken string, req EventRequest) (EventResult, error)
}

type EventRequest struct {
	// EventID is chosen by the caller so that retries are idempotent.
	EventID     string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
}

type EventResult struct {
	EventID     string
	MeetingLink string
	HTMLLink    string
	// Start and End are the event's times as stored by the provider.
	Start time.Time
	End   time.Time
}

// EventIDForCall derives a stable provider event id from a call id.
// Google accepts lowercase base32hex characters, which hex digits satisfy.
func EventIDForCall(callID string) string {
	return "call" + strings.ToLower(strings.ReplaceAll(callID, "-", ""))
}
