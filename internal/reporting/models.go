package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated scheduling metrics for one
// organizer's calls created inside Range.
type CallsSummaryRequest struct {
	OrganizerID string    `json:"organizer_id"`
	Range       TimeRange `json:"range"`
}

type CallsSummary struct {
	OrganizerID string    `json:"organizer_id"`
	Range       TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	ProcessingCalls int `json:"processing_calls"`
	ScheduledCalls  int `json:"scheduled_calls"`
	CanceledCalls   int `json:"canceled_calls"`
	EndedCalls      int `json:"ended_calls"`

	// CancelReasons counts canceled calls by reason.
	CancelReasons map[string]int `json:"cancel_reasons"`

	// AverageLeadMinutes is the mean time from creation to the booked slot
	// over calls that got one.
	AverageLeadMinutes int `json:"average_lead_minutes"`

	Participants   int            `json:"participants"`
	CalendarLinked int            `json:"calendar_linked"`
	Responses      map[string]int `json:"responses"`
	RemindersSent  int            `json:"reminders_sent"`
}
