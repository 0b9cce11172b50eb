package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required; every scheduling decision belongs to a call.
// - actor capture is best-effort; do not block scheduling on audit failures.
//
// Storage (Postgres): table audit_events, INSERT only.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event. Empty for
	// decisions taken by the scheduler itself.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	ParticipantID string `json:"participant_id,omitempty" db:"participant_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCallCreated        EventType = "call_created"
	EventCallScheduled      EventType = "call_scheduled"
	EventCallCanceled       EventType = "call_canceled"
	EventCallEnded          EventType = "call_ended"
	EventReminderSent       EventType = "reminder_sent"
	EventNotificationFailed EventType = "notification_failed"
	EventCredentialRevoked  EventType = "credential_revoked"
	EventParticipantReset   EventType = "participant_reset"
)
