package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"meeting-scheduler/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the storage boundary for calls, participant links and
// availability submissions. Every status change goes through a conditional
// update keyed on the currently known value.
type Repository interface {
	CreateCall(ctx context.Context, c Call, participants []Participant) error
	GetCall(ctx context.Context, id string) (Call, error)
	ListCallsByStatus(ctx context.Context, statuses ...Status) ([]Call, error)
	ListCallsForUser(ctx context.Context, userID, email string) ([]Call, error)
	ListCallsByOrganizer(ctx context.Context, organizerID string, from, to time.Time) ([]Call, error)

	// TransitionCall applies t only if the call is still in status from.
	// It reports false when another writer got there first.
	TransitionCall(ctx context.Context, id string, from Status, t Transition) (bool, error)
	ClearNoticePending(ctx context.Context, id string, status Status) error

	ListParticipants(ctx context.Context, callID string) ([]Participant, error)
	GetParticipantByToken(ctx context.Context, token string) (Participant, error)
	UpdateResponse(ctx context.Context, callID, participantID string, from []ResponseStatus, to ResponseStatus) (bool, error)
	// RecordReminder bumps the reminder counter only if it still equals prevSent.
	RecordReminder(ctx context.Context, callID, participantID string, prevSent int, at time.Time) (bool, error)
	ResetParticipant(ctx context.Context, callID, participantID string) error

	ListSubmissions(ctx context.Context, callID, participantID string) ([]Submission, error)
	// SubmitAvailability stores the batch and marks the link accepted in one unit.
	SubmitAvailability(ctx context.Context, callID, participantID string, subs []Submission) error
}

// NOTE: PostgresRepo assumes the following tables exist:
//
//	calls (id uuid primary key, organizer_id, title, kind, duration_minutes,
//	       notes, status, created_at, updated_at, deadline, scheduled_at,
//	       meeting_link, event_id, cancel_reason, notice_pending,
//	       reconnect_participant_id)
//	call_participants (call_id, participant_id, user_id, name, email,
//	       has_calendar, calendar_id, response_status, access_token,
//	       last_reminder_at, reminders_sent, created_at, updated_at,
//	       PRIMARY KEY (call_id, participant_id))
//	availability_submissions (call_id, participant_id, start_at, duration_minutes)
//
// access_token carries a UNIQUE constraint named call_participants_access_token_key.

const accessTokenConstraint = "call_participants_access_token_key"

type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `
id, organizer_id, title, kind, duration_minutes, COALESCE(notes, ''), status,
created_at, updated_at, deadline, scheduled_at, COALESCE(meeting_link, ''),
COALESCE(event_id, ''), COALESCE(cancel_reason, ''), notice_pending,
COALESCE(reconnect_participant_id, '')`

const participantColumns = `
call_id, participant_id, COALESCE(user_id, ''), name, email, has_calendar,
COALESCE(calendar_id, ''), response_status, COALESCE(access_token, ''),
last_reminder_at, reminders_sent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c                     Call
		kind, status, reason  string
		deadline, scheduledAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.OrganizerID,
		&c.Title,
		&kind,
		&c.DurationMinutes,
		&c.Notes,
		&status,
		&c.CreatedAt,
		&c.UpdatedAt,
		&deadline,
		&scheduledAt,
		&c.MeetingLink,
		&c.EventID,
		&reason,
		&c.NoticePending,
		&c.ReconnectParticipantID,
	); err != nil {
		return Call{}, err
	}
	c.Kind = Kind(kind)
	c.Status, _ = ParseStatus(status)
	c.CancelReason = CancelReason(reason)
	if deadline.Valid {
		t := deadline.Time
		c.Deadline = &t
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		c.ScheduledAt = &t
	}
	return c, nil
}

func scanParticipant(row rowScanner) (Participant, error) {
	var (
		p        Participant
		response string
		reminded sql.NullTime
	)
	if err := row.Scan(
		&p.CallID,
		&p.ParticipantID,
		&p.UserID,
		&p.Name,
		&p.Email,
		&p.HasCalendar,
		&p.CalendarID,
		&response,
		&p.AccessToken,
		&reminded,
		&p.RemindersSent,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return Participant{}, err
	}
	p.Response, _ = ParseResponseStatus(response)
	if reminded.Valid {
		t := reminded.Time
		p.LastReminderAt = &t
	}
	return p, nil
}

func (r *PostgresRepo) CreateCall(ctx context.Context, c Call, participants []Participant) error {
	const insertCall = `
INSERT INTO calls (id, organizer_id, title, kind, duration_minutes, notes, status,
  created_at, updated_at, deadline, scheduled_at, notice_pending)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, NULL, false)
`
	const insertParticipant = `
INSERT INTO call_participants (call_id, participant_id, user_id, name, email, has_calendar,
  calendar_id, response_status, access_token, reminders_sent, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), 0, $10, $10)
`
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertCall,
			c.ID, c.OrganizerID, c.Title, string(c.Kind), c.DurationMinutes, c.Notes,
			string(c.Status), c.CreatedAt, nullTime(c.Deadline),
		); err != nil {
			return err
		}
		for _, p := range participants {
			if _, err := tx.ExecContext(ctx, insertParticipant,
				c.ID, p.ParticipantID, p.UserID, p.Name, p.Email, p.HasCalendar,
				p.CalendarID, string(p.Response), p.AccessToken, p.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == accessTokenConstraint {
			return ErrTokenConflict
		}
		return ErrConflict
	}
	return err
}

func (r *PostgresRepo) GetCall(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

func (r *PostgresRepo) ListCallsByStatus(ctx context.Context, statuses ...Status) ([]Call, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	vals := make([]string, 0, len(statuses))
	for _, s := range statuses {
		vals = append(vals, string(s))
	}
	q := `SELECT ` + callColumns + ` FROM calls WHERE status = ANY($1) ORDER BY created_at`
	return r.queryCalls(ctx, q, vals)
}

func (r *PostgresRepo) ListCallsForUser(ctx context.Context, userID, email string) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls
WHERE organizer_id = $1
   OR id IN (
     SELECT call_id FROM call_participants
     WHERE (user_id IS NOT NULL AND user_id = $1) OR lower(email) = lower($2)
   )
ORDER BY created_at DESC`
	return r.queryCalls(ctx, q, userID, email)
}

func (r *PostgresRepo) ListCallsByOrganizer(ctx context.Context, organizerID string, from, to time.Time) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls
WHERE organizer_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at`
	return r.queryCalls(ctx, q, organizerID, from, to)
}

func (r *PostgresRepo) queryCalls(ctx context.Context, q string, args ...any) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) TransitionCall(ctx context.Context, id string, from Status, t Transition) (bool, error) {
	const q = `
UPDATE calls SET
  status = $3,
  scheduled_at = COALESCE($4, scheduled_at),
  meeting_link = CASE WHEN $5 = '' THEN meeting_link ELSE $5 END,
  event_id = CASE WHEN $6 = '' THEN event_id ELSE $6 END,
  cancel_reason = CASE WHEN $7 = '' THEN cancel_reason ELSE $7 END,
  notice_pending = $8,
  updated_at = $9,
  reconnect_participant_id = CASE WHEN $10 = '' THEN reconnect_participant_id ELSE $10 END
WHERE id = $1 AND status = $2
`
	now := r.clock().UTC()
	applied := false
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			id, string(from), string(t.To), nullTime(t.ScheduledAt),
			t.MeetingLink, t.EventID, string(t.CancelReason), t.NoticePending, now,
			t.ReconnectParticipantID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		applied = true
		if t.LinkStatus == "" {
			return nil
		}
		return updateLinks(ctx, tx, id, t.LinkFrom, t.LinkStatus, now)
	})
	if err != nil {
		return false, fmt.Errorf("transition call %s to %s: %w", id, t.To, err)
	}
	return applied, nil
}

func updateLinks(ctx context.Context, tx *sql.Tx, callID string, from []ResponseStatus, to ResponseStatus, now time.Time) error {
	if len(from) == 0 {
		const q = `UPDATE call_participants SET response_status = $2, updated_at = $3 WHERE call_id = $1`
		_, err := tx.ExecContext(ctx, q, callID, string(to), now)
		return err
	}
	const q = `
UPDATE call_participants SET response_status = $2, updated_at = $3
WHERE call_id = $1 AND response_status = ANY($4)
`
	_, err := tx.ExecContext(ctx, q, callID, string(to), now, responseStrings(from))
	return err
}

func (r *PostgresRepo) ClearNoticePending(ctx context.Context, id string, status Status) error {
	const q = `UPDATE calls SET notice_pending = false, updated_at = $3 WHERE id = $1 AND status = $2`
	_, err := r.db.ExecContext(ctx, q, id, string(status), r.clock().UTC())
	return err
}

func (r *PostgresRepo) ListParticipants(ctx context.Context, callID string) ([]Participant, error) {
	q := `SELECT ` + participantColumns + ` FROM call_participants WHERE call_id = $1 ORDER BY created_at, participant_id`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetParticipantByToken(ctx context.Context, token string) (Participant, error) {
	if strings.TrimSpace(token) == "" {
		return Participant{}, ErrNotFound
	}
	q := `SELECT ` + participantColumns + ` FROM call_participants WHERE access_token = $1`
	p, err := scanParticipant(r.db.QueryRowContext(ctx, q, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Participant{}, ErrNotFound
		}
		return Participant{}, err
	}
	return p, nil
}

func (r *PostgresRepo) UpdateResponse(ctx context.Context, callID, participantID string, from []ResponseStatus, to ResponseStatus) (bool, error) {
	const q = `
UPDATE call_participants SET response_status = $3, updated_at = $5
WHERE call_id = $1 AND participant_id = $2 AND response_status = ANY($4)
`
	res, err := r.db.ExecContext(ctx, q, callID, participantID, string(to), responseStrings(from), r.clock().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepo) RecordReminder(ctx context.Context, callID, participantID string, prevSent int, at time.Time) (bool, error) {
	const q = `
UPDATE call_participants
SET reminders_sent = reminders_sent + 1, last_reminder_at = $4, updated_at = $4
WHERE call_id = $1 AND participant_id = $2 AND reminders_sent = $3
`
	res, err := r.db.ExecContext(ctx, q, callID, participantID, prevSent, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepo) ResetParticipant(ctx context.Context, callID, participantID string) error {
	const reset = `
UPDATE call_participants
SET response_status = $3, reminders_sent = 0, last_reminder_at = NULL, updated_at = $4
WHERE call_id = $1 AND participant_id = $2
`
	const purge = `DELETE FROM availability_submissions WHERE call_id = $1 AND participant_id = $2`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, reset, callID, participantID, string(ResponseWaiting), r.clock().UTC())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, purge, callID, participantID)
		return err
	})
}

func (r *PostgresRepo) ListSubmissions(ctx context.Context, callID, participantID string) ([]Submission, error) {
	const q = `
SELECT call_id, participant_id, start_at, duration_minutes
FROM availability_submissions
WHERE call_id = $1 AND participant_id = $2
ORDER BY start_at
`
	rows, err := r.db.QueryContext(ctx, q, callID, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.CallID, &s.ParticipantID, &s.Start, &s.DurationMinutes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SubmitAvailability(ctx context.Context, callID, participantID string, subs []Submission) error {
	const lock = `
SELECT response_status FROM call_participants
WHERE call_id = $1 AND participant_id = $2
FOR UPDATE
`
	const count = `SELECT count(*) FROM availability_submissions WHERE call_id = $1 AND participant_id = $2`
	const insert = `
INSERT INTO availability_submissions (call_id, participant_id, start_at, duration_minutes)
VALUES ($1, $2, $3, $4)
`
	const accept = `
UPDATE call_participants SET response_status = $3, updated_at = $4
WHERE call_id = $1 AND participant_id = $2
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx, lock, callID, participantID).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx, count, callID, participantID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadySubmitted
		}
		for _, s := range subs {
			if _, err := tx.ExecContext(ctx, insert, callID, participantID, s.Start, s.DurationMinutes); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, accept, callID, participantID, string(ResponseAccepted), r.clock().UTC())
		return err
	})
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func responseStrings(in []ResponseStatus) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		out = append(out, string(r))
	}
	return out
}
