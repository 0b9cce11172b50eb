package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events.
//
//	CREATE TABLE audit_events (
//	  id             uuid PRIMARY KEY,
//	  call_id        uuid NOT NULL,
//	  type           text NOT NULL,
//	  actor_user_id  text,
//	  actor_role     text,
//	  participant_id text,
//	  message        text,
//	  metadata       jsonb,
//	  created_at     timestamptz NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertEventSQL = `
INSERT INTO audit_events (id, call_id, type, actor_user_id, actor_role, participant_id, message, metadata, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, '')::jsonb, $9)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID, e.CallID, string(e.Type), e.ActorUserID, e.ActorRole, e.ParticipantID, e.Message, e.Metadata, e.CreatedAt)
	return err
}
