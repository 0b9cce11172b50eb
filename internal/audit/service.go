package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records scheduling decisions.
//
// Audit is internal-only and best-effort: Record never fails the caller.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event for callID, logging instead of returning failures.
// metadata is marshalled to JSON when non-nil.
func (s *Service) Record(ctx context.Context, callID string, typ EventType, message string, metadata map[string]any) {
	if s == nil {
		return
	}
	e := Event{CallID: callID, Type: typ, Message: message}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			e.Metadata = string(b)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "call_id", callID, "type", string(typ), "err", err)
	}
}

// RecordActor is Record with the acting user captured.
func (s *Service) RecordActor(ctx context.Context, callID, actorUserID, actorRole string, typ EventType, message string) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, Event{CallID: callID, Type: typ, ActorUserID: actorUserID, ActorRole: actorRole, Message: message}); err != nil {
		s.log.Warn("audit append failed", "call_id", callID, "type", string(typ), "err", err)
	}
}
