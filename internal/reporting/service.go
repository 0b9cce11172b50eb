package reporting

import (
	"context"
	"errors"
	"time"

	"meeting-scheduler/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side reporting needs; calls.Repository satisfies it.
type Repository interface {
	ListCallsByOrganizer(ctx context.Context, organizerID string, from, to time.Time) ([]calls.Call, error)
	ListParticipants(ctx context.Context, callID string) ([]calls.Participant, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OrganizerID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCallsByOrganizer(ctx, req.OrganizerID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		OrganizerID:   req.OrganizerID,
		Range:         req.Range,
		CancelReasons: map[string]int{},
		Responses:     map[string]int{},
	}
	var (
		lead   time.Duration
		booked int
	)
	for _, c := range rows {
		out.TotalCalls++
		switch c.Status {
		case calls.StatusProcessing:
			out.ProcessingCalls++
		case calls.StatusScheduled:
			out.ScheduledCalls++
		case calls.StatusCanceled:
			out.CanceledCalls++
			reason := string(c.CancelReason)
			if reason == "" {
				reason = "unspecified"
			}
			out.CancelReasons[reason]++
		case calls.StatusEnded:
			out.EndedCalls++
		}
		if c.ScheduledAt != nil && c.ScheduledAt.After(c.CreatedAt) {
			lead += c.ScheduledAt.Sub(c.CreatedAt)
			booked++
		}

		links, err := s.repo.ListParticipants(ctx, c.ID)
		if err != nil {
			return CallsSummary{}, err
		}
		for _, l := range links {
			out.Participants++
			out.RemindersSent += l.RemindersSent
			if l.HasCalendar {
				out.CalendarLinked++
				continue
			}
			out.Responses[string(l.Response)]++
		}
	}
	if booked > 0 {
		out.AverageLeadMinutes = int((lead / time.Duration(booked)).Minutes())
	}
	return out, nil
}
