package availability

import (
	"context"
	"log/slog"
	"time"

	"meeting-scheduler/internal/calendar"
	"meeting-scheduler/internal/calls"
	"meeting-scheduler/internal/interval"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultSpan       = 14 * 24 * time.Hour
	defaultFetchLimit = 4
)

// TokenSource yields a usable calendar access token for an owner.
type TokenSource interface {
	AccessToken(ctx context.Context, ownerID string) (string, error)
}

// SubmissionSource reads manually submitted availability.
type SubmissionSource interface {
	ListSubmissions(ctx context.Context, callID, participantID string) ([]calls.Submission, error)
}

// Availability is the free time of one participant inside the search window:
// sorted, non-overlapping, weekdays only.
type Availability struct {
	ParticipantID string
	Free          []interval.Interval
}

type Options struct {
	Location   *time.Location
	FetchLimit int
	Logger     *slog.Logger
}

type Resolver struct {
	tokens   TokenSource
	provider calendar.Provider
	subs     SubmissionSource
	loc      *time.Location
	limit    int
	log      *slog.Logger
}

func NewResolver(tokens TokenSource, provider calendar.Provider, subs SubmissionSource, opts Options) *Resolver {
	r := &Resolver{
		tokens:   tokens,
		provider: provider,
		subs:     subs,
		loc:      opts.Location,
		limit:    opts.FetchLimit,
		log:      opts.Logger,
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.limit <= 0 {
		r.limit = defaultFetchLimit
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// SearchWindow is [max(now, createdAt), deadline) or span long when the call
// has no deadline.
func SearchWindow(c calls.Call, now time.Time, span time.Duration) interval.Interval {
	if span <= 0 {
		span = DefaultSpan
	}
	start := now
	if c.CreatedAt.After(start) {
		start = c.CreatedAt
	}
	end := start.Add(span)
	if c.Deadline != nil {
		end = *c.Deadline
	}
	return interval.Interval{Start: start, End: end}
}

// Resolve computes every participant's free time inside window. Calendar
// fetches run concurrently. A failed fetch counts as no busy time; a token
// failure aborts and is returned to the caller.
func (r *Resolver) Resolve(ctx context.Context, c calls.Call, links []calls.Participant, window interval.Interval) ([]Availability, error) {
	out := make([]Availability, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, p := range links {
		i, p := i, p
		out[i].ParticipantID = p.ParticipantID
		if p.HasCalendar {
			g.Go(func() error {
				free, err := r.calendarFree(gctx, c, p, window)
				if err != nil {
					return err
				}
				out[i].Free = free
				return nil
			})
			continue
		}
		free, err := r.submittedFree(ctx, c, p, window)
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		out[i].Free = free
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) calendarFree(ctx context.Context, c calls.Call, p calls.Participant, window interval.Interval) ([]interval.Interval, error) {
	token, err := r.tokens.AccessToken(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	calendarID := p.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	busy, err := r.provider.FreeBusy(ctx, token, calendarID, window)
	if err != nil {
		r.log.Warn("freebusy fetch failed, assuming no busy time",
			"call_id", c.ID, "participant_id", p.ParticipantID, "err", err)
		busy = nil
	}
	return interval.ExcludeWeekendAll(interval.Invert(busy, window), r.loc), nil
}

func (r *Resolver) submittedFree(ctx context.Context, c calls.Call, p calls.Participant, window interval.Interval) ([]interval.Interval, error) {
	subs, err := r.subs.ListSubmissions(ctx, c.ID, p.ParticipantID)
	if err != nil {
		return nil, err
	}
	windows := make([]interval.Interval, 0, len(subs))
	for _, s := range subs {
		windows = append(windows, s.Interval())
	}
	return interval.ExcludeWeekendAll(interval.Clip(windows, window), r.loc), nil
}
