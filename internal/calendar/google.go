package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"meeting-scheduler/internal/interval"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const organizerCalendar = "primary"

type GoogleOptions struct {
	// Endpoint overrides the Calendar API base URL (tests, proxies).
	Endpoint   string
	HTTPClient *http.Client
}

// Google implements Provider on the Google Calendar v3 API.
type Google struct {
	endpoint string
	base     *http.Client
}

func NewGoogle(opts GoogleOptions) *Google {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	return &Google{endpoint: opts.Endpoint, base: base}
}

func (g *Google) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	hc := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: g.base.Transport},
		Timeout:   g.base.Timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return gcal.NewService(ctx, opts...)
}

func (g *Google) FreeBusy(ctx context.Context, accessToken, calendarID string, window interval.Interval) ([]interval.Interval, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: window.Start.UTC().Format(time.RFC3339),
		TimeMax: window.End.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy %s: %w", calendarID, err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("freebusy %s: calendar missing from response", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy %s: %s", calendarID, cal.Errors[0].Reason)
	}

	busy := make([]interval.Interval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			return nil, fmt.Errorf("freebusy %s: bad start %q", calendarID, b.Start)
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			return nil, fmt.Errorf("freebusy %s: bad end %q", calendarID, b.End)
		}
		busy = append(busy, interval.Interval{Start: start, End: end})
	}
	return busy, nil
}

func (g *Google) CreateEvent(ctx context.Context, accessToken string, req EventRequest) (EventResult, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return EventResult{}, err
	}

	attendees := make([]*gcal.EventAttendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		attendees = append(attendees, &gcal.EventAttendee{Email: a})
	}
	ev := &gcal.Event{
		Id:          req.EventID,
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &gcal.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.TimeZone},
		End:         &gcal.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: req.TimeZone},
		Attendees:   attendees,
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             req.EventID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := svc.Events.Insert(organizerCalendar, ev).ConferenceDataVersion(1).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != http.StatusConflict {
			return EventResult{}, fmt.Errorf("create event: %w", err)
		}
		// Created by an earlier attempt, possibly for another slot.
		created, err = g.reconcile(ctx, svc, req, attendees)
		if err != nil {
			return EventResult{}, err
		}
	}
	return eventResult(created, req)
}

// reconcile loads the event a previous attempt created and moves it to req
// when its times differ or it was cancelled.
func (g *Google) reconcile(ctx context.Context, svc *gcal.Service, req EventRequest, attendees []*gcal.EventAttendee) (*gcal.Event, error) {
	existing, err := svc.Events.Get(organizerCalendar, req.EventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch existing event: %w", err)
	}
	start, end, err := eventTimes(existing)
	if err == nil && existing.Status != "cancelled" && start.Equal(req.Start) && end.Equal(req.End) {
		return existing, nil
	}

	patch := &gcal.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &gcal.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.TimeZone},
		End:         &gcal.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: req.TimeZone},
		Attendees:   attendees,
		Status:      "confirmed",
	}
	updated, err := svc.Events.Patch(organizerCalendar, req.EventID, patch).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("move existing event: %w", err)
	}
	return updated, nil
}

// eventResult falls back to the requested times when the response omits them.
func eventResult(ev *gcal.Event, req EventRequest) (EventResult, error) {
	res := EventResult{
		EventID:     ev.Id,
		MeetingLink: meetingLink(ev),
		HTMLLink:    ev.HtmlLink,
		Start:       req.Start,
		End:         req.End,
	}
	if ev.Start == nil && ev.End == nil {
		return res, nil
	}
	start, end, err := eventTimes(ev)
	if err != nil {
		return EventResult{}, fmt.Errorf("event %s: %w", ev.Id, err)
	}
	res.Start, res.End = start, end
	return res, nil
}

func eventTimes(ev *gcal.Event) (time.Time, time.Time, error) {
	if ev.Start == nil || ev.End == nil {
		return time.Time{}, time.Time{}, errors.New("event has no start or end")
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start %q", ev.Start.DateTime)
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end %q", ev.End.DateTime)
	}
	return start, end, nil
}

func meetingLink(ev *gcal.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri
			}
		}
	}
	return ""
}
