package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meeting-scheduler/internal/audit"
	"meeting-scheduler/internal/availability"
	"meeting-scheduler/internal/calendar"
	"meeting-scheduler/internal/calls"
	"meeting-scheduler/internal/interval"
	"meeting-scheduler/internal/notify"
	"meeting-scheduler/internal/oauth"
	"meeting-scheduler/internal/reminders"
	"meeting-scheduler/internal/slots"
)

// Outcome is what one invocation did to a call.
type Outcome string

const (
	// OutcomeNoop: nothing to do, or another writer won the transition.
	OutcomeNoop      Outcome = "noop"
	OutcomeEnded     Outcome = "ended"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeScheduled Outcome = "scheduled"
	// OutcomeWaiting: still collecting manual availability.
	OutcomeWaiting Outcome = "waiting"
	// OutcomeDeferred: a transient failure; retry on the next invocation.
	OutcomeDeferred Outcome = "deferred"
)

type Result struct {
	CallID        string             `json:"call_id"`
	Outcome       Outcome            `json:"outcome"`
	Reason        calls.CancelReason `json:"reason,omitempty"`
	Slot          *interval.Interval `json:"slot,omitempty"`
	Pass          slots.Pass         `json:"pass,omitempty"`
	RemindersSent int                `json:"reminders_sent,omitempty"`
}

// TokenSource is the token freshness guard.
type TokenSource interface {
	AccessToken(ctx context.Context, ownerID string) (string, error)
}

// Resolver computes participant free time.
type Resolver interface {
	Resolve(ctx context.Context, c calls.Call, links []calls.Participant, window interval.Interval) ([]availability.Availability, error)
}

// ErrManagerCredential is returned when the shared event-creation credential
// needs to be reconnected by an operator.
var ErrManagerCredential = errors.New("orchestrator: manager credential unusable")

type Deps struct {
	Repo      calls.Repository
	Tokens    TokenSource
	Resolver  Resolver
	Engine    *slots.Engine
	Reminders reminders.Policy
	Provider  calendar.Provider
	Composer  *notify.Composer
	Notifier  *notify.Notifier
	Audit     *audit.Service
	// SearchSpan bounds the search window of calls without a deadline.
	SearchSpan time.Duration
	Logger     *slog.Logger
}

// Orchestrator drives one call at a time through
// processing -> {scheduled, canceled}, scheduled -> ended.
// Run is safe to invoke repeatedly; every status change is a conditional
// update, so concurrent runs on the same call transition it at most once.
type Orchestrator struct {
	repo      calls.Repository
	tokens    TokenSource
	resolver  Resolver
	engine    *slots.Engine
	reminders reminders.Policy
	provider  calendar.Provider
	composer  *notify.Composer
	notifier  *notify.Notifier
	audit     *audit.Service
	span      time.Duration
	log       *slog.Logger
	clock     func() time.Time
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		repo:      d.Repo,
		tokens:    d.Tokens,
		resolver:  d.Resolver,
		engine:    d.Engine,
		reminders: d.Reminders,
		provider:  d.Provider,
		composer:  d.Composer,
		notifier:  d.Notifier,
		audit:     d.Audit,
		span:      d.SearchSpan,
		log:       d.Logger,
		clock:     time.Now,
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.engine == nil {
		o.engine = slots.NewEngine(slots.DefaultPolicy())
	}
	if o.reminders == (reminders.Policy{}) {
		o.reminders = reminders.DefaultPolicy()
	}
	if o.span <= 0 {
		o.span = availability.DefaultSpan
	}
	if o.notifier == nil {
		o.notifier = notify.NewNotifier(notify.LogMailer{Log: o.log}, o.log)
	}
	if o.composer == nil {
		o.composer = notify.NewComposer("", o.engine.Policy().Location)
	}
	return o
}

// Run advances the call identified by callID as far as its current state
// allows. Storage failures are returned; transient provider failures yield
// OutcomeDeferred with a nil error.
func (o *Orchestrator) Run(ctx context.Context, callID string) (Result, error) {
	log := o.log.With("call_id", callID)
	res := Result{CallID: callID, Outcome: OutcomeNoop}

	c, err := o.repo.GetCall(ctx, callID)
	if err != nil {
		return res, fmt.Errorf("load call: %w", err)
	}
	now := o.clock()

	status, ok := calls.ParseStatus(string(c.Status))
	if !ok {
		return res, fmt.Errorf("call %s has unknown status %q", callID, c.Status)
	}

	switch status {
	case calls.StatusCanceled, calls.StatusEnded:
		if status == calls.StatusCanceled && c.NoticePending {
			o.resendNotices(ctx, log, c)
		}
		return res, nil
	case calls.StatusScheduled:
		if c.ScheduledAt != nil && c.ScheduledAt.Before(now) {
			return o.end(ctx, log, c, res)
		}
		if c.NoticePending {
			o.resendNotices(ctx, log, c)
		}
		return res, nil
	}

	links, err := o.repo.ListParticipants(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("load participants: %w", err)
	}

	// Refusals and an expired deadline are checked before reminding anyone.
	if cancel, reason := o.reminders.ShouldCancel(c, links, now); cancel {
		return o.cancel(ctx, log, c, links, reason, nil, res)
	}

	sent, err := o.remind(ctx, log, c, links, now)
	res.RemindersSent = sent
	if err != nil {
		return res, err
	}

	if !reminders.ReadyToSchedule(links) {
		res.Outcome = OutcomeWaiting
		return res, nil
	}

	for _, p := range links {
		if !p.HasCalendar {
			continue
		}
		if _, err := o.tokens.AccessToken(ctx, p.UserID); err != nil {
			return o.tokenFailure(ctx, log, c, links, p, err, res)
		}
	}

	window := availability.SearchWindow(c, now, o.span)
	avail, err := o.resolver.Resolve(ctx, c, links, window)
	if err != nil {
		if _, ok := oauth.AsTokenError(err); ok {
			return o.tokenFailure(ctx, log, c, links, ownerOf(links, err), err, res)
		}
		return res, fmt.Errorf("resolve availability: %w", err)
	}

	free := make([][]interval.Interval, 0, len(avail))
	for _, a := range avail {
		free = append(free, a.Free)
	}
	choice, found := o.engine.Select(slots.Request{
		Free:     free,
		Duration: c.Duration(),
		Now:      now,
		Deadline: window.End,
	})
	if !found {
		return o.cancel(ctx, log, c, links, calls.CancelNoCommonSlot, nil, res)
	}
	return o.schedule(ctx, log, c, links, choice, res)
}

func (o *Orchestrator) remind(ctx context.Context, log *slog.Logger, c calls.Call, links []calls.Participant, now time.Time) (int, error) {
	sent := 0
	for _, p := range links {
		if !o.reminders.NeedsReminder(p, now) {
			continue
		}
		msg := o.composer.AvailabilityRequest(c, p)
		if err := o.notifier.Deliver(ctx, msg); err != nil {
			o.audit.Record(ctx, c.ID, audit.EventNotificationFailed, "availability request", map[string]any{
				"participant_id": p.ParticipantID,
				"error":          err.Error(),
			})
		}
		// The attempt counts towards the cap whether or not the relay accepted it.
		ok, err := o.repo.RecordReminder(ctx, c.ID, p.ParticipantID, p.RemindersSent, now)
		if err != nil {
			return sent, fmt.Errorf("record reminder: %w", err)
		}
		if !ok {
			log.Debug("reminder already recorded by another run", "participant_id", p.ParticipantID)
			continue
		}
		sent++
		o.audit.Record(ctx, c.ID, audit.EventReminderSent, "", map[string]any{
			"participant_id": p.ParticipantID,
			"reminder":       p.RemindersSent + 1,
		})
	}
	if sent > 0 {
		log.Info("availability reminders sent", "count", sent)
	}
	return sent, nil
}

func (o *Orchestrator) tokenFailure(ctx context.Context, log *slog.Logger, c calls.Call, links []calls.Participant, p calls.Participant, err error, res Result) (Result, error) {
	te, ok := oauth.AsTokenError(err)
	if !ok {
		return res, fmt.Errorf("calendar token: %w", err)
	}
	if !te.Terminal() {
		log.Warn("calendar token unavailable, deferring", "participant_id", p.ParticipantID, "code", string(te.Code))
		res.Outcome = OutcomeDeferred
		return res, nil
	}
	log.Warn("calendar credential revoked", "participant_id", p.ParticipantID, "code", string(te.Code))
	o.audit.Record(ctx, c.ID, audit.EventCredentialRevoked, string(te.Code), map[string]any{
		"participant_id": p.ParticipantID,
	})
	return o.cancel(ctx, log, c, links, calls.CancelCredentialRevoked, &p, res)
}

func ownerOf(links []calls.Participant, err error) calls.Participant {
	te, _ := oauth.AsTokenError(err)
	for _, p := range links {
		if te != nil && p.HasCalendar && p.UserID == te.OwnerID {
			return p
		}
	}
	return calls.Participant{}
}

// cancel moves the call to canceled, cascading to every link, then notifies.
// reconnect, when set, gets a reconnect-calendar request instead of the
// generic notice.
func (o *Orchestrator) cancel(ctx context.Context, log *slog.Logger, c calls.Call, links []calls.Participant, reason calls.CancelReason, reconnect *calls.Participant, res Result) (Result, error) {
	var reconnectID string
	if reconnect != nil {
		reconnectID = reconnect.ParticipantID
	}
	ok, err := o.repo.TransitionCall(ctx, c.ID, calls.StatusProcessing, calls.Transition{
		To:                     calls.StatusCanceled,
		CancelReason:           reason,
		ReconnectParticipantID: reconnectID,
		NoticePending:          true,
		LinkStatus:             calls.ResponseCanceled,
	})
	if err != nil {
		return res, fmt.Errorf("cancel call: %w", err)
	}
	if !ok {
		return res, nil
	}
	log.Info("call canceled", "reason", string(reason))
	o.audit.Record(ctx, c.ID, audit.EventCallCanceled, string(reason), nil)

	c.Status = calls.StatusCanceled
	c.CancelReason = reason
	c.ReconnectParticipantID = reconnectID
	for _, p := range links {
		o.deliver(ctx, c, p, o.canceledNotice(c, p))
	}
	if err := o.repo.ClearNoticePending(ctx, c.ID, calls.StatusCanceled); err != nil {
		log.Warn("clear notice flag failed", "err", err)
	}

	res.Outcome = OutcomeCanceled
	res.Reason = reason
	return res, nil
}

func (o *Orchestrator) schedule(ctx context.Context, log *slog.Logger, c calls.Call, links []calls.Participant, choice slots.Choice, res Result) (Result, error) {
	token, err := o.tokens.AccessToken(ctx, oauth.ManagerOwnerID)
	if err != nil {
		if te, ok := oauth.AsTokenError(err); ok && !te.Terminal() {
			log.Warn("manager token unavailable, deferring", "code", string(te.Code))
			res.Outcome = OutcomeDeferred
			return res, nil
		}
		log.Error("manager credential unusable, call left processing", "err", err)
		o.audit.Record(ctx, c.ID, audit.EventCredentialRevoked, "manager", map[string]any{"owner_id": oauth.ManagerOwnerID})
		res.Outcome = OutcomeDeferred
		return res, fmt.Errorf("%w: %v", ErrManagerCredential, err)
	}

	attendees := make([]string, 0, len(links))
	for _, p := range links {
		attendees = append(attendees, p.Email)
	}
	ev, err := o.provider.CreateEvent(ctx, token, calendar.EventRequest{
		EventID:     calendar.EventIDForCall(c.ID),
		Summary:     c.Title,
		Description: c.Notes,
		Start:       choice.Slot.Start,
		End:         choice.Slot.End,
		TimeZone:    o.engine.Policy().Location.String(),
		Attendees:   attendees,
	})
	if err != nil {
		log.Warn("event creation failed, deferring", "err", err)
		res.Outcome = OutcomeDeferred
		return res, nil
	}

	// The provider's times win: a retry may have reused an earlier event.
	slot := choice.Slot
	if !ev.Start.IsZero() {
		slot = interval.Interval{Start: ev.Start, End: ev.End}
		if !ev.End.After(ev.Start) {
			slot = interval.New(ev.Start, c.Duration())
		}
	}
	if !slot.Start.Equal(choice.Slot.Start) {
		log.Warn("provider kept a different slot", "chosen", choice.Slot.Start, "event", slot.Start)
	}
	start := slot.Start
	ok, err := o.repo.TransitionCall(ctx, c.ID, calls.StatusProcessing, calls.Transition{
		To:            calls.StatusScheduled,
		ScheduledAt:   &start,
		MeetingLink:   ev.MeetingLink,
		EventID:       ev.EventID,
		NoticePending: true,
	})
	if err != nil {
		return res, fmt.Errorf("schedule call: %w", err)
	}
	if !ok {
		return res, nil
	}
	log.Info("call scheduled", "start", start, "pass", string(choice.Pass))
	o.audit.Record(ctx, c.ID, audit.EventCallScheduled, string(choice.Pass), map[string]any{
		"start":    start,
		"event_id": ev.EventID,
	})

	c.Status = calls.StatusScheduled
	c.ScheduledAt = &start
	c.MeetingLink = ev.MeetingLink
	c.EventID = ev.EventID
	for _, p := range links {
		o.deliver(ctx, c, p, o.composer.Scheduled(c, p))
	}
	if err := o.repo.ClearNoticePending(ctx, c.ID, calls.StatusScheduled); err != nil {
		log.Warn("clear notice flag failed", "err", err)
	}

	res.Outcome = OutcomeScheduled
	res.Slot = &slot
	res.Pass = choice.Pass
	return res, nil
}

func (o *Orchestrator) end(ctx context.Context, log *slog.Logger, c calls.Call, res Result) (Result, error) {
	ok, err := o.repo.TransitionCall(ctx, c.ID, calls.StatusScheduled, calls.Transition{
		To:         calls.StatusEnded,
		LinkStatus: calls.ResponseEnded,
		LinkFrom:   []calls.ResponseStatus{calls.ResponseWaiting, calls.ResponseAccepted},
	})
	if err != nil {
		return res, fmt.Errorf("end call: %w", err)
	}
	if !ok {
		return res, nil
	}
	log.Info("call ended")
	o.audit.Record(ctx, c.ID, audit.EventCallEnded, "", nil)
	res.Outcome = OutcomeEnded
	return res, nil
}

// resendNotices repeats the notifications owed for the call's current state
// after a run stopped between the transition and clearing the flag.
func (o *Orchestrator) resendNotices(ctx context.Context, log *slog.Logger, c calls.Call) {
	links, err := o.repo.ListParticipants(ctx, c.ID)
	if err != nil {
		log.Warn("load participants for pending notices failed", "err", err)
		return
	}
	log.Info("resending pending notices", "status", string(c.Status))
	for _, p := range links {
		if c.Status == calls.StatusScheduled {
			o.deliver(ctx, c, p, o.composer.Scheduled(c, p))
		} else {
			o.deliver(ctx, c, p, o.canceledNotice(c, p))
		}
	}
	if err := o.repo.ClearNoticePending(ctx, c.ID, c.Status); err != nil {
		log.Warn("clear notice flag failed", "err", err)
	}
}

// canceledNotice is the reconnect request for the link whose credential was
// revoked and the generic cancellation for everyone else.
func (o *Orchestrator) canceledNotice(c calls.Call, p calls.Participant) notify.Message {
	if c.ReconnectParticipantID != "" && p.ParticipantID == c.ReconnectParticipantID {
		return o.composer.Reconnect(c, p)
	}
	return o.composer.Canceled(c, p)
}

func (o *Orchestrator) deliver(ctx context.Context, c calls.Call, p calls.Participant, msg notify.Message) {
	if msg.To == "" {
		return
	}
	if err := o.notifier.Deliver(ctx, msg); err != nil {
		o.audit.Record(ctx, c.ID, audit.EventNotificationFailed, msg.Subject, map[string]any{
			"participant_id": p.ParticipantID,
			"error":          err.Error(),
		})
	}
}
