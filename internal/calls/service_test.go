package calls

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"meeting-scheduler/internal/audit"
)

type stubDirectory map[string]string

func (d stubDirectory) CalendarOwner(ctx context.Context, email string) (string, bool, error) {
	id, ok := d[email]
	return id, ok, nil
}

type recordingRuns struct{ ids []string }

func (r *recordingRuns) RequestRun(ctx context.Context, callID string) error {
	r.ids = append(r.ids, callID)
	return nil
}

var testNow = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func newTestService(repo Repository, dir CalendarDirectory) *Service {
	svc := NewService(repo, dir, Options{AllowedDurations: []int{30, 45, 60}})
	svc.clock = func() time.Time { return testNow }
	return svc
}

func validRequest() CreateRequest {
	deadline := testNow.Add(10 * 24 * time.Hour)
	return CreateRequest{
		Title:           "Backend screening",
		Kind:            "screening",
		DurationMinutes: 30,
		Deadline:        &deadline,
		Participants: []ParticipantInput{
			{Name: "Ada", Email: "ada@example.com"},
			{Name: "Grace", Email: "Grace@Example.com"},
		},
	}
}

var organizer = Organizer{UserID: "org-1", Name: "Olivia", Email: "olivia@example.com"}

func TestCreate_LinksOrganizerAndIssuesTokens(t *testing.T) {
	repo := NewMemoryRepo()
	runs := &recordingRuns{}
	svc := newTestService(repo, stubDirectory{"olivia@example.com": "org-1"}).WithRunRequester(runs)

	c, ps, err := svc.Create(context.Background(), organizer, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != StatusProcessing {
		t.Fatalf("expected processing, got %s", c.Status)
	}
	if len(ps) != 3 {
		t.Fatalf("expected organizer plus two invitees, got %d", len(ps))
	}
	if !ps[0].HasCalendar || ps[0].AccessToken != "" || ps[0].CalendarID != "primary" {
		t.Fatalf("organizer should be calendar-linked without a token: %+v", ps[0])
	}
	for _, p := range ps[1:] {
		if p.HasCalendar || len(p.AccessToken) < 43 {
			t.Fatalf("invitee should hold a 256-bit token: %+v", p)
		}
		if p.Response != ResponseWaiting {
			t.Fatalf("invitee should be waiting, got %s", p.Response)
		}
	}
	if ps[2].Email != "grace@example.com" {
		t.Fatalf("emails should be normalized, got %s", ps[2].Email)
	}
	if len(runs.ids) != 1 || runs.ids[0] != c.ID {
		t.Fatalf("expected one run request, got %v", runs.ids)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), nil)
	past := testNow.Add(-time.Hour)

	cases := map[string]func(r *CreateRequest){
		"missing title":    func(r *CreateRequest) { r.Title = " " },
		"long title":       func(r *CreateRequest) { r.Title = fmt.Sprintf("%0101d", 0) },
		"bad kind":         func(r *CreateRequest) { r.Kind = "lunch" },
		"bad duration":     func(r *CreateRequest) { r.DurationMinutes = 20 },
		"past deadline":    func(r *CreateRequest) { r.Deadline = &past },
		"no participants":  func(r *CreateRequest) { r.Participants = nil },
		"bad email":        func(r *CreateRequest) { r.Participants[0].Email = "not-an-email" },
		"duplicate email":  func(r *CreateRequest) { r.Participants[1].Email = "ADA@example.com" },
		"organizer listed": func(r *CreateRequest) { r.Participants[0].Email = organizer.Email },
	}
	for name, mutate := range cases {
		req := validRequest()
		mutate(&req)
		if _, _, err := svc.Create(context.Background(), organizer, req); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestCreate_RegeneratesTokensOnConflict(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)

	calls := 0
	svc.newToken = func() (string, error) {
		calls++
		if calls <= 2 {
			return "same-token", nil
		}
		return fmt.Sprintf("token-%d", calls), nil
	}
	req := validRequest()
	req.Participants = req.Participants[:1]

	// organizer + one invitee both without calendar: first attempt collides.
	if _, _, err := svc.Create(context.Background(), organizer, req); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestCreate_GivesUpAfterBoundedAttempts(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), nil)
	svc.newToken = func() (string, error) { return "always-same", nil }
	req := validRequest()

	if _, _, err := svc.Create(context.Background(), organizer, req); !errors.Is(err, ErrTokenConflict) {
		t.Fatalf("expected token conflict, got %v", err)
	}
}

func createWaitingCall(t *testing.T, repo *MemoryRepo, svc *Service) (Call, Participant) {
	t.Helper()
	req := validRequest()
	req.Participants = req.Participants[:1]
	c, ps, err := svc.Create(context.Background(), organizer, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c, ps[1]
}

func TestSubmit_AcceptsOnceAndMarksAccepted(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, stubDirectory{"olivia@example.com": "org-1"})
	c, p := createWaitingCall(t, repo, svc)

	items := []SubmissionInput{{Start: testNow.Add(48 * time.Hour), DurationMinutes: 60}}
	if err := svc.Submit(context.Background(), p.AccessToken, items); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ps, _ := repo.ListParticipants(context.Background(), c.ID)
	if ps[1].Response != ResponseAccepted {
		t.Fatalf("expected accepted, got %s", ps[1].Response)
	}
	if err := svc.Submit(context.Background(), p.AccessToken, items); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
}

func TestSubmit_RejectsInvalidWindows(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)
	_, p := createWaitingCall(t, repo, svc)

	cases := map[string][]SubmissionInput{
		"empty":          nil,
		"zero duration":  {{Start: testNow.Add(time.Hour), DurationMinutes: 0}},
		"after deadline": {{Start: testNow.Add(11 * 24 * time.Hour), DurationMinutes: 30}},
	}
	for name, items := range cases {
		if err := svc.Submit(context.Background(), p.AccessToken, items); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestSubmit_RejectsClosedCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)
	c, p := createWaitingCall(t, repo, svc)

	c.Status = StatusCanceled
	repo.SetCall(c)
	items := []SubmissionInput{{Start: testNow.Add(time.Hour), DurationMinutes: 30}}
	if err := svc.Submit(context.Background(), p.AccessToken, items); !errors.Is(err, ErrCallClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
}

func TestDeclineThenReopenIsRejected(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)
	c, p := createWaitingCall(t, repo, svc)

	if err := svc.Decline(context.Background(), p.AccessToken); err != nil {
		t.Fatalf("decline: %v", err)
	}
	ps, _ := repo.ListParticipants(context.Background(), c.ID)
	if ps[1].Response != ResponseDeclined {
		t.Fatalf("expected declined, got %s", ps[1].Response)
	}
	if got, _ := repo.GetCall(context.Background(), c.ID); got.Status != StatusProcessing {
		t.Fatalf("decline must not move the call, got %s", got.Status)
	}
	if err := svc.Reopen(context.Background(), p.AccessToken); !errors.Is(err, ErrCallClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
}

func TestReopen_ClearsSubmissionsAndReminders(t *testing.T) {
	repo := NewMemoryRepo()
	trail := audit.NewMemoryRepo()
	svc := newTestService(repo, nil).WithAudit(audit.NewService(trail, nil))
	c, p := createWaitingCall(t, repo, svc)

	items := []SubmissionInput{{Start: testNow.Add(time.Hour), DurationMinutes: 30}}
	if err := svc.Submit(context.Background(), p.AccessToken, items); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := repo.RecordReminder(context.Background(), c.ID, p.ParticipantID, 0, testNow); err != nil {
		t.Fatalf("record reminder: %v", err)
	}
	if err := svc.Reopen(context.Background(), p.AccessToken); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	subs, _ := repo.ListSubmissions(context.Background(), c.ID, p.ParticipantID)
	if len(subs) != 0 {
		t.Fatalf("expected submissions cleared, got %d", len(subs))
	}
	ps, _ := repo.ListParticipants(context.Background(), c.ID)
	if ps[1].Response != ResponseWaiting || ps[1].RemindersSent != 0 || ps[1].LastReminderAt != nil {
		t.Fatalf("expected link reset, got %+v", ps[1])
	}
	if evs := trail.ForCall(c.ID); len(evs) != 1 || evs[0].Type != audit.EventParticipantReset {
		t.Fatalf("expected reset audited, got %+v", evs)
	}
}

func TestDetails_SuggestionsStopAtDeadline(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)
	req := validRequest()
	deadline := testNow.Add(5 * time.Hour)
	req.Deadline = &deadline
	_, ps, err := svc.Create(context.Background(), organizer, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	d, err := svc.Details(context.Background(), ps[1].AccessToken)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(d.Suggestions) != 2 {
		t.Fatalf("expected +1h and +4h only, got %v", d.Suggestions)
	}
	if len(d.Participants) != 3 || d.Self.Email != "ada@example.com" {
		t.Fatalf("unexpected details: %+v", d)
	}
}

func TestDetails_UnknownToken(t *testing.T) {
	svc := newTestService(NewMemoryRepo(), nil)
	if _, err := svc.Details(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
