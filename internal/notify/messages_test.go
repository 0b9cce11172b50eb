package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"meeting-scheduler/internal/calls"
)

func TestAvailabilityRequest_ContainsDeepLink(t *testing.T) {
	c := NewComposer("https://meet.example.com/", time.UTC)
	msg := c.AvailabilityRequest(
		calls.Call{Title: "Screening", DurationMinutes: 30},
		calls.Participant{Name: "Ada", Email: "ada@example.com", AccessToken: "tok_123"},
	)
	if msg.To != "ada@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	want := "https://meet.example.com/availability/tok_123"
	if !strings.Contains(msg.Text, want) || !strings.Contains(msg.HTML, want) {
		t.Fatalf("expected deep link in both bodies:\n%s\n%s", msg.Text, msg.HTML)
	}
}

func TestScheduled_IncludesCalendarLinkAndEscapesHTML(t *testing.T) {
	c := NewComposer("https://meet.example.com", time.UTC)
	at := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	msg := c.Scheduled(
		calls.Call{Title: "<b>Final</b>", DurationMinutes: 30, ScheduledAt: &at, MeetingLink: "https://meet.google.com/x"},
		calls.Participant{Email: "ada@example.com"},
	)
	if !strings.Contains(msg.Text, "dates=20261019T070000Z%2F20261019T073000Z") {
		t.Fatalf("expected calendar dates in text body: %s", msg.Text)
	}
	if strings.Contains(msg.HTML, "<b>Final</b>") {
		t.Fatalf("title must be escaped in html: %s", msg.HTML)
	}
	if !strings.Contains(msg.Text, "Hi ada@example.com") {
		t.Fatalf("expected email as fallback name: %s", msg.Text)
	}
}

func TestCanceled_ReasonWording(t *testing.T) {
	c := NewComposer("", time.UTC)
	msg := c.Canceled(calls.Call{Title: "x", CancelReason: calls.CancelNoCommonSlot}, calls.Participant{Name: "A", Email: "a@example.com"})
	if !strings.Contains(msg.Text, "no time slot works") {
		t.Fatalf("unexpected body: %s", msg.Text)
	}
}

type failingMailer struct{ sent int }

func (f *failingMailer) Send(ctx context.Context, msg Message) error {
	f.sent++
	return errors.New("relay down")
}

func TestNotifier_ReturnsFailure(t *testing.T) {
	m := &failingMailer{}
	n := NewNotifier(m, nil)
	if err := n.Deliver(context.Background(), Message{To: "a@example.com"}); err == nil {
		t.Fatalf("expected error")
	}
	if m.sent != 1 {
		t.Fatalf("expected one attempt, got %d", m.sent)
	}
}

func TestNewSMTPMailer_RequiresHostAndSender(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{From: "x@example.com"}); err == nil {
		t.Fatalf("expected host error")
	}
	if _, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatalf("expected sender error")
	}
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", From: "x@example.com"})
	if err != nil || m.cfg.Port != 587 {
		t.Fatalf("expected default port, got %+v %v", m, err)
	}
}
