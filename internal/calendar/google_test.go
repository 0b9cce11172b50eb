package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meeting-scheduler/internal/interval"
)

func newFakeGoogle(t *testing.T, handler http.HandlerFunc) *Google {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewGoogle(GoogleOptions{Endpoint: srv.URL + "/", HTTPClient: srv.Client()})
}

func TestGoogleFreeBusy_ParsesBusyIntervals(t *testing.T) {
	g := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/freeBusy") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			TimeMin string `json:"timeMin"`
			Items   []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Items) != 1 || body.Items[0].ID != "primary" {
			t.Errorf("unexpected items: %+v", body.Items)
		}
		_, _ = w.Write([]byte(`{"calendars":{"primary":{"busy":[
			{"start":"2026-10-19T07:00:00Z","end":"2026-10-19T08:00:00Z"},
			{"start":"2026-10-19T12:00:00Z","end":"2026-10-19T13:30:00Z"}]}}}`))
	})

	window := interval.Interval{
		Start: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
	}
	busy, err := g.FreeBusy(context.Background(), "tok", "primary", window)
	if err != nil {
		t.Fatalf("freebusy: %v", err)
	}
	if len(busy) != 2 || busy[1].Duration() != 90*time.Minute {
		t.Fatalf("unexpected busy: %+v", busy)
	}
}

func TestGoogleFreeBusy_CalendarErrorSurfaces(t *testing.T) {
	g := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"calendars":{"primary":{"errors":[{"domain":"global","reason":"notFound"}]}}}`))
	})
	window := interval.New(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), time.Hour)
	if _, err := g.FreeBusy(context.Background(), "tok", "primary", window); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGoogleCreateEvent_ReturnsMeetLink(t *testing.T) {
	g := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conferenceDataVersion") != "1" {
			t.Errorf("expected conference data version 1")
		}
		var ev map[string]any
		_ = json.NewDecoder(r.Body).Decode(&ev)
		if ev["id"] != "callabc" {
			t.Errorf("expected caller-chosen id, got %v", ev["id"])
		}
		_, _ = w.Write([]byte(`{"id":"callabc","hangoutLink":"https://meet.google.com/abc-defg-hij","htmlLink":"https://calendar.google.com/event?eid=x"}`))
	})

	start := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	res, err := g.CreateEvent(context.Background(), "tok", EventRequest{
		EventID:   "callabc",
		Summary:   "Screening",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Attendees: []string{"ada@example.com"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.MeetingLink != "https://meet.google.com/abc-defg-hij" || res.EventID != "callabc" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGoogleCreateEvent_ConflictReturnsMatchingEvent(t *testing.T) {
	g := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":409,"message":"The requested identifier already exists."}}`))
		case http.MethodGet:
			if !strings.HasSuffix(r.URL.Path, "/events/callabc") {
				t.Errorf("unexpected get %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"id":"callabc","status":"confirmed",
				"start":{"dateTime":"2026-10-19T09:00:00+02:00"},"end":{"dateTime":"2026-10-19T10:00:00+02:00"},
				"conferenceData":{"entryPoints":[{"entryPointType":"video","uri":"https://meet.google.com/xyz"}]}}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	start := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	res, err := g.CreateEvent(context.Background(), "tok", EventRequest{EventID: "callabc", Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.MeetingLink != "https://meet.google.com/xyz" || !res.Start.Equal(start) {
		t.Fatalf("expected existing event, got %+v", res)
	}
}

func TestGoogleCreateEvent_ConflictMovesStaleEvent(t *testing.T) {
	var patched map[string]any
	g := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":409,"message":"The requested identifier already exists."}}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"callabc","status":"confirmed","hangoutLink":"https://meet.google.com/old",
				"start":{"dateTime":"2026-10-19T07:00:00Z"},"end":{"dateTime":"2026-10-19T07:30:00Z"}}`))
		case http.MethodPatch:
			if r.URL.Query().Get("sendUpdates") != "all" {
				t.Errorf("expected attendees to be notified of the move")
			}
			_ = json.NewDecoder(r.Body).Decode(&patched)
			_, _ = w.Write([]byte(`{"id":"callabc","status":"confirmed","hangoutLink":"https://meet.google.com/old",
				"start":{"dateTime":"2026-10-21T09:00:00Z"},"end":{"dateTime":"2026-10-21T09:30:00Z"}}`))
		}
	})

	start := time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)
	res, err := g.CreateEvent(context.Background(), "tok", EventRequest{
		EventID:   "callabc",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Attendees: []string{"ada@example.com"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if patched == nil {
		t.Fatalf("expected stale event to be patched")
	}
	if got := patched["start"].(map[string]any)["dateTime"]; got != "2026-10-21T09:00:00Z" {
		t.Fatalf("unexpected patched start %v", got)
	}
	if !res.Start.Equal(start) || !res.End.Equal(start.Add(30*time.Minute)) {
		t.Fatalf("expected moved times, got %+v", res)
	}
}

func TestGoogleCreateEvent_ConflictRestoresCancelledEvent(t *testing.T) {
	var patched map[string]any
	g := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":409}}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"callabc","status":"cancelled",
				"start":{"dateTime":"2026-10-19T07:00:00Z"},"end":{"dateTime":"2026-10-19T07:30:00Z"}}`))
		case http.MethodPatch:
			_ = json.NewDecoder(r.Body).Decode(&patched)
			_, _ = w.Write([]byte(`{"id":"callabc","status":"confirmed"}`))
		}
	})

	start := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	res, err := g.CreateEvent(context.Background(), "tok", EventRequest{EventID: "callabc", Start: start, End: start.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if patched["status"] != "confirmed" {
		t.Fatalf("expected event restored, got %v", patched)
	}
	if !res.Start.Equal(start) {
		t.Fatalf("expected requested start, got %+v", res)
	}
}

func TestEventIDForCall(t *testing.T) {
	got := EventIDForCall("3F2504E0-4F89-11D3-9A0C-0305E82C3301")
	if got != "call3f2504e04f8911d39a0c0305e82c3301" {
		t.Fatalf("unexpected id %q", got)
	}
}
