package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func tokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleRefresher_Success(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`)
	r := NewGoogleRefresher("id", "secret", srv.URL, srv.Client())

	res, err := r.Refresh(context.Background(), "rt")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.AccessToken != "at-2" || res.Expiry.IsZero() {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGoogleRefresher_InvalidGrantIsRevoked(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	r := NewGoogleRefresher("id", "secret", srv.URL, srv.Client())

	if _, err := r.Refresh(context.Background(), "rt"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestGoogleRefresher_RateLimitIsTransient(t *testing.T) {
	srv := tokenServer(t, http.StatusTooManyRequests, `{"error":"rate_limit_exceeded"}`)
	r := NewGoogleRefresher("id", "secret", srv.URL, srv.Client())

	if _, err := r.Refresh(context.Background(), "rt"); !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestGoogleRefresher_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewGoogleRefresher("id", "secret", url, nil)
	if _, err := r.Refresh(context.Background(), "rt"); !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
}
