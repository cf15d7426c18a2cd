package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTokeninfoServer(t *testing.T, responses map[string]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Query().Get("id_token")]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid Value"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogleVerifier(t *testing.T, srv *httptest.Server) *GoogleVerifier {
	t.Helper()
	v, err := NewGoogleVerifier(context.Background(), GoogleConfig{
		ClientID:   "client-1",
		HTTPClient: srv.Client(),
		Endpoint:   srv.URL + "/",
	})
	if err != nil {
		t.Fatalf("new google verifier: %v", err)
	}
	return v
}

func TestGoogleVerifierAcceptsMatchingAudience(t *testing.T) {
	srv := newTokeninfoServer(t, map[string]map[string]any{
		"good": {"audience": "client-1", "user_id": "g-1", "email": "ada@example.com", "verified_email": true, "expires_in": 3600},
	})
	v := newTestGoogleVerifier(t, srv)

	assertion, err := v.Verify(context.Background(), "good")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if assertion.SubjectID != "g-1" || assertion.Email != "ada@example.com" {
		t.Fatalf("unexpected assertion: %+v", assertion)
	}
}

func TestGoogleVerifierRejects(t *testing.T) {
	srv := newTokeninfoServer(t, map[string]map[string]any{
		"other-aud":  {"audience": "client-2", "user_id": "g-1"},
		"unverified": {"audience": "client-1", "user_id": "g-1", "email": "ada@example.com", "verified_email": false},
		"no-subject": {"audience": "client-1"},
	})
	v := newTestGoogleVerifier(t, srv)

	if _, err := v.Verify(context.Background(), "other-aud"); !errors.Is(err, ErrInvalidGoogleAudience) {
		t.Fatalf("expected audience error, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "unverified"); !errors.Is(err, ErrGoogleEmailUnverified) {
		t.Fatalf("expected unverified email error, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "no-subject"); err == nil {
		t.Fatal("expected missing subject to fail")
	}
	if _, err := v.Verify(context.Background(), "garbage"); err == nil {
		t.Fatal("expected tokeninfo error to surface")
	}
}

func TestNewGoogleVerifierRequiresClientID(t *testing.T) {
	if _, err := NewGoogleVerifier(context.Background(), GoogleConfig{}); err == nil {
		t.Fatal("expected missing client id to fail")
	}
}
