package internal

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestVerificationTokenRoundTrip(t *testing.T) {
	token, err := NewVerificationToken()
	if err != nil {
		t.Fatalf("NewVerificationToken error: %v", err)
	}

	parsed, err := ParseVerificationToken(strings.ToUpper(token))
	if err != nil {
		t.Fatalf("ParseVerificationToken error: %v", err)
	}
	if parsed != token {
		t.Fatalf("expected canonical %q, got %q", token, parsed)
	}
	if HashToken(token) == HashToken(token+"x") {
		t.Fatal("expected distinct hashes")
	}
}

func TestParseVerificationTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not-a-token", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		if _, err := ParseVerificationToken(raw); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("%q: expected ErrMalformedToken, got %v", raw, err)
		}
	}
}

func TestNewIdentityIDSortsByTime(t *testing.T) {
	a, err := NewIdentityID(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("NewIdentityID error: %v", err)
	}
	b, err := NewIdentityID(time.Unix(2000, 0))
	if err != nil {
		t.Fatalf("NewIdentityID error: %v", err)
	}
	if len(a) != 26 || a >= b {
		t.Fatalf("expected sortable 26-char ids, got %q %q", a, b)
	}
}
