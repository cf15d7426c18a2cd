package goIdentity

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// collect drains up to max events or until the sink has been quiet for a while.
func (s *captureSink) collect(max int) []AuditEvent {
	events := make([]AuditEvent, 0, max)
	for len(events) < max {
		select {
		case ev := <-s.events:
			events = append(events, ev)
		case <-time.After(200 * time.Millisecond):
			return events
		}
	}
	return events
}

func auditConfig(cfg *Config) {
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newTestEngine(t, nil, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	env.seedAccount(t, "id-alice", "alice@example.com", "alice", false)

	_, _ = env.engine.AuthenticateWithPassword(WithClientIP(context.Background(), "203.0.113.1"), "alice", "not-the-password")
	env.engine.Close()

	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", got)
	}
}

func TestAuditEnabledSinkReceivesEventWithFields(t *testing.T) {
	sink := newCaptureSink(8)
	env := newTestEngine(t, auditConfig, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	env.seedAccount(t, "id-alice", "alice@example.com", "alice", false)

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	_, _ = env.engine.AuthenticateWithPassword(ctx, "alice", "super-secret-password")

	select {
	case ev := <-sink.events:
		if ev.EventType != auditEventPasswordSignInFailure {
			t.Fatalf("expected %s, got %q", auditEventPasswordSignInFailure, ev.EventType)
		}
		if ev.IP != "198.51.100.33" {
			t.Fatalf("expected IP 198.51.100.33, got %q", ev.IP)
		}
		if ev.IdentityID != "id-alice" || ev.Provider != string(ProviderPassword) {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Success || ev.Error != string(auditErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials failure, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  auditEventPasswordSignInSuccess,
		IdentityID: "id-alice",
		IP:         "127.0.0.1",
		Success:    true,
	})

	if !buf.Contains(auditEventPasswordSignInSuccess) {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"identity_id":"id-alice"`) {
		t.Fatal("expected JSON log line to contain identity id")
	}
}

func TestAuditErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{err: nil, want: ""},
		{err: ErrInvalidCredentials, want: auditErrInvalidCredentials},
		{err: ErrCredentialConflict, want: auditErrCredentialConflict},
		{err: ErrPartialVerification, want: auditErrPartialVerification},
		{err: ErrSuperseded, want: auditErrSuperseded},
		{err: context.Canceled, want: auditErrCanceled},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := newCaptureSink(64)
	env := newTestEngine(t, auditConfig, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	record := env.seedAccount(t, "id-alice", "alice@example.com", "alice", false)

	if _, err := env.engine.AuthenticateWithPassword(context.Background(), "alice", testPassword); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	token := requestToken(t, env, "alice")
	if _, err := env.engine.ConfirmEmailVerification(context.Background(), token.Token, "alice@example.com"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := env.engine.AuthenticateWithProvider(context.Background(), ProviderAssertion{
		Kind:      ProviderOAuthA,
		SubjectID: "g-alice",
		RawToken:  "raw-provider-token",
	}); err != nil {
		t.Fatalf("provider link failed: %v", err)
	}
	env.engine.Logout(context.Background())

	events := sink.collect(64)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}

	needles := []string{testPassword, token.Token, record.Credential, "raw-provider-token"}
	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field of %s", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata of %s", ev.EventType)
				}
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), v)
}
