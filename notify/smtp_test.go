package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

func TestSenderNotifierWritesMessage(t *testing.T) {
	var (
		gotFrom string
		gotTo   []string
		raw     bytes.Buffer
	)
	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		gotFrom = from
		gotTo = to
		_, err := msg.WriteTo(&raw)
		return err
	})

	n := NewSenderNotifier("noreply@example.com", sender)
	if err := n.Send(context.Background(), "ada@example.com", "Verify", "token: abc"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotFrom != "noreply@example.com" {
		t.Fatalf("unexpected from: %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ada@example.com" {
		t.Fatalf("unexpected recipients: %v", gotTo)
	}
	if !strings.Contains(raw.String(), "Subject: Verify") || !strings.Contains(raw.String(), "token: abc") {
		t.Fatalf("unexpected message:\n%s", raw.String())
	}
}

func TestSenderNotifierPropagatesErrors(t *testing.T) {
	boom := errors.New("relay down")
	n := NewSenderNotifier("noreply@example.com", gomail.SendFunc(func(string, []string, io.WriterTo) error {
		return boom
	}))

	if err := n.Send(context.Background(), "ada@example.com", "s", "b"); !errors.Is(err, boom) {
		t.Fatalf("expected relay error, got %v", err)
	}
	if err := n.Send(context.Background(), " ", "s", "b"); err == nil {
		t.Fatal("expected empty recipient to fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, "ada@example.com", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewSMTPNotifierValidatesConfig(t *testing.T) {
	if _, err := NewSMTPNotifier(SMTPConfig{Port: 587, From: "a@example.com"}); err == nil {
		t.Fatal("expected missing host to fail")
	}
	if _, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587}); err == nil {
		t.Fatal("expected missing from to fail")
	}
	if _, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "a@example.com"}); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}

func TestLogNotifierWritesEntry(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))
	if err := n.Send(context.Background(), "ada@example.com", "Welcome", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), `"to":"ada@example.com"`) {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}
