package goIdentity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/session"
)

func TestLogoutResetsSessionAndRunsTeardown(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "id-alice", "alice@example.com", "alice", false)

	teardowns := 0
	env.engine.OnSessionTeardown(func() { teardowns++ })

	var snaps []SessionSnapshot
	unsubscribe := env.engine.SubscribeSession(SessionObserverFunc(func(s SessionSnapshot) {
		snaps = append(snaps, s)
	}))
	defer unsubscribe()

	if _, err := env.engine.AuthenticateWithPassword(context.Background(), "alice", testPassword); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	env.engine.Logout(context.Background())
	env.engine.Logout(context.Background())

	if env.engine.Session().IsAuthenticated {
		t.Fatal("expected unauthenticated session after logout")
	}
	if got := env.engine.SessionState(); got != session.StateUnauthenticated {
		t.Fatalf("expected unauthenticated state, got %s", got)
	}
	if teardowns != 2 {
		t.Fatalf("expected teardown on every logout, got %d", teardowns)
	}

	// initial, signed in, signed out; the second logout publishes nothing.
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d: %+v", len(snaps), snaps)
	}
	if !snaps[1].IsAuthenticated || snaps[2].IsAuthenticated {
		t.Fatalf("unexpected snapshot sequence: %+v", snaps)
	}
}

func TestLogoutSupersedesInFlightSignIn(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "id-alice", "alice@example.com", "alice", false)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env.creds.setGetHook(func(string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	errc := make(chan error, 1)
	go func() {
		_, err := env.engine.AuthenticateWithPassword(context.Background(), "alice", testPassword)
		errc <- err
	}()

	<-entered
	if got := env.engine.SessionState(); got != session.StateAuthenticating {
		t.Fatalf("expected authenticating state, got %s", got)
	}
	env.engine.Logout(context.Background())
	close(release)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sign-in did not finish")
	}

	if env.engine.Session().IsAuthenticated {
		t.Fatal("superseded sign-in must not publish")
	}
}

func TestNewerSignInSupersedesOlder(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "id-alice", "alice@example.com", "alice", false)
	env.seedAccount(t, "id-bob", "bob@example.com", "bob", true)

	entered := make(chan struct{})
	release := make(chan struct{})
	env.creds.setGetHook(func(identifier string) {
		if identifier == "alice" {
			close(entered)
			<-release
		}
	})

	errc := make(chan error, 1)
	go func() {
		_, err := env.engine.AuthenticateWithPassword(context.Background(), "alice", testPassword)
		errc <- err
	}()

	<-entered
	if _, err := env.engine.AuthenticateWithPassword(context.Background(), "bob", testPassword); err != nil {
		t.Fatalf("bob sign-in failed: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the older attempt, got %v", err)
	}
	snap := env.engine.Session()
	if snap.ActiveIdentityID != "id-bob" || !snap.IsVerifiedIdentityPresent {
		t.Fatalf("expected bob's session to stand, got %+v", snap)
	}
}

func TestAdministrativeOverride(t *testing.T) {
	env := newTestEngine(t, nil)

	if _, err := env.engine.AdministrativeOverride(context.Background(), "id-stranger"); !errors.Is(err, ErrOverrideDenied) {
		t.Fatalf("expected ErrOverrideDenied, got %v", err)
	}
	if _, err := env.engine.AdministrativeOverride(context.Background(), ""); !errors.Is(err, ErrOverrideDenied) {
		t.Fatalf("expected ErrOverrideDenied for blank id, got %v", err)
	}
	if env.engine.Session().IsAuthenticated {
		t.Fatal("denied override must not publish")
	}

	snap, err := env.engine.AdministrativeOverride(context.Background(), "id-root")
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if !snap.IsAuthenticated || !snap.IsAdmin || snap.ActiveIdentityID != "id-root" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if got := env.engine.SessionState(); got != session.StateAdminResolved {
		t.Fatalf("expected admin_resolved state, got %s", got)
	}
}

func TestAdministrativeOverrideDisabledByDefault(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Admin.OverrideAllowList = nil
	})

	if _, err := env.engine.AdministrativeOverride(context.Background(), "id-root"); !errors.Is(err, ErrOverrideDenied) {
		t.Fatalf("expected ErrOverrideDenied with an empty allow list, got %v", err)
	}
}
