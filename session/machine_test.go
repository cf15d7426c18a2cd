package session

import (
	"sync"
	"sync/atomic"
	"testing"
)

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) OnSnapshot(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func TestResolvePublishesSnapshot(t *testing.T) {
	m := NewMachine()
	a := m.Begin()
	if m.State() != StateAuthenticating {
		t.Fatalf("expected authenticating, got %s", m.State())
	}

	if !a.Resolve(&Principal{IdentityID: "u1", Verified: true}) {
		t.Fatal("expected resolve to publish")
	}

	got := m.Current()
	if !got.IsAuthenticated || !got.IsVerifiedIdentityPresent || got.IsAdmin || got.ActiveIdentityID != "u1" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if m.State() != StateReady {
		t.Fatalf("expected ready, got %s", m.State())
	}
}

func TestAdminPrincipalSettlesAdminResolved(t *testing.T) {
	m := NewMachine()
	m.Begin().Resolve(&Principal{IdentityID: "admin", Admin: true})
	if m.State() != StateAdminResolved {
		t.Fatalf("expected admin_resolved, got %s", m.State())
	}
}

func TestUnverifiedIdentityIsNotVerifiedPresent(t *testing.T) {
	m := NewMachine()
	m.Begin().Resolve(&Principal{IdentityID: "u1", Verified: false})

	got := m.Current()
	if !got.IsAuthenticated {
		t.Fatal("expected authenticated")
	}
	if got.IsVerifiedIdentityPresent {
		t.Fatal("expected verified flag to stay false")
	}
}

func TestStaleAttemptCannotOverwriteNewer(t *testing.T) {
	m := NewMachine()
	slow := m.Begin()
	fast := m.Begin()

	if !fast.Resolve(&Principal{IdentityID: "fast"}) {
		t.Fatal("expected newer attempt to publish")
	}
	if slow.Resolve(&Principal{IdentityID: "slow"}) {
		t.Fatal("expected stale attempt to be rejected")
	}
	if got := m.Current().ActiveIdentityID; got != "fast" {
		t.Fatalf("expected fast identity, got %q", got)
	}
	if slow.Live() {
		t.Fatal("expected resolved attempt to be dead")
	}
}

func TestResetInvalidatesInFlightAttempts(t *testing.T) {
	m := NewMachine()
	a := m.Begin()
	m.Reset()

	if a.Live() {
		t.Fatal("expected attempt to be invalidated by reset")
	}
	if a.Resolve(&Principal{IdentityID: "u1"}) {
		t.Fatal("expected attempt begun before reset not to publish")
	}
	if !m.Current().Empty() {
		t.Fatalf("expected empty snapshot, got %+v", m.Current())
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", m.State())
	}
}

func TestResetIdempotentAndRunsTeardown(t *testing.T) {
	m := NewMachine()
	rec := &recorder{}
	cancel := m.Subscribe(rec)
	defer cancel()

	var teardowns atomic.Int32
	m.OnTeardown(func() { teardowns.Add(1) })

	m.Reset()
	m.Reset()

	if got := len(rec.all()); got != 1 {
		t.Fatalf("expected only the initial delivery, got %d", got)
	}
	if teardowns.Load() != 2 {
		t.Fatalf("expected teardown on each reset, got %d", teardowns.Load())
	}

	m.Begin().Resolve(&Principal{IdentityID: "u1"})
	m.Reset()
	m.Reset()

	snaps := rec.all()
	if len(snaps) != 3 {
		t.Fatalf("expected initial, login, logout deliveries; got %d", len(snaps))
	}
	if !snaps[2].Empty() {
		t.Fatalf("expected empty snapshot after reset, got %+v", snaps[2])
	}
}

func TestOverrideSupersedesInFlight(t *testing.T) {
	m := NewMachine()
	a := m.Begin()

	snap := m.Override("ops")
	if !snap.IsAuthenticated || !snap.IsAdmin || snap.ActiveIdentityID != "ops" {
		t.Fatalf("unexpected override snapshot: %+v", snap)
	}
	if a.Resolve(&Principal{IdentityID: "u1"}) {
		t.Fatal("expected earlier attempt not to overwrite override")
	}
	if m.State() != StateAdminResolved {
		t.Fatalf("expected admin_resolved, got %s", m.State())
	}
}

func TestAmendOnlyActiveIdentity(t *testing.T) {
	m := NewMachine()
	m.Begin().Resolve(&Principal{IdentityID: "u1"})

	if m.Amend("u2", true) {
		t.Fatal("expected amend for inactive identity to be ignored")
	}
	if !m.Amend("u1", true) {
		t.Fatal("expected amend for active identity to publish")
	}
	if m.Amend("u1", true) {
		t.Fatal("expected unchanged amend to be a no-op")
	}
	if !m.Current().IsVerifiedIdentityPresent {
		t.Fatal("expected verified flag after amend")
	}
}

func TestSubscribeDeliversCurrentAndCancel(t *testing.T) {
	m := NewMachine()
	m.Begin().Resolve(&Principal{IdentityID: "u1"})

	rec := &recorder{}
	cancel := m.Subscribe(rec)
	if snaps := rec.all(); len(snaps) != 1 || snaps[0].ActiveIdentityID != "u1" {
		t.Fatalf("expected current snapshot on subscribe, got %+v", snaps)
	}

	cancel()
	cancel()
	m.Reset()
	if got := len(rec.all()); got != 1 {
		t.Fatalf("expected no delivery after cancel, got %d", got)
	}
}

func TestConcurrentAttemptsNeverMixIdentities(t *testing.T) {
	m := NewMachine()

	var seen sync.Map
	cancel := m.Subscribe(ObserverFunc(func(s Snapshot) {
		if s.IsAuthenticated {
			seen.Store(s.ActiveIdentityID, s)
		}
	}))
	defer cancel()

	ids := []string{"a", "b"}
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		id := ids[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Begin().Resolve(&Principal{IdentityID: id, Admin: id == "a"})
		}()
	}
	wg.Wait()

	final := m.Current()
	if final.ActiveIdentityID != "a" && final.ActiveIdentityID != "b" {
		t.Fatalf("unexpected identity %q", final.ActiveIdentityID)
	}
	if final.IsAdmin != (final.ActiveIdentityID == "a") {
		t.Fatalf("snapshot mixes fields across identities: %+v", final)
	}
	seen.Range(func(_, v any) bool {
		s := v.(Snapshot)
		if s.IsAdmin != (s.ActiveIdentityID == "a") {
			t.Fatalf("observer saw torn snapshot: %+v", s)
		}
		return true
	})
}

func TestDeliveriesKeepPublishOrder(t *testing.T) {
	m := NewMachine()
	rec := &recorder{}
	cancel := m.Subscribe(rec)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Begin().Resolve(&Principal{IdentityID: "u"})
			m.Reset()
		}()
	}
	wg.Wait()

	var last uint64
	for _, s := range rec.all() {
		if s.Version < last {
			t.Fatalf("out-of-order delivery: version %d after %d", s.Version, last)
		}
		last = s.Version
	}
}
