package session

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a [Machine].
type State uint8

const (
	// StateUnauthenticated means no identity is published.
	StateUnauthenticated State = iota
	// StateAuthenticating means at least one attempt is in flight.
	StateAuthenticating
	// StateAuthenticated means a snapshot was published and observers are being notified.
	StateAuthenticated
	// StateAdminResolved is the settled state for an admin identity.
	StateAdminResolved
	// StateReady is the settled state for a non-admin identity.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateAdminResolved:
		return "admin_resolved"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Snapshot is the derived, immutable view of the session.
type Snapshot struct {
	IsAuthenticated           bool
	IsVerifiedIdentityPresent bool
	IsAdmin                   bool
	ActiveIdentityID          string
	Version                   uint64
}

// Empty reports whether s carries no identity.
func (s Snapshot) Empty() bool {
	return !s.IsAuthenticated && !s.IsVerifiedIdentityPresent && !s.IsAdmin && s.ActiveIdentityID == ""
}

// Principal is the resolved identity an attempt publishes.
type Principal struct {
	IdentityID string
	Verified   bool
	Admin      bool
}

func (p *Principal) snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	return Snapshot{
		IsAuthenticated:           true,
		IsVerifiedIdentityPresent: p.Verified,
		IsAdmin:                   p.Admin,
		ActiveIdentityID:          p.IdentityID,
	}
}

// Observer receives every published snapshot in publish order.
// Observers must not call mutating Machine methods synchronously.
type Observer interface {
	OnSnapshot(Snapshot)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Snapshot)

// OnSnapshot calls f(s).
func (f ObserverFunc) OnSnapshot(s Snapshot) { f(s) }

type observerEntry struct {
	id  uint64
	obs Observer
}

// Machine is the single writer of session state. The zero value is not
// usable; call [NewMachine].
type Machine struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	current atomic.Pointer[Snapshot]

	settled      State
	inflight     int
	nextSeq      uint64
	publishedSeq uint64
	floor        uint64
	version      uint64

	observers      []observerEntry
	nextObserverID uint64
	teardowns      []func()
}

// NewMachine returns a machine in [StateUnauthenticated].
func NewMachine() *Machine {
	m := &Machine{settled: StateUnauthenticated}
	m.current.Store(&Snapshot{})
	return m
}

// Current returns the latest published snapshot without locking.
func (m *Machine) Current() Snapshot {
	return *m.current.Load()
}

// State returns the lifecycle state. Any in-flight attempt reports
// [StateAuthenticating].
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight > 0 {
		return StateAuthenticating
	}
	return m.settled
}

// Begin registers a new sign-in attempt. Every attempt must end with
// Resolve or Abandon.
func (m *Machine) Begin() *Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	m.inflight++
	return &Attempt{m: m, seq: m.nextSeq}
}

// Reset clears the session, invalidates every outstanding attempt and runs
// registered teardown hooks. It is safe to call repeatedly and from
// [StateUnauthenticated]; the empty snapshot is published only once.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.floor = m.nextSeq
	m.settled = StateUnauthenticated
	teardowns := append([]func(){}, m.teardowns...)

	if m.current.Load().Empty() {
		m.mu.Unlock()
	} else {
		snap, observers := m.publishLocked(Snapshot{})
		m.deliverAndUnlock(snap, observers)
	}

	for _, fn := range teardowns {
		fn()
	}
}

// Override publishes an authenticated admin snapshot for identityID without
// any credential check. It supersedes every attempt begun before it.
func (m *Machine) Override(identityID string) Snapshot {
	m.mu.Lock()
	m.nextSeq++
	m.publishedSeq = m.nextSeq
	snap, observers := m.publishLocked(Snapshot{
		IsAuthenticated:  true,
		IsAdmin:          true,
		ActiveIdentityID: identityID,
	})
	m.deliverAndUnlock(snap, observers)
	return snap
}

// Amend republishes the active session with a new verification flag, for
// example after the identity confirmed its email. It is a no-op when
// identityID is not the active identity or the flag is unchanged.
func (m *Machine) Amend(identityID string, verified bool) bool {
	m.mu.Lock()
	cur := m.current.Load()
	if !cur.IsAuthenticated || cur.ActiveIdentityID != identityID || cur.IsVerifiedIdentityPresent == verified {
		m.mu.Unlock()
		return false
	}

	next := *cur
	next.IsVerifiedIdentityPresent = verified
	snap, observers := m.publishLocked(next)
	m.deliverAndUnlock(snap, observers)
	return true
}

// Subscribe registers obs and immediately delivers the current snapshot.
// The returned function removes the observer.
func (m *Machine) Subscribe(obs Observer) func() {
	if obs == nil {
		return func() {}
	}

	m.mu.Lock()
	m.nextObserverID++
	id := m.nextObserverID
	m.observers = append(m.observers, observerEntry{id: id, obs: obs})
	snap := *m.current.Load()

	m.notifyMu.Lock()
	m.mu.Unlock()
	obs.OnSnapshot(snap)
	m.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, e := range m.observers {
				if e.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// OnTeardown registers fn to run on every Reset. Hooks must be idempotent.
func (m *Machine) OnTeardown(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardowns = append(m.teardowns, fn)
}

func (m *Machine) publishLocked(next Snapshot) (Snapshot, []Observer) {
	m.version++
	next.Version = m.version
	m.current.Store(&next)

	if next.IsAuthenticated {
		m.settled = StateAuthenticated
	} else {
		m.settled = StateUnauthenticated
	}

	observers := make([]Observer, 0, len(m.observers))
	for _, e := range m.observers {
		observers = append(observers, e.obs)
	}
	return next, observers
}

// deliverAndUnlock hands the notify lock over before releasing the state
// lock so deliveries keep publish order.
func (m *Machine) deliverAndUnlock(snap Snapshot, observers []Observer) {
	m.notifyMu.Lock()
	m.mu.Unlock()
	for _, obs := range observers {
		obs.OnSnapshot(snap)
	}
	m.notifyMu.Unlock()

	if !snap.IsAuthenticated {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != snap.Version {
		return
	}
	if snap.IsAdmin {
		m.settled = StateAdminResolved
	} else {
		m.settled = StateReady
	}
}

// Attempt is one in-flight sign-in.
type Attempt struct {
	m    *Machine
	seq  uint64
	done atomic.Bool
}

// Seq returns the attempt's sequence number.
func (a *Attempt) Seq() uint64 {
	return a.seq
}

// Live reports whether the attempt could still publish.
func (a *Attempt) Live() bool {
	if a == nil || a.done.Load() {
		return false
	}
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	return a.seq > a.m.floor && a.seq > a.m.publishedSeq
}

// Resolve publishes p (nil means unauthenticated) if the attempt is still
// the newest and no reset happened since it began. It reports whether the
// snapshot was published.
func (a *Attempt) Resolve(p *Principal) bool {
	if a == nil || !a.done.CompareAndSwap(false, true) {
		return false
	}

	m := a.m
	m.mu.Lock()
	m.inflight--
	if a.seq <= m.floor || a.seq <= m.publishedSeq {
		m.mu.Unlock()
		return false
	}

	m.publishedSeq = a.seq
	snap, observers := m.publishLocked(p.snapshot())
	m.deliverAndUnlock(snap, observers)
	return true
}

// Abandon ends the attempt without publishing.
func (a *Attempt) Abandon() {
	if a == nil || !a.done.CompareAndSwap(false, true) {
		return
	}
	a.m.mu.Lock()
	a.m.inflight--
	a.m.mu.Unlock()
}
