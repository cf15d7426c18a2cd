package goIdentity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

var errStoreDown = errors.New("store unreachable")

var (
	seedCredentialOnce sync.Once
	seedCredential     string
	seedCredentialErr  error
)

// testCredential returns testPassword encoded at the minimum iteration
// count. It is derived once per test binary.
func testCredential(t *testing.T) string {
	t.Helper()
	seedCredentialOnce.Do(func() {
		hasher, err := password.NewPBKDF2(password.Config{
			Iterations: password.MinIterations,
			SaltLength: 16,
			KeyLength:  64,
		})
		if err != nil {
			seedCredentialErr = err
			return
		}
		cred, err := hasher.Hash(testPassword)
		if err != nil {
			seedCredentialErr = err
			return
		}
		seedCredential = password.Encode(cred)
	})
	if seedCredentialErr != nil {
		t.Fatalf("derive seed credential: %v", seedCredentialErr)
	}
	return seedCredential
}

// faultQueue hands out queued errors one call at a time.
type faultQueue struct {
	errs []error
}

func (q *faultQueue) push(errs ...error) {
	q.errs = append(q.errs, errs...)
}

func (q *faultQueue) pop() error {
	if len(q.errs) == 0 {
		return nil
	}
	err := q.errs[0]
	q.errs = q.errs[1:]
	return err
}

type fakeCredentialStore struct {
	mu      sync.Mutex
	records map[string]CredentialRecord
	getErrs faultQueue
	putErrs faultQueue
	getHook func(identifier string)
	puts    int
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{records: make(map[string]CredentialRecord)}
}

func (s *fakeCredentialStore) Get(ctx context.Context, identifier string) (*CredentialRecord, error) {
	s.mu.Lock()
	hook := s.getHook
	s.mu.Unlock()
	if hook != nil {
		hook(identifier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErrs.pop(); err != nil {
		return nil, err
	}
	byEmail := strings.Contains(identifier, "@")
	for _, r := range s.records {
		if byEmail && strings.EqualFold(r.Email, identifier) {
			out := r
			return &out, nil
		}
		if !byEmail && r.Username != "" && strings.EqualFold(r.Username, identifier) {
			out := r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeCredentialStore) GetByID(ctx context.Context, identityID string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErrs.pop(); err != nil {
		return nil, err
	}
	r, ok := s.records[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *fakeCredentialStore) Put(ctx context.Context, record CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putErrs.pop(); err != nil {
		return err
	}
	for id, r := range s.records {
		if id == record.IdentityID {
			continue
		}
		if strings.EqualFold(r.Email, record.Email) {
			return ErrAccountExists
		}
		if record.Username != "" && strings.EqualFold(r.Username, record.Username) {
			return ErrAccountExists
		}
	}
	s.records[record.IdentityID] = record
	s.puts++
	return nil
}

func (s *fakeCredentialStore) Delete(ctx context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[identityID]; !ok {
		return ErrNotFound
	}
	delete(s.records, identityID)
	return nil
}

func (s *fakeCredentialStore) record(identityID string) (CredentialRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[identityID]
	return r, ok
}

func (s *fakeCredentialStore) setGetHook(fn func(identifier string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getHook = fn
}

func (s *fakeCredentialStore) failGet(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErrs.push(errs...)
}

func (s *fakeCredentialStore) failPut(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErrs.push(errs...)
}

type fakeProfileStore struct {
	mu         sync.Mutex
	profiles   map[string]RemoteProfile
	updateErrs faultQueue
	updates    int
	createHook func(profile RemoteProfile)
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]RemoteProfile)}
}

func (s *fakeProfileStore) Get(ctx context.Context, identityID string) (*RemoteProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyProfile(p)
	return &out, nil
}

func (s *fakeProfileStore) FindByProvider(ctx context.Context, kind ProviderKind, subjectID string) (*RemoteProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ownerLocked(kind, subjectID); ok {
		out := copyProfile(s.profiles[id])
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *fakeProfileStore) Create(ctx context.Context, profile RemoteProfile) error {
	s.mu.Lock()
	hook := s.createHook
	s.mu.Unlock()
	if hook != nil {
		hook(profile)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.IdentityID]; ok {
		return ErrAccountExists
	}
	for kind, subject := range profile.Providers {
		if kind.External() {
			if _, taken := s.ownerLocked(kind, subject); taken {
				return ErrAccountExists
			}
		}
	}
	s.profiles[profile.IdentityID] = copyProfile(profile)
	return nil
}

func (s *fakeProfileStore) Update(ctx context.Context, identityID string, update ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErrs.pop(); err != nil {
		return err
	}
	p, ok := s.profiles[identityID]
	if !ok {
		return ErrNotFound
	}
	update.Apply(&p)
	s.profiles[identityID] = p
	s.updates++
	return nil
}

func (s *fakeProfileStore) LinkProvider(ctx context.Context, identityID string, kind ProviderKind, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := s.ownerLocked(kind, subjectID); taken {
		if owner == identityID {
			return nil
		}
		return ErrCredentialConflict
	}
	if p.Providers == nil {
		p.Providers = make(map[ProviderKind]string)
	}
	p.Providers[kind] = subjectID
	s.profiles[identityID] = p
	return nil
}

func (s *fakeProfileStore) Delete(ctx context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[identityID]; !ok {
		return ErrNotFound
	}
	delete(s.profiles, identityID)
	return nil
}

func (s *fakeProfileStore) ownerLocked(kind ProviderKind, subjectID string) (string, bool) {
	for id, p := range s.profiles {
		if p.Providers[kind] == subjectID {
			return id, true
		}
	}
	return "", false
}

func (s *fakeProfileStore) profile(identityID string) (RemoteProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identityID]
	return copyProfile(p), ok
}

func (s *fakeProfileStore) put(profile RemoteProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.IdentityID] = copyProfile(profile)
}

func (s *fakeProfileStore) setCreateHook(fn func(profile RemoteProfile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createHook = fn
}

func (s *fakeProfileStore) failUpdate(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErrs.push(errs...)
}

func copyProfile(p RemoteProfile) RemoteProfile {
	if p.Providers != nil {
		providers := make(map[ProviderKind]string, len(p.Providers))
		for k, v := range p.Providers {
			providers[k] = v
		}
		p.Providers = providers
	}
	return p
}

type sentMessage struct {
	email   string
	subject string
	body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	errs faultQueue
}

func (n *recordingNotifier) Send(ctx context.Context, email, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.errs.pop(); err != nil {
		return err
	}
	n.sent = append(n.sent, sentMessage{email: email, subject: subject, body: body})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *recordingNotifier) fail(errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs.push(errs...)
}

type stubVerifier struct {
	assertion *ProviderAssertion
	err       error
}

func (v stubVerifier) Verify(ctx context.Context, kind ProviderKind, rawToken string) (*ProviderAssertion, error) {
	if v.err != nil {
		return nil, v.err
	}
	out := *v.assertion
	out.RawToken = rawToken
	return &out, nil
}

type testEnv struct {
	engine   *Engine
	creds    *fakeCredentialStore
	profiles *fakeProfileStore
	notifier *recordingNotifier
	redis    *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Iterations = password.MinIterations
	cfg.Store.RetryBackoff = time.Millisecond
	cfg.Verification.IssueOnCreate = false
	cfg.Admin.OverrideAllowList = []string{"id-root"}
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config), extra ...func(*Builder)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		creds:    newFakeCredentialStore(),
		profiles: newFakeProfileStore(),
		notifier: &recordingNotifier{},
		redis:    mr,
	}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.creds).
		WithProfileStore(env.profiles).
		WithNotifier(env.notifier).
		WithRoles("member", "editor")
	for _, fn := range extra {
		fn(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) seedAccount(t *testing.T, identityID, email, username string, verified bool) CredentialRecord {
	t.Helper()
	record := CredentialRecord{
		IdentityID: identityID,
		Email:      email,
		Username:   username,
		Credential: testCredential(t),
		Iterations: password.MinIterations,
		IsVerified: verified,
	}
	if err := env.creds.Put(context.Background(), record); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return record
}
