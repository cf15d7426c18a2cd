package profilestore

import (
	"context"
	"sync"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// MemoryStore is a process-local [goIdentity.ProfileStore] with the same
// uniqueness rules as [MongoStore].
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]goIdentity.RemoteProfile
	// providers maps kind -> subject -> identity id.
	providers map[goIdentity.ProviderKind]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]goIdentity.RemoteProfile),
		providers: make(map[goIdentity.ProviderKind]map[string]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, identityID string) (*goIdentity.RemoteProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[identityID]
	if !ok {
		return nil, goIdentity.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *MemoryStore) FindByProvider(_ context.Context, kind goIdentity.ProviderKind, subjectID string) (*goIdentity.RemoteProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.providers[kind][subjectID]
	if !ok || subjectID == "" {
		return nil, goIdentity.ErrNotFound
	}
	return cloneProfile(s.profiles[id]), nil
}

func (s *MemoryStore) Create(_ context.Context, profile goIdentity.RemoteProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.IdentityID]; exists {
		return goIdentity.ErrAccountExists
	}
	for kind, subject := range profile.Providers {
		if !kind.External() {
			continue
		}
		if _, taken := s.providers[kind][subject]; taken {
			return goIdentity.ErrAccountExists
		}
	}

	stored := *cloneProfile(profile)
	s.profiles[profile.IdentityID] = stored
	for kind, subject := range stored.Providers {
		if kind.External() {
			s.index(kind)[subject] = stored.IdentityID
		}
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, identityID string, update goIdentity.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[identityID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	update.Apply(&p)
	s.profiles[identityID] = p
	return nil
}

func (s *MemoryStore) LinkProvider(_ context.Context, identityID string, kind goIdentity.ProviderKind, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[identityID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	if kind.External() {
		if owner, taken := s.providers[kind][subjectID]; taken {
			if owner == identityID {
				return nil
			}
			return goIdentity.ErrCredentialConflict
		}
		if previous, had := p.Providers[kind]; had {
			delete(s.providers[kind], previous)
		}
		s.index(kind)[subjectID] = identityID
	}
	if p.Providers == nil {
		p.Providers = make(map[goIdentity.ProviderKind]string)
	}
	p.Providers[kind] = subjectID
	s.profiles[identityID] = p
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[identityID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	for kind, subject := range p.Providers {
		if s.providers[kind][subject] == identityID {
			delete(s.providers[kind], subject)
		}
	}
	delete(s.profiles, identityID)
	return nil
}

// Len returns the number of stored profiles.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

func (s *MemoryStore) index(kind goIdentity.ProviderKind) map[string]string {
	m, ok := s.providers[kind]
	if !ok {
		m = make(map[string]string)
		s.providers[kind] = m
	}
	return m
}

func cloneProfile(p goIdentity.RemoteProfile) *goIdentity.RemoteProfile {
	out := p
	out.Providers = make(map[goIdentity.ProviderKind]string, len(p.Providers))
	for k, v := range p.Providers {
		out.Providers[k] = v
	}
	return &out
}
