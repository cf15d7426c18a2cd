package provider

import (
	"context"
	"errors"
	"sync"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// TokenVerifier verifies a raw token for one provider.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*goIdentity.ProviderAssertion, error)
}

// Registry routes verification by provider kind.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[goIdentity.ProviderKind]TokenVerifier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[goIdentity.ProviderKind]TokenVerifier)}
}

// Register binds v to kind, replacing any earlier verifier.
func (r *Registry) Register(kind goIdentity.ProviderKind, v TokenVerifier) error {
	if !kind.External() {
		return errors.New("provider: only external provider kinds can be registered")
	}
	if v == nil {
		return errors.New("provider: nil verifier")
	}
	r.mu.Lock()
	r.verifiers[kind] = v
	r.mu.Unlock()
	return nil
}

// Verify implements goIdentity.ProviderVerifier. Unregistered kinds fail
// with goIdentity.ErrProviderUnsupported.
func (r *Registry) Verify(ctx context.Context, kind goIdentity.ProviderKind, rawToken string) (*goIdentity.ProviderAssertion, error) {
	r.mu.RLock()
	v, ok := r.verifiers[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, goIdentity.ErrProviderUnsupported
	}

	assertion, err := v.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if assertion == nil {
		return nil, goIdentity.ErrProviderRejected
	}
	assertion.Kind = kind
	return assertion, nil
}
