package provider

import (
	"context"
	"errors"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type stubVerifier struct {
	assertion *goIdentity.ProviderAssertion
	err       error
}

func (s stubVerifier) Verify(context.Context, string) (*goIdentity.ProviderAssertion, error) {
	if s.err != nil || s.assertion == nil {
		return nil, s.err
	}
	out := *s.assertion
	return &out, nil
}

func TestRegistryRoutesByKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(goIdentity.ProviderOAuthA, stubVerifier{assertion: &goIdentity.ProviderAssertion{SubjectID: "a"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Verify(context.Background(), goIdentity.ProviderOAuthA, "raw")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Kind != goIdentity.ProviderOAuthA || got.SubjectID != "a" {
		t.Fatalf("unexpected assertion: %+v", got)
	}

	if _, err := r.Verify(context.Background(), goIdentity.ProviderOAuthB, "raw"); !errors.Is(err, goIdentity.ErrProviderUnsupported) {
		t.Fatalf("expected unsupported provider, got %v", err)
	}
}

func TestRegistryRejectsPasswordKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(goIdentity.ProviderPassword, stubVerifier{}); err == nil {
		t.Fatal("expected password kind to be rejected")
	}
	if err := r.Register(goIdentity.ProviderOAuthB, nil); err == nil {
		t.Fatal("expected nil verifier to be rejected")
	}
}

func TestRegistryPropagatesVerifierError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	_ = r.Register(goIdentity.ProviderOAuthB, stubVerifier{err: boom})

	if _, err := r.Verify(context.Background(), goIdentity.ProviderOAuthB, "raw"); !errors.Is(err, boom) {
		t.Fatalf("expected verifier error, got %v", err)
	}
}

func TestRegistryRejectsEmptyAssertion(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(goIdentity.ProviderOAuthA, stubVerifier{})

	got, err := r.Verify(context.Background(), goIdentity.ProviderOAuthA, "raw")
	if !errors.Is(err, goIdentity.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no assertion, got %+v", got)
	}
}
