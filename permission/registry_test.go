package permission

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistryAdminReserved(t *testing.T) {
	r := NewRegistry()
	f, ok := r.Lookup(AdminRole)
	if !ok || f != Admin {
		t.Fatalf("expected admin bit pre-registered, got %v %v", f, ok)
	}
	if _, err := r.Register(AdminRole); err == nil {
		t.Fatal("expected duplicate admin registration to fail")
	}
}

func TestRegistryRegisterParseNames(t *testing.T) {
	r := NewRegistry()
	mod, err := r.Register("moderator")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	owner, err := r.Register("owner")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if mod == owner || mod == Admin {
		t.Fatal("expected distinct bits")
	}
	r.Freeze()

	if _, err := r.Register("late"); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("expected ErrRegistryFrozen, got %v", err)
	}

	flags, err := r.Parse([]string{"owner", "admin"})
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !flags.IsAdmin() || !flags.Has(owner) || flags.Has(mod) {
		t.Fatalf("unexpected flags %b", flags)
	}
	if got := r.Names(flags); !reflect.DeepEqual(got, []string{"admin", "owner"}) {
		t.Fatalf("unexpected names %v", got)
	}

	if _, err := r.Parse([]string{"ghost"}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestFlagsOps(t *testing.T) {
	var f Flags
	if f.IsAdmin() || f.Has(0) {
		t.Fatal("zero flags must not report membership")
	}
	f = f.With(Admin)
	if !f.IsAdmin() {
		t.Fatal("expected admin after With")
	}
	if f.Without(Admin).IsAdmin() {
		t.Fatal("expected admin cleared")
	}
}
