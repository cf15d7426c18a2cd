package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// AdminRole is the reserved name of the [Admin] bit.
const AdminRole = "admin"

var (
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("role registry frozen")
	// ErrUnknownRole is returned when a role name is not registered.
	ErrUnknownRole = errors.New("unknown role")
)

// Registry maps role names to bits within [Flags].
type Registry struct {
	mu         sync.RWMutex
	nameToFlag map[string]Flags
	flagToName map[Flags]string
	frozen     bool
}

// NewRegistry creates a registry with [AdminRole] pre-registered.
func NewRegistry() *Registry {
	return &Registry{
		nameToFlag: map[string]Flags{AdminRole: Admin},
		flagToName: map[Flags]string{Admin: AdminRole},
	}
}

// Register assigns the next available bit to name. Must be called before
// [Registry.Freeze].
func (r *Registry) Register(name string) (Flags, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return 0, ErrRegistryFrozen
	}
	if name == "" {
		return 0, errors.New("role name cannot be empty")
	}
	if _, exists := r.nameToFlag[name]; exists {
		return 0, fmt.Errorf("role %q already registered", name)
	}

	next := len(r.nameToFlag)
	if next >= MaxRoles {
		return 0, errors.New("role limit exceeded")
	}

	flag := Flags(1) << uint(next)
	r.nameToFlag[name] = flag
	r.flagToName[flag] = name
	return flag, nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the bit for name.
func (r *Registry) Lookup(name string) (Flags, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.nameToFlag[name]
	return f, ok
}

// Parse folds role names into a single [Flags] value.
func (r *Registry) Parse(names []string) (Flags, error) {
	var out Flags
	for _, name := range names {
		f, ok := r.Lookup(name)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		out = out.With(f)
	}
	return out, nil
}

// Names returns the sorted role names set in f. Unregistered bits are ignored.
func (r *Registry) Names(f Flags) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for flag, name := range r.flagToName {
		if f.Has(flag) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
