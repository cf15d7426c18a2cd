package permission

// Flags is a set of role bits.
type Flags uint64

// Admin grants administrative routing.
const Admin Flags = 1 << 0

// MaxRoles is the number of distinct role bits.
const MaxRoles = 64

// Has reports whether every bit of want is set.
func (f Flags) Has(want Flags) bool {
	return want != 0 && f&want == want
}

// IsAdmin reports whether the admin bit is set.
func (f Flags) IsAdmin() bool {
	return f.Has(Admin)
}

// With returns f with add set.
func (f Flags) With(add Flags) Flags {
	return f | add
}

// Without returns f with remove cleared.
func (f Flags) Without(remove Flags) Flags {
	return f &^ remove
}

// Raw returns the persisted integer form.
func (f Flags) Raw() uint64 {
	return uint64(f)
}
