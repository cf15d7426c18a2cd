package middleware

import (
	"context"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// SessionSource exposes the published session snapshot. *goIdentity.Engine
// satisfies it.
type SessionSource interface {
	Session() goIdentity.SessionSnapshot
}

// Requirement is the minimum session a guarded route accepts.
type Requirement int

const (
	// Authenticated admits any published identity.
	Authenticated Requirement = iota
	// Verified additionally requires a verified identity.
	Verified
	// Admin requires admin role flags.
	Admin
)

type snapshotContextKey struct{}

// SnapshotFromContext returns the snapshot a guard admitted the request with.
func SnapshotFromContext(ctx context.Context) (goIdentity.SessionSnapshot, bool) {
	snap, ok := ctx.Value(snapshotContextKey{}).(goIdentity.SessionSnapshot)
	return snap, ok
}

// Guard rejects requests whose session does not satisfy req. An
// unauthenticated session gets 401; an authenticated one that falls short
// gets 403.
func Guard(source SessionSource, req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			snap := source.Session()
			if !snap.IsAuthenticated {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !satisfies(snap, req) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), snapshotContextKey{}, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireVerified is Guard(source, Verified).
func RequireVerified(source SessionSource) func(http.Handler) http.Handler {
	return Guard(source, Verified)
}

// RequireAdmin is Guard(source, Admin).
func RequireAdmin(source SessionSource) func(http.Handler) http.Handler {
	return Guard(source, Admin)
}

func satisfies(snap goIdentity.SessionSnapshot, req Requirement) bool {
	switch req {
	case Authenticated:
		return true
	case Verified:
		return snap.IsVerifiedIdentityPresent
	case Admin:
		return snap.IsAdmin
	default:
		return false
	}
}
