// Package session owns the published authentication state of one caller.
//
// # Model
//
// A [Machine] holds the current [Snapshot] and replaces it atomically; fields
// are never mutated in place. Sign-in work runs outside the machine and is
// represented by an [Attempt]. An attempt publishes only when it is newer than
// both the last published attempt and the last [Machine.Reset], so a slow,
// stale attempt cannot overwrite a newer completed one and logout invalidates
// every in-flight attempt synchronously.
//
// # States
//
//	Unauthenticated -> Authenticating -> Authenticated -> AdminResolved | Ready -> Unauthenticated
//
// # Architecture boundaries
//
// This package does not reconcile identities, hash passwords, or touch stores.
// The Engine resolves a [Principal] and hands it to the machine.
//
// # What this package must NOT do
//
//   - Import goIdentity, password, or permission (no upward imports).
//   - Call observers while holding the state lock.
package session
