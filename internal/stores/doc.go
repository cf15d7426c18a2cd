// Package stores provides Redis-backed record stores for the email
// verification token lifecycle.
//
// # Design
//
// The token vault persists a versioned, binary-encoded record per token,
// keyed by the SHA-256 of the token, plus an identity index that enforces one
// active token per identity. Mutations use WATCH/MULTI optimistic
// transactions with bounded retry on contention. Email comparisons are
// constant-time. Records carry no TTL unless the caller supplies one.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for verification
// records. It does NOT generate tokens, send notifications, or flip
// verification flags. Those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goIdentity or any sibling internal package other than the
//     token helpers.
//   - Log or expose raw tokens.
package stores
