// Package goIdentity reconciles a user's identity across a local credential
// record, a remote profile document and third-party provider assertions, and
// publishes the result as one observable session.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config],
// the store and verifier interfaces, and value types ([Identity],
// [SessionSnapshot], [VerificationResult]). Token persistence, throttling and
// audit dispatch live under internal/ and are never exported. Concrete stores
// live in credstore and profilestore; provider verifiers in provider; the
// SMTP dispatcher in notify.
//
// # Sign-in and session
//
// Every sign-in opens an attempt on the session machine. The attempt publishes
// only if no newer attempt has published and no logout happened since it
// began, so a slow network response can never overwrite a newer session and
// a logout wins over every sign-in still in flight.
//
// # What this package must NOT do
//
//   - Log passwords, hashes, salts or verification tokens.
//   - Persist raw provider tokens.
//   - Import any sub-package that re-imports goIdentity (no import cycles).
package goIdentity
