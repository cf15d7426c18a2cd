// Package credstore provides the device-local [goIdentity.CredentialStore]
// backed by SQLite. The schema is applied with goose from embedded
// migrations on open.
package credstore
