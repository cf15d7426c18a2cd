// Package notify provides [goIdentity.Notifier] implementations for
// verification and welcome mail.
package notify
