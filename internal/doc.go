// Package internal contains helpers that are private to goIdentity: token and
// identity id generation and per-identity write serialization.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed fixed-window throttles
//   - stores: Redis-backed verification token vault
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
