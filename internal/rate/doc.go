// Package rate provides Redis-backed fixed-window counters that throttle
// sign-in and verification requests.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - gl:  failed sign-in per identifier
//   - gli: failed sign-in per IP
//   - gv:  verification requests per identity
//
// # What this package must NOT do
//
//   - Decide what a failure is. Callers report failures explicitly.
//   - Be imported outside the goIdentity module.
package rate
