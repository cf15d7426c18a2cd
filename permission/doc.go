// Package permission provides the role bitmask carried by remote profiles and
// a registry that maps role names to bits.
//
// # Roles
//
// [Admin] is bit 0 and is always registered. Deployments may register further
// roles (for example "moderator" or "owner") before freezing the registry.
// Bit positions are stable for the lifetime of the process and are persisted
// as the integer value of [Flags].
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goIdentity or session.
package permission
