// Package profilestore provides [goIdentity.ProfileStore] implementations:
// a MongoDB collection for production and an in-memory map for tests and
// tooling.
package profilestore
