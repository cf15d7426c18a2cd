// Package provider verifies third-party identity tokens and turns them into
// goIdentity.ProviderAssertion values.
//
// [Registry] implements goIdentity.ProviderVerifier by routing each
// provider kind to a [TokenVerifier]. Two verifiers ship with the package:
// [GoogleVerifier] checks Google ID tokens against the tokeninfo endpoint and
// [JWTVerifier] checks locally signed JWT assertions (HS256 or Ed25519).
//
// # What this package must NOT do
//
//   - Persist or log raw tokens.
//   - Create identities or touch stores. Verified assertions are handed to
//     the Engine.
package provider
