// Package password implements password hashing and verification with
// PBKDF2-HMAC-SHA512.
//
// # Storage format
//
// A derived key and its salt are stored in one field:
//
//	<base64 hash>$<base64 salt>
//
// The separator never occurs in standard base64 output, so [Decode] splits on
// its first occurrence. A missing separator is [ErrMalformedCredential]; an
// empty hash or salt is [ErrEmptyCredential]. The iteration count is stored
// alongside the field by the caller.
//
// [PBKDF2.NeedsRehash] reports records derived with fewer iterations than the
// configured count so the caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goIdentity package.
//   - Log plaintext passwords or derived keys.
package password
