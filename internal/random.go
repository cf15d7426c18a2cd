package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrMalformedToken is returned when a verification token is not a UUIDv4.
var ErrMalformedToken = errors.New("malformed verification token")

// NewVerificationToken returns a random UUIDv4 string.
func NewVerificationToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseVerificationToken canonicalizes token and rejects anything that is
// not a version 4 UUID.
func ParseVerificationToken(token string) (string, error) {
	id, err := uuid.Parse(token)
	if err != nil || id.Version() != 4 {
		return "", ErrMalformedToken
	}
	return id.String(), nil
}

// HashToken returns the storage key material for a token. Raw tokens are
// never used as keys.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// NewIdentityID returns a ULID for a newly created identity.
func NewIdentityID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
