package password

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the iteration count used when Config.Iterations is zero.
	DefaultIterations = 210000
	// MinIterations is the floor for newly derived hashes.
	MinIterations = 100000
	// MaxIterations bounds the work a stored record can request at verify time.
	MaxIterations = 10000000

	minSaltLength = 16
	minKeyLength  = 32
	minPassBytes  = 8
	maxPassBytes  = 1024

	// Separator joins the encoded hash and salt. It is outside the base64 alphabet.
	Separator = "$"
)

var (
	// ErrMalformedCredential is returned when a stored credential cannot be parsed.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrEmptyCredential is returned when a stored hash or salt decodes to nothing.
	ErrEmptyCredential = errors.New("credential hash or salt is empty")
	// ErrPasswordPolicy is returned when a password violates the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
)

// Config defines hashing parameters.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// HashedCredential is a derived key together with the parameters that produced it.
type HashedCredential struct {
	Hash       []byte
	Salt       []byte
	Iterations int
}

// PBKDF2 derives and verifies password hashes. It is safe for concurrent use.
type PBKDF2 struct {
	config Config
}

// NewPBKDF2 validates cfg and returns a hasher. Zero fields take defaults.
func NewPBKDF2(cfg Config) (*PBKDF2, error) {
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = minSaltLength
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = sha512.Size
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &PBKDF2{config: cfg}, nil
}

// Iterations returns the configured iteration count.
func (p *PBKDF2) Iterations() int {
	return p.config.Iterations
}

// Hash derives a new credential from password using a fresh random salt.
// Password bytes are used exactly as provided, with no Unicode normalization.
func (p *PBKDF2) Hash(password string) (HashedCredential, error) {
	if err := CheckPolicy(password); err != nil {
		return HashedCredential{}, err
	}

	salt := make([]byte, p.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return HashedCredential{}, err
	}

	return HashedCredential{
		Hash:       derive(password, salt, p.config.Iterations, p.config.KeyLength),
		Salt:       salt,
		Iterations: p.config.Iterations,
	}, nil
}

// Verify recomputes the derivation with the stored salt and iterations and
// compares in constant time. Any unusable input yields false.
func (p *PBKDF2) Verify(password string, against HashedCredential) bool {
	if len(against.Hash) == 0 || len(against.Salt) == 0 {
		return false
	}
	if against.Iterations < 1 || against.Iterations > MaxIterations {
		return false
	}

	computed := derive(password, against.Salt, against.Iterations, len(against.Hash))
	return subtle.ConstantTimeCompare(computed, against.Hash) == 1
}

// VerifyEncoded decodes a stored field and verifies password against it.
// Decoding failures are returned so callers can tell a corrupt record from a
// wrong password.
func (p *PBKDF2) VerifyEncoded(password, encoded string, iterations int) (bool, error) {
	cred, err := Decode(encoded, iterations)
	if err != nil {
		return false, err
	}
	return p.Verify(password, cred), nil
}

// NeedsRehash reports whether cred was derived with weaker parameters than
// the hasher's configuration.
func (p *PBKDF2) NeedsRehash(cred HashedCredential) bool {
	return cred.Iterations < p.config.Iterations || len(cred.Salt) < p.config.SaltLength
}

// CheckPolicy enforces the byte-length bounds applied to new passwords.
func CheckPolicy(password string) error {
	if len(password) < minPassBytes {
		return fmt.Errorf("%w: password must be at least %d bytes", ErrPasswordPolicy, minPassBytes)
	}
	if len(password) > maxPassBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrPasswordPolicy, maxPassBytes)
	}
	return nil
}

// Encode joins the base64 hash and salt with [Separator].
func Encode(cred HashedCredential) string {
	return base64.StdEncoding.EncodeToString(cred.Hash) +
		Separator +
		base64.StdEncoding.EncodeToString(cred.Salt)
}

// Decode splits a stored field produced by [Encode].
func Decode(encoded string, iterations int) (HashedCredential, error) {
	idx := strings.Index(encoded, Separator)
	if idx < 0 {
		return HashedCredential{}, fmt.Errorf("%w: separator not found", ErrMalformedCredential)
	}
	if iterations < 1 || iterations > MaxIterations {
		return HashedCredential{}, fmt.Errorf("%w: iterations out of range", ErrMalformedCredential)
	}

	hash, err := base64.StdEncoding.DecodeString(encoded[:idx])
	if err != nil {
		return HashedCredential{}, fmt.Errorf("%w: invalid hash encoding", ErrMalformedCredential)
	}
	salt, err := base64.StdEncoding.DecodeString(encoded[idx+len(Separator):])
	if err != nil {
		return HashedCredential{}, fmt.Errorf("%w: invalid salt encoding", ErrMalformedCredential)
	}
	if len(hash) == 0 || len(salt) == 0 {
		return HashedCredential{}, ErrEmptyCredential
	}

	return HashedCredential{Hash: hash, Salt: salt, Iterations: iterations}, nil
}

func derive(password string, salt []byte, iterations, keyLength int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha512.New)
}

func validateConfig(cfg Config) error {
	if cfg.Iterations < MinIterations {
		return fmt.Errorf("iterations must be >= %d", MinIterations)
	}
	if cfg.Iterations > MaxIterations {
		return fmt.Errorf("iterations must be <= %d", MaxIterations)
	}
	if cfg.SaltLength < minSaltLength {
		return fmt.Errorf("salt length must be >= %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return fmt.Errorf("key length must be >= %d", minKeyLength)
	}
	return nil
}
