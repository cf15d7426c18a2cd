package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
)

// ProviderKind names an authentication source.
type ProviderKind string

const (
	// ProviderPassword is the local email/username + password source.
	ProviderPassword ProviderKind = "password"
	// ProviderOAuthA is the first third-party identity provider (Google ID tokens).
	ProviderOAuthA ProviderKind = "oauth_a"
	// ProviderOAuthB is the second third-party identity provider (signed JWT assertions).
	ProviderOAuthB ProviderKind = "oauth_b"
)

// External reports whether k is a third-party provider.
func (k ProviderKind) External() bool {
	return k == ProviderOAuthA || k == ProviderOAuthB
}

// CredentialRecord is the locally persisted account row. Credential holds the
// separator-joined hash and salt produced by [password.Encode]; an empty
// Credential means the account has no password.
type CredentialRecord struct {
	IdentityID string
	Email      string
	Username   string
	Credential string
	Iterations int
	IsVerified bool
}

// HasPassword reports whether r carries a password credential.
func (r *CredentialRecord) HasPassword() bool {
	return r != nil && r.Credential != ""
}

// Hashed decodes the stored credential. A missing separator, undecodable
// parts or an out-of-range iteration count yield [ErrMalformedCredential];
// an empty hash or salt yields [ErrInvalidInput].
func (r *CredentialRecord) Hashed() (password.HashedCredential, error) {
	if r == nil {
		return password.HashedCredential{}, ErrInvalidInput
	}
	cred, err := password.Decode(r.Credential, r.Iterations)
	if err != nil {
		if errors.Is(err, password.ErrEmptyCredential) {
			return password.HashedCredential{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return password.HashedCredential{}, err
	}
	return cred, nil
}

// RemoteProfile is the remote document-store view of an identity. It is the
// source of truth for display data, role flags and provider links.
type RemoteProfile struct {
	IdentityID  string
	Email       string
	DisplayName string
	RoleFlags   permission.Flags
	IsVerified  bool
	Providers   map[ProviderKind]string
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// ProfileUpdate is a merge-style partial update: nil fields are left
// untouched.
type ProfileUpdate struct {
	Email       *string
	DisplayName *string
	RoleFlags   *permission.Flags
	IsVerified  *bool
	LastLoginAt *time.Time
}

// Empty reports whether u changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Email == nil && u.DisplayName == nil && u.RoleFlags == nil && u.IsVerified == nil && u.LastLoginAt == nil
}

// Apply merges u into p.
func (u ProfileUpdate) Apply(p *RemoteProfile) {
	if p == nil {
		return
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.RoleFlags != nil {
		p.RoleFlags = *u.RoleFlags
	}
	if u.IsVerified != nil {
		p.IsVerified = *u.IsVerified
	}
	if u.LastLoginAt != nil {
		p.LastLoginAt = *u.LastLoginAt
	}
}

// ProviderAssertion is a third-party identity claim that has already been
// verified. RawToken is kept for the verifier round-trip only and is never
// persisted.
type ProviderAssertion struct {
	Kind        ProviderKind
	SubjectID   string
	DisplayName string
	Email       string
	RawToken    string
}

// Identity is the canonical, reconciled view of an authenticated account.
type Identity struct {
	IdentityID  string
	Email       string
	Username    string
	DisplayName string
	RoleFlags   permission.Flags
	Roles       []string
	IsVerified  bool
	HasPassword bool
	Providers   map[ProviderKind]string
	CreatedAt   time.Time
	LastLoginAt time.Time
	Source      ProviderKind
}

// IsAdmin reports whether the identity carries the admin role flag.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.RoleFlags.IsAdmin()
}

func (i *Identity) principal() *session.Principal {
	if i == nil {
		return nil
	}
	return &session.Principal{
		IdentityID: i.IdentityID,
		Verified:   i.IsVerified,
		Admin:      i.RoleFlags.IsAdmin(),
	}
}

// ConsumeResult is the outcome of redeeming a verification token.
type ConsumeResult string

const (
	// ConsumeInvalid means the token is unknown or bound to another email.
	ConsumeInvalid ConsumeResult = "invalid"
	// ConsumeAlreadyVerified means the token was redeemed before.
	ConsumeAlreadyVerified ConsumeResult = "already_verified"
	// ConsumeNewlyVerified means this call performed the transition.
	ConsumeNewlyVerified ConsumeResult = "newly_verified"
)

// VerificationToken is returned by [Engine.RequestEmailVerification]. Token
// is the opaque value to deliver out-of-band.
type VerificationToken struct {
	Token      string
	IdentityID string
	Email      string
	IssuedAt   time.Time
	Consumed   bool
}

// VerificationResult reports what [Engine.ConfirmEmailVerification] applied.
type VerificationResult struct {
	Result           ConsumeResult
	IdentityID       string
	LocalApplied     bool
	RemoteApplied    bool
	NotificationSent bool
}

// CreateAccountRequest is the input for [Engine.CreateAccount].
type CreateAccountRequest struct {
	Email       string `validate:"required,email,max=320"`
	Username    string `validate:"omitempty,alphanum,min=3,max=32"`
	Password    string `validate:"required,min=8,max=1024"`
	DisplayName string `validate:"omitempty,max=128"`
}

// CredentialStore persists [CredentialRecord] values on the device.
// Get resolves either an email or a username. Implementations return
// [ErrNotFound] for missing rows and [ErrAccountExists] when Put would
// collide with another identity's email or username; every other error is
// treated as transient and retried once.
type CredentialStore interface {
	Get(ctx context.Context, identifier string) (*CredentialRecord, error)
	GetByID(ctx context.Context, identityID string) (*CredentialRecord, error)
	Put(ctx context.Context, record CredentialRecord) error
	Delete(ctx context.Context, identityID string) error
}

// ProfileStore persists [RemoteProfile] documents. LinkProvider returns
// [ErrCredentialConflict] when the subject is already linked to a different
// identity and nil when it is already linked to the same one. Create returns
// [ErrAccountExists] when the identity id or provider subject is taken.
type ProfileStore interface {
	Get(ctx context.Context, identityID string) (*RemoteProfile, error)
	FindByProvider(ctx context.Context, kind ProviderKind, subjectID string) (*RemoteProfile, error)
	Create(ctx context.Context, profile RemoteProfile) error
	Update(ctx context.Context, identityID string, update ProfileUpdate) error
	LinkProvider(ctx context.Context, identityID string, kind ProviderKind, subjectID string) error
	Delete(ctx context.Context, identityID string) error
}

// ProviderVerifier turns a raw third-party token into a verified
// [ProviderAssertion].
type ProviderVerifier interface {
	Verify(ctx context.Context, kind ProviderKind, rawToken string) (*ProviderAssertion, error)
}

// Notifier delivers out-of-band messages such as verification links.
type Notifier interface {
	Send(ctx context.Context, email, subject, body string) error
}

// SessionSnapshot is the observable session view.
type SessionSnapshot = session.Snapshot

// SessionState is the session lifecycle position.
type SessionState = session.State

// SessionObserver receives every published [SessionSnapshot] in order.
type SessionObserver = session.Observer

// SessionObserverFunc adapts a function to [SessionObserver].
type SessionObserverFunc = session.ObserverFunc
