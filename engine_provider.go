package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

type providerSignIn struct {
	Kind        ProviderKind `validate:"required,oneof=oauth_a oauth_b"`
	SubjectID   string       `validate:"required,max=256"`
	Email       string       `validate:"omitempty,email,max=320"`
	DisplayName string       `validate:"max=128"`
}

// AuthenticateWithProviderToken verifies rawToken with the configured
// [ProviderVerifier] and signs in with the resulting assertion.
func (e *Engine) AuthenticateWithProviderToken(ctx context.Context, kind ProviderKind, rawToken string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.verifier == nil {
		return nil, ErrProviderUnsupported
	}
	if !kind.External() || strings.TrimSpace(rawToken) == "" {
		return nil, ErrInvalidInput
	}

	assertion, err := e.verifier.Verify(ctx, kind, rawToken)
	if err != nil {
		e.metricInc(MetricProviderSignInFailure)
		switch {
		case errors.Is(err, ErrProviderUnsupported),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
		default:
			err = fmt.Errorf("%w: %v", ErrProviderRejected, err)
		}
		e.emitAudit(ctx, auditEventProviderSignInFailure, false, "", kind, err, nil)
		return nil, err
	}
	if assertion == nil {
		return nil, ErrProviderRejected
	}
	assertion.Kind = kind
	assertion.RawToken = ""

	return e.AuthenticateWithProvider(ctx, *assertion)
}

// AuthenticateWithProvider signs in with an already verified provider
// assertion.
//
// When the session is authenticated as an identity the assertion is not yet
// linked to, the provider is linked to that identity. If the subject already
// belongs to a different identity the link fails with a credential conflict
// and the call falls back to a direct provider sign-in. A direct sign-in
// reuses the identity that owns the subject, else the local account with the
// same email, else mints a new identity. Profiles created here start
// verified; the local credential record is never touched.
func (e *Engine) AuthenticateWithProvider(ctx context.Context, assertion ProviderAssertion) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()

	in := providerSignIn{
		Kind:        assertion.Kind,
		SubjectID:   strings.TrimSpace(assertion.SubjectID),
		Email:       strings.TrimSpace(assertion.Email),
		DisplayName: strings.TrimSpace(assertion.DisplayName),
	}
	if err := e.validate.StructCtx(ctx, in); err != nil {
		e.metricInc(MetricProviderSignInFailure)
		e.emitAudit(ctx, auditEventProviderSignInFailure, false, "", assertion.Kind, ErrInvalidInput, nil)
		return nil, ErrInvalidInput
	}

	attempt := e.session.Begin()
	identity, err := e.providerSignIn(ctx, in)
	e.observeSignIn(start)
	if err != nil {
		attempt.Abandon()
		e.metricInc(MetricProviderSignInFailure)
		e.emitAudit(ctx, auditEventProviderSignInFailure, false, "", in.Kind, err, nil)
		return nil, err
	}

	if !attempt.Resolve(identity.principal()) {
		e.metricInc(MetricSignInSuperseded)
		e.emitAudit(ctx, auditEventSignInSuperseded, false, identity.IdentityID, in.Kind, ErrSuperseded, nil)
		return nil, ErrSuperseded
	}

	e.metricInc(MetricProviderSignInSuccess)
	e.emitAudit(ctx, auditEventProviderSignInSuccess, true, identity.IdentityID, in.Kind, nil, nil)
	return identity, nil
}

func (e *Engine) providerSignIn(ctx context.Context, in providerSignIn) (*Identity, error) {
	current := e.session.Current()
	if current.IsAuthenticated && current.ActiveIdentityID != "" {
		identity, err := e.linkProvider(ctx, current.ActiveIdentityID, in)
		switch {
		case err == nil:
			return identity, nil
		case errors.Is(err, ErrCredentialConflict):
			e.metricInc(MetricProviderLinkConflict)
			e.emitAudit(ctx, auditEventProviderLinkConflict, false, current.ActiveIdentityID, in.Kind, err, nil)
			e.logger.Info().
				Str("identity_id", current.ActiveIdentityID).
				Str("provider", string(in.Kind)).
				Msg("provider subject linked elsewhere, signing in directly")
		default:
			return nil, err
		}
	}

	return e.directProviderSignIn(ctx, in)
}

// linkProvider attaches the subject to the active identity. A subject
// already linked to the same identity is a no-op link.
func (e *Engine) linkProvider(ctx context.Context, identityID string, in providerSignIn) (*Identity, error) {
	unlock := e.locks.Lock(identityID)
	defer unlock()

	profile, err := e.getProfile(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Nothing to link to; treat like a subject owned elsewhere.
			return nil, fmt.Errorf("%w: active identity has no profile", ErrCredentialConflict)
		}
		return nil, err
	}

	if profile.Providers[in.Kind] != in.SubjectID {
		if err := e.attachProvider(ctx, profile, in); err != nil {
			return nil, err
		}
	}

	record := e.optionalCredential(ctx, identityID)
	profile, err = e.touchProviderProfile(ctx, record, profile, in, false)
	if err != nil {
		return nil, err
	}

	return e.mergeIdentity(record, profile, in.Kind), nil
}

func (e *Engine) directProviderSignIn(ctx context.Context, in providerSignIn) (*Identity, error) {
	unlock := e.locks.Lock(providerLockKey(in.Kind, in.SubjectID))
	defer unlock()

	profile, err := e.findProfileByProvider(ctx, in.Kind, in.SubjectID)
	switch {
	case err == nil:
		return e.signInLinkedProfile(ctx, profile, in)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	if in.Email != "" {
		record, err := e.getCredential(ctx, in.Email)
		switch {
		case err == nil:
			return e.signInLocalIdentity(ctx, record, in)
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}

	identityID, err := internal.NewIdentityID(e.clock())
	if err != nil {
		return nil, err
	}
	created := newProviderProfile(identityID, in, e.clock())
	if err := e.createProfile(ctx, created); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		// Another device claimed the subject between the lookup and the insert.
		profile, err := e.findProfileByProvider(ctx, in.Kind, in.SubjectID)
		if err != nil {
			return nil, err
		}
		return e.mergeIdentity(nil, profile, in.Kind), nil
	}

	e.metricInc(MetricProfileCreated)
	e.emitAudit(ctx, auditEventProfileCreated, true, identityID, in.Kind, nil, nil)
	return e.mergeIdentity(nil, &created, in.Kind), nil
}

func (e *Engine) signInLinkedProfile(ctx context.Context, profile *RemoteProfile, in providerSignIn) (*Identity, error) {
	unlock := e.locks.Lock(profile.IdentityID)
	defer unlock()

	record := e.optionalCredential(ctx, profile.IdentityID)
	profile, err := e.touchProviderProfile(ctx, record, profile, in, false)
	if err != nil {
		return nil, err
	}
	return e.mergeIdentity(record, profile, in.Kind), nil
}

// signInLocalIdentity reuses the identity of the local account that shares
// the provider email. The profile get-or-create runs under the identity lock;
// a profile created meanwhile by another device gets the provider linked.
func (e *Engine) signInLocalIdentity(ctx context.Context, record *CredentialRecord, in providerSignIn) (*Identity, error) {
	unlock := e.locks.Lock(record.IdentityID)
	defer unlock()

	profile, err := e.getProfile(ctx, record.IdentityID)
	switch {
	case err == nil:
		return e.attachLocalProfile(ctx, record, profile, in)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	created := newProviderProfile(record.IdentityID, in, e.clock())
	if err := e.createProfile(ctx, created); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		profile, err := e.getProfile(ctx, record.IdentityID)
		switch {
		case err == nil:
			return e.attachLocalProfile(ctx, record, profile, in)
		case errors.Is(err, ErrNotFound):
			// The subject was claimed instead.
			profile, err := e.findProfileByProvider(ctx, in.Kind, in.SubjectID)
			if err != nil {
				return nil, err
			}
			return e.mergeIdentity(nil, profile, in.Kind), nil
		default:
			return nil, err
		}
	}

	e.metricInc(MetricProfileCreated)
	e.emitAudit(ctx, auditEventProfileCreated, true, record.IdentityID, in.Kind, nil, nil)
	return e.mergeIdentity(record, &created, in.Kind), nil
}

// attachLocalProfile links the provider to the profile of a local identity
// found by email. Caller holds the identity lock.
func (e *Engine) attachLocalProfile(ctx context.Context, record *CredentialRecord, profile *RemoteProfile, in providerSignIn) (*Identity, error) {
	if profile.Providers[in.Kind] != in.SubjectID {
		if err := e.attachProvider(ctx, profile, in); err != nil {
			return nil, err
		}
	}

	profile, err := e.touchProviderProfile(ctx, record, profile, in, true)
	if err != nil {
		return nil, err
	}
	return e.mergeIdentity(record, profile, in.Kind), nil
}

func (e *Engine) attachProvider(ctx context.Context, profile *RemoteProfile, in providerSignIn) error {
	err := e.withStoreRetry(ctx, "profile_link_provider", func() error {
		return e.profiles.LinkProvider(ctx, profile.IdentityID, in.Kind, in.SubjectID)
	})
	if err != nil {
		return err
	}
	if profile.Providers == nil {
		profile.Providers = make(map[ProviderKind]string, 1)
	}
	profile.Providers[in.Kind] = in.SubjectID
	e.metricInc(MetricProviderLinked)
	e.emitAudit(ctx, auditEventProviderLinked, true, profile.IdentityID, in.Kind, nil, nil)
	return nil
}

func newProviderProfile(identityID string, in providerSignIn, now time.Time) RemoteProfile {
	return RemoteProfile{
		IdentityID:  identityID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		IsVerified:  true,
		Providers:   map[ProviderKind]string{in.Kind: in.SubjectID},
		CreatedAt:   now,
		LastLoginAt: now,
	}
}

// touchProviderProfile stamps last_login_at and fills display data the
// profile is missing. markVerified is set when the provider vouched for the
// profile's email. A remote flag lagging behind a verified local record is
// repaired.
func (e *Engine) touchProviderProfile(ctx context.Context, record *CredentialRecord, profile *RemoteProfile, in providerSignIn, markVerified bool) (*RemoteProfile, error) {
	now := e.clock()
	update := ProfileUpdate{LastLoginAt: &now}
	if profile.DisplayName == "" && in.DisplayName != "" {
		update.DisplayName = &in.DisplayName
	}
	if profile.Email == "" && in.Email != "" {
		update.Email = &in.Email
	}
	repaired := false
	if !profile.IsVerified {
		switch {
		case record != nil && record.IsVerified:
			repaired = true
		case markVerified && strings.EqualFold(profile.Email, in.Email):
		default:
			markVerified = false
		}
		if repaired || markVerified {
			verified := true
			update.IsVerified = &verified
		}
	}

	if err := e.updateProfile(ctx, profile.IdentityID, update); err != nil {
		return nil, err
	}
	update.Apply(profile)

	if repaired {
		e.verificationRepaired(ctx, profile.IdentityID, in.Kind)
	}
	return profile, nil
}

// optionalCredential loads the local record for display merging. A missing
// or unreachable record is not an error for provider sign-in.
func (e *Engine) optionalCredential(ctx context.Context, identityID string) *CredentialRecord {
	record, err := e.getCredentialByID(ctx, identityID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.logger.Debug().Str("identity_id", identityID).Err(err).Msg("credential lookup skipped")
		}
		return nil
	}
	return record
}

func providerLockKey(kind ProviderKind, subjectID string) string {
	return "provider:" + string(kind) + ":" + subjectID
}
