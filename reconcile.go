package goIdentity

import (
	"context"
	"errors"
	"time"
)

// mergeIdentity folds the credential record and the remote profile into the
// canonical identity. The profile wins display data, role flags and provider
// links; the record contributes the username and password presence. An
// identity is verified when either source says so.
func (e *Engine) mergeIdentity(record *CredentialRecord, profile *RemoteProfile, source ProviderKind) *Identity {
	id := &Identity{Source: source}

	if record != nil {
		id.IdentityID = record.IdentityID
		id.Email = record.Email
		id.Username = record.Username
		id.IsVerified = record.IsVerified
		id.HasPassword = record.HasPassword()
	}

	if profile != nil {
		id.IdentityID = profile.IdentityID
		if profile.Email != "" {
			id.Email = profile.Email
		}
		id.DisplayName = profile.DisplayName
		id.RoleFlags = profile.RoleFlags
		id.IsVerified = id.IsVerified || profile.IsVerified
		id.CreatedAt = profile.CreatedAt
		id.LastLoginAt = profile.LastLoginAt
		if len(profile.Providers) > 0 {
			id.Providers = make(map[ProviderKind]string, len(profile.Providers))
			for k, v := range profile.Providers {
				id.Providers[k] = v
			}
		}
	}

	if id.DisplayName == "" {
		id.DisplayName = id.Username
	}
	id.Roles = e.rolesOf(id.RoleFlags)

	return id
}

func (e *Engine) getProfile(ctx context.Context, identityID string) (*RemoteProfile, error) {
	var profile *RemoteProfile
	err := e.withStoreRetry(ctx, "profile_get", func() error {
		p, err := e.profiles.Get(ctx, identityID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	return profile, err
}

func (e *Engine) findProfileByProvider(ctx context.Context, kind ProviderKind, subjectID string) (*RemoteProfile, error) {
	var profile *RemoteProfile
	err := e.withStoreRetry(ctx, "profile_find_by_provider", func() error {
		p, err := e.profiles.FindByProvider(ctx, kind, subjectID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	return profile, err
}

func (e *Engine) createProfile(ctx context.Context, profile RemoteProfile) error {
	return e.withStoreRetry(ctx, "profile_create", func() error {
		return e.profiles.Create(ctx, profile)
	})
}

func (e *Engine) updateProfile(ctx context.Context, identityID string, update ProfileUpdate) error {
	if update.Empty() {
		return nil
	}
	return e.withStoreRetry(ctx, "profile_update", func() error {
		return e.profiles.Update(ctx, identityID, update)
	})
}

func (e *Engine) getCredential(ctx context.Context, identifier string) (*CredentialRecord, error) {
	var record *CredentialRecord
	err := e.withStoreRetry(ctx, "credential_get", func() error {
		r, err := e.credentials.Get(ctx, identifier)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	return record, err
}

func (e *Engine) getCredentialByID(ctx context.Context, identityID string) (*CredentialRecord, error) {
	var record *CredentialRecord
	err := e.withStoreRetry(ctx, "credential_get_by_id", func() error {
		r, err := e.credentials.GetByID(ctx, identityID)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	return record, err
}

func (e *Engine) putCredential(ctx context.Context, record CredentialRecord) error {
	return e.withStoreRetry(ctx, "credential_put", func() error {
		return e.credentials.Put(ctx, record)
	})
}

// syncProfileForPassword fetches the profile for a password sign-in, creating
// it on first sign-in. It stamps last_login_at and repairs a remote
// verification flag that lags behind the local record.
func (e *Engine) syncProfileForPassword(ctx context.Context, record *CredentialRecord, now time.Time) (*RemoteProfile, error) {
	unlock := e.locks.Lock(record.IdentityID)
	defer unlock()

	profile, err := e.getProfile(ctx, record.IdentityID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		created := RemoteProfile{
			IdentityID:  record.IdentityID,
			Email:       record.Email,
			DisplayName: record.Username,
			IsVerified:  record.IsVerified,
			Providers:   map[ProviderKind]string{ProviderPassword: record.IdentityID},
			CreatedAt:   now,
			LastLoginAt: now,
		}
		if err := e.createProfile(ctx, created); err != nil {
			if !errors.Is(err, ErrAccountExists) {
				return nil, err
			}
			// Created concurrently by a provider sign-in on another device.
			return e.touchExistingProfile(ctx, record, now)
		}
		e.metricInc(MetricProfileCreated)
		e.emitAudit(ctx, auditEventProfileCreated, true, record.IdentityID, ProviderPassword, nil, nil)
		return &created, nil
	default:
		return nil, err
	}

	return e.touchProfile(ctx, record, profile, now)
}

func (e *Engine) touchExistingProfile(ctx context.Context, record *CredentialRecord, now time.Time) (*RemoteProfile, error) {
	profile, err := e.getProfile(ctx, record.IdentityID)
	if err != nil {
		return nil, err
	}
	return e.touchProfile(ctx, record, profile, now)
}

func (e *Engine) touchProfile(ctx context.Context, record *CredentialRecord, profile *RemoteProfile, now time.Time) (*RemoteProfile, error) {
	update := ProfileUpdate{LastLoginAt: &now}
	repaired := false
	if record.IsVerified && !profile.IsVerified {
		verified := true
		update.IsVerified = &verified
		repaired = true
	}

	if err := e.updateProfile(ctx, record.IdentityID, update); err != nil {
		return nil, err
	}
	update.Apply(profile)

	if repaired {
		e.verificationRepaired(ctx, record.IdentityID, ProviderPassword)
	}

	return profile, nil
}

func (e *Engine) verificationRepaired(ctx context.Context, identityID string, source ProviderKind) {
	e.metricInc(MetricVerificationRepaired)
	e.emitAudit(ctx, auditEventVerificationRepaired, true, identityID, source, nil, nil)
	e.logger.Info().
		Str("identity_id", identityID).
		Str("provider", string(source)).
		Msg("remote verification flag repaired")
}
