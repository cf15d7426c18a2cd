package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/password"
)

// CreateAccount registers a local password account. The remote profile is
// created on the first successful sign-in. When
// Config.Verification.IssueOnCreate is set a verification token is issued
// and dispatched; delivery failures are logged and do not fail the call.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := e.validate.StructCtx(ctx, req); err != nil {
		e.emitAudit(ctx, auditEventAccountCreation, false, "", ProviderPassword, ErrInvalidInput, func() map[string]string {
			return map[string]string{"reason": "validation"}
		})
		return nil, ErrInvalidInput
	}
	if err := password.CheckPolicy(req.Password); err != nil {
		e.emitAudit(ctx, auditEventAccountCreation, false, "", ProviderPassword, ErrPasswordPolicy, nil)
		return nil, ErrPasswordPolicy
	}

	for _, identifier := range []string{req.Email, req.Username} {
		if identifier == "" {
			continue
		}
		_, err := e.getCredential(ctx, identifier)
		switch {
		case err == nil:
			e.metricInc(MetricAccountCreationDuplicate)
			e.emitAudit(ctx, auditEventAccountCreation, false, "", ProviderPassword, ErrAccountExists, nil)
			return nil, ErrAccountExists
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}

	cred, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordPolicy) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	identityID, err := internal.NewIdentityID(e.clock())
	if err != nil {
		return nil, err
	}

	record := CredentialRecord{
		IdentityID: identityID,
		Email:      req.Email,
		Username:   req.Username,
		Credential: password.Encode(cred),
		Iterations: cred.Iterations,
	}
	if err := e.putCredential(ctx, record); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountCreationDuplicate)
		}
		e.emitAudit(ctx, auditEventAccountCreation, false, "", ProviderPassword, err, nil)
		return nil, err
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventAccountCreation, true, identityID, ProviderPassword, nil, nil)

	if e.config.Verification.IssueOnCreate {
		if _, err := e.RequestEmailVerification(ctx, req.Email); err != nil {
			e.logger.Warn().Str("identity_id", identityID).Err(err).Msg("verification request after account creation failed")
		}
	}

	identity := e.mergeIdentity(&record, nil, ProviderPassword)
	if req.DisplayName != "" {
		identity.DisplayName = req.DisplayName
	}
	return identity, nil
}

// ChangePassword replaces the password of identityID after checking the
// current one. The sign-in throttle for the account's identifiers is reset.
func (e *Engine) ChangePassword(ctx context.Context, identityID, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(identityID) == "" || oldPassword == "" {
		return ErrInvalidInput
	}
	if err := password.CheckPolicy(newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordChange, false, identityID, ProviderPassword, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	unlock := e.locks.Lock(identityID)
	defer unlock()

	record, err := e.getCredentialByID(ctx, identityID)
	if err != nil {
		return err
	}
	if !record.HasPassword() {
		e.metricInc(MetricPasswordChangeInvalidOld)
		return ErrInvalidCredentials
	}

	current, err := record.Hashed()
	if err != nil {
		e.metricInc(MetricMalformedCredential)
		e.logger.Error().Str("identity_id", identityID).Err(err).Msg("stored credential failed to decode")
		return err
	}
	ok, err := e.verifyPassword(ctx, oldPassword, current)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChange, false, identityID, ProviderPassword, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	next, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	record.Credential = password.Encode(next)
	record.Iterations = next.Iterations
	if err := e.putCredential(ctx, *record); err != nil {
		e.emitAudit(ctx, auditEventPasswordChange, false, identityID, ProviderPassword, err, nil)
		return err
	}

	ip := clientIPFromContext(ctx)
	for _, identifier := range []string{record.Email, record.Username} {
		if identifier == "" {
			continue
		}
		if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
			e.logger.Warn().Err(err).Msg("reset sign-in counter")
		}
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, identityID, ProviderPassword, nil, nil)
	return nil
}

// AssignRoles replaces the role flags stored on the profile of identityID.
// Unknown role names fail with [ErrInvalidInput]. A live session picks the
// change up at its next sign-in.
func (e *Engine) AssignRoles(ctx context.Context, identityID string, roles []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	flags, err := e.roles.Parse(roles)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := e.locks.Lock(identityID)
	defer unlock()

	return e.updateProfile(ctx, identityID, ProfileUpdate{RoleFlags: &flags})
}

// DeleteAccount removes the local record, the remote profile and any
// pending verification token of identityID. If that identity is signed in,
// the session is reset.
func (e *Engine) DeleteAccount(ctx context.Context, identityID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(identityID) == "" {
		return ErrInvalidInput
	}

	unlock := e.locks.Lock(identityID)
	defer unlock()

	localErr := e.withStoreRetry(ctx, "credential_delete", func() error {
		return e.credentials.Delete(ctx, identityID)
	})
	if localErr != nil && !errors.Is(localErr, ErrNotFound) {
		return localErr
	}

	remoteErr := e.withStoreRetry(ctx, "profile_delete", func() error {
		return e.profiles.Delete(ctx, identityID)
	})
	if remoteErr != nil && !errors.Is(remoteErr, ErrNotFound) {
		return remoteErr
	}

	if errors.Is(localErr, ErrNotFound) && errors.Is(remoteErr, ErrNotFound) {
		return ErrNotFound
	}

	if e.vault != nil {
		if err := e.vault.Forget(ctx, identityID); err != nil {
			e.logger.Warn().Str("identity_id", identityID).Err(err).Msg("forget verification token")
		}
	}

	if e.session.Current().ActiveIdentityID == identityID {
		e.session.Reset()
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, identityID, "", nil, nil)
	return nil
}
