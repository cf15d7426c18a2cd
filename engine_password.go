package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/password"
)

type passwordSignIn struct {
	Identifier string `validate:"required,max=320"`
	Password   string `validate:"required,max=1024"`
}

// AuthenticateWithPassword signs in with an email or username and a
// password. On success the reconciled identity is published to the session
// and returned.
//
// Errors: [ErrInvalidInput], [ErrNotFound], [ErrInvalidCredentials],
// [ErrMalformedCredential], [ErrTransientStore], [ErrLoginRateLimited], and
// [ErrSuperseded] when a newer sign-in or a logout won the race.
func (e *Engine) AuthenticateWithPassword(ctx context.Context, identifier, secret string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()

	in := passwordSignIn{Identifier: strings.TrimSpace(identifier), Password: secret}
	if err := e.validate.StructCtx(ctx, in); err != nil {
		e.metricInc(MetricPasswordSignInFailure)
		e.emitAudit(ctx, auditEventPasswordSignInFailure, false, "", ProviderPassword, ErrInvalidInput, func() map[string]string {
			return map[string]string{"reason": "validation"}
		})
		return nil, ErrInvalidInput
	}

	attempt := e.session.Begin()
	identity, err := e.passwordSignIn(ctx, in)
	e.observeSignIn(start)
	if err != nil {
		attempt.Abandon()
		e.metricInc(MetricPasswordSignInFailure)
		return nil, err
	}

	if !attempt.Resolve(identity.principal()) {
		e.metricInc(MetricSignInSuperseded)
		e.emitAudit(ctx, auditEventSignInSuperseded, false, identity.IdentityID, ProviderPassword, ErrSuperseded, nil)
		return nil, ErrSuperseded
	}

	e.metricInc(MetricPasswordSignInSuccess)
	e.emitAudit(ctx, auditEventPasswordSignInSuccess, true, identity.IdentityID, ProviderPassword, nil, nil)
	return identity, nil
}

func (e *Engine) passwordSignIn(ctx context.Context, in passwordSignIn) (*Identity, error) {
	ip := clientIPFromContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, in.Identifier, ip); err != nil {
		return nil, e.loginThrottleError(ctx, in.Identifier, err)
	}

	record, err := e.getCredential(ctx, in.Identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if limitErr := e.recordLoginFailure(ctx, in.Identifier, ip); limitErr != nil {
				return nil, limitErr
			}
			e.emitAudit(ctx, auditEventPasswordSignInFailure, false, "", ProviderPassword, ErrNotFound, nil)
			return nil, ErrNotFound
		}
		e.emitAudit(ctx, auditEventPasswordSignInFailure, false, "", ProviderPassword, err, nil)
		return nil, err
	}

	if !record.HasPassword() {
		if limitErr := e.recordLoginFailure(ctx, in.Identifier, ip); limitErr != nil {
			return nil, limitErr
		}
		e.emitAudit(ctx, auditEventPasswordSignInFailure, false, record.IdentityID, ProviderPassword, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "no_password"}
		})
		return nil, ErrInvalidCredentials
	}

	cred, err := record.Hashed()
	if err != nil {
		e.metricInc(MetricMalformedCredential)
		e.logger.Error().Str("identity_id", record.IdentityID).Err(err).Msg("stored credential failed to decode")
		e.emitAudit(ctx, auditEventMalformedCredential, false, record.IdentityID, ProviderPassword, err, nil)
		return nil, err
	}

	ok, err := e.verifyPassword(ctx, in.Password, cred)
	if err != nil {
		return nil, err
	}
	if !ok {
		if limitErr := e.recordLoginFailure(ctx, in.Identifier, ip); limitErr != nil {
			return nil, limitErr
		}
		e.emitAudit(ctx, auditEventPasswordSignInFailure, false, record.IdentityID, ProviderPassword, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	if err := e.rateLimiter.ResetLogin(ctx, in.Identifier, ip); err != nil {
		e.logger.Warn().Err(err).Msg("reset sign-in counter")
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsRehash(cred) {
		e.rehashCredential(ctx, record, in.Password)
	}

	profile, err := e.syncProfileForPassword(ctx, record, e.clock())
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordSignInFailure, false, record.IdentityID, ProviderPassword, err, func() map[string]string {
			return map[string]string{"reason": "profile_sync"}
		})
		return nil, err
	}

	return e.mergeIdentity(record, profile, ProviderPassword), nil
}

// rehashCredential upgrades a credential stored with an outdated iteration
// count. Failures are logged and never fail the sign-in.
func (e *Engine) rehashCredential(ctx context.Context, record *CredentialRecord, secret string) {
	cred, err := e.hashPassword(ctx, secret)
	if err != nil {
		e.logger.Warn().Str("identity_id", record.IdentityID).Err(err).Msg("credential rehash failed")
		return
	}

	unlock := e.locks.Lock(record.IdentityID)
	defer unlock()

	upgraded := *record
	upgraded.Credential = password.Encode(cred)
	upgraded.Iterations = cred.Iterations
	if err := e.putCredential(ctx, upgraded); err != nil {
		e.logger.Warn().Str("identity_id", record.IdentityID).Err(err).Msg("credential rehash update failed")
		e.emitAudit(ctx, auditEventCredentialRehashFailed, false, record.IdentityID, ProviderPassword, err, nil)
		return
	}
	*record = upgraded
	e.metricInc(MetricPasswordRehashed)
}

func (e *Engine) recordLoginFailure(ctx context.Context, identifier, ip string) error {
	err := e.rateLimiter.IncrementLogin(ctx, identifier, ip)
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrRateLimited) {
		return e.loginThrottleError(ctx, identifier, err)
	}
	e.logger.Warn().Err(err).Msg("record sign-in failure")
	return nil
}

func (e *Engine) loginThrottleError(ctx context.Context, identifier string, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricSignInRateLimited)
		e.emitRateLimit(ctx, "login", func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return ErrLoginRateLimited
	}
	e.metricInc(MetricTransientStoreError)
	e.logger.Warn().Err(err).Msg("sign-in throttle unavailable")
	return fmt.Errorf("%w: %v", ErrTransientStore, err)
}
