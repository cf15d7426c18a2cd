package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
)

type verificationConfirm struct {
	Email string `validate:"required,email,max=320"`
}

// RequestEmailVerification issues a verification token for the account
// behind identifier (email or username) and dispatches it when a [Notifier]
// is configured. Any earlier unconsumed token for the identity stops working.
//
// A verified account is a no-op and returns (nil, nil). When the token was
// stored but the notification failed, the token is returned together with
// [ErrNotificationFailed] so the caller can retry delivery.
func (e *Engine) RequestEmailVerification(ctx context.Context, identifier string) (*VerificationToken, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.vault == nil {
		return nil, ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || len(identifier) > 320 {
		e.emitAudit(ctx, auditEventVerificationRequest, false, "", "", ErrInvalidInput, func() map[string]string {
			return map[string]string{"reason": "identifier"}
		})
		return nil, ErrInvalidInput
	}

	record, err := e.getCredential(ctx, identifier)
	if err != nil {
		e.emitAudit(ctx, auditEventVerificationRequest, false, "", "", err, nil)
		return nil, err
	}

	if record.IsVerified {
		e.emitAudit(ctx, auditEventVerificationRequest, true, record.IdentityID, "", nil, func() map[string]string {
			return map[string]string{"noop": "already_verified"}
		})
		return nil, nil
	}

	if err := e.rateLimiter.AllowVerificationRequest(ctx, record.IdentityID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricVerificationRateLimited)
			e.emitRateLimit(ctx, "email_verification_request", func() map[string]string {
				return map[string]string{"identity_id": record.IdentityID}
			})
			return nil, ErrVerificationRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrTransientStore, err)
	}

	token, err := internal.NewVerificationToken()
	if err != nil {
		return nil, err
	}

	issuedAt := e.clock()
	if err := e.vault.Issue(ctx, token, &stores.TokenRecord{
		IdentityID: record.IdentityID,
		Email:      record.Email,
		IssuedAt:   issuedAt.Unix(),
	}, e.config.Verification.TokenTTL); err != nil {
		mapped := mapTokenVaultError(err)
		e.emitAudit(ctx, auditEventVerificationRequest, false, record.IdentityID, "", mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricVerificationRequest)
	issued := &VerificationToken{
		Token:      token,
		IdentityID: record.IdentityID,
		Email:      record.Email,
		IssuedAt:   time.Unix(issuedAt.Unix(), 0).UTC(),
	}

	if e.notifier != nil {
		body := e.verificationBody(token, record.Email)
		if err := e.notifier.Send(ctx, record.Email, e.config.Verification.Subject, body); err != nil {
			e.metricInc(MetricNotificationFailure)
			e.logger.Warn().Str("identity_id", record.IdentityID).Err(err).Msg("verification notification failed")
			e.emitAudit(ctx, auditEventNotificationFailed, false, record.IdentityID, "", ErrNotificationFailed, func() map[string]string {
				return map[string]string{"kind": "verification"}
			})
			return issued, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
		}
	}

	e.emitAudit(ctx, auditEventVerificationRequest, true, record.IdentityID, "", nil, nil)
	return issued, nil
}

// ConfirmEmailVerification redeems token on behalf of email.
//
// Only the first successful redemption performs the transition: it flips the
// local verified flag, then the remote flag when a profile exists, sends one
// combined "verified and welcome" notification, and amends a live session
// for that identity. Redeeming again reports [ConsumeAlreadyVerified] and
// sends nothing.
//
// If the local flip fails the token is released and [ErrTransientStore] is
// returned, so the token can be redeemed again. If only the remote flip
// fails the result is returned with [ErrPartialVerification]; the next
// password sign-in repairs the remote flag.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, token, email string) (*VerificationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.vault == nil {
		return nil, ErrEngineNotReady
	}

	canonical, err := internal.ParseVerificationToken(strings.TrimSpace(token))
	if err != nil {
		return e.verificationInvalid(ctx, "parse_failed")
	}
	in := verificationConfirm{Email: strings.TrimSpace(email)}
	if err := e.validate.StructCtx(ctx, in); err != nil {
		return e.verificationInvalid(ctx, "email")
	}

	outcome, tokenRecord, err := e.vault.Consume(ctx, canonical, in.Email)
	if err != nil {
		mapped := mapTokenVaultError(err)
		e.emitAudit(ctx, auditEventVerificationConfirm, false, "", "", mapped, nil)
		return nil, mapped
	}

	switch outcome {
	case stores.ConsumeInvalid:
		return e.verificationInvalid(ctx, "unknown_or_mismatch")
	case stores.ConsumeAlreadyVerified:
		e.metricInc(MetricVerificationAlreadyVerified)
		e.emitAudit(ctx, auditEventVerificationConfirm, true, tokenRecord.IdentityID, "", nil, func() map[string]string {
			return map[string]string{"result": string(ConsumeAlreadyVerified)}
		})
		return &VerificationResult{
			Result:     ConsumeAlreadyVerified,
			IdentityID: tokenRecord.IdentityID,
		}, nil
	}

	return e.applyVerification(ctx, canonical, tokenRecord)
}

func (e *Engine) applyVerification(ctx context.Context, token string, tokenRecord *stores.TokenRecord) (*VerificationResult, error) {
	identityID := tokenRecord.IdentityID
	result := &VerificationResult{
		Result:     ConsumeNewlyVerified,
		IdentityID: identityID,
	}

	unlock := e.locks.Lock(identityID)
	record, err := e.getCredentialByID(ctx, identityID)
	if err == nil {
		if !record.IsVerified {
			record.IsVerified = true
			err = e.putCredential(ctx, *record)
		}
	}
	if err != nil {
		unlock()
		if releaseErr := e.vault.Release(ctx, token); releaseErr != nil {
			e.logger.Error().Str("identity_id", identityID).Err(releaseErr).Msg("verification token release failed")
		}
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrTransientStore) {
			err = fmt.Errorf("%w: %v", ErrTransientStore, err)
		}
		e.emitAudit(ctx, auditEventVerificationConfirm, false, identityID, "", err, func() map[string]string {
			return map[string]string{"stage": "local"}
		})
		return nil, err
	}
	result.LocalApplied = true

	var partial error
	verified := true
	err = e.updateProfile(ctx, identityID, ProfileUpdate{IsVerified: &verified})
	switch {
	case err == nil:
		result.RemoteApplied = true
	case errors.Is(err, ErrNotFound):
		// No profile yet; it is created verified on first sign-in.
	default:
		partial = fmt.Errorf("%w: %v", ErrPartialVerification, err)
		e.metricInc(MetricVerificationPartial)
		e.logger.Warn().Str("identity_id", identityID).Err(err).Msg("remote verification flag not written")
		e.emitAudit(ctx, auditEventVerificationPartial, false, identityID, "", partial, nil)
	}
	unlock()

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, identityID, "", nil, func() map[string]string {
		return map[string]string{"result": string(ConsumeNewlyVerified)}
	})

	if e.notifier != nil {
		if err := e.notifier.Send(ctx, record.Email, e.config.Verification.WelcomeSubject, e.welcomeBody(record)); err != nil {
			e.metricInc(MetricNotificationFailure)
			e.logger.Warn().Str("identity_id", identityID).Err(err).Msg("welcome notification failed")
			e.emitAudit(ctx, auditEventNotificationFailed, false, identityID, "", ErrNotificationFailed, func() map[string]string {
				return map[string]string{"kind": "welcome"}
			})
		} else {
			result.NotificationSent = true
		}
	}

	e.session.Amend(identityID, true)

	if partial != nil {
		return result, partial
	}
	return result, nil
}

func (e *Engine) verificationInvalid(ctx context.Context, reason string) (*VerificationResult, error) {
	e.metricInc(MetricVerificationInvalid)
	e.emitAudit(ctx, auditEventVerificationConfirm, false, "", "", ErrVerificationInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return &VerificationResult{Result: ConsumeInvalid}, ErrVerificationInvalid
}

func (e *Engine) verificationBody(token, email string) string {
	if base := strings.TrimSpace(e.config.Verification.ConfirmURL); base != "" {
		q := url.Values{}
		q.Set("token", token)
		q.Set("email", email)
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return "Confirm your email address:\n\n" + base + sep + q.Encode() + "\n"
	}
	return "Your verification code:\n\n" + token + "\n"
}

func (e *Engine) welcomeBody(record *CredentialRecord) string {
	name := record.Username
	if name == "" {
		name = record.Email
	}
	return "Hi " + name + ",\n\nYour email address is verified. Welcome aboard!\n"
}

func mapTokenVaultError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
}
