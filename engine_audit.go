package goIdentity

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventPasswordSignInSuccess  = "password_sign_in_success"
	auditEventPasswordSignInFailure  = "password_sign_in_failure"
	auditEventProviderSignInSuccess  = "provider_sign_in_success"
	auditEventProviderSignInFailure  = "provider_sign_in_failure"
	auditEventProviderLinked         = "provider_linked"
	auditEventProviderLinkConflict   = "provider_link_conflict"
	auditEventProfileCreated         = "profile_created"
	auditEventSignInSuperseded       = "sign_in_superseded"
	auditEventVerificationRequest    = "email_verification_request"
	auditEventVerificationConfirm    = "email_verification_confirm"
	auditEventVerificationPartial    = "email_verification_partial"
	auditEventVerificationRepaired   = "email_verification_repaired"
	auditEventNotificationFailed     = "notification_failed"
	auditEventAccountCreation        = "account_creation"
	auditEventAccountDeleted         = "account_deleted"
	auditEventPasswordChange         = "password_change"
	auditEventLogout                 = "logout"
	auditEventAdminOverride          = "admin_override"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
	auditEventMalformedCredential    = "malformed_credential"
	auditEventCredentialRehashFailed = "credential_rehash_failed"
)

// AuditErrorCode is the stable error label written to [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidInput        AuditErrorCode = "invalid_input"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrNotFound            AuditErrorCode = "not_found"
	auditErrMalformedCredential AuditErrorCode = "malformed_credential"
	auditErrCredentialConflict  AuditErrorCode = "credential_conflict"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrPartialVerification AuditErrorCode = "partial_verification"
	auditErrNotificationFailed  AuditErrorCode = "notification_failed"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrSuperseded          AuditErrorCode = "superseded"
	auditErrOverrideDenied      AuditErrorCode = "override_denied"
	auditErrProviderRejected    AuditErrorCode = "provider_rejected"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrCanceled            AuditErrorCode = "canceled"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	provider ProviderKind,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		Provider:   string(provider),
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrMalformedCredential):
		return auditErrMalformedCredential
	case errors.Is(err, ErrCredentialConflict):
		return auditErrCredentialConflict
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrVerificationRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrVerificationInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrPartialVerification):
		return auditErrPartialVerification
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotificationFailed
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrSuperseded):
		return auditErrSuperseded
	case errors.Is(err, ErrOverrideDenied):
		return auditErrOverrideDenied
	case errors.Is(err, ErrProviderRejected),
		errors.Is(err, ErrProviderUnsupported):
		return auditErrProviderRejected
	case errors.Is(err, ErrTransientStore),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	default:
		return auditErrInternal
	}
}
