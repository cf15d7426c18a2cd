package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/password"
)

var (
	// ErrInvalidInput is returned for a malformed identifier, password, token, or assertion.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned when a password does not match the stored hash.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound is returned when no record matches the identifier.
	ErrNotFound = errors.New("identity not found")
	// ErrMalformedCredential is returned when a stored hash/salt encoding is corrupt.
	ErrMalformedCredential = password.ErrMalformedCredential
	// ErrCredentialConflict is returned by a ProfileStore when a provider subject is already linked to another identity.
	ErrCredentialConflict = errors.New("credential already linked to another identity")
	// ErrTransientStore is returned when a store call still fails after the bounded retry.
	ErrTransientStore = errors.New("transient store failure")
	// ErrPartialVerification is returned when the local verification flag was applied but the remote one was not.
	ErrPartialVerification = errors.New("verification partially applied")
	// ErrPasswordPolicy is returned when a new password violates the length policy.
	ErrPasswordPolicy = password.ErrPasswordPolicy
	// ErrLoginRateLimited is returned when failed sign-ins exceed the configured budget.
	ErrLoginRateLimited = errors.New("sign-in rate limited")
	// ErrVerificationRateLimited is returned when verification requests exceed the configured budget.
	ErrVerificationRateLimited = errors.New("verification request rate limited")
	// ErrVerificationInvalid is returned when a verification token is unknown or bound to another email.
	ErrVerificationInvalid = errors.New("verification token invalid")
	// ErrNotificationFailed is returned when the notification dispatcher reports a failure.
	ErrNotificationFailed = errors.New("notification dispatch failed")
	// ErrAccountExists is returned when an email, username, or identity id is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrSuperseded is returned when a newer sign-in or a logout won the race to publish.
	ErrSuperseded = errors.New("sign-in superseded")
	// ErrOverrideDenied is returned when an administrative override targets an identity outside the allow list.
	ErrOverrideDenied = errors.New("administrative override denied")
	// ErrProviderUnsupported is returned for a provider kind with no configured verifier.
	ErrProviderUnsupported = errors.New("provider unsupported")
	// ErrProviderRejected is returned when the provider verifier rejects a raw token.
	ErrProviderRejected = errors.New("provider assertion rejected")
	// ErrEngineNotReady is returned when a required dependency is not configured.
	ErrEngineNotReady = errors.New("engine not ready")
)

const (
	messageInvalidCredentials = "Invalid credentials."
	messageInvalidInput       = "Please check the details you entered."
	messageRateLimited        = "Too many attempts. Please wait and try again."
	messageVerification       = "This verification link is not valid."
	messageAccountExists      = "An account with these details already exists."
	messageTryAgain           = "Something went wrong. Please try again."
)

// UserMessage maps an Engine error to the text that may be shown to an end
// user. Wrong identifiers and wrong passwords share one message so callers
// cannot enumerate accounts.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrProviderRejected):
		return messageInvalidCredentials
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrPasswordPolicy):
		return messageInvalidInput
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrVerificationRateLimited):
		return messageRateLimited
	case errors.Is(err, ErrVerificationInvalid):
		return messageVerification
	case errors.Is(err, ErrAccountExists):
		return messageAccountExists
	default:
		return messageTryAgain
	}
}

// isPermanentStoreError reports errors a retry cannot fix.
func isPermanentStoreError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrCredentialConflict) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMalformedCredential) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
