package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricPasswordSignInSuccess, Name: "goidentity_password_sign_in_success_total", Help: "Password sign-ins that published a session."},
	{ID: goIdentity.MetricPasswordSignInFailure, Name: "goidentity_password_sign_in_failure_total", Help: "Password sign-ins rejected for any reason."},
	{ID: goIdentity.MetricSignInRateLimited, Name: "goidentity_sign_in_rate_limited_total", Help: "Sign-ins refused by the throttle."},
	{ID: goIdentity.MetricProviderSignInSuccess, Name: "goidentity_provider_sign_in_success_total", Help: "Provider sign-ins that published a session."},
	{ID: goIdentity.MetricProviderSignInFailure, Name: "goidentity_provider_sign_in_failure_total", Help: "Provider sign-ins rejected for any reason."},
	{ID: goIdentity.MetricProviderLinked, Name: "goidentity_provider_linked_total", Help: "Provider subjects linked to the active identity."},
	{ID: goIdentity.MetricProviderLinkConflict, Name: "goidentity_provider_link_conflict_total", Help: "Link attempts that fell back to direct sign-in."},
	{ID: goIdentity.MetricProfileCreated, Name: "goidentity_profile_created_total", Help: "Remote profiles created on first sign-in."},
	{ID: goIdentity.MetricSignInSuperseded, Name: "goidentity_sign_in_superseded_total", Help: "Sign-ins discarded because a newer attempt or logout won."},
	{ID: goIdentity.MetricMalformedCredential, Name: "goidentity_malformed_credential_total", Help: "Stored credentials that failed to decode."},
	{ID: goIdentity.MetricTransientStoreError, Name: "goidentity_transient_store_error_total", Help: "Store calls that failed after the retry."},
	{ID: goIdentity.MetricStoreRetry, Name: "goidentity_store_retry_total", Help: "Store calls that were retried."},
	{ID: goIdentity.MetricPasswordRehashed, Name: "goidentity_password_rehashed_total", Help: "Credentials upgraded to the current iteration count."},
	{ID: goIdentity.MetricVerificationRequest, Name: "goidentity_verification_request_total", Help: "Issued verification tokens."},
	{ID: goIdentity.MetricVerificationRateLimited, Name: "goidentity_verification_rate_limited_total", Help: "Verification requests refused by the throttle."},
	{ID: goIdentity.MetricVerificationSuccess, Name: "goidentity_verification_success_total", Help: "Newly verified identities."},
	{ID: goIdentity.MetricVerificationAlreadyVerified, Name: "goidentity_verification_already_verified_total", Help: "Redemptions of already-consumed tokens."},
	{ID: goIdentity.MetricVerificationInvalid, Name: "goidentity_verification_invalid_total", Help: "Redemptions of unknown or mismatched tokens."},
	{ID: goIdentity.MetricVerificationPartial, Name: "goidentity_verification_partial_total", Help: "Verifications whose remote flag could not be written."},
	{ID: goIdentity.MetricVerificationRepaired, Name: "goidentity_verification_repaired_total", Help: "Remote flags repaired on a later sign-in."},
	{ID: goIdentity.MetricNotificationFailure, Name: "goidentity_notification_failure_total", Help: "Notifications the dispatcher failed to deliver."},
	{ID: goIdentity.MetricAccountCreationSuccess, Name: "goidentity_account_creation_success_total", Help: "Created accounts."},
	{ID: goIdentity.MetricAccountCreationDuplicate, Name: "goidentity_account_creation_duplicate_total", Help: "Account creations rejected as duplicates."},
	{ID: goIdentity.MetricAccountDeleted, Name: "goidentity_account_deleted_total", Help: "Deleted accounts."},
	{ID: goIdentity.MetricPasswordChangeSuccess, Name: "goidentity_password_change_success_total", Help: "Successful password changes."},
	{ID: goIdentity.MetricPasswordChangeInvalidOld, Name: "goidentity_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Session resets."},
	{ID: goIdentity.MetricAdminOverride, Name: "goidentity_admin_override_total", Help: "Administrative overrides."},
	{ID: goIdentity.MetricAdminOverrideDenied, Name: "goidentity_admin_override_denied_total", Help: "Overrides refused by the allow list."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricSignInLatency, Name: "goidentity_sign_in_latency_seconds", Help: "Password and provider sign-in latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's fixed
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for metric names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, truncating or zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
