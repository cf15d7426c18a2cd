package goIdentity

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in [Metrics].
type MetricID uint16

const (
	// MetricPasswordSignInSuccess counts password sign-ins that published a session.
	MetricPasswordSignInSuccess MetricID = iota
	// MetricPasswordSignInFailure counts password sign-ins rejected for any reason.
	MetricPasswordSignInFailure
	// MetricSignInRateLimited counts sign-ins refused by the throttle.
	MetricSignInRateLimited
	// MetricProviderSignInSuccess counts provider sign-ins that published a session.
	MetricProviderSignInSuccess
	// MetricProviderSignInFailure counts provider sign-ins rejected for any reason.
	MetricProviderSignInFailure
	// MetricProviderLinked counts provider subjects linked to the active identity.
	MetricProviderLinked
	// MetricProviderLinkConflict counts link attempts that fell back to direct sign-in.
	MetricProviderLinkConflict
	// MetricProfileCreated counts remote profiles created on first sign-in.
	MetricProfileCreated
	// MetricSignInSuperseded counts sign-ins discarded because a newer attempt or logout won.
	MetricSignInSuperseded
	// MetricMalformedCredential counts stored credentials that failed to decode.
	MetricMalformedCredential
	// MetricTransientStoreError counts store calls that failed after the retry.
	MetricTransientStoreError
	// MetricStoreRetry counts store calls that were retried.
	MetricStoreRetry
	// MetricPasswordRehashed counts credentials upgraded to the current iteration count.
	MetricPasswordRehashed
	// MetricVerificationRequest counts issued verification tokens.
	MetricVerificationRequest
	// MetricVerificationRateLimited counts verification requests refused by the throttle.
	MetricVerificationRateLimited
	// MetricVerificationSuccess counts newly verified identities.
	MetricVerificationSuccess
	// MetricVerificationAlreadyVerified counts redemptions of already-consumed tokens.
	MetricVerificationAlreadyVerified
	// MetricVerificationInvalid counts redemptions of unknown or mismatched tokens.
	MetricVerificationInvalid
	// MetricVerificationPartial counts verifications whose remote flag could not be written.
	MetricVerificationPartial
	// MetricVerificationRepaired counts remote flags repaired on a later sign-in.
	MetricVerificationRepaired
	// MetricNotificationFailure counts notifications the dispatcher failed to deliver.
	MetricNotificationFailure
	// MetricAccountCreationSuccess counts created accounts.
	MetricAccountCreationSuccess
	// MetricAccountCreationDuplicate counts account creations rejected as duplicates.
	MetricAccountCreationDuplicate
	// MetricAccountDeleted counts deleted accounts.
	MetricAccountDeleted
	// MetricPasswordChangeSuccess counts successful password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeInvalidOld counts password changes with a wrong current password.
	MetricPasswordChangeInvalidOld
	// MetricLogout counts session resets.
	MetricLogout
	// MetricAdminOverride counts administrative overrides.
	MetricAdminOverride
	// MetricAdminOverrideDenied counts overrides refused by the allow list.
	MetricAdminOverrideDenied
	// MetricSignInLatency is the latency histogram for password and provider sign-ins.
	MetricSignInLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the optional sign-in latency
// histogram. A nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only [MetricSignInLatency]
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricSignInLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricSignInLatency].buckets[i])
		}
		s.Histograms[MetricSignInLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
