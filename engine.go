package goIdentity

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Engine reconciles local credentials, remote profiles and provider
// assertions into one observable session. Build it with [New].
//
// Engine methods are safe for concurrent use. Sign-in attempts race through
// the session machine; only the newest attempt that has not been overtaken by
// a logout publishes.
type Engine struct {
	config      Config
	logger      zerolog.Logger
	credentials CredentialStore
	profiles    ProfileStore
	verifier    ProviderVerifier
	notifier    Notifier
	hasher      *password.PBKDF2
	vault       *stores.TokenVault
	rateLimiter *rate.Limiter
	roles       *permission.Registry
	session     *session.Machine
	locks       *internal.KeyedMutex
	validate    *validator.Validate
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	now         func() time.Time
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditSinkPanics returns the number of audit sink calls that panicked.
func (e *Engine) AuditSinkPanics() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.SinkPanics()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Roles returns the frozen role registry used to name [permission.Flags].
func (e *Engine) Roles() *permission.Registry {
	return e.roles
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSignIn(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricSignInLatency, time.Since(start))
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.profiles == nil || e.hasher == nil || e.session == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) clock() time.Time {
	if e.now == nil {
		return time.Now().UTC()
	}
	return e.now().UTC()
}

// verifyPassword runs the key derivation on its own goroutine so a canceled
// ctx releases the caller immediately.
func (e *Engine) verifyPassword(ctx context.Context, secret string, cred password.HashedCredential) (bool, error) {
	result := make(chan bool, 1)
	go func() {
		result <- e.hasher.Verify(secret, cred)
	}()

	select {
	case ok := <-result:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (e *Engine) hashPassword(ctx context.Context, secret string) (password.HashedCredential, error) {
	type hashResult struct {
		cred password.HashedCredential
		err  error
	}
	result := make(chan hashResult, 1)
	go func() {
		cred, err := e.hasher.Hash(secret)
		result <- hashResult{cred: cred, err: err}
	}()

	select {
	case r := <-result:
		return r.cred, r.err
	case <-ctx.Done():
		return password.HashedCredential{}, ctx.Err()
	}
}

func (e *Engine) rolesOf(flags permission.Flags) []string {
	if e == nil || e.roles == nil {
		return nil
	}
	return e.roles.Names(flags)
}
