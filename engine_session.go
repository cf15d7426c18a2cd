package goIdentity

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/MrEthical07/goIdentity/session"
)

// Session returns the current published snapshot.
func (e *Engine) Session() SessionSnapshot {
	return e.session.Current()
}

// SessionState returns the session lifecycle position.
func (e *Engine) SessionState() SessionState {
	return e.session.State()
}

// SubscribeSession registers obs. obs first receives the current snapshot,
// then every later publication in order. The returned func unsubscribes.
func (e *Engine) SubscribeSession(obs SessionObserver) func() {
	return e.session.Subscribe(obs)
}

// OnSessionTeardown registers fn to run on every logout, for releasing
// per-session resources such as realtime listeners.
func (e *Engine) OnSessionTeardown(fn func()) {
	e.session.OnTeardown(fn)
}

// Logout describes the logout operation and its observable behavior.
//
// Logout invalidates every in-flight sign-in before it returns, publishes the
// empty snapshot when a session was active and runs the teardown hooks.
// Calling it repeatedly is safe.
func (e *Engine) Logout(ctx context.Context) {
	previous := e.session.Current()
	e.session.Reset()

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, previous.ActiveIdentityID, "", nil, nil)
}

// AdministrativeOverride publishes an authenticated admin session for
// identityID without a sign-in. identityID must appear in
// Config.Admin.OverrideAllowList; anything else fails with
// [ErrOverrideDenied]. In-flight sign-ins are superseded.
func (e *Engine) AdministrativeOverride(ctx context.Context, identityID string) (SessionSnapshot, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" || !e.overrideAllowed(identityID) {
		e.metricInc(MetricAdminOverrideDenied)
		e.emitAudit(ctx, auditEventAdminOverride, false, identityID, "", ErrOverrideDenied, nil)
		e.logger.Warn().Str("identity_id", identityID).Msg("administrative override denied")
		return session.Snapshot{}, ErrOverrideDenied
	}

	snap := e.session.Override(identityID)

	e.metricInc(MetricAdminOverride)
	e.emitAudit(ctx, auditEventAdminOverride, true, identityID, "", nil, nil)
	e.logger.Warn().Str("identity_id", identityID).Msg("administrative override applied")
	return snap, nil
}

func (e *Engine) overrideAllowed(identityID string) bool {
	allowed := false
	for _, candidate := range e.config.Admin.OverrideAllowList {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(identityID)) == 1 {
			allowed = true
		}
	}
	return allowed
}
