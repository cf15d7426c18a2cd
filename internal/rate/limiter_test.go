package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, cfg)
}

func TestLoginThrottleAfterBudget(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxLoginAttempts: 2, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckLogin(ctx, "Alice", ""); err != nil {
			t.Fatalf("attempt %d: unexpected CheckLogin error %v", i, err)
		}
		_ = l.IncrementLogin(ctx, "alice", "")
	}
	if err := l.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestResetLoginClearsCounter(t *testing.T) {
	_, l := newTestLimiter(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "alice", "")
	if err := l.ResetLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if n, err := l.GetLoginAttempts(ctx, "alice"); err != nil || n != 0 {
		t.Fatalf("expected zero attempts, got %d %v", n, err)
	}
}

func TestIPThrottle(t *testing.T) {
	_, l := newTestLimiter(t, Config{EnableIPThrottle: true, MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "alice", "10.0.0.1")
	if err := l.CheckLogin(ctx, "bob", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
}

func TestVerificationRequestBudget(t *testing.T) {
	_, l := newTestLimiter(t, Config{MaxVerificationRequests: 2, VerificationRequestWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.AllowVerificationRequest(ctx, "u1"); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}
	if err := l.AllowVerificationRequest(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.AllowVerificationRequest(ctx, "u2"); err != nil {
		t.Fatalf("expected independent budget per identity, got %v", err)
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	if err := l.CheckLogin(context.Background(), "alice", ""); err != nil {
		t.Fatalf("nil limiter should allow, got %v", err)
	}
}
