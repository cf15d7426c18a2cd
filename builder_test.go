package goIdentity

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuilderRejectsIncompleteSetup(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	creds := newFakeCredentialStore()
	profiles := newFakeProfileStore()

	tests := []struct {
		name    string
		builder *Builder
	}{
		{
			name:    "missing redis",
			builder: New().WithConfig(testConfig()).WithCredentialStore(creds).WithProfileStore(profiles),
		},
		{
			name:    "missing credential store",
			builder: New().WithConfig(testConfig()).WithRedis(rdb).WithProfileStore(profiles),
		},
		{
			name:    "missing profile store",
			builder: New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(creds),
		},
		{
			name:    "invalid config",
			builder: New().WithConfig(Config{}).WithRedis(rdb).WithCredentialStore(creds).WithProfileStore(profiles),
		},
		{
			name:    "admin role registered twice",
			builder: New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(creds).WithProfileStore(profiles).WithRoles("admin"),
		},
		{
			name:    "histograms without metrics",
			builder: New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(creds).WithProfileStore(profiles).WithLatencyHistograms(true),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.builder.Build(); err == nil {
				t.Fatal("expected Build to fail")
			}
		})
	}
}

func TestBuilderBuildsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithCredentialStore(newFakeCredentialStore()).
		WithProfileStore(newFakeProfileStore()).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if !engine.metrics.LatencyEnabled() {
		t.Fatal("expected latency histogram to be enabled")
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
