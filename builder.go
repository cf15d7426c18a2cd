package goIdentity

import (
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	roles []string

	credentials CredentialStore
	profiles    ProfileStore
	verifier    ProviderVerifier
	notifier    Notifier
	auditSink   AuditSink
	logger      *zerolog.Logger
	clock       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the token vault and sign-in throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the local credential store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithProfileStore sets the remote profile store. Required.
func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profiles = store
	return b
}

// WithProviderVerifier sets the verifier used by
// [Engine.AuthenticateWithProviderToken].
func (b *Builder) WithProviderVerifier(verifier ProviderVerifier) *Builder {
	b.verifier = verifier
	return b
}

// WithNotifier sets the out-of-band message dispatcher. Without one,
// verification tokens are issued but never delivered.
func (b *Builder) WithNotifier(notifier Notifier) *Builder {
	b.notifier = notifier
	return b
}

// WithRoles registers additional role names beyond the built-in admin role.
// Role flags are assigned in registration order.
func (b *Builder) WithRoles(roles ...string) *Builder {
	b.roles = append(b.roles, roles...)
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not enable auditing; set Config.Audit.Enabled as well.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the sign-in latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) withClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and dependencies and returns a ready
// [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.profiles == nil {
		return nil, errors.New("profile store required")
	}

	// -------- ROLE REGISTRY --------
	registry := permission.NewRegistry()
	for _, name := range b.roles {
		if _, err := registry.Register(name); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	hasher, err := password.NewPBKDF2(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltLength: cfg.Password.SaltLength,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		logger:      logger.With().Str("component", "goidentity").Logger(),
		credentials: b.credentials,
		profiles:    b.profiles,
		verifier:    b.verifier,
		notifier:    b.notifier,
		hasher:      hasher,
		roles:       registry,
		session:     session.NewMachine(),
		locks:       internal.NewKeyedMutex(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
	if b.clock != nil {
		engine.now = b.clock
	}

	engine.vault = stores.NewTokenVault(b.redis, cfg.Verification.RedisPrefix)
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:          cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:          cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:     cfg.Security.LoginCooldownDuration,
		MaxVerificationRequests:   cfg.Verification.MaxRequests,
		VerificationRequestWindow: cfg.Verification.RequestWindow,
	})
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev internalaudit.Event) {
			engine.logger.Debug().Str("event", ev.EventType).Msg("audit event dropped")
		},
	}, b.auditSink)

	b.built = true

	return engine, nil
}
