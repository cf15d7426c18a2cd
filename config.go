package goIdentity

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/password"
)

// Config holds every tunable of the [Engine]. Start from [DefaultConfig] or
// [LoadConfig]; the Builder validates the result before use.
type Config struct {
	Password     PasswordConfig     `envPrefix:"PASSWORD_"`
	Verification VerificationConfig `envPrefix:"VERIFICATION_"`
	Security     SecurityConfig     `envPrefix:"SECURITY_"`
	Store        StoreConfig        `envPrefix:"STORE_"`
	Admin        AdminConfig        `envPrefix:"ADMIN_"`
	Audit        AuditConfig        `envPrefix:"AUDIT_"`
	Metrics      MetricsConfig      `envPrefix:"METRICS_"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls the PBKDF2 credential hasher.
type PasswordConfig struct {
	Iterations     int  `env:"ITERATIONS"`
	SaltLength     int  `env:"SALT_LENGTH"`
	KeyLength      int  `env:"KEY_LENGTH"`
	UpgradeOnLogin bool `env:"UPGRADE_ON_LOGIN"`
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls the email verification workflow.
//
// TokenTTL of zero means issued tokens never expire.
type VerificationConfig struct {
	RedisPrefix    string        `env:"REDIS_PREFIX"`
	TokenTTL       time.Duration `env:"TOKEN_TTL"`
	MaxRequests    int           `env:"MAX_REQUESTS"`
	RequestWindow  time.Duration `env:"REQUEST_WINDOW"`
	IssueOnCreate  bool          `env:"ISSUE_ON_CREATE"`
	ConfirmURL     string        `env:"CONFIRM_URL"`
	Subject        string        `env:"SUBJECT"`
	WelcomeSubject string        `env:"WELCOME_SUBJECT"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls sign-in throttling.
type SecurityConfig struct {
	EnableIPThrottle      bool          `env:"ENABLE_IP_THROTTLE"`
	MaxLoginAttempts      int           `env:"MAX_LOGIN_ATTEMPTS"`
	LoginCooldownDuration time.Duration `env:"LOGIN_COOLDOWN"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds the retry applied to credential and profile store calls.
type StoreConfig struct {
	MaxRetries   int           `env:"MAX_RETRIES"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF"`
}

/*
====================================
ADMIN CONFIG
====================================
*/

// AdminConfig lists the identities an administrative override may target.
// An empty list disables the override path.
type AdminConfig struct {
	OverrideAllowList []string `env:"OVERRIDE_ALLOW_LIST" envSeparator:","`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Iterations:     password.DefaultIterations,
			SaltLength:     16,
			KeyLength:      64,
			UpgradeOnLogin: true,
		},
		Verification: VerificationConfig{
			RedisPrefix:    "gid:vt",
			TokenTTL:       0,
			MaxRequests:    5,
			RequestWindow:  time.Hour,
			IssueOnCreate:  true,
			Subject:        "Verify your email address",
			WelcomeSubject: "Your email is verified. Welcome!",
		},
		Security: SecurityConfig{
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Store: StoreConfig{
			MaxRetries:   1,
			RetryBackoff: 50 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.Admin.OverrideAllowList) > 0 {
		out.Admin.OverrideAllowList = append([]string(nil), cfg.Admin.OverrideAllowList...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	// Password
	if c.Password.Iterations < password.MinIterations {
		return errors.New("Password Iterations must be >= 100000")
	}
	if c.Password.Iterations > password.MaxIterations {
		return errors.New("Password Iterations must be <= 10000000")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 32 {
		return errors.New("Password KeyLength must be >= 32")
	}

	// Verification
	if strings.TrimSpace(c.Verification.RedisPrefix) == "" {
		return errors.New("Verification RedisPrefix must not be empty")
	}
	if c.Verification.TokenTTL < 0 {
		return errors.New("Verification TokenTTL must be >= 0")
	}
	if c.Verification.MaxRequests < 0 {
		return errors.New("Verification MaxRequests must be >= 0")
	}
	if c.Verification.MaxRequests > 0 && c.Verification.RequestWindow <= 0 {
		return errors.New("Verification RequestWindow must be > 0 when MaxRequests is set")
	}
	if strings.TrimSpace(c.Verification.Subject) == "" || strings.TrimSpace(c.Verification.WelcomeSubject) == "" {
		return errors.New("Verification subjects must not be empty")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0 when MaxLoginAttempts is set")
	}

	// Store
	if c.Store.MaxRetries < 0 || c.Store.MaxRetries > 1 {
		return errors.New("Store MaxRetries must be 0 or 1")
	}
	if c.Store.RetryBackoff < 0 || c.Store.RetryBackoff > 5*time.Second {
		return errors.New("Store RetryBackoff must be within [0, 5s]")
	}

	// Admin
	for _, id := range c.Admin.OverrideAllowList {
		if strings.TrimSpace(id) == "" {
			return errors.New("Admin OverrideAllowList must not contain blank identities")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
