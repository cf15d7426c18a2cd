package goIdentity

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable read by [LoadConfig].
const EnvPrefix = "GOIDENTITY_"

// LoadConfig overlays GOIDENTITY_* environment variables on
// [DefaultConfig] and validates the result. Unset variables keep their
// defaults; durations use time.ParseDuration syntax.
//
// Example: GOIDENTITY_VERIFICATION_TOKEN_TTL=24h, GOIDENTITY_ADMIN_OVERRIDE_ALLOW_LIST=id1,id2.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFrom is [LoadConfig] over an explicit variable set instead of
// the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
