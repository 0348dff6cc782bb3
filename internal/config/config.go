package config

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix is prepended to every variable, e.g. SESSION_CLIENT_ID.
const envPrefix = "SESSION"

type Config interface {
	EnvConfig
	OAuthConfig
	StorageConfig
	AgentConfig
	Validate() error
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

type mainConfig struct {
	EnvVars
	OAuth
	Storage
	Agent
}

var _ Config = (*mainConfig)(nil)

// Load reads the configuration from SESSION_* environment variables, applying
// defaults for anything unset, and validates the result.
func Load() (Config, error) {
	c := &mainConfig{}
	if err := envconfig.Process(envPrefix, c); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[config Load] %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks enumerated settings.
func (c *mainConfig) Validate() error {
	if !isValidPrompt(c.Prompt) {
		return errors.Wrapf(errors.ErrInvalidConfig, "prompt must be one of %q, got %q", validPrompts, c.Prompt)
	}
	backend := strings.ToLower(c.Backend)
	switch backend {
	case StoreMemory, StoreFile, StoreKeyring, StoreRedis:
	default:
		return errors.Wrapf(errors.ErrInvalidConfig, "unknown store backend %q", c.Backend)
	}
	if backend == StoreRedis && c.RedisURL == "" {
		return errors.Wrapf(errors.ErrInvalidConfig, "redis store requires %s_REDIS_URL", envPrefix)
	}
	if c.RenewalLead < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "renewal lead must not be negative, got %s", c.RenewalLead)
	}
	return nil
}

func (c *mainConfig) String() string {
	return fmt.Sprintf("app=%q env=%s issuer=%s client=%s store=%s", c.AppName, c.Env, c.Issuer, c.ClientID, c.Backend)
}
