package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

// Config is the full service configuration. Every secret-bearing field is
// required; absence is a fatal startup error, never a silently-applied
// default.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Security    SecurityConfig  `mapstructure:"security"`
	Session     SessionConfig   `mapstructure:"session"`
	MFA         MFAConfig       `mapstructure:"mfa"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`

	OAuthProviders map[string]OAuthProviderConfig `mapstructure:"oauth_providers"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// TrustedProxies lists the proxies whose X-Forwarded-For may be believed.
	// Empty means none: the client IP is always the socket peer, so rate-limit
	// identities cannot be forged with a header.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn" validate:"required"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	// MigrationsURL is the golang-migrate source, e.g. "file://migrations".
	MigrationsURL string `mapstructure:"migrations_url"`
}

type RedisConfig struct {
	// Addr empty selects the in-memory limiter and session store, which are
	// only correct for a single-instance deployment.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	// Brokers empty disables event publishing.
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SecurityConfig struct {
	// RootSecret seeds every derived key. Minimum 32 bytes; validated again
	// for entropy by the secret manager.
	RootSecret string `mapstructure:"root_secret" validate:"required,min=32"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// CookieSecure should be true in production.
	CookieSecure bool   `mapstructure:"cookie_secure"`
	CookieDomain string `mapstructure:"cookie_domain"`
}

type MFAConfig struct {
	Issuer          string `mapstructure:"issuer"`
	BackupCodeCount int    `mapstructure:"backup_code_count"`
}

type RateLimitConfig struct {
	Window           time.Duration `mapstructure:"window"`
	SoftThreshold    int           `mapstructure:"soft_threshold"`
	HardThreshold    int           `mapstructure:"hard_threshold"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	BaseLockout      time.Duration `mapstructure:"base_lockout"`
	EscalationWindow time.Duration `mapstructure:"escalation_window"`
	// CrisisOverride disables lockout enforcement on the second-factor step,
	// for incidents where locked-out users must get back in. Operator-set
	// only; it is never exposed to clients. Every bypassed check is audited.
	CrisisOverride bool `mapstructure:"crisis_override"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type OAuthProviderConfig struct {
	ClientID     string   `mapstructure:"client_id" validate:"required"`
	ClientSecret string   `mapstructure:"client_secret" validate:"required"`
	RedirectURL  string   `mapstructure:"redirect_url" validate:"required,url"`
	AuthURL      string   `mapstructure:"auth_url" validate:"required,url"`
	TokenURL     string   `mapstructure:"token_url" validate:"required,url"`
	UserInfoURL  string   `mapstructure:"user_info_url" validate:"required,url"`
	Scopes       []string `mapstructure:"scopes"`
	// UsePKCE enables the code-verifier/challenge pair. Always on for
	// providers that support it.
	UsePKCE bool `mapstructure:"use_pkce"`
}

// Validate enforces the required fields and the closed provider set.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return domainErrors.NewConfigurationError("config", err.Error())
	}

	if len(c.OAuthProviders) == 0 {
		return domainErrors.NewConfigurationError("oauth_providers", "at least one provider must be configured")
	}
	for name, providerCfg := range c.OAuthProviders {
		if !entity.ValidProvider(entity.OAuthProvider(name)) {
			return domainErrors.NewConfigurationError("oauth_providers",
				fmt.Sprintf("unsupported provider %q", name))
		}
		if err := v.Struct(providerCfg); err != nil {
			return domainErrors.NewConfigurationError("oauth_providers."+name, err.Error())
		}
	}
	return nil
}
