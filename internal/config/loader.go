package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML file and AUTH_-prefixed
// environment variables, then validates it. Secrets have no defaults.
func Load() (*Config, error) {
	v := newViper()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Environment-only configuration is fine; a malformed file is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cookie_secure", true)
	v.SetDefault("mfa.issuer", "Assistant")
	v.SetDefault("mfa.backup_code_count", 10)
	v.SetDefault("rate_limit.window", "15m")
	v.SetDefault("rate_limit.soft_threshold", 5)
	v.SetDefault("rate_limit.hard_threshold", 10)
	v.SetDefault("rate_limit.base_delay", "2s")
	v.SetDefault("rate_limit.base_lockout", "15m")
	v.SetDefault("rate_limit.escalation_window", "24h")
	v.SetDefault("rate_limit.crisis_override", false)
	v.SetDefault("database.migrations_url", "file://migrations")
}
