// Package config loads the database connection settings. Everything comes
// from the environment and is fixed for the session lifetime.
package config

import (
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Load reads configuration from POSTGRES_* environment variables, falling
// back to local defaults.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 5432)
	v.SetDefault("database", "postgres")
	v.SetDefault("user", "postgres")
	v.SetDefault("password", "")

	bindings := map[string]string{
		"host":     "POSTGRES_HOST",
		"port":     "POSTGRES_PORT",
		"database": "POSTGRES_DB",
		"user":     "POSTGRES_USER",
		"password": "POSTGRES_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Host == "" {
		return Config{}, fmt.Errorf("database host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return Config{}, fmt.Errorf("invalid database port %d", c.Port)
	}
	return c, nil
}

// DSN renders the settings as a pgx connection string with credentials
// properly escaped.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgresql",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u.String()
}
