// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package config loads server configuration from a YAML file, command
// line flags, and a small set of environment variables for secrets.
// Precedence: defaults < file < flags < environment.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full server configuration.
type Config struct {
	// Env is one of "dev", "staging", "prod".
	Env string `koanf:"env"`

	// BaseURL is the absolute public origin, used to build reset links.
	BaseURL string `koanf:"base_url"`

	HTTP          HTTPConfig    `koanf:"http"`
	Database      Database      `koanf:"database"`
	Cookie        Cookie        `koanf:"cookie"`
	Mail          Mail          `koanf:"mail"`
	Observability Observability `koanf:"observability"`
	Log           Log           `koanf:"log"`
}

// HTTPConfig holds listener settings for the public API.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// Database holds the PostgreSQL connection settings.
type Database struct {
	// URL is a pgx connection string. The DATABASE_URL environment
	// variable overrides it.
	URL string `koanf:"url"`

	// AutoMigrate applies pending migrations on serve startup.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// Cookie holds session cookie settings.
type Cookie struct {
	Name   string `koanf:"name"`
	Domain string `koanf:"domain"`
}

// Mail selects and configures the outbound mail transport.
type Mail struct {
	// Provider is "smtp", "mailgun", or "none".
	Provider string `koanf:"provider"`

	SMTP    SMTP    `koanf:"smtp"`
	Mailgun Mailgun `koanf:"mailgun"`
}

// SMTP holds relay settings. TURNSTILE_SMTP_PASSWORD overrides Password.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// Mailgun holds API settings. TURNSTILE_MAILGUN_API_KEY overrides APIKey.
type Mailgun struct {
	Domain string `koanf:"domain"`
	APIKey string `koanf:"api_key"`
	From   string `koanf:"from"`
}

// Observability holds the metrics/health listener settings.
type Observability struct {
	Addr string `koanf:"addr"`
}

// Log holds logging settings.
type Log struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `koanf:"level"`

	// Format is "json" or "text".
	Format string `koanf:"format"`
}

// Default returns a Config with development defaults.
func Default() *Config {
	return &Config{
		Env:     "dev",
		BaseURL: "http://localhost:8080",
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Database: Database{
			AutoMigrate: true,
		},
		Cookie: Cookie{
			Name: "turnstile_session",
		},
		Mail: Mail{
			Provider: "none",
		},
		Observability: Observability{
			Addr: ":9090",
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. path may be empty to skip the file
// layer; flags may be nil to skip the flag layer.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	// Secrets come from the environment, never from files in version control.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TURNSTILE_SMTP_PASSWORD"); v != "" {
		cfg.Mail.SMTP.Password = v
	}
	if v := os.Getenv("TURNSTILE_MAILGUN_API_KEY"); v != "" {
		cfg.Mail.Mailgun.APIKey = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	switch c.Env {
	case "dev", "staging", "prod":
	default:
		return oops.Code("CONFIG_INVALID").
			With("env", c.Env).
			Errorf("env must be dev, staging, or prod")
	}

	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database url is required (set database.url or DATABASE_URL)")
	}

	switch c.Mail.Provider {
	case "smtp", "mailgun", "none":
	default:
		return oops.Code("CONFIG_INVALID").
			With("provider", c.Mail.Provider).
			Errorf("mail provider must be smtp, mailgun, or none")
	}

	if c.Env == "prod" && c.Mail.Provider == "none" {
		return oops.Code("CONFIG_INVALID").Errorf("mail provider is required in prod; reset emails cannot be delivered otherwise")
	}

	return nil
}
