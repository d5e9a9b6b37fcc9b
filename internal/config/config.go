// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package config loads authio settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/xdg"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: AUTHIO_STORE__REDIS__ADDR sets store.redis.addr.
const EnvPrefix = "AUTHIO_"

// Store and mail drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config is the full authio configuration.
type Config struct {
	Server       ServerConfig  `koanf:"server"`
	Log          LogConfig     `koanf:"log"`
	Store        StoreConfig   `koanf:"store"`
	Session      SessionConfig `koanf:"session"`
	Reset        TTLConfig     `koanf:"reset"`
	Verification TTLConfig     `koanf:"verification"`
	Mail         MailConfig    `koanf:"mail"`
	Sweep        SweepConfig   `koanf:"sweep"`
}

// ServerConfig holds listener addresses.
type ServerConfig struct {
	HTTPAddr    string `koanf:"http_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	// PublicURL is the base that password reset links are built on.
	PublicURL string `koanf:"public_url"`
}

// LogConfig selects the log format and level.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Driver      string      `koanf:"driver"`
	DatabaseURL string      `koanf:"database_url"`
	Redis       RedisConfig `koanf:"redis"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// SessionConfig configures session credentials.
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
	Issuer string        `koanf:"issuer"`
}

// TTLConfig holds a credential lifetime.
type TTLConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// MailConfig configures notification delivery.
type MailConfig struct {
	Driver      string        `koanf:"driver"`
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	From        string        `koanf:"from"`
	ImplicitTLS bool          `koanf:"implicit_tls"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  uint64        `koanf:"max_retries"`

	// LogBody makes the log driver write message bodies, which contain
	// live reset links and codes, at debug level.
	LogBody bool `koanf:"log_body"`
}

// SweepConfig controls the periodic expired-credential sweep. A zero
// interval disables it.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:    ":8080",
			MetricsAddr: "127.0.0.1:9100",
			PublicURL:   auth.DefaultResetBaseURL,
		},
		Log:   LogConfig{Format: "json", Level: "info"},
		Store: StoreConfig{Driver: StorePostgres, Redis: RedisConfig{Addr: "localhost:6379", Prefix: "authio"}},
		Session: SessionConfig{
			TTL:    auth.SessionExpiry,
			Issuer: auth.DefaultSessionIssuer,
		},
		Reset:        TTLConfig{TTL: auth.ResetTokenExpiry},
		Verification: TTLConfig{TTL: auth.VerificationExpiry},
		Mail: MailConfig{
			Driver:      MailLog,
			Port:        465,
			Username:    "apikey",
			ImplicitTLS: true,
			Timeout:     10 * time.Second,
			MaxRetries:  2,
		},
	}
}

// flagKeys maps the flags registered by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"http-addr":      "server.http_addr",
	"metrics-addr":   "server.metrics_addr",
	"public-url":     "server.public_url",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"store":          "store.driver",
	"database-url":   "store.database_url",
	"mail-driver":    "mail.driver",
	"sweep-interval": "sweep.interval",
}

// RegisterFlags adds the overridable settings to fs. Only flags the user
// sets take effect.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.Server.HTTPAddr, "HTTP API listen address")
	fs.String("metrics-addr", d.Server.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.String("public-url", d.Server.PublicURL, "public base URL for password reset links")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store", d.Store.Driver, "credential store (postgres, redis or memory)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("mail-driver", d.Mail.Driver, "notification delivery (smtp or log)")
	fs.Duration("sweep-interval", d.Sweep.Interval, "expired credential sweep interval (0 disables)")
}

// Load builds a Config. path names a YAML file; when empty the XDG default
// is used if it exists. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	if path != "" {
		provider := file.Provider(path)
		data, err := provider.ReadBytes()
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(provider, yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}

	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func flagKey(f *pflag.Flag) (string, any) {
	key, ok := flagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	return key, f.Value.String()
}

// Validate checks every section used by the serve command.
func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return invalid("log.format", "must be json or text")
	}
	if len(c.Session.Secret) < auth.MinSessionSecretLen {
		return invalid("session.secret", "must be at least 32 bytes")
	}
	if c.Session.TTL <= 0 || c.Reset.TTL <= 0 || c.Verification.TTL <= 0 {
		return invalid("ttl", "credential lifetimes must be positive")
	}
	if c.Sweep.Interval < 0 {
		return invalid("sweep.interval", "must not be negative")
	}
	switch c.Mail.Driver {
	case MailLog:
	case MailSMTP:
		if c.Mail.Host == "" {
			return invalid("mail.host", "required for smtp delivery")
		}
		if c.Mail.From == "" {
			return invalid("mail.from", "required for smtp delivery")
		}
	default:
		return invalid("mail.driver", "must be smtp or log")
	}
	return nil
}

// ValidateStore checks only the store section.
func (c *Config) ValidateStore() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "required for the postgres store (or set DATABASE_URL)")
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return invalid("store.redis.addr", "required for the redis store")
		}
	default:
		return invalid("store.driver", "must be postgres, redis or memory")
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s: %s", key, msg)
}
