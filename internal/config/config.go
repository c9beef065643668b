// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads accountd configuration.
//
// Values are layered: flag defaults, then the YAML file named by --config
// or found under the XDG config directory, then flags set on the command
// line. Secrets are never read from flags or files; they come from the
// environment only.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/credential"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/reset"
	"github.com/holomush/accounts/internal/session"
	"github.com/holomush/accounts/internal/store"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Password hashers.
const (
	HasherArgon2id  = "argon2id"
	HasherKeystream = "keystream"
)

// AppName names the XDG config directory and default config file.
const AppName = "accountd"

// Default flag values.
const (
	DefaultHTTPAddr    = "127.0.0.1:8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
	DefaultLogLevel    = "info"
	DefaultIssuer      = "accountd"
)

// Secrets are read from the environment.
type Secrets struct {
	SigningKey    string `env:"ACCOUNTS_SIGNING_KEY"`
	DatabaseURL   string `env:"DATABASE_URL"`
	CredentialKey string `env:"ACCOUNTS_CREDENTIAL_KEY"`
	CredentialIV  string `env:"ACCOUNTS_CREDENTIAL_IV"`
	RedisURL      string `env:"REDIS_URL"`
}

// Config is the resolved accountd configuration.
type Config struct {
	HTTPAddr      string        `koanf:"http-addr"`
	MetricsAddr   string        `koanf:"metrics-addr"`
	LogFormat     string        `koanf:"log-format"`
	LogLevel      string        `koanf:"log-level"`
	Store         string        `koanf:"store"`
	DBMaxConns    int32         `koanf:"db-max-conns"`
	Hasher        string        `koanf:"hasher"`
	LookupTimeout time.Duration `koanf:"lookup-timeout"`
	TokenIssuer   string        `koanf:"token-issuer"`
	AccessTTL     time.Duration `koanf:"access-ttl"`
	RefreshTTL    time.Duration `koanf:"refresh-ttl"`
	ResetMaxAge   time.Duration `koanf:"reset-max-age"`
	ResetURL      string        `koanf:"reset-url"`
	RedisPrefix   string        `koanf:"redis-prefix"`

	Secrets Secrets `koanf:"-"`
}

// RegisterFlags defines every configuration flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", DefaultHTTPAddr, "HTTP API listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("store", StorePostgres, "account store (postgres or memory)")
	fs.Int32("db-max-conns", 0, "maximum database connections (0 = driver default)")
	fs.String("hasher", HasherArgon2id, "password hasher (argon2id or keystream)")
	fs.Duration("lookup-timeout", credential.DefaultLookupTimeout, "email domain lookup timeout")
	fs.String("token-issuer", DefaultIssuer, "session token issuer claim")
	fs.Duration("access-ttl", session.DefaultAccessTTL, "access token lifetime")
	fs.Duration("refresh-ttl", session.DefaultRefreshTTL, "refresh token lifetime")
	fs.Duration("reset-max-age", reset.DefaultMaxAge, "password reset token lifetime")
	fs.String("reset-url", auth.DefaultResetURL, "base URL reset tokens are appended to")
	fs.String("redis-prefix", session.DefaultRedisPrefix, "key prefix for revoked tokens in Redis")
}

// DefaultPath returns the XDG location of the config file. XDG_CONFIG_HOME
// is checked first, falling back to ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, AppName, AppName+".yaml")
}

// Discover returns path when set. Otherwise it returns DefaultPath when that
// file exists, or "" to run on flags alone.
func Discover(path string) string {
	if path != "" {
		return path
	}
	candidate := DefaultPath()
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

// Load resolves configuration from fs, the optional YAML file at path, and
// the environment. A nil environ reads the process environment.
func Load(fs *pflag.FlagSet, path string, environ map[string]string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}
	// With k supplied, unchanged flags only fill keys the file left unset.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg.Secrets, opts); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	return cfg, nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http-addr").Errorf("http-addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").With("key", "log-format").
			Errorf("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log-level").
			Errorf("log-level %q is not a valid level: %v", c.LogLevel, err)
	}

	switch c.Store {
	case StorePostgres:
		if c.Secrets.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").With("key", "DATABASE_URL").
				Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return oops.Code("CONFIG_INVALID").With("key", "store").
			Errorf("store must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	if len(c.Secrets.SigningKey) < session.MinSigningKeyLen {
		return oops.Code("CONFIG_INVALID").With("key", "ACCOUNTS_SIGNING_KEY").
			Errorf("ACCOUNTS_SIGNING_KEY must be at least %d bytes", session.MinSigningKeyLen)
	}

	for key, d := range map[string]time.Duration{
		"access-ttl":     c.AccessTTL,
		"refresh-ttl":    c.RefreshTTL,
		"reset-max-age":  c.ResetMaxAge,
		"lookup-timeout": c.LookupTimeout,
	} {
		if d <= 0 {
			return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s must be positive, got %s", key, d)
		}
	}

	keySet := c.Secrets.CredentialKey != "" || c.Secrets.CredentialIV != ""
	switch c.Hasher {
	case HasherArgon2id:
	case HasherKeystream:
		if !keySet {
			return oops.Code("CONFIG_INVALID").With("key", "hasher").
				Errorf("keystream hasher needs ACCOUNTS_CREDENTIAL_KEY and ACCOUNTS_CREDENTIAL_IV")
		}
	default:
		return oops.Code("CONFIG_INVALID").With("key", "hasher").
			Errorf("hasher must be %q or %q, got %q", HasherArgon2id, HasherKeystream, c.Hasher)
	}
	if keySet {
		switch len(c.Secrets.CredentialKey) {
		case 16, 24, 32:
		default:
			return oops.Code("CONFIG_INVALID").With("key", "ACCOUNTS_CREDENTIAL_KEY").
				Errorf("ACCOUNTS_CREDENTIAL_KEY must be 16, 24 or 32 bytes")
		}
		if len(c.Secrets.CredentialIV) != 16 {
			return oops.Code("CONFIG_INVALID").With("key", "ACCOUNTS_CREDENTIAL_IV").
				Errorf("ACCOUNTS_CREDENTIAL_IV must be 16 bytes")
		}
	}

	if c.Secrets.RedisURL != "" && strings.TrimSpace(c.RedisPrefix) == "" {
		return oops.Code("CONFIG_INVALID").With("key", "redis-prefix").Errorf("redis-prefix must not be empty")
	}
	return nil
}

// LegacyCredentials reports whether a keystream key is configured.
func (c *Config) LegacyCredentials() bool {
	return c.Secrets.CredentialKey != ""
}

// ConnectOptions returns the database connection settings.
func (c *Config) ConnectOptions() store.ConnectOptions {
	return store.ConnectOptions{MaxConns: c.DBMaxConns}
}
