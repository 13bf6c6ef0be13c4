// Package config handles configuration loading and validation for shareport.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shareport/shareport/pkg/bytesize"
)

// Store backends.
const (
	BackendLocal  = "local"
	BackendWebDAV = "webdav"
)

// StoreConfig selects and configures the remote document store.
type StoreConfig struct {
	Backend string       `yaml:"backend"` // "local" or "webdav"
	Base    string       `yaml:"base"`    // folder prefix inside the store, may be empty
	Timeout string       `yaml:"timeout"` // per-call deadline, e.g. "30s"
	Local   LocalConfig  `yaml:"local"`
	WebDAV  WebDAVConfig `yaml:"webdav"`
}

// LocalConfig configures the local-disk backend.
type LocalConfig struct {
	Dir string `yaml:"dir"` // storage root (default: <data_dir>/store)
}

// WebDAVConfig configures the WebDAV backend, e.g. a NextCloud share.
type WebDAVConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconcileConfig configures the background reconciliation loop.
type ReconcileConfig struct {
	Interval string `yaml:"interval"` // "0" disables the background loop
}

// PersistenceConfig tunes durable document writes.
type PersistenceConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	VerifyDelay string `yaml:"verify_delay"`
	KeepBackups int    `yaml:"keep_backups"`
}

// AuthConfig configures token issuance and the administrator bootstrap.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTL      string `yaml:"token_ttl"`
	AdminPassword string `yaml:"admin_password"` // bootstrap credential for the synthesized admin
}

// AuditConfig configures the audit event recorder.
type AuditConfig struct {
	FlushInterval string `yaml:"flush_interval"` // remote log backup cadence
	ArchiveDir    string `yaml:"archive_dir"`    // local gzip archive dir (default: <data_dir>/audit)
	ArchiveKeep   int    `yaml:"archive_keep"`
}

// Config is the root shareport configuration.
type Config struct {
	Listen      string            `yaml:"listen"`
	DataDir     string            `yaml:"data_dir"`
	MaxUpload   bytesize.Size     `yaml:"max_upload"`
	Store       StoreConfig       `yaml:"store"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Auth        AuthConfig        `yaml:"auth"`
	Audit       AuditConfig       `yaml:"audit"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with every default applied, used when no
// config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/shareport"
	}
	// Expand home directory in data dir
	if strings.HasPrefix(c.DataDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			c.DataDir = filepath.Join(homeDir, c.DataDir[2:])
		}
	}
	if c.MaxUpload == 0 {
		c.MaxUpload = bytesize.Size(512 * bytesize.MB)
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendLocal
	}
	if c.Store.Timeout == "" {
		c.Store.Timeout = "30s"
	}
	if c.Store.Local.Dir == "" {
		c.Store.Local.Dir = filepath.Join(c.DataDir, "store")
	}
	if c.Reconcile.Interval == "" {
		c.Reconcile.Interval = "5m"
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "24h"
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "15m"
	}
	if c.Audit.ArchiveDir == "" {
		c.Audit.ArchiveDir = filepath.Join(c.DataDir, "audit")
	}
	if c.Audit.ArchiveKeep <= 0 {
		c.Audit.ArchiveKeep = 10
	}
}

// Validate checks the configuration for errors that would only surface at
// runtime otherwise.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	switch c.Store.Backend {
	case BackendLocal:
		if c.Store.Local.Dir == "" {
			return fmt.Errorf("store.local.dir is required for the local backend")
		}
	case BackendWebDAV:
		if c.Store.WebDAV.URL == "" {
			return fmt.Errorf("store.webdav.url is required for the webdav backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want %q or %q)", c.Store.Backend, BackendLocal, BackendWebDAV)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.AdminPassword == "" {
		return fmt.Errorf("auth.admin_password is required")
	}
	for name, value := range map[string]string{
		"store.timeout":        c.Store.Timeout,
		"reconcile.interval":   c.Reconcile.Interval,
		"auth.token_ttl":       c.Auth.TokenTTL,
		"audit.flush_interval": c.Audit.FlushInterval,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// StoreTimeout returns the per-call store deadline.
func (c *Config) StoreTimeout() time.Duration {
	return mustDuration(c.Store.Timeout, 30*time.Second)
}

// ReconcileInterval returns the background reconciliation cadence. Zero
// disables the loop.
func (c *Config) ReconcileInterval() time.Duration {
	return mustDuration(c.Reconcile.Interval, 5*time.Minute)
}

// TokenTTL returns the bearer token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return mustDuration(c.Auth.TokenTTL, 24*time.Hour)
}

// AuditFlushInterval returns the remote log backup cadence.
func (c *Config) AuditFlushInterval() time.Duration {
	return mustDuration(c.Audit.FlushInterval, 15*time.Minute)
}

// PersistBaseDelay returns the first retry backoff delay, zero meaning the
// package default.
func (c *Config) PersistBaseDelay() time.Duration {
	return mustDuration(c.Persistence.BaseDelay, 0)
}

// PersistVerifyDelay returns the verification read-back delay, zero meaning
// the package default.
func (c *Config) PersistVerifyDelay() time.Duration {
	return mustDuration(c.Persistence.VerifyDelay, 0)
}

// parseDuration parses a duration string, accepting "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := parseDuration(s)
	if err != nil {
		return fallback
	}
	if d == 0 && s == "" {
		return fallback
	}
	return d
}
