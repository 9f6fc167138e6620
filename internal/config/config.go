// Package config provides configuration loading and management for the roster tracker.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rostertrack/rostertrack/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the tracker
const EnvPrefix = "ROSTERTRACK"

// PasswordEnvVar holds the Postgres password when no password file is configured
const PasswordEnvVar = EnvPrefix + "_DATABASE_PASSWORD"

const (
	// StorageTypeMemory keeps all state in process memory
	StorageTypeMemory = "memory"

	// StorageTypeSQLite stores state in a local SQLite file
	StorageTypeSQLite = "sqlite"

	// StorageTypePostgres stores state in PostgreSQL
	StorageTypePostgres = "postgres"
)

const (
	// DefaultEndpoint is the base URL of the CueScore API
	DefaultEndpoint = "https://api.cuescore.com"

	// DefaultSourceTimeout bounds a single roster request
	DefaultSourceTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of attempts per roster fetch
	DefaultMaxRetries = 3

	// DefaultSyncInterval is the period of the background scheduler
	DefaultSyncInterval = time.Hour

	// DefaultConcurrency is the number of tournaments synced in parallel
	DefaultConcurrency = 4

	// DefaultSQLitePath is where the SQLite database lives when no path is configured
	DefaultSQLitePath = "./data/rostertrack.db"

	// RejoinIgnore and RejoinReactivate are the accepted rejoin policies
	RejoinIgnore     = "ignore"
	RejoinReactivate = "reactivate"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Source      SourceConfig       `yaml:"source"`
	Sync        SyncConfig         `yaml:"sync"`
	Storage     StorageConfig      `yaml:"storage"`
	Database    *DatabaseConfig    `yaml:"database,omitempty"`
	Tournaments []TournamentConfig `yaml:"tournaments,omitempty"`
	Telemetry   *telemetry.Config  `yaml:"telemetry,omitempty"`
}

// SourceConfig defines how rosters are fetched from the upstream API
type SourceConfig struct {
	// Endpoint is the base API URL (without path)
	// Defaults to "https://api.cuescore.com"
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout bounds a single HTTP request (e.g., "10s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is the total number of attempts for one fetch
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// InsecureSkipVerify disables TLS certificate verification
	InsecureSkipVerify bool `yaml:"insecureSkipVerify,omitempty"`
}

// SyncConfig defines the reconciliation schedule and policy
type SyncConfig struct {
	// Interval is the period between scheduled batches (e.g., "1h")
	Interval string `yaml:"interval,omitempty"`

	// Concurrency is the number of tournaments reconciled in parallel
	Concurrency int `yaml:"concurrency,omitempty"`

	// RunOnStart triggers a batch as soon as the scheduler starts
	// Defaults to true
	RunOnStart *bool `yaml:"runOnStart,omitempty"`

	// RejoinPolicy decides what happens when a participant who left shows up again
	// One of "ignore" (default) or "reactivate"
	RejoinPolicy string `yaml:"rejoinPolicy,omitempty"`

	// LockFile, when set, is an exclusive file lock held for the duration
	// of every batch so that separate processes never overlap
	LockFile string `yaml:"lockFile,omitempty"`
}

// StorageConfig selects the state store backend
type StorageConfig struct {
	// Type is one of memory, sqlite or postgres
	// Defaults to sqlite
	Type string `yaml:"type,omitempty"`

	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// SQLiteConfig defines the SQLite backend settings
type SQLiteConfig struct {
	// Path is the database file, created if missing
	Path string `yaml:"path"`
}

// TournamentConfig is a tournament tracked from startup
type TournamentConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of idle connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from ROSTERTRACK_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", PasswordEnvVar,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file.
// Without a path it returns the defaults.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetEndpoint returns the upstream endpoint, using DefaultEndpoint if not specified
func (s *SourceConfig) GetEndpoint() string {
	if s.Endpoint == "" {
		return DefaultEndpoint
	}
	return strings.TrimRight(s.Endpoint, "/")
}

// GetTimeout returns the request timeout, using DefaultSourceTimeout if not specified
func (s *SourceConfig) GetTimeout() time.Duration {
	return parseDurationOr(s.Timeout, DefaultSourceTimeout)
}

// GetMaxRetries returns the number of attempts per fetch
func (s *SourceConfig) GetMaxRetries() int {
	if s.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

// GetInterval returns the scheduler period, using DefaultSyncInterval if not specified
func (s *SyncConfig) GetInterval() time.Duration {
	return parseDurationOr(s.Interval, DefaultSyncInterval)
}

// GetConcurrency returns the batch parallelism
func (s *SyncConfig) GetConcurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

// GetRunOnStart reports whether a batch runs when the scheduler starts
func (s *SyncConfig) GetRunOnStart() bool {
	if s.RunOnStart == nil {
		return true
	}
	return *s.RunOnStart
}

// GetRejoinPolicy returns the configured rejoin policy, defaulting to ignore
func (s *SyncConfig) GetRejoinPolicy() string {
	if s.RejoinPolicy == "" {
		return RejoinIgnore
	}
	return s.RejoinPolicy
}

// GetStorageType returns the storage backend type, defaulting to sqlite
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeSQLite
	}
	return c.Storage.Type
}

// GetSQLitePath returns the SQLite database path
func (c *Config) GetSQLitePath() string {
	if c.Storage.SQLite == nil || c.Storage.SQLite.Path == "" {
		return DefaultSQLitePath
	}
	return c.Storage.SQLite.Path
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Source.Endpoint != "" {
		if u, err := url.Parse(c.Source.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("source.endpoint must be an absolute URL, got %q", c.Source.Endpoint))
		}
	}
	if err := validateDuration(c.Source.Timeout, "source.timeout"); err != nil {
		errs = append(errs, err)
	}
	if c.Source.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("source.maxRetries cannot be negative"))
	}

	if err := validateDuration(c.Sync.Interval, "sync.interval"); err != nil {
		errs = append(errs, err)
	}
	if c.Sync.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("sync.concurrency cannot be negative"))
	}
	switch c.Sync.RejoinPolicy {
	case "", RejoinIgnore, RejoinReactivate:
	default:
		errs = append(errs, fmt.Errorf("sync.rejoinPolicy must be %q or %q, got %q",
			RejoinIgnore, RejoinReactivate, c.Sync.RejoinPolicy))
	}

	switch c.GetStorageType() {
	case StorageTypeMemory, StorageTypeSQLite:
	case StorageTypePostgres:
		if err := validateDatabaseConfig(c.Database); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of %s, %s or %s, got %q",
			StorageTypeMemory, StorageTypeSQLite, StorageTypePostgres, c.Storage.Type))
	}

	seen := make(map[string]bool, len(c.Tournaments))
	for i, t := range c.Tournaments {
		if strings.TrimSpace(t.ID) == "" {
			errs = append(errs, fmt.Errorf("tournaments[%d]: id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("tournaments[%d]: duplicate tournament id '%s'", i, t.ID))
		}
		seen[t.ID] = true
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func validateDatabaseConfig(db *DatabaseConfig) error {
	if db == nil {
		return fmt.Errorf("database configuration is required for storage type %s", StorageTypePostgres)
	}
	if db.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if db.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if db.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if db.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	return validateDuration(db.ConnMaxLifetime, "database.connMaxLifetime")
}

func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
