package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/washline/internal/domain"
)

// Storage backends.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Remote backends.
const (
	RemotePostgREST = "postgrest"
	RemotePostgres  = "postgres"
	RemoteMemory    = "memory"
)

// Config holds CLI configuration for washline.
type Config struct {
	DataDir string
	Storage string

	Remote      string
	RemoteURL   string
	APIKey      string
	AccessToken string
	DatabaseURL string
	JWTSecret   string

	RemoteTimeout    time.Duration
	ProbeInterval    time.Duration
	ProbeMaxInterval time.Duration
	FlushDelay       time.Duration

	MaxAttempts        int
	DefaultMinQuantity int
	Offline            bool
	LogLevel           string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Storage:            StorageFile,
		Remote:             RemotePostgREST,
		RemoteTimeout:      10 * time.Second,
		ProbeInterval:      15 * time.Second,
		ProbeMaxInterval:   2 * time.Minute,
		FlushDelay:         250 * time.Millisecond,
		DefaultMinQuantity: domain.DefaultMinQuantity,
		LogLevel:           "info",
		DataDir:            "", // Derived from the home directory during Validate
		APIKey:             os.Getenv("WASHLINE_API_KEY"),
	}
}

// DefaultDataDir returns ~/.washline/data, or a relative path when the home
// directory is unknown.
func DefaultDataDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".washline", "data")
	}
	return filepath.Join(".washline", "data")
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.Storage == "" {
		c.Storage = StorageFile
	}
	if c.Storage != StorageFile && c.Storage != StorageSQLite {
		return invalid("storage must be %q or %q, got %q", StorageFile, StorageSQLite, c.Storage)
	}

	if c.Remote == "" {
		c.Remote = RemotePostgREST
	}
	switch c.Remote {
	case RemotePostgREST:
		c.RemoteURL = strings.TrimRight(c.RemoteURL, "/")
		if c.RemoteURL == "" {
			return invalid("remote-url is required for the postgrest remote")
		}
	case RemotePostgres:
		if c.DatabaseURL == "" {
			return invalid("database-url is required for the postgres remote")
		}
	case RemoteMemory:
	default:
		return invalid("unknown remote %q", c.Remote)
	}

	if c.RemoteTimeout <= 0 {
		return invalid("remote timeout must be positive")
	}
	if c.ProbeInterval <= 0 {
		return invalid("probe interval must be positive")
	}
	if c.ProbeMaxInterval < c.ProbeInterval {
		c.ProbeMaxInterval = c.ProbeInterval
	}
	if c.FlushDelay < 0 {
		return invalid("flush delay must not be negative")
	}
	if c.MaxAttempts < 0 {
		return invalid("max attempts must not be negative")
	}
	if c.DefaultMinQuantity < 0 {
		return invalid("default min quantity must not be negative")
	}

	switch strings.ToLower(c.LogLevel) {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		return invalid("unknown log level %q", c.LogLevel)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if present and flag not changed.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
