package washline

import (
	"fmt"
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

// Config configures an App.
type Config struct {
	// DataDir holds the local cache and queue. Required.
	DataDir string

	// Storage selects the local store: "file" (one JSON document per key)
	// or "sqlite". Default: file
	Storage string

	// Remote selects the authoritative store: "postgrest", "postgres" or
	// "memory". Default: postgrest
	Remote string

	// RemoteURL is the PostgREST project URL.
	RemoteURL string

	// APIKey is the PostgREST anon key.
	APIKey string

	// AccessToken is the signed-in user's JWT. It is sent to PostgREST and,
	// with JWTSecret set, opens the session of the permission gate.
	AccessToken string

	// DatabaseURL is the PostgreSQL DSN for the postgres remote.
	DatabaseURL string

	// JWTSecret verifies session tokens. Empty grants every action.
	JWTSecret string

	// RemoteTimeout bounds every remote call and ping.
	// Default: 10 seconds
	RemoteTimeout time.Duration

	// ProbeInterval is the connectivity check interval while online.
	// Default: 15 seconds
	ProbeInterval time.Duration

	// ProbeMaxInterval caps the probe backoff while offline.
	// Default: 2 minutes
	ProbeMaxInterval time.Duration

	// FlushDelay batches cache persistence writes. Zero writes on every change.
	FlushDelay time.Duration

	// MaxAttempts drops a queued mutation after this many network failures.
	// Zero retries forever.
	MaxAttempts int

	// DefaultMinQuantity is the low stock threshold for new stock items.
	DefaultMinQuantity int

	// Offline pins connectivity off; writes are queued until it is cleared.
	Offline bool
}

// DefaultConfig returns a Config with default values. DataDir and the
// remote settings still need to be set.
func DefaultConfig() Config {
	return Config{
		Storage:            StorageFile,
		Remote:             RemotePostgREST,
		RemoteTimeout:      10 * time.Second,
		ProbeInterval:      15 * time.Second,
		ProbeMaxInterval:   2 * time.Minute,
		FlushDelay:         250 * time.Millisecond,
		DefaultMinQuantity: domain.DefaultMinQuantity,
	}
}

// SetDefaults fills zero values that have defaults.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.Storage == "" {
		c.Storage = d.Storage
	}
	if c.Remote == "" {
		c.Remote = d.Remote
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = d.RemoteTimeout
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = d.ProbeInterval
	}
	if c.ProbeMaxInterval < c.ProbeInterval {
		c.ProbeMaxInterval = max(d.ProbeMaxInterval, c.ProbeInterval)
	}
	c.RemoteURL = strings.TrimRight(c.RemoteURL, "/")
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return invalid("data dir is required")
	}
	switch c.Storage {
	case StorageFile, StorageSQLite:
	default:
		return invalid("unknown storage %q", c.Storage)
	}
	switch c.Remote {
	case RemotePostgREST:
		if c.RemoteURL == "" {
			return invalid("remote url is required for the postgrest remote")
		}
	case RemotePostgres:
		if c.DatabaseURL == "" {
			return invalid("database url is required for the postgres remote")
		}
	case RemoteMemory:
	default:
		return invalid("unknown remote %q", c.Remote)
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
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
