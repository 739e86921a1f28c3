package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir            string `toml:"data_dir"`
	Storage            string `toml:"storage"`
	Remote             string `toml:"remote"`
	RemoteURL          string `toml:"remote_url"`
	APIKey             string `toml:"api_key"`
	AccessToken        string `toml:"access_token"`
	DatabaseURL        string `toml:"database_url"`
	JWTSecret          string `toml:"jwt_secret"`
	RemoteTimeout      string `toml:"remote_timeout"`
	ProbeInterval      string `toml:"probe_interval"`
	ProbeMaxInterval   string `toml:"probe_max_interval"`
	FlushDelay         string `toml:"flush_delay"`
	MaxAttempts        *int   `toml:"max_attempts"`
	DefaultMinQuantity *int   `toml:"default_min_quantity"`
	Offline            *bool  `toml:"offline"`
	LogLevel           string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.washline/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".washline", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("storage", fc.Storage, &cfg.Storage)
	s.setString("remote", fc.Remote, &cfg.Remote)
	s.setString("remote-url", fc.RemoteURL, &cfg.RemoteURL)
	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("access-token", fc.AccessToken, &cfg.AccessToken)
	s.setString("database-url", fc.DatabaseURL, &cfg.DatabaseURL)
	s.setString("jwt-secret", fc.JWTSecret, &cfg.JWTSecret)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("remote-timeout", fc.RemoteTimeout, &cfg.RemoteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", fc.ProbeInterval, &cfg.ProbeInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-max-interval", fc.ProbeMaxInterval, &cfg.ProbeMaxInterval); err != nil {
		return err
	}
	if err := s.setDuration("flush-delay", fc.FlushDelay, &cfg.FlushDelay); err != nil {
		return err
	}

	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)
	s.setInt("default-min-quantity", fc.DefaultMinQuantity, &cfg.DefaultMinQuantity)
	s.setBool("offline", fc.Offline, &cfg.Offline)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
