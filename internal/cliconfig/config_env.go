package cliconfig

import (
	"os"
	"time"
)

// ApplyEnvConfig applies WASHLINE_* environment variables to cfg, skipping
// keys whose flag was set explicitly.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", os.Getenv("WASHLINE_DATA_DIR"), &cfg.DataDir)
	s.setString("storage", os.Getenv("WASHLINE_STORAGE"), &cfg.Storage)
	s.setString("remote", os.Getenv("WASHLINE_REMOTE"), &cfg.Remote)
	s.setString("remote-url", os.Getenv("WASHLINE_REMOTE_URL"), &cfg.RemoteURL)
	s.setString("api-key", os.Getenv("WASHLINE_API_KEY"), &cfg.APIKey)
	s.setString("access-token", os.Getenv("WASHLINE_ACCESS_TOKEN"), &cfg.AccessToken)
	s.setString("database-url", os.Getenv("WASHLINE_DATABASE_URL"), &cfg.DatabaseURL)
	s.setString("jwt-secret", os.Getenv("WASHLINE_JWT_SECRET"), &cfg.JWTSecret)
	s.setString("log-level", os.Getenv("WASHLINE_LOG_LEVEL"), &cfg.LogLevel)

	durations := []struct {
		flag string
		env  string
		dst  *time.Duration
	}{
		{"remote-timeout", "WASHLINE_REMOTE_TIMEOUT", &cfg.RemoteTimeout},
		{"probe-interval", "WASHLINE_PROBE_INTERVAL", &cfg.ProbeInterval},
		{"probe-max-interval", "WASHLINE_PROBE_MAX_INTERVAL", &cfg.ProbeMaxInterval},
		{"flush-delay", "WASHLINE_FLUSH_DELAY", &cfg.FlushDelay},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, os.Getenv(d.env), d.dst); err != nil {
			return err
		}
	}

	if err := s.setIntFromString("max-attempts", os.Getenv("WASHLINE_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("default-min-quantity", os.Getenv("WASHLINE_DEFAULT_MIN_QUANTITY"), &cfg.DefaultMinQuantity); err != nil {
		return err
	}
	s.setBoolFromString("offline", os.Getenv("WASHLINE_OFFLINE"), &cfg.Offline)

	return nil
}
