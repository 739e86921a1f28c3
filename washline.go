// Package washline is an offline tolerant client core for laundry
// operations.
//
// Example usage:
//
//	cfg := washline.DefaultConfig()
//	cfg.DataDir = "/var/lib/washline"
//	cfg.RemoteURL = "https://xyz.supabase.co"
//	app, err := washline.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close(ctx)
//	report, err := app.Sync(ctx)
//
// See github.com/bft-labs/washline/pkg/washline for the full API.
package washline

import (
	"context"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/pkg/washline"
)

// Config holds the configuration of an App.
type Config = washline.Config

// App is the embeddable client.
type App = washline.App

// Option configures optional behavior of an App.
type Option = washline.Option

// Error kinds returned by the managers.
var (
	ErrValidation         = domain.ErrValidation
	ErrPermissionDenied   = domain.ErrPermissionDenied
	ErrNetworkUnavailable = domain.ErrNetworkUnavailable
	ErrRemoteValidation   = domain.ErrRemoteValidation
	ErrNotFound           = domain.ErrNotFound
	ErrInvalidConfig      = domain.ErrInvalidConfig
)

// Open builds an App and restores its local state.
func Open(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	return washline.Open(ctx, cfg, opts...)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return washline.DefaultConfig()
}

// IsTemporaryID reports whether id was assigned locally and is still
// waiting for the server id.
func IsTemporaryID(id string) bool {
	return washline.IsTemporaryID(id)
}
