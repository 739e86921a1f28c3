package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

// DefaultCallTimeout bounds every remote call. A call that exceeds it is
// treated as NetworkUnavailable.
const DefaultCallTimeout = 10 * time.Second

// Settings holds the tunables shared by managers.
type Settings struct {
	CallTimeout        time.Duration
	DefaultMinQuantity int
}

// Context is the explicit application context handed to every manager at
// construction. Nothing in the core looks up ambient globals.
type Context struct {
	Remote      ports.RemoteStore
	Permissions ports.PermissionGate
	Logger      ports.Logger
	Settings    Settings
	Now         func() time.Time
}

// NewContext returns a Context with defaults filled in.
func NewContext(remote ports.RemoteStore, gate ports.PermissionGate, logger ports.Logger, settings Settings) *Context {
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = DefaultCallTimeout
	}
	if settings.DefaultMinQuantity < 0 {
		settings.DefaultMinQuantity = 0
	}
	return &Context{
		Remote:      remote,
		Permissions: gate,
		Logger:      logger,
		Settings:    settings,
		Now:         time.Now,
	}
}

// query runs q against the remote store under the call timeout.
func (c *Context) query(ctx context.Context, q ports.Query) (ports.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.Settings.CallTimeout)
	defer cancel()

	res, err := c.Remote.Query(callCtx, q)
	if err != nil {
		if callCtx.Err() != nil && domain.KindOf(err) == domain.KindUnknown {
			return ports.Result{}, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
		}
		return ports.Result{}, err
	}
	return res, nil
}

// authorize consults the permission gate for action.
func (c *Context) authorize(action string) error {
	if c.Permissions == nil || !c.Permissions.HasPermission(action) {
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, action)
	}
	return nil
}

func (c *Context) now() time.Time { return c.Now().UTC() }
