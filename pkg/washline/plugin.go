package washline

import "context"

// Plugin extends a running App. Plugins are initialized by Start in
// registration order and shut down by Stop in reverse order.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to plugins on initialization.
type PluginConfig struct {
	DataDir  string
	Logger   Logger
	Controls Controls
}

// Controls lets plugins steer a running App.
type Controls interface {
	// SetOffline pins connectivity off, or releases it.
	SetOffline(offline bool)

	// Offline reports whether connectivity is pinned off.
	Offline() bool
}
