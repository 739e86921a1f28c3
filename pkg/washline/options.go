package washline

import (
	"time"

	"github.com/bft-labs/washline/internal/ports"
	"github.com/bft-labs/washline/pkg/log"
)

// Ports an embedding application can replace.
type (
	Logger         = log.Logger
	LogField       = log.Field
	HTTPClient     = ports.HTTPClient
	KVStore        = ports.KVStore
	RemoteStore    = ports.RemoteStore
	Pinger         = ports.Pinger
	Connectivity   = ports.Connectivity
	PermissionGate = ports.PermissionGate
	Session        = ports.Session
)

// Option configures optional behavior of an App.
type Option func(*options)

type options struct {
	httpClient   ports.HTTPClient
	logger       ports.Logger
	eventHandler EventHandler
	plugins      []Plugin
	store        ports.KVStore
	remote       ports.RemoteStore
	pinger       ports.Pinger
	conn         ports.Connectivity
	gate         ports.PermissionGate
	now          func() time.Time
}

func defaultOptions() options {
	return options{logger: log.NewNoopLogger()}
}

// WithHTTPClient sets the client used by the postgrest remote.
// If not provided, a client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for lifecycle and sync events.
// Events are called synchronously; implementations should return quickly.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the App starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithKVStore replaces the local store selected by Config.Storage.
func WithKVStore(store KVStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRemoteStore replaces the remote selected by Config.Remote. pinger
// feeds the connectivity probe; nil means the store is always reachable.
func WithRemoteStore(remote RemoteStore, pinger Pinger) Option {
	return func(o *options) {
		o.remote = remote
		o.pinger = pinger
	}
}

// WithConnectivity replaces the built-in probe. Config.Offline is ignored;
// the source decides.
func WithConnectivity(conn Connectivity) Option {
	return func(o *options) {
		o.conn = conn
	}
}

// WithPermissionGate replaces the gate derived from Config.JWTSecret.
func WithPermissionGate(gate PermissionGate) Option {
	return func(o *options) {
		o.gate = gate
	}
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
