package washline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/washline/internal/adapters/auth"
	"github.com/bft-labs/washline/internal/adapters/fs"
	"github.com/bft-labs/washline/internal/adapters/memory"
	"github.com/bft-labs/washline/internal/adapters/netprobe"
	"github.com/bft-labs/washline/internal/adapters/postgres"
	"github.com/bft-labs/washline/internal/adapters/postgrest"
	"github.com/bft-labs/washline/internal/adapters/sqlite"
	"github.com/bft-labs/washline/internal/app"
	"github.com/bft-labs/washline/internal/cache"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
	"github.com/bft-labs/washline/internal/queue"
	"github.com/bft-labs/washline/pkg/lifecycle"
)

// SQLiteFile is the database file name inside DataDir for sqlite storage.
const SQLiteFile = "washline.db"

// Manager types and their inputs.
type (
	CustomerManager  = app.CustomerManager
	PackageManager   = app.PackageManager
	ContainerManager = app.ContainerManager
	StockManager     = app.StockManager

	CustomerInput = app.CustomerInput
	CustomerPatch = app.CustomerPatch
	PackageInput  = app.PackageInput
	PackagePatch  = app.PackagePatch
	StockInput    = app.StockInput
	StockPatch    = app.StockPatch
)

// Entities.
type (
	Customer  = domain.Customer
	Package   = domain.Package
	Container = domain.Container
	StockItem = domain.StockItem
)

// IsTemporaryID reports whether id was assigned locally and is still
// waiting for the server id.
func IsTemporaryID(id string) bool { return domain.IsTempID(id) }

// App is an embeddable laundry operations client. Reads are always served
// from the local cache; writes reach the remote store directly when it is
// reachable and are queued for replay otherwise.
//
// Open loads local state. Start runs the connectivity probe and the drain
// loop in the background; without Start, call Sync to replay the queue.
type App struct {
	config    Config
	opts      options
	logger    ports.Logger
	lifecycle *lifecycle.Lifecycle

	store       ports.KVStore
	remote      ports.RemoteStore
	conn        ports.Connectivity
	probe       *netprobe.Probe
	session     *auth.SessionGate
	postgrest   *postgrest.RemoteStore
	queue       *queue.Queue
	coordinator *app.Coordinator
	managers    *app.Managers

	plugins []Plugin
	closers []func() error
	offline atomic.Bool
	refresh chan struct{}

	mu          sync.Mutex
	unsubscribe func()
}

// Open builds an App from cfg and restores its cache and queue from local
// storage. Open does not contact the remote store.
func Open(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		config:  cfg,
		opts:    o,
		logger:  o.logger,
		plugins: o.plugins,
		refresh: make(chan struct{}, 1),
	}

	if err := a.openStore(); err != nil {
		return nil, err
	}
	if err := a.openRemote(ctx); err != nil {
		_ = a.closeResources()
		return nil, err
	}
	a.openConnectivity()
	gate := a.openGate()

	q, err := queue.Open(ctx, a.store, a.logger)
	if err != nil {
		_ = a.closeResources()
		return nil, fmt.Errorf("open queue: %w", err)
	}
	a.queue = q

	appCtx := app.NewContext(a.remote, gate, a.logger, app.Settings{
		CallTimeout:        cfg.RemoteTimeout,
		DefaultMinQuantity: cfg.DefaultMinQuantity,
	})
	if o.now != nil {
		appCtx.Now = o.now
	}

	a.coordinator = app.NewCoordinator(app.CoordinatorConfig{
		CallTimeout: cfg.RemoteTimeout,
		MaxAttempts: cfg.MaxAttempts,
	}, q, a.remote, a.logger, syncEvents{handler: o.eventHandler, drained: a.requestRefresh})

	a.managers = app.NewManagers(appCtx, a.store, a.coordinator, cache.WithFlushDelay(cfg.FlushDelay))
	for _, r := range a.managers.Reconcilers() {
		a.coordinator.Register(r)
	}
	a.managers.Load(ctx)

	var emitter lifecycle.EventEmitter
	if o.eventHandler != nil {
		emitter = lifecycleEvents{handler: o.eventHandler}
	}
	a.lifecycle = lifecycle.New(a.logger, emitter)

	a.logger.Info("washline opened",
		ports.String("data_dir", cfg.DataDir),
		ports.String("storage", cfg.Storage),
		ports.String("remote", cfg.Remote),
		ports.Int("pending", q.Len()),
	)
	return a, nil
}

func (a *App) openStore() error {
	if a.opts.store != nil {
		a.store = a.opts.store
		return nil
	}
	if err := os.MkdirAll(a.config.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	switch a.config.Storage {
	case StorageSQLite:
		db, err := sqlite.Open(filepath.Join(a.config.DataDir, SQLiteFile))
		if err != nil {
			return err
		}
		a.store = db
		a.closers = append(a.closers, db.Close)
	default:
		a.store = fs.NewKVStore(a.config.DataDir)
	}
	return nil
}

func (a *App) openRemote(ctx context.Context) error {
	if a.opts.remote != nil {
		a.remote = a.opts.remote
		return nil
	}
	switch a.config.Remote {
	case RemotePostgres:
		pool, err := postgres.NewPool(ctx, a.config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		a.remote = postgres.New(pool, a.logger)
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
	case RemoteMemory:
		a.remote = memory.NewRemoteStore()
	default:
		client := a.opts.httpClient
		if client == nil {
			client = &http.Client{Timeout: a.config.RemoteTimeout}
		}
		rs := postgrest.New(client, postgrest.Config{
			URL:         a.config.RemoteURL,
			APIKey:      a.config.APIKey,
			AccessToken: a.config.AccessToken,
		}, a.logger)
		a.remote = rs
		a.postgrest = rs
	}
	return nil
}

func (a *App) openConnectivity() {
	if a.opts.conn != nil {
		a.conn = a.opts.conn
		return
	}
	pinger := a.opts.pinger
	if pinger == nil {
		if p, ok := a.remote.(ports.Pinger); ok && a.opts.remote == nil {
			pinger = p
		} else {
			pinger = reachable{}
		}
	}
	a.probe = netprobe.NewProbe(pinger, netprobe.Config{
		Interval:    a.config.ProbeInterval,
		MaxInterval: a.config.ProbeMaxInterval,
		Timeout:     a.config.RemoteTimeout,
	}, a.logger)
	a.conn = a.probe
	if a.config.Offline {
		a.offline.Store(true)
		a.probe.ForceOffline(true)
	}
}

func (a *App) openGate() ports.PermissionGate {
	if a.opts.gate != nil {
		return a.opts.gate
	}
	if a.config.JWTSecret == "" {
		return auth.AllowAll{}
	}
	a.session = auth.NewSessionGate(a.config.JWTSecret, nil)
	if a.config.AccessToken != "" {
		if _, err := a.session.SignIn(a.config.AccessToken); err != nil {
			a.logger.Warn("access token rejected, starting signed out", ports.Err(err))
		}
	}
	return a.session
}

// Start runs the connectivity probe, the drain loop, cache refreshes and
// the plugins in the background until Stop is called or ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := a.lifecycle.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		DataDir:  a.config.DataDir,
		Logger:   a.logger,
		Controls: a,
	}
	for _, p := range a.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			a.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			cancel()
			_ = a.lifecycle.TransitionTo(lifecycle.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		a.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	// Refresh after every reconnect. The coordinator is told first so the
	// refresh does not see a stale offline flag.
	a.unsubscribe = a.conn.Subscribe(func(online bool) {
		a.coordinator.SetOnline(online)
		if online {
			a.requestRefresh()
		}
	})

	if a.probe != nil {
		a.lifecycle.Go("probe", func() error { return a.probe.Run(runCtx) })
	}
	a.lifecycle.Go("coordinator", func() error { return a.coordinator.Run(runCtx, a.conn) })
	a.lifecycle.Go("refresh", func() error { return a.refreshLoop(runCtx) })

	if a.conn.Online() {
		a.requestRefresh()
	}
	return a.lifecycle.TransitionTo(lifecycle.StateRunning, "workers started")
}

// Stop cancels the background workers, shuts down plugins and flushes the
// cache. It waits up to lifecycle.ShutdownTimeout for workers to exit.
func (a *App) Stop() error {
	a.mu.Lock()
	if !a.lifecycle.CanStop() {
		a.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := a.lifecycle.TransitionTo(lifecycle.StateStopping, "Stop() called"); err != nil {
		a.mu.Unlock()
		return err
	}
	a.lifecycle.Cancel()
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	a.mu.Unlock()

	err := a.lifecycle.Wait(lifecycle.ShutdownTimeout)

	shutdownCtx := context.Background()
	for i := len(a.plugins) - 1; i >= 0; i-- {
		p := a.plugins[i]
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(shutdownErr))
		} else {
			a.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}

	if flushErr := a.managers.Flush(shutdownCtx); flushErr != nil {
		a.logger.Error("cache flush failed", ports.Err(flushErr))
	}

	if err != nil {
		_ = a.lifecycle.TransitionTo(lifecycle.StateCrashed, "shutdown timeout")
	} else {
		_ = a.lifecycle.TransitionTo(lifecycle.StateStopped, "graceful shutdown")
	}
	return err
}

// Close stops the App if it is running, persists the cache and releases
// local and remote connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.lifecycle.CanStop() {
		if err := a.Stop(); err != nil {
			errs = append(errs, err)
		}
	} else {
		// A crashed App may still have workers running.
		a.lifecycle.Cancel()
		if err := a.lifecycle.Wait(lifecycle.ShutdownTimeout); err != nil {
			errs = append(errs, err)
		}
		a.mu.Lock()
		if a.unsubscribe != nil {
			a.unsubscribe()
			a.unsubscribe = nil
		}
		a.mu.Unlock()
	}
	errs = append(errs, a.managers.Close(ctx), a.closeResources())
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Status returns the current lifecycle state.
func (a *App) Status() State { return a.lifecycle.State() }

// CheckConnectivity checks the remote store once and records the result.
// Writes made afterwards go straight to the remote store when it is
// reachable and nothing is queued.
func (a *App) CheckConnectivity(ctx context.Context) bool {
	online := a.conn.Online()
	if a.probe != nil {
		online = a.probe.Check(ctx)
	}
	a.coordinator.SetOnline(online)
	return online
}

// Sync checks connectivity and replays the queue once. A drain that
// empties the queue is followed by a cache refresh.
func (a *App) Sync(ctx context.Context) (DrainReport, error) {
	if !a.CheckConnectivity(ctx) {
		return DrainReport{Remaining: a.coordinator.Pending()},
			fmt.Errorf("%w: remote store unreachable", domain.ErrNetworkUnavailable)
	}
	report, err := a.coordinator.Drain(ctx)
	if err != nil {
		return report, err
	}
	if report.Remaining == 0 {
		if rerr := a.managers.Refresh(ctx); rerr != nil {
			a.logger.Warn("cache refresh failed", ports.Err(rerr))
		}
	}
	return report, a.managers.Flush(ctx)
}

// Refresh pulls a remote snapshot into every cache. It is a no-op while
// offline or while mutations are queued.
func (a *App) Refresh(ctx context.Context) error {
	return a.managers.Refresh(ctx)
}

func (a *App) requestRefresh() {
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

func (a *App) refreshLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.refresh:
			if err := a.managers.Refresh(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("cache refresh failed", ports.Err(err))
			}
		}
	}
}

// SetOffline pins connectivity off, or releases it. It only affects the
// built-in probe.
func (a *App) SetOffline(offline bool) {
	a.offline.Store(offline)
	if a.probe == nil {
		a.logger.Warn("offline mode ignored for external connectivity source")
		return
	}
	a.probe.ForceOffline(offline)
	if offline {
		a.coordinator.SetOnline(false)
	}
}

// Offline reports whether connectivity is pinned off.
func (a *App) Offline() bool { return a.offline.Load() }

// Online reports the last known connectivity.
func (a *App) Online() bool { return a.coordinator.Online() }

// SyncState returns the coordinator state.
func (a *App) SyncState() SyncState { return a.coordinator.State() }

// Pending returns the queued mutations in replay order.
func (a *App) Pending() []Mutation { return a.coordinator.PendingMutations() }

// SignIn verifies token and makes it the current session. The postgrest
// remote sends it as the bearer token from then on.
func (a *App) SignIn(token string) (Session, error) {
	if a.session == nil {
		return Session{}, fmt.Errorf("%w: jwt secret not configured", domain.ErrInvalidConfig)
	}
	s, err := a.session.SignIn(token)
	if err != nil {
		return Session{}, err
	}
	if a.postgrest != nil {
		a.postgrest.SetAccessToken(token)
	}
	return s, nil
}

// SignOut clears the session.
func (a *App) SignOut() {
	if a.session == nil {
		return
	}
	a.session.SignOut()
	if a.postgrest != nil {
		a.postgrest.SetAccessToken("")
	}
}

// OnAuthChange registers handler for session changes. Without a session
// gate it is never called.
func (a *App) OnAuthChange(handler func(Session)) func() {
	if a.session == nil {
		return func() {}
	}
	return a.session.OnAuthChange(handler)
}

// Customers returns the customer manager.
func (a *App) Customers() *CustomerManager { return a.managers.Customers }

// Packages returns the package manager.
func (a *App) Packages() *PackageManager { return a.managers.Packages }

// Containers returns the container manager.
func (a *App) Containers() *ContainerManager { return a.managers.Containers }

// Stock returns the stock manager.
func (a *App) Stock() *StockManager { return a.managers.Stock }

type reachable struct{}

func (reachable) Ping(context.Context) error { return nil }

var _ Controls = (*App)(nil)
