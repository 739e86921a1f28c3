// Package washline provides an embeddable, offline tolerant client for
// laundry operations: customers, packages, shipping containers and stock.
//
// Every read is served from a local cache that survives restarts. Writes go
// straight to the remote store when it is reachable. Otherwise they are
// applied to the cache optimistically and recorded in a durable queue that
// is replayed in order once connectivity returns. Rows created offline carry
// a temp_ id until the server assigns the real one.
//
// # Basic Usage
//
//	cfg := washline.DefaultConfig()
//	cfg.DataDir = "/var/lib/washline"
//	cfg.RemoteURL = "https://xyz.supabase.co"
//	cfg.APIKey = "anon-key"
//
//	app, err := washline.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close(ctx)
//
//	if err := app.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := app.Customers().Create(ctx, washline.CustomerInput{Code: "C-001", Name: "Ayşe"})
//
// # Event Handling
//
// Implement [EventHandler] (or embed [BaseEventHandler]) and pass it via
// [WithEventHandler] to observe lifecycle transitions, replays, dropped
// mutations and drain reports. Events are called synchronously.
//
// # Dependency Injection
//
// For testing, the local store, the remote store, the connectivity source
// and the permission gate can all be replaced:
//
//	app, err := washline.Open(ctx, cfg,
//	    washline.WithKVStore(store),
//	    washline.WithRemoteStore(remote, remote),
//	    washline.WithLogger(logger),
//	)
//
// # Plugins
//
// Plugins run alongside a started App and can steer it through [Controls]:
//
//	import "github.com/bft-labs/washline/plugins/configwatcher"
//
//	app, err := washline.Open(ctx, cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{Path: cfgPath}),
//	)
package washline
