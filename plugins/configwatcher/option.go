package configwatcher

import "github.com/bft-labs/washline/pkg/washline"

// WithConfigWatcher returns a washline Option that reloads the config file
// while the App is running.
//
// Usage:
//
//	app, err := washline.Open(ctx, cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/washline/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) washline.Option {
	return washline.WithPlugin(New(cfg))
}

// WithDefaultConfigWatcher watches $HOME/.washline/config.toml.
func WithDefaultConfigWatcher() washline.Option {
	return WithConfigWatcher(DefaultConfig())
}
