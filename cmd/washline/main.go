package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/washline/internal/cliconfig"
	"github.com/bft-labs/washline/pkg/log"
	"github.com/bft-labs/washline/pkg/washline"
)

const helpDescription = `
Keep a laundry shop's customers, packages, containers and stock in sync with
the back office, even when the connection drops.

Highlights:
  - Every write lands in the local cache first and is queued while offline.
  - Queued writes replay in order once the remote store is reachable again.
  - Configure via file, env (WASHLINE_*), or flags.
`

var longHelp = "washline\n\n" + strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  washline customer add --code C-001 --name "Ayşe Yılmaz"
  washline --offline package add --customer C-001 --product "Nevresim" --quantity 3
  washline sync
  washline run --config $HOME/.washline/config.toml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the loaded configuration between the root command and its
// subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	cfgFile string
	logger  log.Logger
}

// load resolves the configuration: defaults, then file, then env, then flags.
func (c *cli) load(cmd *cobra.Command) error {
	c.cfgFile = c.cfgPath
	if c.cfgFile == "" {
		c.cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if c.cfgFile != "" && cliconfig.FileExists(c.cfgFile) {
		fc, err := cliconfig.LoadFileConfig(c.cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}

	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = log.NewZerologAdapter(os.Stderr, c.cfg.LogLevel)
	c.logger.Debug("configuration",
		log.String("data_dir", c.cfg.DataDir),
		log.String("storage", c.cfg.Storage),
		log.String("remote", c.cfg.Remote),
		log.Bool("offline", c.cfg.Offline),
	)
	return nil
}

// libraryConfig converts the CLI configuration to the library one.
func (c *cli) libraryConfig() washline.Config {
	return washline.Config{
		DataDir:            c.cfg.DataDir,
		Storage:            c.cfg.Storage,
		Remote:             c.cfg.Remote,
		RemoteURL:          c.cfg.RemoteURL,
		APIKey:             c.cfg.APIKey,
		AccessToken:        c.cfg.AccessToken,
		DatabaseURL:        c.cfg.DatabaseURL,
		JWTSecret:          c.cfg.JWTSecret,
		RemoteTimeout:      c.cfg.RemoteTimeout,
		ProbeInterval:      c.cfg.ProbeInterval,
		ProbeMaxInterval:   c.cfg.ProbeMaxInterval,
		FlushDelay:         c.cfg.FlushDelay,
		MaxAttempts:        c.cfg.MaxAttempts,
		DefaultMinQuantity: c.cfg.DefaultMinQuantity,
		Offline:            c.cfg.Offline,
	}
}

// open opens the app for a one-shot command and checks connectivity once,
// so writes go straight to the remote store when it is reachable.
func (c *cli) open(ctx context.Context, opts ...washline.Option) (*washline.App, error) {
	opts = append([]washline.Option{washline.WithLogger(c.logger)}, opts...)
	app, err := washline.Open(ctx, c.libraryConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open washline: %w", err)
	}
	app.CheckConnectivity(ctx)
	return app, nil
}

// withApp runs fn against an opened app and closes it afterwards, flushing
// the caches.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *washline.App) error) error {
	ctx := cmd.Context()
	app, err := c.open(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, app)
	if err := app.Close(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("close washline: %w", err)
	}
	return runErr
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "washline",
		Short:         "Offline-tolerant sync for laundry shop operations",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.washline/config.toml)")
	flags.StringVar(&c.cfg.DataDir, "data-dir", "", "directory for the local cache and queue (default: $HOME/.washline/data)")
	flags.StringVar(&c.cfg.Storage, "storage", c.cfg.Storage, "local storage backend (file, sqlite)")
	flags.StringVar(&c.cfg.Remote, "remote", c.cfg.Remote, "remote store backend (postgrest, postgres, memory)")
	flags.StringVar(&c.cfg.RemoteURL, "remote-url", c.cfg.RemoteURL, "PostgREST project URL")
	flags.StringVar(&c.cfg.APIKey, "api-key", c.cfg.APIKey, "PostgREST API key")
	flags.StringVar(&c.cfg.AccessToken, "access-token", c.cfg.AccessToken, "session token for the remote store")
	flags.StringVar(&c.cfg.DatabaseURL, "database-url", c.cfg.DatabaseURL, "PostgreSQL DSN for the postgres remote")
	flags.StringVar(&c.cfg.JWTSecret, "jwt-secret", c.cfg.JWTSecret, "secret used to verify session tokens")
	flags.DurationVar(&c.cfg.RemoteTimeout, "remote-timeout", c.cfg.RemoteTimeout, "timeout for each remote call")
	flags.DurationVar(&c.cfg.ProbeInterval, "probe-interval", c.cfg.ProbeInterval, "connectivity check interval while online")
	flags.DurationVar(&c.cfg.ProbeMaxInterval, "probe-max-interval", c.cfg.ProbeMaxInterval, "maximum connectivity backoff while offline")
	flags.DurationVar(&c.cfg.FlushDelay, "flush-delay", c.cfg.FlushDelay, "debounce for cache writes to disk")
	flags.IntVar(&c.cfg.MaxAttempts, "max-attempts", c.cfg.MaxAttempts, "drop a queued write after this many failures (0 = never)")
	flags.IntVar(&c.cfg.DefaultMinQuantity, "default-min-quantity", c.cfg.DefaultMinQuantity, "low-stock threshold for new items")
	flags.BoolVar(&c.cfg.Offline, "offline", c.cfg.Offline, "never contact the remote store")
	flags.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := root.PersistentFlags().MarkHidden("flush-delay"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to hide flush-delay flag: %v\n", err)
	}

	root.AddCommand(
		newRunCommand(c),
		newSyncCommand(c),
		newQueueCommand(c),
		newCustomerCommand(c),
		newPackageCommand(c),
		newContainerCommand(c),
		newStockCommand(c),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "washline: %v\n", err)
		os.Exit(1)
	}
}
