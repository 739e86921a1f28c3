package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/washline/internal/cliconfig"
	"github.com/bft-labs/washline/pkg/log"
	"github.com/bft-labs/washline/pkg/washline"
	"github.com/bft-labs/washline/plugins/configwatcher"
)

// logEvents reports sync progress on the daemon log.
type logEvents struct {
	washline.BaseEventHandler
	logger log.Logger
}

func (h logEvents) OnSyncStateChange(e washline.SyncStateEvent) {
	h.logger.Info("sync state", log.String("from", e.Previous.String()), log.String("to", e.Current.String()))
}

func (h logEvents) OnDropped(e washline.DropEvent) {
	h.logger.Warn("queued write dropped",
		log.String("correlation_id", e.Mutation.CorrelationID),
		log.String("entity", string(e.Mutation.Entity)),
		log.Err(e.Error),
	)
}

func (h logEvents) OnDrainComplete(r washline.DrainReport) {
	h.logger.Info("drain complete",
		log.Int("replayed", r.Replayed),
		log.Int("dropped", r.Dropped),
		log.Int("remaining", r.Remaining),
	)
}

func newRunCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon until interrupted",
		Long:  "Watch connectivity, replay queued writes as soon as the remote store is reachable, and reload the offline switch from the config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []washline.Option{
				washline.WithLogger(c.logger),
				washline.WithEventHandler(logEvents{logger: c.logger}),
			}
			if c.cfgFile != "" {
				opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{
					Path: c.cfgFile,
					OnReload: func(cliconfig.FileConfig) {
						c.logger.Info("config reloaded", log.String("path", c.cfgFile))
					},
				}))
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := washline.Open(ctx, c.libraryConfig(), opts...)
			if err != nil {
				return fmt.Errorf("open washline: %w", err)
			}
			defer app.Close(context.Background())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start washline: %w", err)
			}

			doneCh := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						status := app.Status()
						if status == washline.StateStopped || status == washline.StateCrashed {
							close(doneCh)
							return
						}
					}
				}
			}()

			select {
			case <-sigCh:
				c.logger.Info("received signal, stopping")
			case <-doneCh:
				if app.Status() == washline.StateCrashed {
					c.logger.Error("washline crashed")
					return fmt.Errorf("washline crashed")
				}
				return nil
			}

			if err := app.Stop(); err != nil {
				return fmt.Errorf("stop washline: %w", err)
			}
			return nil
		},
	}
}

func newSyncCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued writes once and refresh the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				report, err := app.Sync(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "replayed %d, dropped %d, remapped %d, remaining %d\n",
					report.Replayed, report.Dropped, report.Remapped, report.Remaining)
				return err
			})
		},
	}
}

func newQueueCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List writes waiting for the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				w := newTable(cmd)
				fmt.Fprintln(w, "ID\tOP\tENTITY\tTARGET\tATTEMPTS\tENQUEUED")
				for _, m := range app.Pending() {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						m.CorrelationID, m.Op, m.Entity, m.TargetID, m.Attempts, m.EnqueuedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}
