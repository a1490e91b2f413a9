package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/calden87/tuyatrace/internal/collector"
)

func newRunCmd(configPath *string, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the collector and live watcher together",
		Long: `Run starts both ingestion paths: the periodic history collector and
the real-time event watcher. They write into the same store through the
deduplication contract, so overlapping data is absorbed rather than
duplicated. Stops cleanly on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, closeDB, err := setup(ctx, resolveConfigPath(*configPath), version)
			if err != nil {
				return err
			}
			defer closeDB()

			w, sub, closeSinks, err := a.buildWatcher()
			if err != nil {
				return err
			}
			defer closeSinks()

			coll := collector.New(a.api, a.store, a.cfg.Collector, a.log)
			runner := collector.NewRunner(coll, a.cfg.Collector.Interval, a.log)

			a.log.Info("starting", "version", version)

			group, groupCtx := errgroup.WithContext(ctx)
			sub.Start(groupCtx)
			defer sub.Close()

			group.Go(func() error {
				return w.Run(groupCtx)
			})
			group.Go(func() error {
				return runner.Run(groupCtx)
			})

			err = group.Wait()
			if errors.Is(err, context.Canceled) {
				a.log.Info("shutdown complete", "events_stored", w.Count())
				return nil
			}
			return err
		},
	}
}
