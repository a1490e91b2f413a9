package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// warnDurationRounding keeps printed durations readable.
const warnDurationRounding = 100 * time.Millisecond

func newWatchCmd(configPath *string, version string) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live events into the store",
		Long: `Watch subscribes to the real-time event stream and stores every
decoded event. Runs until interrupted, or until --duration elapses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

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

			sub.Start(ctx)
			defer sub.Close()

			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				err = nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d events\n", w.Count())
			return err
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0,
		"stop after this long (0 = run until interrupted)")
	return cmd
}
