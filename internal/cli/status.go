package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/calden87/tuyatrace/internal/store"
)

func newStatusCmd(configPath *string, version string) *cobra.Command {
	var showCursors bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored data and collection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, closeDB, err := setup(ctx, resolveConfigPath(*configPath), version)
			if err != nil {
				return err
			}
			defer closeDB()

			stats, err := a.store.Stats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", a.db.Path())
			fmt.Fprintf(out, "Logs:     %d across %d devices\n", stats.TotalLogs, stats.Devices)
			if stats.TotalLogs > 0 {
				fmt.Fprintf(out, "Range:    %s to %s\n",
					formatMillis(stats.OldestEvent), formatMillis(stats.NewestEvent))
			}
			if stats.LastRun != nil {
				printRun(out, stats.LastRun)
			} else {
				fmt.Fprintln(out, "Last run: never")
			}

			if showCursors {
				cursors, err := a.store.AllCursors(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cursors:  %d devices\n", len(cursors))
				for _, c := range cursors {
					fmt.Fprintf(out, "  %s  %s\n", c.DeviceID, formatMillis(c.LastEventTime))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCursors, "cursors", false, "list per-device collection cursors")
	return cmd
}

// printRun writes one run summary line set.
func printRun(out io.Writer, r *store.Run) {
	fmt.Fprintf(out, "Last run: %s (%s)\n", formatMillis(r.StartedAt), r.Status)
	fmt.Fprintf(out, "          %d devices seen, %d failed, %d logs inserted\n",
		r.DevicesSeen, r.DevicesFailed, r.LogsInserted)
}

// formatMillis renders a unix-millisecond timestamp for humans.
func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
