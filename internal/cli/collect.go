package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calden87/tuyatrace/internal/collector"
)

func newCollectCmd(configPath *string, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, closeDB, err := setup(ctx, resolveConfigPath(*configPath), version)
			if err != nil {
				return err
			}
			defer closeDB()

			coll := collector.New(a.api, a.store, a.cfg.Collector, a.log)
			result, err := coll.Collect(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Devices:  %d found, %d collected, %d failed\n",
				result.DevicesFound, result.DevicesOK, result.DevicesFailed)
			fmt.Fprintf(out, "Logs:     %d fetched, %d new\n",
				result.LogsFetched, result.LogsInserted)
			fmt.Fprintf(out, "Duration: %s\n", result.Duration.Round(warnDurationRounding))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "Error:    %s\n", e)
			}
			return nil
		},
	}
}
