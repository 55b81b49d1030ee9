package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/codequal-cli/internal/observability"
	"github.com/xkilldash9x/codequal-cli/internal/scheduler"
)

// newSweepCmd creates the `sweep` command. By default it runs the staleness
// sweep on the configured cron schedule until interrupted.
func newSweepCmd() *cobra.Command {
	var once bool
	var schedule string
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Alert on analysis configs that have not been refreshed recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			components, err := createComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if once {
				res, err := components.Sweeper.Sweep(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "%d stale configs, %d alerted\n", res.Stale, res.Alerted)
				return err
			}

			if schedule == "" {
				schedule = cfg.Scheduler().Schedule
			}
			sched, err := scheduler.New(schedule, components.Sweeper, logger)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
	sweepCmd.Flags().BoolVar(&once, "once", false, "Run a single sweep and exit")
	sweepCmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule. (Overrides config/env)")
	return sweepCmd
}
