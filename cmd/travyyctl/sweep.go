package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/travyy/tour-booking-backend/internal/app"
)

func sweepCmd() *cobra.Command {
	var (
		timeout time.Duration
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue sessions and repair unreleased holds once",
		Long: `Run one reservation sweep outside the server.

Overdue pending sessions are expired and their seats returned. Terminal
sessions whose seats were never released are repaired. Running this while
the server is up is safe; every transition is a compare-and-set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = false

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.New(ctx, cfg, cliLogger(verbose))
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Cron.RunSweepNow(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d repaired=%d errors=%d\n",
				result.Expired, result.Repaired, result.Errors)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall time limit")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every resolved session")
	return cmd
}
