package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPingCommand(a *app) *cobra.Command {
	var (
		retries    int
		retryDelay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured database is reachable",
		Long: `Opens the configured pool, pings the server and prints its version.
Exits with status 1 when the database cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := a.logger(cfg, cmd.ErrOrStderr())

			start := time.Now()
			db, err := a.connect(ctx, cfg, log, retries, retryDelay)
			if err != nil {
				return err
			}
			defer db.Close(context.WithoutCancel(ctx))

			if err := db.Ping(ctx); err != nil {
				return err
			}
			version, err := db.Adapter().GetDatabaseVersion(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok\t%s\t%s\t%s\n",
				db.Dialect(), version, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&retries, "retry", 1, "attempts for connectivity failures")
	cmd.Flags().DurationVar(&retryDelay, "retry-delay", 500*time.Millisecond, "delay before the first retry")
	return cmd
}
