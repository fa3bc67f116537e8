package main

import (
	"fmt"

	"github.com/dmitrijs2005/cofounder/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, rm, err := repomanager.Connect(ctx, opts.cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if db == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "in-memory store, nothing to migrate")
				return nil
			}
			defer db.Close()

			if err := rm.RunMigrations(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
