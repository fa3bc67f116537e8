package main

import (
	"github.com/dmitrijs2005/cofounder/internal/buildinfo"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/config"
	"github.com/spf13/cobra"
)

// options are shared by every subcommand. Flags override the environment.
type options struct {
	cfg    *config.Config
	logger logging.Logger
}

func newRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	opts := &options{cfg: config.LoadFromEnv(lookup)}

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Administer the cofounder auth server",
		Version:       buildinfo.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = logging.New(opts.cfg.LogLevel, "text", cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.cfg.DatabaseDSN, "database", "d", opts.cfg.DatabaseDSN, "database DSN (DATABASE_URL)")
	pf.StringVarP(&opts.cfg.SecretKey, "secret", "s", opts.cfg.SecretKey, "JWT signing secret (JWT_SECRET)")
	pf.StringVarP(&opts.cfg.LogLevel, "log-level", "l", opts.cfg.LogLevel, "log level")

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateUserCmd(opts),
		newTokenCmd(opts),
	)
	return root
}
