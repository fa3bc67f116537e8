package main

import (
	"fmt"

	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *options) *cobra.Command {
	var withRefresh bool

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token for a user id",
		Long: `Issue an access token for a user id, signed with the configured secret.
The user is not looked up; this is a debugging aid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer := auth.NewIssuer(auth.Config{
				Secret:     []byte(opts.cfg.SecretKey),
				AccessTTL:  opts.cfg.AccessTokenValidityDuration,
				RefreshTTL: opts.cfg.RefreshTokenValidityDuration,
			}, opts.logger)

			pair, err := issuer.IssuePair(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), pair.AccessToken)
			if withRefresh {
				fmt.Fprintln(cmd.OutOrStdout(), pair.RefreshToken)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withRefresh, "refresh", false, "also print a refresh token")
	return cmd
}
