package main

import (
	"fmt"
	"time"

	"SwapLedger/internal/config"
	"SwapLedger/internal/server"

	"github.com/spf13/cobra"
)

func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <principal>",
		Short: "Issue a bearer token for principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			auth := server.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Admins)
			tok, err := auth.Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
