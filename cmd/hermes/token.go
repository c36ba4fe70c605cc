package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/gateway"
)

func newTokenCmd(cfgPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the mutating API routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.HTTP.JWTSecret == "" {
				return errors.New("http.jwt_secret is not set")
			}
			tok, err := gateway.IssueToken([]byte(cfg.HTTP.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
