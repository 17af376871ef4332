package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/goalq/internal/service/auth"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var withHash bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key",
		Long: `Generate a random API key. Add it to auth.api_keys, or with --hash add
only the printed bcrypt hash to auth.api_key_hashes and hand the key to the
client.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !withHash {
				_, err = fmt.Fprintln(out, key)
				return err
			}

			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "key:  %s\nhash: %s\n", key, hash)
			return err
		},
	}

	cmd.Flags().BoolVar(&withHash, "hash", false, "also print a bcrypt hash of the key")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.token_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.TokenSecret == "" {
				return errors.New("auth.token_secret is not configured")
			}

			token, err := issueToken(cmd.Context(), cfg.Auth.TokenSecret, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "who the token identifies (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func issueToken(ctx context.Context, secret, subject string, ttl time.Duration) (string, error) {
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		return "", err
	}
	return tokens.GenerateToken(ctx, subject, ttl)
}
