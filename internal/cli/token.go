package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/blockbill/internal/http/auth"
	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

func newTokenCmd(e *env) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Mint an API bearer token for an address",
		Long:  "Sign a short-lived HS256 token with AUTH_JWT_SECRET. Meant for local development and scripted tests.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := invoice.ParseAddress(args[0])
			if err != nil {
				return err
			}

			cfg, err := e.config()
			if err != nil {
				return err
			}

			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}

			authn := auth.New(auth.Config{
				Secret:   cfg.Auth.JWTSecret,
				Issuer:   cfg.Auth.JWTIssuer,
				Audience: cfg.Auth.JWTAudience,
			})

			token, err := authn.Sign(addr, ttl)
			if err != nil {
				return err
			}

			out := map[string]any{"address": addr, "token": token, "expires_at": time.Now().Add(ttl).UTC()}

			return render(cmd.OutOrStdout(), e.format, out, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
