package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/auth"
	"github.com/mcoot/dealgame/internal/wallet"
)

func newTokenCmd() *cobra.Command {
	var (
		secret string
		ttl    time.Duration
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Sign a development token for a wallet address",
		Long: `Sign an HS256 token for the given wallet address using the server's
JWT_HMAC_SECRET. Only useful against servers configured with a shared secret.

With --save the token is written to the token file and used by later commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or DOND_HMAC_SECRET is required")
			}

			address, err := wallet.Normalize(args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			token, err := auth.SignDevToken(secret, model.Principal(address), now, ttl)
			if err != nil {
				return err
			}

			if save {
				if err := cfg.SaveToken(token); err != nil {
					return err
				}
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(TokenResult{
				Principal: address,
				Token:     token,
				ExpiresAt: now.Add(ttl).UTC(),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", envOr("DOND_HMAC_SECRET", ""), "Shared HMAC secret (env: DOND_HMAC_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "Save the token to the token file")

	return cmd
}
