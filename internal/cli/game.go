package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/dealgame/internal/services/game"
)

func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Game commands",
	}

	cmd.AddCommand(newGameCreateCmd())
	cmd.AddCommand(newGameListCmd())
	cmd.AddCommand(newGameGetCmd())
	cmd.AddCommand(newGamePickCmd())
	cmd.AddCommand(newGameBurnCmd())
	cmd.AddCommand(newGameDealCmd())
	cmd.AddCommand(newGameRevealCmd())
	cmd.AddCommand(newGameClaimCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func newGameCreateCmd() *cobra.Command {
	var (
		feeCents  int64
		mode      string
		paymentTx string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"entry_fee_cents": feeCents}
			if mode != "" {
				req["mode"] = mode
			}
			if paymentTx != "" {
				req["payment_tx"] = paymentTx
			}

			var result game.GameSummary
			if err := client.Post(cmd.Context(), "/api/v1/games", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(&result)
			return nil
		},
	}

	cmd.Flags().Int64Var(&feeCents, "fee", 0, "Entry fee in cents")
	cmd.Flags().StringVar(&mode, "mode", "", "Game mode: standard, contract")
	cmd.Flags().StringVar(&paymentTx, "payment-tx", "", "Hash of the entry fee transfer")
	_ = cmd.MarkFlagRequired("fee")

	return cmd
}

func newGameListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your games, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result GameList
			if err := client.Get(cmd.Context(), "/api/v1/games", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newGameGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <game-id>",
		Short: "Get game state",
		Long: `Get the state of a game. The owner sees every case and the move history;
anyone else sees only the revealed cases.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result GameState
			if err := client.Get(cmd.Context(), "/api/v1/games/"+args[0], &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newGamePickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick <game-id> <index>",
		Short: "Pick your case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}

			var result game.GameSummary
			if err := postAction(cmd, args[0], map[string]any{"type": "pick", "index": index}, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(&result)
			return nil
		},
	}
}

func newGameBurnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "burn <game-id> <index>",
		Short: "Open one of the other cases",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}

			var result game.BurnResult
			if err := postAction(cmd, args[0], map[string]any{"type": "burn", "index": index}, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(&result)
			return nil
		},
	}
}

func newGameDealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deal <game-id>",
		Short: "Accept the banker's offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result game.GameSummary
			if err := postAction(cmd, args[0], map[string]any{"type": "accept_deal"}, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(&result)
			return nil
		},
	}
}

func newGameRevealCmd() *cobra.Command {
	var swap bool

	cmd := &cobra.Command{
		Use:   "reveal <game-id>",
		Short: "Open the last two cases and finish the game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result game.FinalRevealResult
			if err := postAction(cmd, args[0], map[string]any{"type": "final_reveal", "swap": swap}, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(&result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&swap, "swap", false, "Take the other remaining case instead of your own")

	return cmd
}

func newGameClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <game-id>",
		Short: "Claim the winnings of a finished game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result game.ClaimResult
			if err := client.Post(cmd.Context(), "/api/v1/games/"+args[0]+"/claim", nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(&result)
			return nil
		},
	}
}

// postAction submits an action and decodes its result
func postAction(cmd *cobra.Command, gameID string, body map[string]any, result any) error {
	var resp ActionResult
	if err := client.Post(cmd.Context(), "/api/v1/games/"+gameID+"/actions", body, &resp); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", resp.Action, err)
	}
	return nil
}

func parseIndex(s string) (int, error) {
	index, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid case index %q", s)
	}
	return index, nil
}
