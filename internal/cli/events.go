package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/dealgame/internal/model"
)

// Event is a message from a game's move feed
type Event struct {
	Type   string       `json:"type"`
	GameID model.GameID `json:"game_id"`
	Move   *model.Move  `json:"move,omitempty"`
}

func newWatchCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch <game-id>",
		Short: "Stream moves of one of your games",
		Long: `Connect to the game's websocket feed and print each move as it is recorded.

Only the owner of a game may watch it. Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return watchGame(ctx, cmd, args[0], count)
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many moves (0 streams until interrupted)")

	return cmd
}

func watchGame(ctx context.Context, cmd *cobra.Command, gameID string, count int) error {
	header := http.Header{}
	if client.Token() != "" {
		header.Set("Authorization", "Bearer "+client.Token())
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, client.FeedURL(gameID), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection failed: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Unblock ReadJSON on interrupt
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	out := NewOutput(cfg.Output, cmd.OutOrStdout())
	moves := 0
	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}

		out.Print(evt)

		if evt.Type == "move" {
			moves++
			if count > 0 && moves >= count {
				return nil
			}
		}
	}
}
