// Package response defines API response bodies.
package response

import (
	"github.com/mcoot/dealgame/internal/services/game"
)

// Health is the body of GET /health
type Health struct {
	Status string `json:"status"`
}

// GameList is the body of GET /games
type GameList struct {
	Games []*game.GameSummary `json:"games"`
}

// View kinds returned by GET /games/{id}
const (
	ViewOwner  = "owner"
	ViewPublic = "public"
)

// OwnerGameState is the owner's view of a game
type OwnerGameState struct {
	View string `json:"view"`
	*game.OwnerView
}

// PublicGameState is what anyone other than the owner sees
type PublicGameState struct {
	View string `json:"view"`
	*game.PublicView
}

// GameStateFromView tags a controller view with its kind
func GameStateFromView(v game.View) any {
	switch view := v.(type) {
	case *game.OwnerView:
		return OwnerGameState{View: ViewOwner, OwnerView: view}
	case *game.PublicView:
		return PublicGameState{View: ViewPublic, PublicView: view}
	default:
		return v
	}
}

// ActionResult is the body of POST /games/{id}/actions
type ActionResult struct {
	Action string `json:"action"`
	Result any    `json:"result"`
}
