package model

import "time"

// MoveID uniquely identifies a move
type MoveID string

// MoveAction identifies what a move recorded
type MoveAction string

const (
	MoveGameCreated MoveAction = "GAME_CREATED"
	MovePick        MoveAction = "PICK"
	MoveBurn        MoveAction = "BURN"
	MoveBankerOffer MoveAction = "BANKER_OFFER"
	MoveAcceptDeal  MoveAction = "ACCEPT_DEAL"
	MoveFinalReveal MoveAction = "FINAL_REVEAL"
	MovePayout      MoveAction = "PAYOUT"
)

// Move is an append-only audit entry for one action against a game
type Move struct {
	ID      MoveID         `json:"id"`
	GameID  GameID         `json:"game_id"`
	Actor   *Principal     `json:"actor"` // nil for the banker
	Action  MoveAction     `json:"action"`
	Payload map[string]any `json:"payload"`

	CreatedAt time.Time `json:"created_at"`
}

// IsBanker returns true if the move was made by the banker rather than a player
func (m *Move) IsBanker() bool {
	return m.Actor == nil
}
