package storage

import (
	"context"

	"github.com/mcoot/dealgame/internal/model"
)

// Storage defines the interface for data persistence.
//
// UpdateGame and UpdateCard are conditional writes: the patch is applied
// only if the row still matches the predicate, atomically with the check.
// They return the number of rows affected (0 or 1) and never treat a
// failed predicate as an error.
type Storage interface {
	// Game operations
	InsertGame(ctx context.Context, game *model.Game) error
	GetGame(ctx context.Context, id model.GameID) (*model.GameDetail, error)
	ListGamesByOwner(ctx context.Context, owner model.Principal) ([]*model.Game, error)
	UpdateGame(ctx context.Context, id model.GameID, patch model.GamePatch, pred model.GamePredicate) (int64, error)
	DeleteGame(ctx context.Context, id model.GameID) error

	// Card operations
	InsertCards(ctx context.Context, cards []model.Card) error
	UpdateCard(ctx context.Context, gameID model.GameID, index int, patch model.CardPatch, pred model.CardPredicate) (int64, error)

	// Move operations (append-only)
	InsertMove(ctx context.Context, move *model.Move) error

	// Payment operations. ReleasePaymentTx undoes a claim by the same owner
	// whose game could not be saved; it is a no-op for any other claim.
	ClaimPaymentTx(ctx context.Context, txHash string, owner model.Principal) error
	ReleasePaymentTx(ctx context.Context, txHash string, owner model.Principal) error

	Close() error
}
