package redis

import (
	"fmt"

	"github.com/mcoot/dealgame/internal/model"
)

// Key prefix for all game-related data
const keyPrefix = "dealgame"

// gameKey returns the Redis key for a Game (JSON string)
func gameKey(id model.GameID) string {
	return fmt.Sprintf("%s:game:%s", keyPrefix, id)
}

// cardsKey returns the Redis key for the HASH of cards for a game, keyed by index
func cardsKey(id model.GameID) string {
	return fmt.Sprintf("%s:cards:%s", keyPrefix, id)
}

// movesKey returns the Redis key for the append-only LIST of moves for a game
func movesKey(id model.GameID) string {
	return fmt.Sprintf("%s:moves:%s", keyPrefix, id)
}

// gamesByOwnerIndexKey returns the Redis key for the ZSET of game IDs owned by a principal,
// scored by creation time
func gamesByOwnerIndexKey(owner model.Principal) string {
	return fmt.Sprintf("%s:idx:games_by_owner:%s", keyPrefix, owner)
}

// paymentTxKey returns the Redis key marking a payment transaction as used
func paymentTxKey(txHash string) string {
	return fmt.Sprintf("%s:payment_tx:%s", keyPrefix, txHash)
}
