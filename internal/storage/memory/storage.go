package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	games    map[model.GameID]*model.Game
	cards    map[model.GameID][]model.Card
	moves    map[model.GameID][]model.Move
	payments map[string]model.Principal
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		games:    make(map[model.GameID]*model.Game),
		cards:    make(map[model.GameID][]model.Card),
		moves:    make(map[model.GameID][]model.Move),
		payments: make(map[string]model.Principal),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Game operations

func (s *Storage) InsertGame(ctx context.Context, game *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return fmt.Errorf("game %s already exists", game.ID)
	}
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.GameDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[id]
	if !ok {
		return nil, model.ErrGameNotFound
	}

	cards := slices.Clone(s.cards[id])
	slices.SortFunc(cards, func(a, b model.Card) int { return a.Index - b.Index })

	moves := slices.Clone(s.moves[id])
	slices.SortStableFunc(moves, func(a, b model.Move) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return &model.GameDetail{
		Game:  game.Clone(),
		Cards: cards,
		Moves: moves,
	}, nil
}

func (s *Storage) ListGamesByOwner(ctx context.Context, owner model.Principal) ([]*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var games []*model.Game
	for _, g := range s.games {
		if g.Owner.Equal(owner) {
			games = append(games, g.Clone())
		}
	}
	slices.SortFunc(games, func(a, b *model.Game) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return games, nil
}

func (s *Storage) UpdateGame(ctx context.Context, id model.GameID, patch model.GamePatch, pred model.GamePredicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok || !pred.Matches(game) {
		return 0, nil
	}
	patch.Apply(game)
	return 1, nil
}

func (s *Storage) DeleteGame(ctx context.Context, id model.GameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
	delete(s.cards, id)
	delete(s.moves, id)
	return nil
}

// Card operations

func (s *Storage) InsertCards(ctx context.Context, cards []model.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cards {
		if _, ok := s.games[c.GameID]; !ok {
			return model.ErrGameNotFound
		}
		for _, existing := range s.cards[c.GameID] {
			if existing.Index == c.Index {
				return fmt.Errorf("case %d already exists for game %s", c.Index, c.GameID)
			}
		}
	}
	for _, c := range cards {
		s.cards[c.GameID] = append(s.cards[c.GameID], c)
	}
	return nil
}

func (s *Storage) UpdateCard(ctx context.Context, gameID model.GameID, index int, patch model.CardPatch, pred model.CardPredicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cards := s.cards[gameID]
	for i := range cards {
		if cards[i].Index != index {
			continue
		}
		if !pred.Matches(&cards[i]) {
			return 0, nil
		}
		patch.Apply(&cards[i])
		return 1, nil
	}
	return 0, nil
}

// Move operations

func (s *Storage) InsertMove(ctx context.Context, move *model.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[move.GameID]; !ok {
		return model.ErrGameNotFound
	}
	s.moves[move.GameID] = append(s.moves[move.GameID], *move)
	return nil
}

// Payment operations

func (s *Storage) ClaimPaymentTx(ctx context.Context, txHash string, owner model.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[txHash]; ok {
		return model.ErrPaymentReused
	}
	s.payments[txHash] = owner
	return nil
}

func (s *Storage) ReleasePaymentTx(ctx context.Context, txHash string, owner model.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if claimant, ok := s.payments[txHash]; ok && claimant.Equal(owner) {
		delete(s.payments, txHash)
	}
	return nil
}

func (s *Storage) Close() error {
	return nil
}
