// Package storagetest holds a conformance suite every storage backend runs.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/storage"
)

const (
	Alice model.Principal = "0x1111111111111111111111111111111111111111"
	Bob   model.Principal = "0x2222222222222222222222222222222222222222"
)

// Suite exercises the storage.Storage contract. Backends embed it via
// suite.Run(t, &storagetest.Suite{NewStorage: ...}).
type Suite struct {
	suite.Suite

	// NewStorage returns a fresh, empty backend for each test
	NewStorage func(t *testing.T) storage.Storage

	storage storage.Storage
	ctx     context.Context
	base    time.Time
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStorage, "NewStorage must be set")
	s.storage = s.NewStorage(s.T())
	s.ctx = context.Background()
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *Suite) newGame(id model.GameID, owner model.Principal, createdAt time.Time) *model.Game {
	return &model.Game{
		ID:            id,
		Owner:         owner,
		Mode:          model.ModeStandard,
		EntryFeeCents: 2000,
		Currency:      model.DefaultCurrency,
		Status:        model.GameStatusPlaying,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func (s *Suite) insertGameWithCards(id model.GameID) *model.Game {
	game := s.newGame(id, Alice, s.base)
	s.Require().NoError(s.storage.InsertGame(s.ctx, game))

	values := []int64{200, 1000, 3000, 6000, 20000}
	cards := make([]model.Card, len(values))
	for i, v := range values {
		cards[i] = model.Card{GameID: id, Index: i, ValueCents: v}
	}
	s.Require().NoError(s.storage.InsertCards(s.ctx, cards))
	return game
}

func (s *Suite) requireGame(id model.GameID) *model.GameDetail {
	detail, err := s.storage.GetGame(s.ctx, id)
	s.Require().NoError(err)
	return detail
}

// Game tests

func (s *Suite) TestInsertAndGetGame() {
	game := s.newGame("game-1", Alice, s.base)
	game.PaymentTx = "0xabc"

	err := s.storage.InsertGame(s.ctx, game)
	s.Require().NoError(err)

	detail := s.requireGame("game-1")
	got := detail.Game
	s.Equal(game.ID, got.ID)
	s.Equal(game.Owner, got.Owner)
	s.Equal(game.Mode, got.Mode)
	s.Equal(game.EntryFeeCents, got.EntryFeeCents)
	s.Equal(game.Currency, got.Currency)
	s.Equal(game.Status, got.Status)
	s.Equal("0xabc", got.PaymentTx)
	s.Nil(got.ChosenCase)
	s.Nil(got.BankerOffer)
	s.Nil(got.FinalWonCents)
	s.False(got.AcceptedDeal)
	s.False(got.PaidOut)
	s.True(game.CreatedAt.Equal(got.CreatedAt))
	s.True(game.UpdatedAt.Equal(got.UpdatedAt))
	s.Empty(detail.Cards)
	s.Empty(detail.Moves)
}

func (s *Suite) TestGetGameNotFound() {
	_, err := s.storage.GetGame(s.ctx, "nonexistent")
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestInsertGameDuplicate() {
	game := s.newGame("game-1", Alice, s.base)
	s.Require().NoError(s.storage.InsertGame(s.ctx, game))

	err := s.storage.InsertGame(s.ctx, game)
	s.Error(err)
}

func (s *Suite) TestGetGameReturnsCopy() {
	s.insertGameWithCards("game-1")

	detail := s.requireGame("game-1")
	detail.Game.Status = model.GameStatusFinished
	detail.Cards[0].Revealed = true

	again := s.requireGame("game-1")
	s.Equal(model.GameStatusPlaying, again.Game.Status)
	s.False(again.Cards[0].Revealed)
}

func (s *Suite) TestListGamesByOwnerNewestFirst() {
	for i, id := range []model.GameID{"game-1", "game-2", "game-3"} {
		game := s.newGame(id, Alice, s.base.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.storage.InsertGame(s.ctx, game))
	}
	s.Require().NoError(s.storage.InsertGame(s.ctx, s.newGame("game-bob", Bob, s.base)))

	games, err := s.storage.ListGamesByOwner(s.ctx, Alice)
	s.Require().NoError(err)
	s.Require().Len(games, 3)
	s.Equal(model.GameID("game-3"), games[0].ID)
	s.Equal(model.GameID("game-2"), games[1].ID)
	s.Equal(model.GameID("game-1"), games[2].ID)
}

func (s *Suite) TestListGamesByOwnerEmpty() {
	games, err := s.storage.ListGamesByOwner(s.ctx, Bob)
	s.Require().NoError(err)
	s.Empty(games)
}

func (s *Suite) TestDeleteGameCascades() {
	s.insertGameWithCards("game-1")
	s.Require().NoError(s.storage.InsertMove(s.ctx, &model.Move{
		ID: "move-1", GameID: "game-1", Action: model.MoveGameCreated,
		Payload: map[string]any{}, CreatedAt: s.base,
	}))

	err := s.storage.DeleteGame(s.ctx, "game-1")
	s.Require().NoError(err)

	_, err = s.storage.GetGame(s.ctx, "game-1")
	s.ErrorIs(err, model.ErrGameNotFound)

	games, err := s.storage.ListGamesByOwner(s.ctx, Alice)
	s.Require().NoError(err)
	s.Empty(games)

	// A new game with the same ID starts with no leftover cards or moves
	s.Require().NoError(s.storage.InsertGame(s.ctx, s.newGame("game-1", Alice, s.base)))
	detail := s.requireGame("game-1")
	s.Empty(detail.Cards)
	s.Empty(detail.Moves)
}

func (s *Suite) TestDeleteGameNotFound() {
	err := s.storage.DeleteGame(s.ctx, "nonexistent")
	s.NoError(err)
}

// Conditional game updates

func (s *Suite) TestUpdateGameAppliesWhenPredicateHolds() {
	s.insertGameWithCards("game-1")
	updatedAt := s.base.Add(time.Minute)

	n, err := s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{ChosenCase: model.Ptr(2), UpdatedAt: &updatedAt},
		model.GamePredicate{StatusIn: model.ActiveStatuses, ChosenCaseUnset: true},
	)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got := s.requireGame("game-1").Game
	s.Require().NotNil(got.ChosenCase)
	s.Equal(2, *got.ChosenCase)
	s.True(updatedAt.Equal(got.UpdatedAt))
}

func (s *Suite) TestUpdateGameSkipsWhenPredicateFails() {
	s.insertGameWithCards("game-1")

	_, err := s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{ChosenCase: model.Ptr(2)},
		model.GamePredicate{ChosenCaseUnset: true},
	)
	s.Require().NoError(err)

	n, err := s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{ChosenCase: model.Ptr(4)},
		model.GamePredicate{ChosenCaseUnset: true},
	)
	s.Require().NoError(err)
	s.Equal(int64(0), n)
	s.Equal(2, *s.requireGame("game-1").Game.ChosenCase)
}

func (s *Suite) TestUpdateGameStatusPredicate() {
	s.insertGameWithCards("game-1")

	n, err := s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{BankerOffer: model.Ptr(int64(1500))},
		model.GamePredicate{StatusIn: []model.GameStatus{model.GameStatusContractActive}},
	)
	s.Require().NoError(err)
	s.Equal(int64(0), n)
	s.Nil(s.requireGame("game-1").Game.BankerOffer)

	n, err = s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{BankerOffer: model.Ptr(int64(1500))},
		model.GamePredicate{StatusIn: model.ActiveStatuses, AcceptedDeal: model.Ptr(false)},
	)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	s.Equal(int64(1500), *s.requireGame("game-1").Game.BankerOffer)
}

func (s *Suite) TestUpdateGameBurnedCountIsCompareAndSet() {
	s.insertGameWithCards("game-1")
	s.Equal(0, s.requireGame("game-1").Game.BurnedCount)

	n, err := s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{BurnedCount: model.Ptr(1)},
		model.GamePredicate{BurnedCount: model.Ptr(0)},
	)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	// A second writer that also read zero loses
	n, err = s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{BurnedCount: model.Ptr(1)},
		model.GamePredicate{BurnedCount: model.Ptr(0)},
	)
	s.Require().NoError(err)
	s.Equal(int64(0), n)
	s.Equal(1, s.requireGame("game-1").Game.BurnedCount)
}

func (s *Suite) TestUpdateGameTerminalTransition() {
	s.insertGameWithCards("game-1")

	n, err := s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{
			Status:        model.Ptr(model.GameStatusFinished),
			AcceptedDeal:  model.Ptr(true),
			FinalWonCents: model.Ptr(int64(4200)),
		},
		model.GamePredicate{StatusIn: model.ActiveStatuses, AcceptedDeal: model.Ptr(false)},
	)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.storage.UpdateGame(s.ctx, "game-1",
		model.GamePatch{PaidOut: model.Ptr(true), PayoutTx: model.Ptr("0xfeed")},
		model.GamePredicate{StatusIn: model.TerminalStatuses, PaidOut: model.Ptr(false)},
	)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got := s.requireGame("game-1").Game
	s.Equal(model.GameStatusFinished, got.Status)
	s.True(got.AcceptedDeal)
	s.Equal(int64(4200), *got.FinalWonCents)
	s.True(got.PaidOut)
	s.Equal("0xfeed", got.PayoutTx)
}

func (s *Suite) TestUpdateGameNotFoundAffectsNothing() {
	n, err := s.storage.UpdateGame(s.ctx, "nonexistent",
		model.GamePatch{ChosenCase: model.Ptr(1)},
		model.GamePredicate{},
	)
	s.Require().NoError(err)
	s.Equal(int64(0), n)
}

// Cards

func (s *Suite) TestInsertCardsSortedByIndex() {
	s.Require().NoError(s.storage.InsertGame(s.ctx, s.newGame("game-1", Alice, s.base)))
	err := s.storage.InsertCards(s.ctx, []model.Card{
		{GameID: "game-1", Index: 3, ValueCents: 30},
		{GameID: "game-1", Index: 0, ValueCents: 100},
		{GameID: "game-1", Index: 1, ValueCents: 10},
	})
	s.Require().NoError(err)

	cards := s.requireGame("game-1").Cards
	s.Require().Len(cards, 3)
	s.Equal([]int{0, 1, 3}, []int{cards[0].Index, cards[1].Index, cards[2].Index})
	s.Equal(int64(100), cards[0].ValueCents)
	s.Equal(model.GameID("game-1"), cards[2].GameID)
}

func (s *Suite) TestInsertCardsUnknownGame() {
	err := s.storage.InsertCards(s.ctx, []model.Card{{GameID: "nonexistent", Index: 0, ValueCents: 100}})
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestUpdateCardConditional() {
	s.insertGameWithCards("game-1")
	unrevealed := model.CardPredicate{Revealed: model.Ptr(false)}
	burn := model.CardPatch{Revealed: model.Ptr(true), Burned: model.Ptr(true)}

	n, err := s.storage.UpdateCard(s.ctx, "game-1", 1, burn, unrevealed)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.storage.UpdateCard(s.ctx, "game-1", 1, burn, unrevealed)
	s.Require().NoError(err)
	s.Equal(int64(0), n)

	detail := s.requireGame("game-1")
	s.True(detail.Card(1).Revealed)
	s.True(detail.Card(1).Burned)
	s.False(detail.Card(0).Revealed)
	s.Equal(1, detail.BurnedCount())
}

func (s *Suite) TestUpdateCardNotFoundAffectsNothing() {
	s.insertGameWithCards("game-1")

	n, err := s.storage.UpdateCard(s.ctx, "game-1", 7,
		model.CardPatch{Revealed: model.Ptr(true)}, model.CardPredicate{})
	s.Require().NoError(err)
	s.Equal(int64(0), n)
}

// Moves

func (s *Suite) TestInsertMovesPreserveAppendOrder() {
	s.insertGameWithCards("game-1")
	actor := Alice

	actions := []model.MoveAction{model.MoveGameCreated, model.MovePick, model.MoveBurn, model.MoveBankerOffer}
	for i, action := range actions {
		move := &model.Move{
			ID:        model.MoveID(fmt.Sprintf("move-%d", i)),
			GameID:    "game-1",
			Actor:     &actor,
			Action:    action,
			Payload:   map[string]any{"note": string(action)},
			CreatedAt: s.base, // identical timestamps must still keep append order
		}
		if action == model.MoveBankerOffer {
			move.Actor = nil
		}
		s.Require().NoError(s.storage.InsertMove(s.ctx, move))
	}

	moves := s.requireGame("game-1").Moves
	s.Require().Len(moves, len(actions))
	for i, m := range moves {
		s.Equal(actions[i], m.Action)
		s.Equal(model.MoveID(fmt.Sprintf("move-%d", i)), m.ID)
		s.Equal(string(actions[i]), m.Payload["note"])
		s.True(s.base.Equal(m.CreatedAt))
	}
	s.Require().NotNil(moves[0].Actor)
	s.Equal(Alice, *moves[0].Actor)
	s.True(moves[3].IsBanker())
}

func (s *Suite) TestInsertMoveUnknownGame() {
	err := s.storage.InsertMove(s.ctx, &model.Move{
		ID: "move-1", GameID: "nonexistent", Action: model.MovePick, CreatedAt: s.base,
	})
	s.ErrorIs(err, model.ErrGameNotFound)
}

// Payments

func (s *Suite) TestClaimPaymentTxOnce() {
	err := s.storage.ClaimPaymentTx(s.ctx, "0xtx1", Alice)
	s.Require().NoError(err)

	err = s.storage.ClaimPaymentTx(s.ctx, "0xtx1", Bob)
	s.ErrorIs(err, model.ErrPaymentReused)

	err = s.storage.ClaimPaymentTx(s.ctx, "0xtx2", Alice)
	s.NoError(err)
}

func (s *Suite) TestReleasePaymentTxAllowsReclaim() {
	s.Require().NoError(s.storage.ClaimPaymentTx(s.ctx, "0xtx1", Alice))
	s.Require().NoError(s.storage.ReleasePaymentTx(s.ctx, "0xtx1", Alice))

	s.NoError(s.storage.ClaimPaymentTx(s.ctx, "0xtx1", Alice))
}

func (s *Suite) TestReleasePaymentTxKeepsOtherOwnersClaim() {
	s.Require().NoError(s.storage.ClaimPaymentTx(s.ctx, "0xtx1", Alice))
	s.Require().NoError(s.storage.ReleasePaymentTx(s.ctx, "0xtx1", Bob))

	s.ErrorIs(s.storage.ClaimPaymentTx(s.ctx, "0xtx1", Alice), model.ErrPaymentReused)

	// Unknown hashes are ignored
	s.NoError(s.storage.ReleasePaymentTx(s.ctx, "0xmissing", Alice))
}

// Concurrency

func (s *Suite) TestConcurrentPickHasSingleWinner() {
	s.insertGameWithCards("game-1")

	const workers = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
		errs = make(chan error, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			n, err := s.storage.UpdateGame(s.ctx, "game-1",
				model.GamePatch{ChosenCase: model.Ptr(index % model.CaseCount)},
				model.GamePredicate{StatusIn: model.ActiveStatuses, ChosenCaseUnset: true},
			)
			if err != nil {
				errs <- err
				return
			}
			wins.Add(n)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal(int64(1), wins.Load())
	s.NotNil(s.requireGame("game-1").Game.ChosenCase)
}

func (s *Suite) TestConcurrentBurnHasSingleWinner() {
	s.insertGameWithCards("game-1")

	const workers = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
		errs = make(chan error, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.storage.UpdateCard(s.ctx, "game-1", 0,
				model.CardPatch{Revealed: model.Ptr(true), Burned: model.Ptr(true)},
				model.CardPredicate{Revealed: model.Ptr(false)},
			)
			if err != nil {
				errs <- err
				return
			}
			wins.Add(n)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal(int64(1), wins.Load())
}
