package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/payment"
	"github.com/mcoot/dealgame/internal/storage"
)

const treasury model.Principal = "0x9999999999999999999999999999999999999999"

// fakePayments accepts any tx hash registered in valid
type fakePayments struct {
	mu        sync.Mutex
	valid     map[string]bool
	verifyErr error
	payoutErr error
	payouts   []int64
}

func newFakePayments() *fakePayments {
	return &fakePayments{valid: make(map[string]bool)}
}

func (f *fakePayments) VerifyTransfer(ctx context.Context, txHash string, from, to model.Principal, amountCents int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	return f.valid[txHash] && to == treasury, nil
}

func (f *fakePayments) DistributeFunds(ctx context.Context, to model.Principal, amountCents int64) (payment.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payoutErr != nil {
		return payment.Payout{}, f.payoutErr
	}
	f.payouts = append(f.payouts, amountCents)
	return payment.Payout{TxHash: "0xpayout"}, nil
}

func (f *fakePayments) Treasury() model.Principal {
	return treasury
}

// recordingNotifier keeps every published move
type recordingNotifier struct {
	mu    sync.Mutex
	moves []model.Move
}

func (n *recordingNotifier) PublishMove(move model.Move) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.moves = append(n.moves, move)
}

func (n *recordingNotifier) actions() []model.MoveAction {
	n.mu.Lock()
	defer n.mu.Unlock()
	actions := make([]model.MoveAction, len(n.moves))
	for i, m := range n.moves {
		actions[i] = m.Action
	}
	return actions
}

var errCardsUnavailable = errors.New("cards table unavailable")

// failingCardsStorage fails every card insert, and optionally the cleanup delete
type failingCardsStorage struct {
	storage.Storage
	deleteErr error
	deleted   []model.GameID
}

func (f *failingCardsStorage) InsertCards(ctx context.Context, cards []model.Card) error {
	return errCardsUnavailable
}

func (f *failingCardsStorage) DeleteGame(ctx context.Context, id model.GameID) error {
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Storage.DeleteGame(ctx, id)
}

// barrierStorage holds the first n GetGame calls until all of them have
// read, so concurrent operations all see the same starting state. Later
// reads pass straight through.
type barrierStorage struct {
	storage.Storage
	held  atomic.Int64
	reads sync.WaitGroup
}

func newBarrierStorage(st storage.Storage, n int) *barrierStorage {
	b := &barrierStorage{Storage: st}
	b.held.Store(int64(n))
	b.reads.Add(n)
	return b
}

func (b *barrierStorage) GetGame(ctx context.Context, id model.GameID) (*model.GameDetail, error) {
	detail, err := b.Storage.GetGame(ctx, id)
	if b.held.Add(-1) >= 0 {
		b.reads.Done()
		b.reads.Wait()
	}
	return detail, err
}

// vanishingStorage deletes the game just before its first conditional update
type vanishingStorage struct {
	storage.Storage
}

func (v *vanishingStorage) UpdateGame(ctx context.Context, id model.GameID, patch model.GamePatch, pred model.GamePredicate) (int64, error) {
	if err := v.Storage.DeleteGame(ctx, id); err != nil {
		return 0, err
	}
	return v.Storage.UpdateGame(ctx, id, patch, pred)
}
