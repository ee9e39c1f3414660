package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mcoot/dealgame/internal/dependencies/clock"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/banker"
	"github.com/mcoot/dealgame/internal/services/cases"
	"github.com/mcoot/dealgame/internal/services/payment"
	"github.com/mcoot/dealgame/internal/services/rules"
	"github.com/mcoot/dealgame/internal/storage"
)

// Controller runs the game lifecycle. Every mutation is an ownership check,
// a rules check and one or more conditional writes.
type Controller struct {
	storage   storage.Storage
	generator *cases.Generator
	banker    *banker.Banker
	payments  payment.Service
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger
	newID     func() string

	// Require an entry fee payment for standard games too
	requirePayment bool
}

// NewController creates a new game Controller with payments disabled
func NewController(
	storage storage.Storage,
	generator *cases.Generator,
	banker *banker.Banker,
	clock clock.Clock,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage:   storage,
		generator: generator,
		banker:    banker,
		payments:  payment.Disabled{},
		notifier:  nopNotifier{},
		clock:     clock,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// WithPayments sets the payment service. If requireForStandard is set,
// standard games need a verified entry fee payment as contract games do.
func (c *Controller) WithPayments(svc payment.Service, requireForStandard bool) *Controller {
	c.payments = svc
	c.requirePayment = requireForStandard
	return c
}

// WithNotifier sets the receiver of appended moves
func (c *Controller) WithNotifier(n Notifier) *Controller {
	c.notifier = n
	return c
}

// CreateGameInput holds the caller-supplied parameters of a new game
type CreateGameInput struct {
	EntryFeeCents int64
	Currency      string
	Mode          model.ModeName
	PaymentTx     string
}

// BurnResult describes a burned case and any offer it triggered
type BurnResult struct {
	Game        *GameSummary `json:"game"`
	Index       int          `json:"index"`
	ValueCents  int64        `json:"value_cents"`
	BurnedCount int          `json:"burned_count"`
	Offer       *int64       `json:"offer,omitempty"`
}

// FinalRevealResult describes the last two cases and what was won
type FinalRevealResult struct {
	Game          *GameSummary `json:"game"`
	ChosenIndex   int          `json:"chosen_index"`
	ChosenValue   int64        `json:"chosen_value"`
	OtherIndex    int          `json:"other_index"`
	OtherValue    int64        `json:"other_value"`
	Swapped       bool         `json:"swapped"`
	FinalIndex    int          `json:"final_index"`
	FinalWonCents int64        `json:"final_won_cents"`
}

// ClaimResult describes a completed payout
type ClaimResult struct {
	Game        *GameSummary `json:"game"`
	AmountCents int64        `json:"amount_cents"`
	TxHash      string       `json:"tx_hash"`
}

// CreateGame validates the entry fee, seals five cases and starts the game
func (c *Controller) CreateGame(ctx context.Context, owner model.Principal, in CreateGameInput) (*GameSummary, error) {
	mode, ok := model.LookupMode(in.Mode)
	if !ok {
		return nil, model.ErrInvalidMode
	}
	if in.EntryFeeCents < model.MinEntryFeeCents || in.EntryFeeCents > model.MaxEntryFeeCents {
		return nil, model.ErrInvalidEntryFee
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = model.DefaultCurrency
	}
	if currency != model.DefaultCurrency {
		return nil, model.ErrInvalidCurrency
	}

	paymentTx := strings.ToLower(strings.TrimSpace(in.PaymentTx))
	paid := mode.PaymentRequired || c.requirePayment
	if paid {
		if err := c.acceptEntryFee(ctx, owner, paymentTx, in.EntryFeeCents); err != nil {
			return nil, err
		}
	}

	now := c.clock.Now()
	game := &model.Game{
		ID:            model.GameID(c.newID()),
		Owner:         owner,
		Mode:          mode.Name,
		EntryFeeCents: in.EntryFeeCents,
		Currency:      currency,
		Status:        mode.ActiveStatus,
		PaymentTx:     paymentTx,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	values := c.generator.Generate(in.EntryFeeCents)
	cards := make([]model.Card, len(values))
	for i, v := range values {
		cards[i] = model.Card{GameID: game.ID, Index: i, ValueCents: v}
	}

	if err := c.saveGame(ctx, game, cards); err != nil {
		if paid {
			c.releaseEntryFee(ctx, owner, paymentTx)
		}
		return nil, err
	}

	err := c.appendMove(ctx, game.ID, &owner, model.MoveGameCreated, map[string]any{
		"entry_fee_cents": in.EntryFeeCents,
		"mode":            string(mode.Name),
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("game created",
		slog.String("game_id", string(game.ID)),
		slog.String("owner", string(owner)),
		slog.String("mode", string(mode.Name)),
		slog.Int64("entry_fee_cents", in.EntryFeeCents),
	)

	return Summarize(game), nil
}

// saveGame inserts a game and its cases, removing the game again if the
// cases cannot be stored
func (c *Controller) saveGame(ctx context.Context, game *model.Game, cards []model.Card) error {
	if err := c.storage.InsertGame(ctx, game); err != nil {
		c.logger.Error("failed to save game",
			slog.String("game_id", string(game.ID)),
			slog.String("error", err.Error()),
		)
		return err
	}

	if err := c.storage.InsertCards(ctx, cards); err != nil {
		c.logger.Error("failed to save cases, removing game",
			slog.String("game_id", string(game.ID)),
			slog.String("error", err.Error()),
		)
		if delErr := c.storage.DeleteGame(ctx, game.ID); delErr != nil {
			c.logger.Error("failed to remove orphaned game",
				slog.String("game_id", string(game.ID)),
				slog.String("error", delErr.Error()),
			)
		}
		return err
	}
	return nil
}

// acceptEntryFee verifies an entry fee transfer to the treasury and marks
// the transaction as used so it cannot fund a second game
func (c *Controller) acceptEntryFee(ctx context.Context, owner model.Principal, txHash string, feeCents int64) error {
	if txHash == "" {
		return model.ErrPaymentRequired
	}

	ok, err := c.payments.VerifyTransfer(ctx, txHash, owner, c.payments.Treasury(), feeCents)
	if err != nil {
		c.logger.Error("failed to verify payment",
			slog.String("owner", string(owner)),
			slog.String("tx", txHash),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("verify payment: %w", err)
	}
	if !ok {
		return model.ErrPaymentInvalid
	}

	return c.storage.ClaimPaymentTx(ctx, txHash, owner)
}

// releaseEntryFee frees a claimed transaction whose game was never saved,
// so the player can retry with it
func (c *Controller) releaseEntryFee(ctx context.Context, owner model.Principal, txHash string) {
	if err := c.storage.ReleasePaymentTx(ctx, txHash, owner); err != nil {
		c.logger.Error("failed to release payment tx",
			slog.String("owner", string(owner)),
			slog.String("tx", txHash),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Warn("released payment tx of unsaved game",
		slog.String("owner", string(owner)),
		slog.String("tx", txHash),
	)
}

// GetGameState returns the owner view to the owner and the public view to
// everyone else, including anonymous requesters
func (c *Controller) GetGameState(ctx context.Context, requester *model.Principal, gameID model.GameID) (View, error) {
	detail, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if requester != nil && detail.Game.Owner.Equal(*requester) {
		return NewOwnerView(detail), nil
	}
	return NewPublicView(detail), nil
}

// ListGames returns the owner's games, newest first
func (c *Controller) ListGames(ctx context.Context, owner model.Principal) ([]*GameSummary, error) {
	games, err := c.storage.ListGamesByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	summaries := make([]*GameSummary, len(games))
	for i, g := range games {
		summaries[i] = Summarize(g)
	}
	return summaries, nil
}

// PickCase records the player's own case
func (c *Controller) PickCase(ctx context.Context, owner model.Principal, gameID model.GameID, index int) (*GameSummary, error) {
	detail, mode, err := c.loadOwned(ctx, owner, gameID)
	if err != nil {
		return nil, err
	}
	game := detail.Game

	if err := rules.Validate(game, rules.OpPick).Err(rules.OpPick); err != nil {
		return nil, err
	}
	if !mode.ValidCaseIndex(index) {
		return nil, model.ErrInvalidCaseIndex
	}
	if detail.Card(index) == nil {
		return nil, model.ErrCardNotFound
	}

	now := c.clock.Now()
	patch := model.GamePatch{ChosenCase: &index, UpdatedAt: &now}
	err = c.updateGame(ctx, rules.OpPick, gameID, patch, model.GamePredicate{
		StatusIn:        []model.GameStatus{mode.ActiveStatus},
		ChosenCaseUnset: true,
	})
	if err != nil {
		return nil, err
	}
	patch.Apply(game)

	if err := c.appendMove(ctx, gameID, &owner, model.MovePick, map[string]any{"index": index}); err != nil {
		return nil, err
	}

	c.logger.Info("case picked",
		slog.String("game_id", string(gameID)),
		slog.Int("index", index),
	)

	return Summarize(game), nil
}

// BurnCase reveals a case that is not the player's. The second and third
// burns prompt a banker offer.
func (c *Controller) BurnCase(ctx context.Context, owner model.Principal, gameID model.GameID, index int) (*BurnResult, error) {
	detail, mode, err := c.loadOwned(ctx, owner, gameID)
	if err != nil {
		return nil, err
	}
	game := detail.Game

	if err := rules.Validate(game, rules.OpBurn).Err(rules.OpBurn); err != nil {
		return nil, err
	}
	if !mode.ValidCaseIndex(index) {
		return nil, model.ErrInvalidCaseIndex
	}
	card := detail.Card(index)
	if card == nil {
		return nil, model.ErrCardNotFound
	}
	if index == *game.ChosenCase {
		return nil, model.ErrCannotBurnChosenCase
	}
	if card.Revealed {
		return nil, model.ErrCaseAlreadyRevealed
	}

	burn := model.CardPatch{Revealed: model.Ptr(true), Burned: model.Ptr(true)}
	if err := c.updateCard(ctx, rules.OpBurn, gameID, index, burn); err != nil {
		return nil, err
	}
	burn.Apply(card)

	// Burns of different cases can race; the counter orders them
	burnedCount, counted, err := c.countBurn(ctx, gameID, mode)
	if err != nil {
		return nil, err
	}
	game = counted.Game

	err = c.appendMove(ctx, gameID, &owner, model.MoveBurn, map[string]any{
		"index":       index,
		"value_cents": card.ValueCents,
	})
	if err != nil {
		return nil, err
	}

	result := &BurnResult{
		Index:       index,
		ValueCents:  card.ValueCents,
		BurnedCount: burnedCount,
	}

	if banker.BurnTriggersOffer(burnedCount) {
		offer := c.banker.Offer(counted.RemainingValues())

		now := c.clock.Now()
		patch := model.GamePatch{BankerOffer: &offer, UpdatedAt: &now}
		err := c.updateGame(ctx, rules.OpBurn, gameID, patch, model.GamePredicate{
			StatusIn:     []model.GameStatus{mode.ActiveStatus},
			AcceptedDeal: model.Ptr(false),
		})
		if err != nil {
			return nil, err
		}
		patch.Apply(game)

		err = c.appendMove(ctx, gameID, nil, model.MoveBankerOffer, map[string]any{
			"offer_cents":  offer,
			"burned_count": burnedCount,
		})
		if err != nil {
			return nil, err
		}
		result.Offer = &offer

		c.logger.Info("banker offer made",
			slog.String("game_id", string(gameID)),
			slog.Int("burned_count", burnedCount),
			slog.Int64("offer_cents", offer),
		)
	}

	result.Game = Summarize(game)
	return result, nil
}

// AcceptDeal ends the game with the current banker offer as winnings
func (c *Controller) AcceptDeal(ctx context.Context, owner model.Principal, gameID model.GameID) (*GameSummary, error) {
	detail, mode, err := c.loadOwned(ctx, owner, gameID)
	if err != nil {
		return nil, err
	}
	game := detail.Game

	if err := rules.Validate(game, rules.OpAcceptDeal).Err(rules.OpAcceptDeal); err != nil {
		return nil, err
	}
	offer := *game.BankerOffer

	now := c.clock.Now()
	patch := model.GamePatch{
		Status:        &mode.TerminalStatus,
		AcceptedDeal:  model.Ptr(true),
		FinalWonCents: &offer,
		UpdatedAt:     &now,
	}
	err = c.updateGame(ctx, rules.OpAcceptDeal, gameID, patch, model.GamePredicate{
		StatusIn:     []model.GameStatus{mode.ActiveStatus},
		AcceptedDeal: model.Ptr(false),
	})
	if err != nil {
		return nil, err
	}
	patch.Apply(game)

	if err := c.appendMove(ctx, gameID, &owner, model.MoveAcceptDeal, map[string]any{"offer_cents": offer}); err != nil {
		return nil, err
	}

	c.logger.Info("deal accepted",
		slog.String("game_id", string(gameID)),
		slog.Int64("final_won_cents", offer),
	)

	return Summarize(game), nil
}

// FinalReveal opens the player's case, or the other remaining case if swap
// is set, and ends the game with its value as winnings
func (c *Controller) FinalReveal(ctx context.Context, owner model.Principal, gameID model.GameID, swap bool) (*FinalRevealResult, error) {
	detail, mode, err := c.loadOwned(ctx, owner, gameID)
	if err != nil {
		return nil, err
	}
	game := detail.Game

	if err := rules.Validate(game, rules.OpFinalReveal).Err(rules.OpFinalReveal); err != nil {
		return nil, err
	}

	unrevealed := detail.Unrevealed()
	if len(unrevealed) != 2 || !game.HasChosenCase() {
		return nil, model.ErrRevealNotReady
	}
	var chosen, other *model.Card
	for i := range unrevealed {
		if unrevealed[i].Index == *game.ChosenCase {
			chosen = &unrevealed[i]
		} else {
			other = &unrevealed[i]
		}
	}
	if chosen == nil || other == nil {
		return nil, model.ErrRevealNotReady
	}

	selected := chosen
	if swap {
		selected = other
	}

	if err := c.updateCard(ctx, rules.OpFinalReveal, gameID, selected.Index, model.CardPatch{Revealed: model.Ptr(true)}); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	patch := model.GamePatch{
		Status:        &mode.TerminalStatus,
		FinalWonCents: &selected.ValueCents,
		UpdatedAt:     &now,
	}
	err = c.updateGame(ctx, rules.OpFinalReveal, gameID, patch, model.GamePredicate{
		StatusIn: []model.GameStatus{mode.ActiveStatus},
	})
	if err != nil {
		return nil, err
	}
	patch.Apply(game)

	result := &FinalRevealResult{
		ChosenIndex:   chosen.Index,
		ChosenValue:   chosen.ValueCents,
		OtherIndex:    other.Index,
		OtherValue:    other.ValueCents,
		Swapped:       swap,
		FinalIndex:    selected.Index,
		FinalWonCents: selected.ValueCents,
	}

	err = c.appendMove(ctx, gameID, &owner, model.MoveFinalReveal, map[string]any{
		"chosen_index": result.ChosenIndex,
		"chosen_value": result.ChosenValue,
		"other_index":  result.OtherIndex,
		"other_value":  result.OtherValue,
		"swapped":      result.Swapped,
		"final_index":  result.FinalIndex,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("final reveal",
		slog.String("game_id", string(gameID)),
		slog.Bool("swapped", swap),
		slog.Int64("final_won_cents", selected.ValueCents),
	)

	result.Game = Summarize(game)
	return result, nil
}

// ClaimWinnings pays a finished game's winnings out to its owner. The paid
// flag is set before the transfer and reverted if the transfer fails.
func (c *Controller) ClaimWinnings(ctx context.Context, owner model.Principal, gameID model.GameID) (*ClaimResult, error) {
	detail, _, err := c.loadOwned(ctx, owner, gameID)
	if err != nil {
		return nil, err
	}
	game := detail.Game

	if err := rules.Validate(game, rules.OpClaim).Err(rules.OpClaim); err != nil {
		return nil, err
	}
	amount := *game.FinalWonCents
	if amount <= 0 {
		return nil, model.ErrNothingToClaim
	}

	now := c.clock.Now()
	err = c.updateGame(ctx, rules.OpClaim, gameID, model.GamePatch{PaidOut: model.Ptr(true), UpdatedAt: &now}, model.GamePredicate{
		StatusIn: model.TerminalStatuses,
		PaidOut:  model.Ptr(false),
	})
	if err != nil {
		return nil, err
	}

	payout, err := c.payments.DistributeFunds(ctx, owner, amount)
	if err != nil {
		c.logger.Error("payout failed, reverting claim",
			slog.String("game_id", string(gameID)),
			slog.Int64("amount_cents", amount),
			slog.String("error", err.Error()),
		)
		if _, revertErr := c.storage.UpdateGame(ctx, gameID,
			model.GamePatch{PaidOut: model.Ptr(false)},
			model.GamePredicate{PaidOut: model.Ptr(true)},
		); revertErr != nil {
			c.logger.Error("failed to revert claim",
				slog.String("game_id", string(gameID)),
				slog.String("error", revertErr.Error()),
			)
		}
		return nil, fmt.Errorf("%w: %w", model.ErrPayoutFailed, err)
	}

	// Funds have moved; a failure to record the hash is logged, not returned
	if _, err := c.storage.UpdateGame(ctx, gameID,
		model.GamePatch{PayoutTx: &payout.TxHash},
		model.GamePredicate{PaidOut: model.Ptr(true)},
	); err != nil {
		c.logger.Error("failed to record payout tx",
			slog.String("game_id", string(gameID)),
			slog.String("tx", payout.TxHash),
			slog.String("error", err.Error()),
		)
	}
	game.PaidOut = true
	game.PayoutTx = payout.TxHash
	game.UpdatedAt = now

	err = c.appendMove(ctx, gameID, &owner, model.MovePayout, map[string]any{
		"amount_cents": amount,
		"tx_hash":      payout.TxHash,
	})
	if err != nil {
		c.logger.Error("failed to record payout move",
			slog.String("game_id", string(gameID)),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Info("winnings paid out",
		slog.String("game_id", string(gameID)),
		slog.Int64("amount_cents", amount),
		slog.String("tx", payout.TxHash),
	)

	return &ClaimResult{
		Game:        Summarize(game),
		AmountCents: amount,
		TxHash:      payout.TxHash,
	}, nil
}

// loadOwned fetches a game and checks the requester owns it
func (c *Controller) loadOwned(ctx context.Context, owner model.Principal, gameID model.GameID) (*model.GameDetail, model.Mode, error) {
	detail, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, model.Mode{}, err
	}
	if !detail.Game.Owner.Equal(owner) {
		return nil, model.Mode{}, model.ErrNotGameOwner
	}
	mode, ok := model.LookupMode(detail.Game.Mode)
	if !ok {
		return nil, model.Mode{}, fmt.Errorf("game %s: %w", gameID, model.ErrInvalidMode)
	}
	return detail, mode, nil
}

// maxBurnCountAttempts bounds the counter retries of one burn. Only the
// other burns of the same game can move the counter.
const maxBurnCountAttempts = model.CaseCount + 1

// countBurn increments the game's burn counter and returns the new count
// together with the game as it was when the increment applied
func (c *Controller) countBurn(ctx context.Context, gameID model.GameID, mode model.Mode) (int, *model.GameDetail, error) {
	for range maxBurnCountAttempts {
		detail, err := c.storage.GetGame(ctx, gameID)
		if err != nil {
			return 0, nil, err
		}
		if detail.Game.Status != mode.ActiveStatus {
			return 0, nil, fmt.Errorf("%s: %w", rules.OpBurn, model.ErrConflict)
		}

		seen := detail.Game.BurnedCount
		now := c.clock.Now()
		patch := model.GamePatch{BurnedCount: model.Ptr(seen + 1), UpdatedAt: &now}
		n, err := c.storage.UpdateGame(ctx, gameID, patch, model.GamePredicate{
			StatusIn:    []model.GameStatus{mode.ActiveStatus},
			BurnedCount: &seen,
		})
		if err != nil {
			return 0, nil, err
		}
		if n == 1 {
			patch.Apply(detail.Game)
			return seen + 1, detail, nil
		}
	}

	c.logger.Warn("burn counter retries exhausted", slog.String("game_id", string(gameID)))
	return 0, nil, fmt.Errorf("%s: %w", rules.OpBurn, model.ErrConflict)
}

// updateGame applies a conditional game write. Zero affected rows is a
// conflict, unless the game has meanwhile been deleted.
func (c *Controller) updateGame(ctx context.Context, op rules.Operation, gameID model.GameID, patch model.GamePatch, pred model.GamePredicate) error {
	n, err := c.storage.UpdateGame(ctx, gameID, patch, pred)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := c.storage.GetGame(ctx, gameID); errors.Is(err, model.ErrGameNotFound) {
			return err
		}
		c.logger.Warn("conditional game update lost",
			slog.String("game_id", string(gameID)),
			slog.String("op", string(op)),
		)
		return fmt.Errorf("%s: %w", op, model.ErrConflict)
	}
	return nil
}

// updateCard reveals a card on condition it is still unrevealed
func (c *Controller) updateCard(ctx context.Context, op rules.Operation, gameID model.GameID, index int, patch model.CardPatch) error {
	n, err := c.storage.UpdateCard(ctx, gameID, index, patch, model.CardPredicate{Revealed: model.Ptr(false)})
	if err != nil {
		return err
	}
	if n == 0 {
		c.logger.Warn("conditional case update lost",
			slog.String("game_id", string(gameID)),
			slog.String("op", string(op)),
			slog.Int("index", index),
		)
		return fmt.Errorf("%s: %w", op, model.ErrConflict)
	}
	return nil
}

// appendMove records a move and publishes it. A nil actor is the banker.
func (c *Controller) appendMove(ctx context.Context, gameID model.GameID, actor *model.Principal, action model.MoveAction, payload map[string]any) error {
	move := &model.Move{
		ID:        model.MoveID(c.newID()),
		GameID:    gameID,
		Actor:     actor,
		Action:    action,
		Payload:   payload,
		CreatedAt: c.clock.Now(),
	}
	if err := c.storage.InsertMove(ctx, move); err != nil {
		c.logger.Error("failed to record move",
			slog.String("game_id", string(gameID)),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		return err
	}
	c.notifier.PublishMove(*move)
	return nil
}
