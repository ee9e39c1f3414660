package game

import (
	"time"

	"github.com/mcoot/dealgame/internal/model"
)

// GameSummary is the game-level scalar state, safe to show to anyone
type GameSummary struct {
	ID            model.GameID     `json:"id"`
	Owner         model.Principal  `json:"owner"`
	Mode          model.ModeName   `json:"mode"`
	EntryFeeCents int64            `json:"entry_fee_cents"`
	Currency      string           `json:"currency"`
	Status        model.GameStatus `json:"status"`
	ChosenCase    *int             `json:"chosen_case,omitempty"`
	BurnedCount   int              `json:"burned_count"`
	BankerOffer   *int64           `json:"banker_offer,omitempty"`
	AcceptedDeal  bool             `json:"accepted_deal"`
	FinalWonCents *int64           `json:"final_won_cents,omitempty"`
	PaidOut       bool             `json:"paid_out"`
	PayoutTx      string           `json:"payout_tx,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Summarize builds the summary of a game
func Summarize(g *model.Game) *GameSummary {
	c := g.Clone()
	return &GameSummary{
		ID:            c.ID,
		Owner:         c.Owner,
		Mode:          c.Mode,
		EntryFeeCents: c.EntryFeeCents,
		Currency:      c.Currency,
		Status:        c.Status,
		ChosenCase:    c.ChosenCase,
		BurnedCount:   c.BurnedCount,
		BankerOffer:   c.BankerOffer,
		AcceptedDeal:  c.AcceptedDeal,
		FinalWonCents: c.FinalWonCents,
		PaidOut:       c.PaidOut,
		PayoutTx:      c.PayoutTx,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// CardView is one case as the owner sees it. ValueCents is only set once revealed.
type CardView struct {
	Index      int    `json:"index"`
	Revealed   bool   `json:"revealed"`
	Burned     bool   `json:"burned"`
	ValueCents *int64 `json:"value_cents,omitempty"`
}

// RevealedCard is a case whose value is public
type RevealedCard struct {
	Index      int   `json:"index"`
	ValueCents int64 `json:"value_cents"`
}

// View is either an *OwnerView or a *PublicView
type View interface {
	Summary() *GameSummary
	IsOwnerView() bool
}

// OwnerView is the full game detail returned to the owner
type OwnerView struct {
	Game  *GameSummary `json:"game"`
	Cards []CardView   `json:"cards"`
	Moves []model.Move `json:"moves"`
}

func (v *OwnerView) Summary() *GameSummary { return v.Game }
func (v *OwnerView) IsOwnerView() bool     { return true }

// PublicView is the reduced game detail returned to anyone else.
// Unrevealed cases are only counted.
type PublicView struct {
	Game            *GameSummary   `json:"game"`
	RevealedCards   []RevealedCard `json:"revealed_cards"`
	UnrevealedCount int            `json:"unrevealed_count"`
}

func (v *PublicView) Summary() *GameSummary { return v.Game }
func (v *PublicView) IsOwnerView() bool     { return false }

// NewOwnerView builds the owner's view of a game
func NewOwnerView(d *model.GameDetail) *OwnerView {
	cards := make([]CardView, 0, len(d.Cards))
	for _, c := range d.Cards {
		cv := CardView{Index: c.Index, Revealed: c.Revealed, Burned: c.Burned}
		if c.Revealed {
			cv.ValueCents = model.Ptr(c.ValueCents)
		}
		cards = append(cards, cv)
	}

	moves := d.Moves
	if moves == nil {
		moves = []model.Move{}
	}

	return &OwnerView{
		Game:  Summarize(d.Game),
		Cards: cards,
		Moves: moves,
	}
}

// NewPublicView builds the view of a game for non-owners
func NewPublicView(d *model.GameDetail) *PublicView {
	view := &PublicView{
		Game:          Summarize(d.Game),
		RevealedCards: []RevealedCard{},
	}
	for _, c := range d.Cards {
		if !c.Revealed {
			view.UnrevealedCount++
			continue
		}
		view.RevealedCards = append(view.RevealedCards, RevealedCard{Index: c.Index, ValueCents: c.ValueCents})
	}
	return view
}
