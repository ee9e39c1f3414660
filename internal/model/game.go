package model

import "time"

// GameID uniquely identifies a game
type GameID string

// GameStatus represents the lifecycle phase of a game
type GameStatus string

const (
	GameStatusCreated           GameStatus = "CREATED"            // Unused in the standard flow
	GameStatusPlaying           GameStatus = "PLAYING"            // Standard mode, active
	GameStatusFinished          GameStatus = "FINISHED"           // Standard mode, terminal
	GameStatusContractActive    GameStatus = "CONTRACT_ACTIVE"    // Contract mode, active
	GameStatusContractCompleted GameStatus = "CONTRACT_COMPLETED" // Contract mode, terminal
	GameStatusCancelled         GameStatus = "CANCELLED"          // Administrative only
)

// ActiveStatuses lists every status in which player actions are accepted
var ActiveStatuses = []GameStatus{GameStatusPlaying, GameStatusContractActive}

// TerminalStatuses lists every status after which a game is immutable
var TerminalStatuses = []GameStatus{GameStatusFinished, GameStatusContractCompleted, GameStatusCancelled}

// IsActive returns true if the status accepts player actions
func (s GameStatus) IsActive() bool {
	return s == GameStatusPlaying || s == GameStatusContractActive
}

// IsTerminal returns true if the game can no longer change
func (s GameStatus) IsTerminal() bool {
	return s == GameStatusFinished || s == GameStatusContractCompleted || s == GameStatusCancelled
}

// DefaultCurrency is the stablecoin used for entry fees and payouts
const DefaultCurrency = "PYUSD"

// Entry fee bounds in cents
const (
	MinEntryFeeCents int64 = 100
	MaxEntryFeeCents int64 = 100000
)

// CaseCount is the number of sealed cases in every game
const CaseCount = 5

// Game represents a single play session
type Game struct {
	ID            GameID     `json:"id"`
	Owner         Principal  `json:"owner"`
	Mode          ModeName   `json:"mode"`
	EntryFeeCents int64      `json:"entry_fee_cents"`
	Currency      string     `json:"currency"`
	Status        GameStatus `json:"status"`

	ChosenCase    *int   `json:"chosen_case,omitempty"`
	BurnedCount   int    `json:"burned_count"`
	BankerOffer   *int64 `json:"banker_offer,omitempty"`
	AcceptedDeal  bool   `json:"accepted_deal"`
	FinalWonCents *int64 `json:"final_won_cents,omitempty"`

	// Payment tracking
	PaymentTx string `json:"payment_tx,omitempty"`
	PaidOut   bool   `json:"paid_out"`
	PayoutTx  string `json:"payout_tx,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasChosenCase returns true once the player has picked their case
func (g *Game) HasChosenCase() bool {
	return g.ChosenCase != nil
}

// Clone returns a deep copy of the game
func (g *Game) Clone() *Game {
	c := *g
	if g.ChosenCase != nil {
		v := *g.ChosenCase
		c.ChosenCase = &v
	}
	if g.BankerOffer != nil {
		v := *g.BankerOffer
		c.BankerOffer = &v
	}
	if g.FinalWonCents != nil {
		v := *g.FinalWonCents
		c.FinalWonCents = &v
	}
	return &c
}

// Card is one sealed case belonging to a game
type Card struct {
	GameID     GameID `json:"game_id"`
	Index      int    `json:"index"`
	ValueCents int64  `json:"value_cents"`
	Revealed   bool   `json:"revealed"`
	Burned     bool   `json:"burned"`
}

// GameDetail is a game together with its cards and move history
type GameDetail struct {
	Game  *Game
	Cards []Card // Sorted by index
	Moves []Move // Sorted by creation time
}

// Card returns the card with the given index, or nil if none exists
func (d *GameDetail) Card(index int) *Card {
	for i := range d.Cards {
		if d.Cards[i].Index == index {
			return &d.Cards[i]
		}
	}
	return nil
}

// BurnedCount returns the number of burned cards
func (d *GameDetail) BurnedCount() int {
	n := 0
	for _, c := range d.Cards {
		if c.Burned {
			n++
		}
	}
	return n
}

// Unrevealed returns all cards not yet revealed
func (d *GameDetail) Unrevealed() []Card {
	var cards []Card
	for _, c := range d.Cards {
		if !c.Revealed {
			cards = append(cards, c)
		}
	}
	return cards
}

// RemainingValues returns the values of unrevealed cards other than the chosen case
func (d *GameDetail) RemainingValues() []int64 {
	var values []int64
	for _, c := range d.Cards {
		if c.Revealed {
			continue
		}
		if d.Game.ChosenCase != nil && c.Index == *d.Game.ChosenCase {
			continue
		}
		values = append(values, c.ValueCents)
	}
	return values
}
