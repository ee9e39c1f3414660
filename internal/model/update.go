package model

import "time"

// GamePatch lists the game fields a conditional update writes.
// Nil fields are left untouched.
type GamePatch struct {
	Status        *GameStatus
	ChosenCase    *int
	BurnedCount   *int
	BankerOffer   *int64
	AcceptedDeal  *bool
	FinalWonCents *int64
	PaidOut       *bool
	PayoutTx      *string
	UpdatedAt     *time.Time
}

// GamePredicate lists the conditions a game row must satisfy for an update to apply.
// Zero-valued fields impose no condition.
type GamePredicate struct {
	StatusIn        []GameStatus
	ChosenCaseUnset bool
	BurnedCount     *int
	AcceptedDeal    *bool
	PaidOut         *bool
}

// Matches reports whether the game satisfies the predicate
func (p GamePredicate) Matches(g *Game) bool {
	if len(p.StatusIn) > 0 {
		found := false
		for _, s := range p.StatusIn {
			if g.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if p.ChosenCaseUnset && g.ChosenCase != nil {
		return false
	}
	if p.BurnedCount != nil && g.BurnedCount != *p.BurnedCount {
		return false
	}
	if p.AcceptedDeal != nil && g.AcceptedDeal != *p.AcceptedDeal {
		return false
	}
	if p.PaidOut != nil && g.PaidOut != *p.PaidOut {
		return false
	}
	return true
}

// Apply writes the patch onto the game
func (p GamePatch) Apply(g *Game) {
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.ChosenCase != nil {
		v := *p.ChosenCase
		g.ChosenCase = &v
	}
	if p.BurnedCount != nil {
		g.BurnedCount = *p.BurnedCount
	}
	if p.BankerOffer != nil {
		v := *p.BankerOffer
		g.BankerOffer = &v
	}
	if p.AcceptedDeal != nil {
		g.AcceptedDeal = *p.AcceptedDeal
	}
	if p.FinalWonCents != nil {
		v := *p.FinalWonCents
		g.FinalWonCents = &v
	}
	if p.PaidOut != nil {
		g.PaidOut = *p.PaidOut
	}
	if p.PayoutTx != nil {
		g.PayoutTx = *p.PayoutTx
	}
	if p.UpdatedAt != nil {
		g.UpdatedAt = *p.UpdatedAt
	}
}

// CardPatch lists the card fields a conditional update writes
type CardPatch struct {
	Revealed *bool
	Burned   *bool
}

// CardPredicate lists the conditions a card must satisfy for an update to apply
type CardPredicate struct {
	Revealed *bool
}

// Matches reports whether the card satisfies the predicate
func (p CardPredicate) Matches(c *Card) bool {
	if p.Revealed != nil && c.Revealed != *p.Revealed {
		return false
	}
	return true
}

// Apply writes the patch onto the card
func (p CardPatch) Apply(c *Card) {
	if p.Revealed != nil {
		c.Revealed = *p.Revealed
	}
	if p.Burned != nil {
		c.Burned = *p.Burned
	}
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
