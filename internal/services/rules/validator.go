// Package rules decides whether an operation is legal in a game's current state.
package rules

import "github.com/mcoot/dealgame/internal/model"

// Operation names a mutating game operation
type Operation string

const (
	OpPick        Operation = "pick"
	OpBurn        Operation = "burn"
	OpAcceptDeal  Operation = "acceptDeal"
	OpFinalReveal Operation = "finalReveal"
	OpClaim       Operation = "claim"
)

// Rejection reasons
const (
	ReasonNotPlaying       = "not in playing state"
	ReasonAlreadyPicked    = "already picked a case"
	ReasonMustPickFirst    = "must pick a case first"
	ReasonNoOffer          = "no banker offer available"
	ReasonDealAccepted     = "deal already accepted"
	ReasonRevealAfterDeal  = "cannot reveal after accepting deal"
	ReasonNotFinished      = "game is not finished"
	ReasonAlreadyPaid      = "winnings already paid out"
	ReasonUnknownOperation = "unknown operation"
)

// Verdict is the outcome of validating an operation
type Verdict struct {
	Valid  bool
	Reason string
}

func ok() Verdict {
	return Verdict{Valid: true}
}

func reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Err converts a rejecting verdict into a *model.StateError, or nil if valid
func (v Verdict) Err(op Operation) error {
	if v.Valid {
		return nil
	}
	return &model.StateError{Op: string(op), Reason: v.Reason}
}

// Validate checks op against the game's current fields without mutating them
func Validate(g *model.Game, op Operation) Verdict {
	switch op {
	case OpPick:
		if !g.Status.IsActive() {
			return reject(ReasonNotPlaying)
		}
		if g.HasChosenCase() {
			return reject(ReasonAlreadyPicked)
		}
		return ok()

	case OpBurn:
		if !g.Status.IsActive() {
			return reject(ReasonNotPlaying)
		}
		if !g.HasChosenCase() {
			return reject(ReasonMustPickFirst)
		}
		return ok()

	case OpAcceptDeal:
		if !g.Status.IsActive() {
			return reject(ReasonNotPlaying)
		}
		if g.BankerOffer == nil {
			return reject(ReasonNoOffer)
		}
		if g.AcceptedDeal {
			return reject(ReasonDealAccepted)
		}
		return ok()

	case OpFinalReveal:
		if !g.Status.IsActive() {
			return reject(ReasonNotPlaying)
		}
		if g.AcceptedDeal {
			return reject(ReasonRevealAfterDeal)
		}
		return ok()

	case OpClaim:
		if !g.Status.IsTerminal() || g.FinalWonCents == nil {
			return reject(ReasonNotFinished)
		}
		if g.PaidOut {
			return reject(ReasonAlreadyPaid)
		}
		return ok()

	default:
		return reject(ReasonUnknownOperation)
	}
}
