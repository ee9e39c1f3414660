package model

import "errors"

// Common errors used across the application
var (
	// Lookup errors
	ErrGameNotFound = errors.New("game not found")
	ErrCardNotFound = errors.New("case not found")

	// Input validation errors
	ErrInvalidEntryFee  = errors.New("entry fee out of bounds")
	ErrInvalidCaseIndex = errors.New("case index out of bounds")
	ErrInvalidMode      = errors.New("unknown game mode")
	ErrInvalidCurrency  = errors.New("unsupported currency")
	ErrInvalidPrincipal = errors.New("invalid wallet address")

	// Authorization errors
	ErrNotGameOwner = errors.New("requester does not own this game")

	// State-precondition errors
	ErrInvalidState         = errors.New("invalid game state")
	ErrCannotBurnChosenCase = errors.New("cannot burn your own case")
	ErrCaseAlreadyRevealed  = errors.New("case already revealed")
	ErrRevealNotReady       = errors.New("final reveal requires exactly two unrevealed cases")
	ErrNothingToClaim       = errors.New("no winnings to claim")

	// Concurrency errors
	ErrConflict = errors.New("action no longer applicable")

	// Payment errors
	ErrPaymentRequired = errors.New("payment transaction required")
	ErrPaymentInvalid  = errors.New("payment transaction could not be verified")
	ErrPaymentReused   = errors.New("payment transaction already used")
	ErrPayoutFailed    = errors.New("payout failed")
)

// StateError reports why the current game state rejects an operation
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return e.Op + ": " + e.Reason
}

// Is makes StateError match ErrInvalidState
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}
