// Package request defines and validates API request bodies.
package request

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxBodyBytes caps every request body
const MaxBodyBytes = 64 << 10

// CreateGameRequest is the request body for creating a game
type CreateGameRequest struct {
	EntryFeeCents int64  `json:"entry_fee_cents"`
	Currency      string `json:"currency,omitempty"`
	Mode          string `json:"mode,omitempty"`
	PaymentTx     string `json:"payment_tx,omitempty"`
}

// Validate checks the shape of the request; fee bounds are enforced by the game controller
func (r *CreateGameRequest) Validate() error {
	if r.EntryFeeCents == 0 {
		return errors.New("entry_fee_cents is required")
	}
	if r.PaymentTx != "" && !IsTxHash(r.PaymentTx) {
		return errors.New("payment_tx must be a 0x-prefixed 32 byte hash")
	}
	return nil
}

// ActionType selects the operation in an action request
type ActionType string

const (
	ActionPick        ActionType = "pick"
	ActionBurn        ActionType = "burn"
	ActionAcceptDeal  ActionType = "accept_deal"
	ActionFinalReveal ActionType = "final_reveal"
)

// Action is a decoded, validated action request
type Action interface {
	Kind() ActionType
	Validate() error
}

// PickAction chooses the player's case
type PickAction struct {
	Type  ActionType `json:"type"`
	Index *int       `json:"index"`
}

func (a *PickAction) Kind() ActionType { return ActionPick }

func (a *PickAction) Validate() error {
	if a.Index == nil {
		return errors.New("index is required")
	}
	return nil
}

// BurnAction opens one of the other cases
type BurnAction struct {
	Type  ActionType `json:"type"`
	Index *int       `json:"index"`
}

func (a *BurnAction) Kind() ActionType { return ActionBurn }

func (a *BurnAction) Validate() error {
	if a.Index == nil {
		return errors.New("index is required")
	}
	return nil
}

// AcceptDealAction takes the banker's current offer
type AcceptDealAction struct {
	Type ActionType `json:"type"`
}

func (a *AcceptDealAction) Kind() ActionType { return ActionAcceptDeal }
func (a *AcceptDealAction) Validate() error  { return nil }

// FinalRevealAction opens the last two cases, optionally swapping first
type FinalRevealAction struct {
	Type ActionType `json:"type"`
	Swap bool       `json:"swap"`
}

func (a *FinalRevealAction) Kind() ActionType { return ActionFinalReveal }
func (a *FinalRevealAction) Validate() error  { return nil }

// DecodeAction reads the type discriminator, then strictly decodes the body
// into the matching action. Fields that don't belong to the action are rejected.
func DecodeAction(body []byte) (Action, error) {
	var envelope struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed body: %w", err)
	}

	var action Action
	switch envelope.Type {
	case ActionPick:
		action = &PickAction{}
	case ActionBurn:
		action = &BurnAction{}
	case ActionAcceptDeal:
		action = &AcceptDealAction{}
	case ActionFinalReveal:
		action = &FinalRevealAction{}
	case "":
		return nil, errors.New("type is required")
	default:
		return nil, fmt.Errorf("unknown action type %q", envelope.Type)
	}

	if err := DecodeStrict(body, action); err != nil {
		return nil, err
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// DecodeStrict decodes a single JSON object, rejecting unknown fields and trailing data
func DecodeStrict(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed body: %w", err)
	}
	if dec.More() {
		return errors.New("malformed body: trailing data")
	}
	return nil
}

// IsTxHash reports whether s looks like an EVM transaction hash
func IsTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
