// Package payment is the boundary to the PYUSD token contract: it verifies
// entry fee transfers and sends payouts.
package payment

import (
	"context"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/mcoot/dealgame/internal/model"
)

var (
	ErrPaymentsDisabled = errors.New("payments are not configured")
	ErrRPC              = errors.New("rpc call failed")
)

// PYUSDDecimals is the number of decimals of the PYUSD ERC-20 token
const PYUSDDecimals int32 = 6

// Verifier confirms an on-chain transfer happened
type Verifier interface {
	VerifyTransfer(ctx context.Context, txHash string, from, to model.Principal, amountCents int64) (bool, error)
}

// Payout is the result of a successful fund distribution
type Payout struct {
	TxHash string `json:"tx_hash"`
}

// Payouts sends funds out of the treasury
type Payouts interface {
	DistributeFunds(ctx context.Context, to model.Principal, amountCents int64) (Payout, error)
}

// Service combines both directions of the payment boundary
type Service interface {
	Verifier
	Payouts

	// Treasury is the address entry fees must be paid to
	Treasury() model.Principal
}

// CentsToUnits converts an amount in cents into token base units
func CentsToUnits(cents int64, decimals int32) *big.Int {
	return decimal.New(cents, decimals-2).BigInt()
}

// UnitsToCents converts token base units into cents, truncating sub-cent dust
func UnitsToCents(units *big.Int, decimals int32) int64 {
	return decimal.NewFromBigInt(units, 2-decimals).IntPart()
}

// Disabled is used when no chain endpoint is configured
type Disabled struct{}

var _ Service = Disabled{}

func (Disabled) VerifyTransfer(context.Context, string, model.Principal, model.Principal, int64) (bool, error) {
	return false, ErrPaymentsDisabled
}

func (Disabled) DistributeFunds(context.Context, model.Principal, int64) (Payout, error) {
	return Payout{}, ErrPaymentsDisabled
}

func (Disabled) Treasury() model.Principal {
	return ""
}
