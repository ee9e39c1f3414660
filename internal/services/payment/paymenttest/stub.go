// Package paymenttest provides an in-memory payment service for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/payment"
)

// StubTreasury is the treasury address reported by StubPayments
const StubTreasury model.Principal = "0x7777777777777777777777777777777777777777"

// StubPayments is an in-memory payment.Service. Transfers verify if their
// hash was registered with AddTransfer for the same sender and amount.
type StubPayments struct {
	mu        sync.Mutex
	transfers map[string]stubTransfer
	payouts   []payment.Payout

	// PayoutErr, when set, fails every DistributeFunds call
	PayoutErr error
}

type stubTransfer struct {
	from   model.Principal
	amount int64
}

var _ payment.Service = (*StubPayments)(nil)

// NewStubPayments creates a StubPayments with no known transfers
func NewStubPayments() *StubPayments {
	return &StubPayments{transfers: make(map[string]stubTransfer)}
}

// AddTransfer registers an on-chain entry fee transfer to the treasury
func (s *StubPayments) AddTransfer(txHash string, from model.Principal, amountCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[txHash] = stubTransfer{from: from, amount: amountCents}
}

func (s *StubPayments) VerifyTransfer(_ context.Context, txHash string, from, to model.Principal, amountCents int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[txHash]
	return ok && to == StubTreasury && t.from.Equal(from) && t.amount == amountCents, nil
}

func (s *StubPayments) DistributeFunds(_ context.Context, to model.Principal, amountCents int64) (payment.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PayoutErr != nil {
		return payment.Payout{}, s.PayoutErr
	}
	p := payment.Payout{TxHash: fmt.Sprintf("0x%064x", len(s.payouts)+1)}
	s.payouts = append(s.payouts, p)
	return p, nil
}

func (s *StubPayments) Treasury() model.Principal {
	return StubTreasury
}

// Payouts returns every successful payout so far
func (s *StubPayments) Payouts() []payment.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payment.Payout(nil), s.payouts...)
}
