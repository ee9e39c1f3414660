package factory

import (
	"time"

	"github.com/mcoot/dealgame/internal/dependencies/mocks"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/auth"
	"github.com/mcoot/dealgame/internal/services/payment"
	"github.com/mcoot/dealgame/internal/storage/memory"
	"github.com/mcoot/dealgame/internal/testutil"
)

// TestTokenSecret signs the bearer tokens issued by TestApp.Token
const TestTokenSecret = "test-secret"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App with memory storage, mocked clock and random,
// HMAC token verification and payments disabled
func NewTestApp() *TestApp {
	return NewTestAppWithPayments(payment.Disabled{}, false)
}

// NewTestAppWithPayments is NewTestApp with a caller-supplied payment service
func NewTestAppWithPayments(payments payment.Service, requireForStandard bool) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	logger := testutil.NopLogger()

	verifier, err := auth.NewVerifier(auth.Config{HMACSecret: TestTokenSecret}, nil, mockClock, logger)
	if err != nil {
		panic(err)
	}

	app := newWithDependencies(store, mockClock, mockRandom, verifier, payments, requireForStandard, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}

// Token issues a bearer token for principal valid for an hour of mock time
func (t *TestApp) Token(principal model.Principal) string {
	token, err := auth.SignDevToken(TestTokenSecret, principal, t.MockClock.Now(), time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}
