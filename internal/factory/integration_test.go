package factory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dealgame/internal/feed"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/auth"
	"github.com/mcoot/dealgame/internal/services/game"
	"github.com/mcoot/dealgame/internal/services/payment"
	"github.com/mcoot/dealgame/internal/services/payment/paymenttest"
	"github.com/mcoot/dealgame/internal/storage/memory"
	redisstorage "github.com/mcoot/dealgame/internal/storage/redis"
	"github.com/mcoot/dealgame/internal/storage/sqldb"
)

const (
	alice model.Principal = "0x00000000000000000000000000000000000a11ce"
	bob   model.Principal = "0x0000000000000000000000000000000000000b0b"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
}

// Test: complete game with the deterministic random source, ending in a deal
func (s *IntegrationSuite) TestCompleteGameFlow() {
	ctrl := s.app.GameController

	// Step 1: Create a game; cases are [200, 1000, 3000, 6000, 20000]
	created, err := ctrl.CreateGame(s.ctx, alice, game.CreateGameInput{EntryFeeCents: 2000})
	s.Require().NoError(err)
	s.Equal(model.GameStatusPlaying, created.Status)
	s.Equal(s.app.MockClock.Now(), created.CreatedAt)

	// Step 2: Pick case 2
	_, err = ctrl.PickCase(s.ctx, alice, created.ID, 2)
	s.Require().NoError(err)

	// Step 3: Two burns trigger the first offer
	first, err := ctrl.BurnCase(s.ctx, alice, created.ID, 0)
	s.Require().NoError(err)
	s.Nil(first.Offer)

	second, err := ctrl.BurnCase(s.ctx, alice, created.ID, 1)
	s.Require().NoError(err)
	s.Require().NotNil(second.Offer)
	s.Equal(int64(7800), *second.Offer)

	// Step 4: Take the deal
	done, err := ctrl.AcceptDeal(s.ctx, alice, created.ID)
	s.Require().NoError(err)
	s.Equal(model.GameStatusFinished, done.Status)
	s.Equal(int64(7800), *done.FinalWonCents)

	// Bob only sees the public view
	view, err := ctrl.GetGameState(s.ctx, ptr(bob), created.ID)
	s.Require().NoError(err)
	s.False(view.IsOwnerView())
	s.Equal(3, view.(*game.PublicView).UnrevealedCount)

	// Payments are disabled in the default test app
	_, err = ctrl.ClaimWinnings(s.ctx, alice, created.ID)
	s.ErrorIs(err, payment.ErrPaymentsDisabled)
}

// Test: moves reach a websocket client through the feed manager
func (s *IntegrationSuite) TestMovesArePublishedToFeed() {
	created, err := s.app.GameController.CreateGame(s.ctx, alice, game.CreateGameInput{EntryFeeCents: 2000})
	s.Require().NoError(err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.app.Feed.Serve(w, r, created.ID, alice)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	s.Require().NoError(err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var event feed.Event
	s.Require().NoError(conn.ReadJSON(&event))
	s.Equal(feed.EventConnected, event.Type)

	hub := s.app.Feed.Hub(created.ID)
	s.Require().Eventually(func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err = s.app.GameController.PickCase(s.ctx, alice, created.ID, 4)
	s.Require().NoError(err)

	s.Require().NoError(conn.ReadJSON(&event))
	s.Equal(feed.EventMove, event.Type)
	s.Require().NotNil(event.Move)
	s.Equal(model.MovePick, event.Move.Action)
	s.Equal(created.ID, event.Move.GameID)
}

// Test: contract games are paid for once and paid out once
func (s *IntegrationSuite) TestContractGameWithPayments() {
	payments := paymenttest.NewStubPayments()
	s.Require().NoError(s.app.Close())
	s.app = NewTestAppWithPayments(payments, false)
	ctrl := s.app.GameController

	txHash := "0x" + strings.Repeat("ab", 32)
	payments.AddTransfer(txHash, alice, 2000)

	_, err := ctrl.CreateGame(s.ctx, alice, game.CreateGameInput{EntryFeeCents: 2000, Mode: model.ModeContract})
	s.ErrorIs(err, model.ErrPaymentRequired)

	created, err := ctrl.CreateGame(s.ctx, alice, game.CreateGameInput{
		EntryFeeCents: 2000,
		Mode:          model.ModeContract,
		PaymentTx:     txHash,
	})
	s.Require().NoError(err)
	s.Equal(model.GameStatusContractActive, created.Status)

	_, err = ctrl.CreateGame(s.ctx, alice, game.CreateGameInput{
		EntryFeeCents: 2000,
		Mode:          model.ModeContract,
		PaymentTx:     txHash,
	})
	s.ErrorIs(err, model.ErrPaymentReused)

	_, err = ctrl.PickCase(s.ctx, alice, created.ID, 2)
	s.Require().NoError(err)
	_, err = ctrl.BurnCase(s.ctx, alice, created.ID, 0)
	s.Require().NoError(err)
	_, err = ctrl.BurnCase(s.ctx, alice, created.ID, 1)
	s.Require().NoError(err)
	_, err = ctrl.AcceptDeal(s.ctx, alice, created.ID)
	s.Require().NoError(err)

	claim, err := ctrl.ClaimWinnings(s.ctx, alice, created.ID)
	s.Require().NoError(err)
	s.Equal(int64(7800), claim.AmountCents)
	s.Len(payments.Payouts(), 1)
	s.Equal(model.GameStatusContractCompleted, claim.Game.Status)
}

// Test: issued tokens resolve to the same principal
func (s *IntegrationSuite) TestTokenRoundTrip() {
	principal, err := s.app.Verifier.VerifyPrincipal(s.ctx, s.app.Token(alice))
	s.Require().NoError(err)
	s.Equal(alice, principal)
}

func ptr[T any](v T) *T {
	return &v
}

// =============================================================================
// Production factory
// =============================================================================

type FactorySuite struct {
	suite.Suite
}

func TestFactorySuite(t *testing.T) {
	suite.Run(t, new(FactorySuite))
}

func (s *FactorySuite) devAuth() auth.Config {
	return auth.Config{HMACSecret: "dev"}
}

func (s *FactorySuite) TestDefaultsToMemoryStorage() {
	app, err := New(Config{Auth: s.devAuth()})
	s.Require().NoError(err)
	defer app.Close()

	s.IsType(&memory.Storage{}, app.Storage)
	s.Equal(payment.Disabled{}, app.Payments)
}

func (s *FactorySuite) TestRedisStorage() {
	mini := miniredis.RunT(s.T())
	redisCfg := redisstorage.DefaultConfig()
	redisCfg.URL = "redis://" + mini.Addr()

	app, err := New(Config{Auth: s.devAuth(), StorageType: StorageTypeRedis, RedisConfig: &redisCfg})
	s.Require().NoError(err)
	defer app.Close()

	s.IsType(&redisstorage.Storage{}, app.Storage)
}

func (s *FactorySuite) TestSQLStorage() {
	sqlCfg := sqldb.Config{Driver: sqldb.DriverSQLite, DSN: ":memory:"}

	app, err := New(Config{Auth: s.devAuth(), StorageType: StorageTypeSQL, SQLConfig: &sqlCfg})
	s.Require().NoError(err)
	defer app.Close()

	s.IsType(&sqldb.Storage{}, app.Storage)
}

func (s *FactorySuite) TestStorageConfigErrors() {
	_, err := New(Config{Auth: s.devAuth(), StorageType: StorageTypeRedis})
	s.Error(err)

	_, err = New(Config{Auth: s.devAuth(), StorageType: StorageTypeSQL})
	s.Error(err)

	_, err = New(Config{Auth: s.devAuth(), StorageType: "cassandra"})
	s.Error(err)
}

func (s *FactorySuite) TestAuthMustBeConfigured() {
	_, err := New(Config{})
	s.ErrorIs(err, auth.ErrNotConfigured)
}

func (s *FactorySuite) TestPaymentConfig() {
	app, err := New(Config{
		Auth: s.devAuth(),
		Payment: &payment.Config{
			RPCURL:        "http://localhost:8545",
			TokenContract: "0x6c3ea9036406852006290770bedfcaba0e23a0e8",
			Treasury:      string(paymenttest.StubTreasury),
		},
		RequirePaymentForStandard: true,
	})
	s.Require().NoError(err)
	defer app.Close()

	s.IsType(&payment.RPCClient{}, app.Payments)

	_, err = New(Config{Auth: s.devAuth(), RequirePaymentForStandard: true})
	s.Error(err)

	_, err = New(Config{Auth: s.devAuth(), Payment: &payment.Config{}})
	s.Error(err)
}
