package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dealgame/internal/api"
	"github.com/mcoot/dealgame/internal/api/apierr"
	"github.com/mcoot/dealgame/internal/feed"
	"github.com/mcoot/dealgame/internal/factory"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/game"
	"github.com/mcoot/dealgame/internal/services/payment/paymenttest"
	"github.com/mcoot/dealgame/internal/testutil"
)

const (
	alice model.Principal = "0x00000000000000000000000000000000000a11ce"
	bob   model.Principal = "0x0000000000000000000000000000000000000b0b"
)

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   *apierr.APIError `json:"error"`
}

type APISuite struct {
	suite.Suite
	app      *factory.TestApp
	payments *paymenttest.StubPayments
	handler  http.Handler
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.payments = paymenttest.NewStubPayments()
	s.app = factory.NewTestAppWithPayments(s.payments, false)
	s.handler = api.NewRouter(api.RouterConfig{
		Logger:         testutil.NopLogger(),
		Verifier:       s.app.Verifier,
		GameController: s.app.GameController,
		Feed:           s.app.Feed,
	})
}

func (s *APISuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
}

func (s *APISuite) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		s.Require().NoError(err)
		reqBody = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

// decode checks the envelope and unmarshals data into out (if non-nil)
func (s *APISuite) decode(rr *httptest.ResponseRecorder, wantStatus int, out any) envelope {
	s.Require().Equal(wantStatus, rr.Code, rr.Body.String())
	s.Equal("application/json", rr.Header().Get("Content-Type"))

	var env envelope
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &env))
	s.Equal(wantStatus < 400, env.Success)
	if out != nil {
		s.Require().NoError(json.Unmarshal(env.Data, out))
	}
	return env
}

func (s *APISuite) expectError(rr *httptest.ResponseRecorder, wantStatus int, wantCode string) *apierr.APIError {
	env := s.decode(rr, wantStatus, nil)
	s.Require().NotNil(env.Error)
	s.Equal(wantCode, env.Error.Code)
	return env.Error
}

func (s *APISuite) createGame(owner model.Principal) *game.GameSummary {
	var summary game.GameSummary
	rr := s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000}, s.app.Token(owner))
	s.decode(rr, http.StatusCreated, &summary)
	return &summary
}

func (s *APISuite) act(id model.GameID, body any, owner model.Principal) *httptest.ResponseRecorder {
	return s.request(http.MethodPost, "/api/v1/games/"+string(id)+"/actions", body, s.app.Token(owner))
}

// =============================================================================
// Basics
// =============================================================================

func (s *APISuite) TestHealthCheck() {
	var health struct {
		Status string `json:"status"`
	}
	s.decode(s.request(http.MethodGet, "/api/v1/health", nil, ""), http.StatusOK, &health)
	s.Equal("ok", health.Status)
}

func (s *APISuite) TestUnknownRoute() {
	s.expectError(s.request(http.MethodGet, "/api/v1/lobbies", nil, ""), http.StatusNotFound, apierr.CodeNotFound)
}

func (s *APISuite) TestAuthRequired() {
	rr := s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000}, "")
	s.expectError(rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = s.request(http.MethodGet, "/api/v1/games", nil, "garbage")
	s.expectError(rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
}

func (s *APISuite) TestExpiredToken() {
	token := s.app.Token(alice)
	s.app.MockClock.Advance(2 * time.Hour)

	rr := s.request(http.MethodGet, "/api/v1/games", nil, token)

	s.expectError(rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
}

// =============================================================================
// Create / list / get
// =============================================================================

func (s *APISuite) TestCreateGame() {
	summary := s.createGame(alice)

	s.NotEmpty(summary.ID)
	s.Equal(alice, summary.Owner)
	s.Equal(model.GameStatusPlaying, summary.Status)
	s.Equal("PYUSD", summary.Currency)
	s.Nil(summary.ChosenCase)
}

func (s *APISuite) TestCreateGameValidation() {
	token := s.app.Token(alice)

	rr := s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 50}, token)
	s.expectError(rr, http.StatusBadRequest, apierr.CodeInvalidEntryFee)

	rr = s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000, "currency": "EUR"}, token)
	s.expectError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000, "mode": "tournament"}, token)
	s.expectError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000, "cases": 7}, token)
	s.expectError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = s.request(http.MethodPost, "/api/v1/games", `{"entry_fee_cents":`, token)
	s.expectError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = s.request(http.MethodPost, "/api/v1/games", map[string]any{}, token)
	s.expectError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func (s *APISuite) TestCreateContractGameNeedsPayment() {
	token := s.app.Token(alice)

	rr := s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000, "mode": "contract"}, token)
	s.expectError(rr, http.StatusPaymentRequired, apierr.CodePaymentRequired)

	txHash := "0x" + strings.Repeat("cd", 32)
	rr = s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000, "mode": "contract", "payment_tx": txHash}, token)
	s.expectError(rr, http.StatusPaymentRequired, apierr.CodePaymentInvalid)

	s.payments.AddTransfer(txHash, alice, 2000)
	var summary game.GameSummary
	rr = s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000, "mode": "contract", "payment_tx": txHash}, token)
	s.decode(rr, http.StatusCreated, &summary)
	s.Equal(model.GameStatusContractActive, summary.Status)

	rr = s.request(http.MethodPost, "/api/v1/games", map[string]any{"entry_fee_cents": 2000, "mode": "contract", "payment_tx": txHash}, token)
	s.expectError(rr, http.StatusConflict, apierr.CodePaymentReused)
}

func (s *APISuite) TestListGames() {
	first := s.createGame(alice)
	s.app.MockClock.Advance(time.Minute)
	second := s.createGame(alice)
	s.createGame(bob)

	var list struct {
		Games []game.GameSummary `json:"games"`
	}
	s.decode(s.request(http.MethodGet, "/api/v1/games", nil, s.app.Token(alice)), http.StatusOK, &list)

	s.Require().Len(list.Games, 2)
	s.Equal(second.ID, list.Games[0].ID)
	s.Equal(first.ID, list.Games[1].ID)
}

func (s *APISuite) TestListGamesEmpty() {
	rr := s.request(http.MethodGet, "/api/v1/games", nil, s.app.Token(alice))

	s.decode(rr, http.StatusOK, nil)
	s.Contains(rr.Body.String(), `"games":[]`)
}

func (s *APISuite) TestGetGameOwnerView() {
	created := s.createGame(alice)
	s.Require().Equal(http.StatusOK, s.act(created.ID, map[string]any{"type": "pick", "index": 2}, alice).Code)
	s.Require().Equal(http.StatusOK, s.act(created.ID, map[string]any{"type": "burn", "index": 0}, alice).Code)

	var view struct {
		View  string          `json:"view"`
		Cards []game.CardView `json:"cards"`
		Moves []model.Move    `json:"moves"`
	}
	rr := s.request(http.MethodGet, "/api/v1/games/"+string(created.ID), nil, s.app.Token(alice))
	s.decode(rr, http.StatusOK, &view)

	s.Equal("owner", view.View)
	s.Require().Len(view.Cards, 5)
	s.Require().NotNil(view.Cards[0].ValueCents)
	s.Equal(int64(200), *view.Cards[0].ValueCents)
	for _, c := range view.Cards[1:] {
		s.Nil(c.ValueCents, "unrevealed case %d leaked its value", c.Index)
	}
	s.Len(view.Moves, 3)
}

func (s *APISuite) TestGetGamePublicViewDoesNotLeak() {
	created := s.createGame(alice)
	s.Require().Equal(http.StatusOK, s.act(created.ID, map[string]any{"type": "pick", "index": 2}, alice).Code)
	s.Require().Equal(http.StatusOK, s.act(created.ID, map[string]any{"type": "burn", "index": 4}, alice).Code)

	for _, token := range []string{"", s.app.Token(bob), "not-a-token"} {
		rr := s.request(http.MethodGet, "/api/v1/games/"+string(created.ID), nil, token)

		var raw map[string]json.RawMessage
		s.decode(rr, http.StatusOK, &raw)
		s.Equal(`"public"`, string(raw["view"]))
		s.NotContains(raw, "cards")
		s.NotContains(raw, "moves")
		s.JSONEq(`[{"index":4,"value_cents":20000}]`, string(raw["revealed_cards"]))
		s.Equal("4", string(raw["unrevealed_count"]))

		// No unrevealed value appears anywhere in the body
		for _, hidden := range []string{":1000", ":3000", ":6000"} {
			s.NotContains(rr.Body.String(), hidden)
		}
	}
}

func (s *APISuite) TestGetGameNotFound() {
	rr := s.request(http.MethodGet, "/api/v1/games/does-not-exist", nil, "")
	s.expectError(rr, http.StatusNotFound, apierr.CodeGameNotFound)
}

// =============================================================================
// Actions
// =============================================================================

func (s *APISuite) TestFullGameWithDealAndClaim() {
	created := s.createGame(alice)

	var pickResp struct {
		Action string           `json:"action"`
		Result game.GameSummary `json:"result"`
	}
	s.decode(s.act(created.ID, map[string]any{"type": "pick", "index": 2}, alice), http.StatusOK, &pickResp)
	s.Equal("pick", pickResp.Action)
	s.Require().NotNil(pickResp.Result.ChosenCase)
	s.Equal(2, *pickResp.Result.ChosenCase)

	var burn struct {
		Result game.BurnResult `json:"result"`
	}
	s.decode(s.act(created.ID, map[string]any{"type": "burn", "index": 0}, alice), http.StatusOK, &burn)
	s.Equal(int64(200), burn.Result.ValueCents)
	s.Nil(burn.Result.Offer)

	s.decode(s.act(created.ID, map[string]any{"type": "burn", "index": 1}, alice), http.StatusOK, &burn)
	s.Equal(2, burn.Result.BurnedCount)
	s.Require().NotNil(burn.Result.Offer)
	s.Equal(int64(7800), *burn.Result.Offer)

	var deal struct {
		Result game.GameSummary `json:"result"`
	}
	s.decode(s.act(created.ID, map[string]any{"type": "accept_deal"}, alice), http.StatusOK, &deal)
	s.Equal(model.GameStatusFinished, deal.Result.Status)
	s.Equal(int64(7800), *deal.Result.FinalWonCents)

	var claim game.ClaimResult
	rr := s.request(http.MethodPost, "/api/v1/games/"+string(created.ID)+"/claim", nil, s.app.Token(alice))
	s.decode(rr, http.StatusOK, &claim)
	s.Equal(int64(7800), claim.AmountCents)
	s.NotEmpty(claim.TxHash)
	s.True(claim.Game.PaidOut)

	rr = s.request(http.MethodPost, "/api/v1/games/"+string(created.ID)+"/claim", nil, s.app.Token(alice))
	s.expectError(rr, http.StatusConflict, apierr.CodeInvalidState)
}

func (s *APISuite) TestFinalRevealWithSwap() {
	created := s.createGame(alice)
	s.decode(s.act(created.ID, map[string]any{"type": "pick", "index": 2}, alice), http.StatusOK, nil)
	for _, i := range []int{0, 1, 3} {
		s.decode(s.act(created.ID, map[string]any{"type": "burn", "index": i}, alice), http.StatusOK, nil)
	}

	var reveal struct {
		Result game.FinalRevealResult `json:"result"`
	}
	s.decode(s.act(created.ID, map[string]any{"type": "final_reveal", "swap": true}, alice), http.StatusOK, &reveal)

	s.True(reveal.Result.Swapped)
	s.Equal(4, reveal.Result.FinalIndex)
	s.Equal(int64(20000), reveal.Result.FinalWonCents)
	s.Equal(model.GameStatusFinished, reveal.Result.Game.Status)
}

func (s *APISuite) TestActionErrors() {
	created := s.createGame(alice)

	err := s.expectError(s.act(created.ID, map[string]any{"type": "burn", "index": 1}, alice), http.StatusConflict, apierr.CodeInvalidState)
	s.Equal("must pick a case first", err.Message)

	s.expectError(s.act(created.ID, map[string]any{"type": "pick", "index": 5}, alice), http.StatusBadRequest, apierr.CodeInvalidCaseIndex)
	s.expectError(s.act(created.ID, map[string]any{"type": "pick", "index": 1}, bob), http.StatusForbidden, apierr.CodeNotGameOwner)
	s.expectError(s.act(created.ID, map[string]any{"type": "shuffle"}, alice), http.StatusBadRequest, apierr.CodeInvalidRequest)
	s.expectError(s.act(created.ID, map[string]any{"type": "pick"}, alice), http.StatusBadRequest, apierr.CodeInvalidRequest)
	s.expectError(s.act(created.ID, map[string]any{"type": "accept_deal", "index": 1}, alice), http.StatusBadRequest, apierr.CodeInvalidRequest)
	s.expectError(s.act("missing", map[string]any{"type": "accept_deal"}, alice), http.StatusNotFound, apierr.CodeGameNotFound)

	s.decode(s.act(created.ID, map[string]any{"type": "pick", "index": 1}, alice), http.StatusOK, nil)
	s.expectError(s.act(created.ID, map[string]any{"type": "burn", "index": 1}, alice), http.StatusConflict, apierr.CodeCannotBurnChosenCase)
	s.expectError(s.act(created.ID, map[string]any{"type": "accept_deal"}, alice), http.StatusConflict, apierr.CodeInvalidState)
	s.expectError(s.act(created.ID, map[string]any{"type": "final_reveal"}, alice), http.StatusConflict, apierr.CodeRevealNotReady)

	s.decode(s.act(created.ID, map[string]any{"type": "burn", "index": 0}, alice), http.StatusOK, nil)
	s.expectError(s.act(created.ID, map[string]any{"type": "burn", "index": 0}, alice), http.StatusConflict, apierr.CodeCaseAlreadyRevealed)
}

func (s *APISuite) TestClaimWithPaymentsDisabled() {
	s.Require().NoError(s.app.Close())
	s.app = factory.NewTestApp()
	s.handler = api.NewRouter(api.RouterConfig{
		Logger:         testutil.NopLogger(),
		Verifier:       s.app.Verifier,
		GameController: s.app.GameController,
	})

	created := s.createGame(alice)
	s.decode(s.act(created.ID, map[string]any{"type": "pick", "index": 2}, alice), http.StatusOK, nil)
	s.decode(s.act(created.ID, map[string]any{"type": "burn", "index": 0}, alice), http.StatusOK, nil)
	s.decode(s.act(created.ID, map[string]any{"type": "burn", "index": 1}, alice), http.StatusOK, nil)
	s.decode(s.act(created.ID, map[string]any{"type": "accept_deal"}, alice), http.StatusOK, nil)

	rr := s.request(http.MethodPost, "/api/v1/games/"+string(created.ID)+"/claim", nil, s.app.Token(alice))
	s.expectError(rr, http.StatusServiceUnavailable, apierr.CodePaymentsDisabled)

	// The failed payout left the game claimable
	var view struct {
		Game game.GameSummary `json:"game"`
	}
	s.decode(s.request(http.MethodGet, "/api/v1/games/"+string(created.ID), nil, s.app.Token(alice)), http.StatusOK, &view)
	s.False(view.Game.PaidOut)
}

// =============================================================================
// Move feed
// =============================================================================

func (s *APISuite) TestFeedStreamsMovesToOwner() {
	created := s.createGame(alice)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/games/" + string(created.ID) + "/feed?token=" + s.app.Token(alice)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var event feed.Event
	s.Require().NoError(conn.ReadJSON(&event))
	s.Equal(feed.EventConnected, event.Type)

	hub := s.app.Feed.Hub(created.ID)
	s.Require().Eventually(func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	s.decode(s.act(created.ID, map[string]any{"type": "pick", "index": 3}, alice), http.StatusOK, nil)

	s.Require().NoError(conn.ReadJSON(&event))
	s.Equal(feed.EventMove, event.Type)
	s.Equal(model.MovePick, event.Move.Action)
}

func (s *APISuite) TestFeedRejectsOthersBeforeUpgrade() {
	created := s.createGame(alice)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/games/" + string(created.ID) + "/feed"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?token="+s.app.Token(bob), nil)
	s.Require().ErrorIs(err, websocket.ErrBadHandshake)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base, nil)
	s.Require().ErrorIs(err, websocket.ErrBadHandshake)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}
