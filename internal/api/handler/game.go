// Package handler implements the JSON API endpoints.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mcoot/dealgame/internal/api/apierr"
	"github.com/mcoot/dealgame/internal/api/middleware"
	"github.com/mcoot/dealgame/internal/api/request"
	"github.com/mcoot/dealgame/internal/api/response"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/game"
)

// MoveFeed streams a game's moves over a websocket
type MoveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, gameID model.GameID, principal model.Principal) error
}

// GameHandler handles game endpoints
type GameHandler struct {
	controller *game.Controller
	feed       MoveFeed
	logger     *slog.Logger
}

// NewGameHandler creates a new game handler. feed may be nil to disable the websocket endpoint.
func NewGameHandler(controller *game.Controller, feed MoveFeed, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		controller: controller,
		feed:       feed,
		logger:     logger,
	}
}

// Create handles POST /api/v1/games
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetPrincipal(r.Context())

	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req request.CreateGameRequest
	if err := request.DecodeStrict(body, &req); err != nil {
		h.writeError(w, r, apierr.NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, apierr.NewInvalidRequestError(err.Error()))
		return
	}

	summary, err := h.controller.CreateGame(r.Context(), owner, game.CreateGameInput{
		EntryFeeCents: req.EntryFeeCents,
		Currency:      req.Currency,
		Mode:          model.ModeName(strings.ToLower(req.Mode)),
		PaymentTx:     req.PaymentTx,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, summary)
}

// List handles GET /api/v1/games
func (h *GameHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetPrincipal(r.Context())

	games, err := h.controller.ListGames(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if games == nil {
		games = []*game.GameSummary{}
	}

	response.JSON(w, http.StatusOK, response.GameList{Games: games})
}

// Get handles GET /api/v1/games/{id}. Anonymous callers get the public view.
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPrincipal(r.Context())

	view, err := h.controller.GetGameState(r.Context(), requester, gameID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.GameStateFromView(view))
}

// Action handles POST /api/v1/games/{id}/actions
func (h *GameHandler) Action(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetPrincipal(r.Context())
	id := gameID(r)

	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	action, err := request.DecodeAction(body)
	if err != nil {
		h.writeError(w, r, apierr.NewInvalidRequestError(err.Error()))
		return
	}

	var result any
	switch a := action.(type) {
	case *request.PickAction:
		result, err = h.controller.PickCase(r.Context(), owner, id, *a.Index)
	case *request.BurnAction:
		result, err = h.controller.BurnCase(r.Context(), owner, id, *a.Index)
	case *request.AcceptDealAction:
		result, err = h.controller.AcceptDeal(r.Context(), owner, id)
	case *request.FinalRevealAction:
		result, err = h.controller.FinalReveal(r.Context(), owner, id, a.Swap)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ActionResult{Action: string(action.Kind()), Result: result})
}

// Claim handles POST /api/v1/games/{id}/claim
func (h *GameHandler) Claim(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetPrincipal(r.Context())

	result, err := h.controller.ClaimWinnings(r.Context(), owner, gameID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// Feed handles GET /api/v1/games/{id}/feed. Only the owner may watch;
// ownership is checked before the connection is upgraded.
func (h *GameHandler) Feed(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetPrincipal(r.Context())
	id := gameID(r)

	if h.feed == nil {
		h.writeError(w, r, apierr.NewInvalidRequestError("move feed is disabled"))
		return
	}

	view, err := h.controller.GetGameState(r.Context(), &owner, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !view.IsOwnerView() {
		h.writeError(w, r, model.ErrNotGameOwner)
		return
	}

	if err := h.feed.Serve(w, r, id, owner); err != nil {
		h.logger.Warn("feed upgrade failed",
			slog.String("game_id", string(id)),
			slog.String("error", err.Error()))
	}
}

// writeError logs failures the client won't see the detail of, then writes the mapped error
func (h *GameHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apierr.Status(err) >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	apierr.WriteError(w, err)
}

func gameID(r *http.Request) model.GameID {
	return model.GameID(mux.Vars(r)["id"])
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, request.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.NewInvalidRequestError("request body too large")
		}
		return nil, apierr.NewInvalidRequestError("could not read request body")
	}
	return body, nil
}
