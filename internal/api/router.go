package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/dealgame/internal/api/apierr"
	"github.com/mcoot/dealgame/internal/api/handler"
	"github.com/mcoot/dealgame/internal/api/middleware"
	"github.com/mcoot/dealgame/internal/api/response"
	sharedmw "github.com/mcoot/dealgame/internal/middleware"
	"github.com/mcoot/dealgame/internal/services/auth"
	"github.com/mcoot/dealgame/internal/services/game"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	Verifier       auth.PrincipalVerifier
	GameController *game.Controller
	Feed           handler.MoveFeed // nil disables the websocket feed
}

// NewRouter creates the API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	gameHandler := handler.NewGameHandler(cfg.GameController, cfg.Feed, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Verifier)
	optionalAuthMiddleware := middleware.OptionalAuth(cfg.Verifier)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(sharedmw.Logging(cfg.Logger))

	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	// Game state is readable by anyone; owners get the full view
	public := api.PathPrefix("/games").Subrouter()
	public.Use(optionalAuthMiddleware)
	public.HandleFunc("/{id}", gameHandler.Get).Methods(http.MethodGet)

	games := api.PathPrefix("/games").Subrouter()
	games.Use(authMiddleware)
	games.HandleFunc("", gameHandler.Create).Methods(http.MethodPost)
	games.HandleFunc("", gameHandler.List).Methods(http.MethodGet)
	games.HandleFunc("/{id}/actions", gameHandler.Action).Methods(http.MethodPost)
	games.HandleFunc("/{id}/claim", gameHandler.Claim).Methods(http.MethodPost)
	games.HandleFunc("/{id}/feed", gameHandler.Feed).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewNotFoundError())
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
