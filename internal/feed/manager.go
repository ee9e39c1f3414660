package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mcoot/dealgame/internal/model"
)

// Event types sent to clients
const (
	EventConnected = "connected"
	EventMove      = "move"
)

// Event is the JSON envelope for every feed message
type Event struct {
	Type   string       `json:"type"`
	GameID model.GameID `json:"game_id"`
	Move   *model.Move  `json:"move,omitempty"`
}

func connectedMessage(gameID model.GameID) []byte {
	data, _ := json.Marshal(Event{Type: EventConnected, GameID: gameID})
	return data
}

// Manager owns one hub per watched game and publishes moves to them
type Manager struct {
	hubs   map[model.GameID]*Hub
	mu     sync.Mutex
	logger *slog.Logger
}

// NewManager creates an empty Manager
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		hubs:   make(map[model.GameID]*Hub),
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Hub returns the hub for a game, starting one if needed
func (m *Manager) Hub(gameID model.GameID) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hubLocked(gameID)
}

func (m *Manager) hubLocked(gameID model.GameID) *Hub {
	if hub, ok := m.hubs[gameID]; ok {
		return hub
	}
	hub := NewHub(gameID, m.logger)
	m.hubs[gameID] = hub
	go hub.Run()
	return hub
}

// reserve fetches a game's hub and holds it open until the caller's
// connection registers, so cleanup cannot close it in between
func (m *Manager) reserve(gameID model.GameID) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	hub := m.hubLocked(gameID)
	hub.reserve()
	return hub
}

// HubCount returns the number of live hubs
func (m *Manager) HubCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hubs)
}

// Serve streams a game's moves to the websocket behind r
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, gameID model.GameID, principal model.Principal) error {
	return serve(w, r, m.reserve(gameID), principal, true)
}

// PublishMove sends move to everyone watching its game. Games nobody watches are skipped.
func (m *Manager) PublishMove(move model.Move) {
	m.mu.Lock()
	hub, ok := m.hubs[move.GameID]
	m.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(Event{Type: EventMove, GameID: move.GameID, Move: &move})
	if err != nil {
		m.logger.Error("failed to encode move", slog.String("error", err.Error()))
		return
	}
	hub.Broadcast(data)
}

// CleanupEmptyHubs stops hubs with no clients and no connection in progress
func (m *Manager) CleanupEmptyHubs() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, hub := range m.hubs {
		if hub.idle() {
			hub.Close()
			delete(m.hubs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("empty feed hubs cleaned up", slog.Int("removed", removed))
	}
}

// Close stops every hub
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, id)
	}
}
