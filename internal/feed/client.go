package feed

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/dealgame/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed between pongs from the peer
	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512

	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection watching a game
type Client struct {
	hub         *Hub
	principal   model.Principal
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
	// Registration consumes a hub reservation
	reserved bool
}

// Serve upgrades the request and streams the hub's messages until the peer
// disconnects or the hub closes. On upgrade failure the upgrader has already
// written an HTTP error.
func Serve(w http.ResponseWriter, r *http.Request, hub *Hub, principal model.Principal) error {
	return serve(w, r, hub, principal, false)
}

func serve(w http.ResponseWriter, r *http.Request, hub *Hub, principal model.Principal, reserved bool) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if reserved {
			hub.release()
		}
		return err
	}

	client := &Client{
		hub:         hub,
		principal:   principal,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
		reserved:    reserved,
	}
	client.send <- connectedMessage(hub.gameID)
	hub.Register(client)

	go client.writePump()
	client.readPump()
	return nil
}

// readPump discards inbound frames; it exists to process pongs and notice disconnects
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed client read error",
					slog.String("principal", c.principal.String()),
					slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
