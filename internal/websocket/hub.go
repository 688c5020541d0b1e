// Package websocket keeps live sessions per recipient and pushes
// notifications to them.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"volunteer-coordination/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// ErrHubClosed is returned by Serve after Run has stopped.
var ErrHubClosed = errors.New("websocket hub closed")

// Message is the frame written to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub is the room registry: one room per recipient, any number of sessions
// per room.
type Hub struct {
	// Сессии по получателю
	clients map[primitive.ObjectID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	mutex sync.RWMutex
	done  chan struct{}

	upgrader websocket.Upgrader
	log      zerolog.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID primitive.ObjectID
}

// NewHub creates a hub. allowOrigin decides the handshake origin check; nil
// accepts every origin.
func NewHub(log zerolog.Logger, allowOrigin func(origin string) bool) *Hub {
	h := &Hub{
		clients:    make(map[primitive.ObjectID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowOrigin == nil {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		},
	}
	return h
}

// Run processes registrations until ctx is done, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mutex.Unlock()
			metrics.WebSocketConnections.Inc()
			h.log.Debug().Str("user_id", client.userID.Hex()).Msg("Client registered")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.removeLocked(client)
			h.mutex.Unlock()
			h.log.Debug().Str("user_id", client.userID.Hex()).Msg("Client unregistered")

		case <-ctx.Done():
			h.mutex.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mutex.Unlock()
			return
		}
	}
}

// removeLocked drops a client once; later calls for the same client are no-ops.
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	metrics.WebSocketConnections.Dec()
}

// SendTo queues a frame on every session of the recipient and returns how
// many sessions accepted it. A recipient without sessions is not an error.
// Sessions whose buffer is full are dropped.
func (h *Hub) SendTo(recipientID primitive.ObjectID, msgType string, data any) (int, error) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return 0, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	delivered := 0
	for client := range h.clients[recipientID] {
		select {
		case client.send <- payload:
			delivered++
		default:
			h.log.Warn().Str("user_id", recipientID.Hex()).Msg("Slow client dropped")
			h.removeLocked(client)
		}
	}
	return delivered, nil
}

// reply answers a single session.
func (h *Hub) reply(c *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.clients[c.userID][c] {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.removeLocked(c)
	}
}

// Sessions returns the number of live sessions of the recipient.
func (h *Hub) Sessions(recipientID primitive.ObjectID) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[recipientID])
}

// Serve upgrades the request and attaches the session to the recipient's
// room. The caller has already authenticated userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return ErrHubClosed
	}

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("user_id", c.userID.Hex()).Msg("WebSocket read error")
			}
			return
		}

		// Клиенты только слушают; поддерживаем лишь ping.
		if msg.Type == "ping" {
			c.hub.reply(c, Message{Type: "pong"})
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
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One JSON document per frame.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
