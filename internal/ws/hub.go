package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"storefront-engine/internal/service"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// ErrHubClosed is returned by Publish after Run has returned.
var ErrHubClosed = errors.New("ws: hub closed")

// Client is one websocket subscriber. Staff clients receive every event,
// customers only the events that carry their own user id.
type Client struct {
	Conn   *websocket.Conn
	UserID string
	Staff  bool
}

type message struct {
	userID  string
	payload []byte
}

type Hub struct {
	Clients    map[*websocket.Conn]*Client
	Register   chan *Client
	Unregister chan *websocket.Conn
	Broadcast  chan message
	done       chan struct{}
	mutex      sync.Mutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		Clients:    make(map[*websocket.Conn]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *websocket.Conn),
		Broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.Clients {
				conn.Close()
				delete(h.Clients, conn)
			}
			h.mutex.Unlock()
			return

		case client := <-h.Register:
			h.mutex.Lock()
			h.Clients[client.Conn] = client
			h.mutex.Unlock()
			h.log.Debug("client connected", zap.String("user_id", client.UserID), zap.Bool("staff", client.Staff))

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case msg := <-h.Broadcast:
			h.mutex.Lock()
			for conn, client := range h.Clients {
				if !client.Staff && (msg.userID == "" || msg.userID != client.UserID) {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					h.log.Debug("dropping client", zap.String("user_id", client.UserID), zap.Error(err))
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Join registers a client. It returns false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Leave(conn *websocket.Conn) {
	select {
	case h.Unregister <- conn:
	case <-h.done:
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

// Publish queues the event for connected clients. It never waits on slow sockets.
func (h *Hub) Publish(ctx context.Context, event service.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ws: encode %s: %w", event.Type, err)
	}
	msg := message{userID: recipient(event), payload: payload}
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.Broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("ws: broadcast queue full, dropped %s", event.Type)
	}
}

func recipient(event service.Event) string {
	switch v := event.Data["user_id"].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}
