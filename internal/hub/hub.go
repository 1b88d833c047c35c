package hub

import (
	"sync"

	"github.com/sideline-chat/sideline/internal/config"
	"github.com/sideline-chat/sideline/pkg/log"
)

// Hub tracks live connections and the user -> connection binding table.
// A user has at most one bound connection at any instant; a reconnect
// silently replaces the prior binding without closing the stale connection.
type Hub struct {
	clients    map[string]*Client // connection ID -> client
	users      map[string]*Client // user ID -> bound client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				// Only drop the binding if this connection still owns it;
				// a reconnect may already have replaced it.
				if userID := client.Session.GetUserID(); userID != "" {
					if bound, ok := h.users[userID]; ok && bound.ID == client.ID {
						delete(h.users, userID)
					}
				}
				client.closeSend()
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Bind registers the client as the live connection for its authenticated
// user. Last writer wins: a newer connection for the same user replaces the
// binding and the stale connection's later sends simply resolve to nothing.
func (h *Hub) Bind(client *Client) {
	userID := client.Session.GetUserID()
	if userID == "" {
		return
	}

	h.mu.Lock()
	h.users[userID] = client
	h.mu.Unlock()

	l := log.L()
	l.Info().
		Str(log.FieldConnectionID, client.ID).
		Str(log.FieldUserID, userID).
		Msg("connection bound to user")
}

// Resolve returns the currently bound connection for userID, or nil.
func (h *Hub) Resolve(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.users[userID]
}

// SendToUser delivers an event to the user's bound connection, if any.
// Returns false when the user has no live connection; that is the accepted
// steady state for an offline target, not an error.
func (h *Hub) SendToUser(userID string, message interface{}) bool {
	client := h.Resolve(userID)
	if client == nil {
		return false
	}
	return client.SendMessage(message) == nil
}
