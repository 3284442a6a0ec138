package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"slidesync/metrics"
)

// Connection represents one client attached to a deck room
type Connection struct {
	ID       string
	ClientID string
	DeckID   string
	Conn     *websocket.Conn
	Send     chan []byte

	sendMu sync.Mutex
	closed bool
}

// trySend enqueues data for the writer goroutine. It reports false when
// the buffer is full or the connection has already been dropped. Sends
// and the close of Send share sendMu so a send can never hit a closed
// channel.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel at most once
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub manages deck rooms and message fan-out for real-time collaboration
type Hub struct {
	connections map[string]*Connection
	rooms       map[string]map[string]*Connection // deckID -> clientID -> connection
	register    chan *Connection
	unregister  chan *Connection
	mu          sync.RWMutex
	done        chan struct{}
	closeOnce   sync.Once
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}
}

// Close shuts down the hub's event loop
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// RegisterConnection schedules a connection to be added to its deck room
func (h *Hub) RegisterConnection(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// UnregisterConnection schedules a connection to be removed from its room
func (h *Hub) UnregisterConnection(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Run starts the Hub's event loop. It exits when Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.rooms[conn.DeckID] == nil {
				h.rooms[conn.DeckID] = make(map[string]*Connection)
			}
			h.rooms[conn.DeckID][conn.ClientID] = conn
			count := len(h.connections)
			h.mu.Unlock()

			metrics.UpdateWebSocketConnections(count)

			h.BroadcastToDeck(conn.DeckID, Message{
				Type:   TypePresence,
				DeckID: conn.DeckID,
				Content: mustRaw(PresenceContent{
					ClientID: conn.ClientID,
					Status:   "online",
				}),
			}, conn.ClientID)

		case conn := <-h.unregister:
			h.mu.Lock()
			removed := false
			if _, exists := h.connections[conn.ID]; exists {
				removed = true
				delete(h.connections, conn.ID)
				if room, ok := h.rooms[conn.DeckID]; ok {
					delete(room, conn.ClientID)
					if len(room) == 0 {
						delete(h.rooms, conn.DeckID)
					}
				}
				conn.closeSend()
			}
			count := len(h.connections)
			h.mu.Unlock()

			if removed {
				metrics.UpdateWebSocketConnections(count)
				h.BroadcastToDeck(conn.DeckID, Message{
					Type:   TypePresence,
					DeckID: conn.DeckID,
					Content: mustRaw(PresenceContent{
						ClientID: conn.ClientID,
						Status:   "offline",
					}),
				}, conn.ClientID)
			}
		}
	}
}

// BroadcastToDeck sends a message to every client in a deck room except
// the excluded client. Clients with a full send buffer are dropped.
func (h *Hub) BroadcastToDeck(deckID string, message Message, excludeClientID string) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[deckID]
	for clientID, conn := range room {
		if clientID == excludeClientID {
			continue
		}
		if !conn.trySend(data) {
			conn.closeSend()
			delete(room, clientID)
			delete(h.connections, conn.ID)
		}
	}
}

// ConnectedClients returns the client IDs currently in a deck room
func (h *Hub) ConnectedClients(deckID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[deckID]
	clients := make([]string, 0, len(room))
	for clientID := range room {
		clients = append(clients, clientID)
	}
	return clients
}
