package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"slidesync/services"
)

const requestTimeout = 5 * time.Second

// HandleConnection manages the lifecycle of one deck room connection: it
// joins the room, replies with the current deck state, and relays edits
// and cursor updates to the other room members.
func HandleConnection(c *websocket.Conn, hub *Hub, store *services.DeckStore) {
	defer c.Close()

	deckID := c.Query("deck")
	if deckID == "" {
		log.Printf("WebSocket connection rejected: missing deck id")
		return
	}

	clientID := c.Query("client")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	// The deck is created on demand so a freshly shared link works before
	// anyone has saved it over HTTP.
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	deck, err := store.GetOrCreate(ctx, deckID)
	cancel()
	if err != nil {
		log.Printf("WebSocket join failed for deck %s: %v", deckID, err)
		return
	}

	conn := &Connection{
		ID:       uuid.New().String(),
		ClientID: clientID,
		DeckID:   deckID,
		Conn:     c,
		Send:     make(chan []byte, 256),
	}

	hub.RegisterConnection(conn)

	// Writer: drains the send buffer onto the socket
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for message := range conn.Send {
			if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
		}
		_ = c.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	sendToSelf(conn, Message{
		Type:     TypeDeckState,
		DeckID:   deckID,
		ClientID: clientID,
		Content:  mustRaw(deck),
	})

	// Reader: the connection tears down when the peer closes or errors
	for {
		var msg Message
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		switch msg.Type {
		case TypeContentUpdate:
			handleContentUpdate(conn, hub, store, msg)

		case TypeCursor:
			hub.BroadcastToDeck(deckID, Message{
				Type:     TypeCursor,
				DeckID:   deckID,
				ClientID: clientID,
				Content:  msg.Content,
			}, clientID)

		case TypeJoin:
			// Already joined on connect; re-send current state on request
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			deck, err := store.GetOrCreate(ctx, deckID)
			cancel()
			if err != nil {
				sendError(conn, deckID, "failed to load deck")
				continue
			}
			sendToSelf(conn, Message{
				Type:     TypeDeckState,
				DeckID:   deckID,
				ClientID: clientID,
				Content:  mustRaw(deck),
			})
		}
	}

	hub.UnregisterConnection(conn)
	<-writerDone
}

// handleContentUpdate persists an edit and fans the new state out to the
// rest of the room. A failing update is reported only to the sender; the
// connection and the process keep running.
func handleContentUpdate(conn *Connection, hub *Hub, store *services.DeckStore, msg Message) {
	var update ContentUpdateContent
	if err := json.Unmarshal(msg.Content, &update); err != nil {
		sendError(conn, conn.DeckID, "malformed content_update")
		return
	}

	var slides []services.Slide
	if len(update.Slides) > 0 {
		if err := json.Unmarshal(update.Slides, &slides); err != nil {
			sendError(conn, conn.DeckID, "malformed slides payload")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	saved, err := store.Upsert(ctx, conn.DeckID, update.Title, slides, 0)
	cancel()
	if err != nil {
		log.Printf("Deck update failed for %s: %v", conn.DeckID, err)
		sendError(conn, conn.DeckID, "failed to save deck")
		return
	}

	hub.BroadcastToDeck(conn.DeckID, Message{
		Type:     TypeDeckState,
		DeckID:   conn.DeckID,
		ClientID: conn.ClientID,
		Content:  mustRaw(saved),
	}, conn.ClientID)
}

func sendToSelf(conn *Connection, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	conn.trySend(data)
}

func sendError(conn *Connection, deckID, detail string) {
	sendToSelf(conn, Message{
		Type:    TypeError,
		DeckID:  deckID,
		Content: mustRaw(map[string]string{"error": detail}),
	})
}
