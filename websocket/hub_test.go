package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(clientID, deckID string) *Connection {
	return &Connection{
		ID:       clientID + "-conn",
		ClientID: clientID,
		DeckID:   deckID,
		Send:     make(chan []byte, 8),
	}
}

func receiveMessage(t *testing.T, conn *Connection, timeout time.Duration) Message {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		require.True(t, ok, "send channel closed unexpectedly")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for message on %s", conn.ClientID)
		return Message{}
	}
}

func assertNoMessage(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.Send:
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func TestHubRegisterBroadcastsPresence(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	first := newTestConnection("alice", "deck-1")
	second := newTestConnection("bob", "deck-1")

	hub.RegisterConnection(first)
	hub.RegisterConnection(second)

	// Existing member sees the newcomer come online; the newcomer gets nothing
	msg := receiveMessage(t, first, time.Second)
	assert.Equal(t, TypePresence, msg.Type)
	assert.Equal(t, "deck-1", msg.DeckID)

	var presence PresenceContent
	require.NoError(t, json.Unmarshal(msg.Content, &presence))
	assert.Equal(t, "bob", presence.ClientID)
	assert.Equal(t, "online", presence.Status)

	assertNoMessage(t, second)
}

func TestHubUnregisterBroadcastsOffline(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	first := newTestConnection("alice", "deck-1")
	second := newTestConnection("bob", "deck-1")

	hub.RegisterConnection(first)
	hub.RegisterConnection(second)
	receiveMessage(t, first, time.Second) // bob online

	hub.UnregisterConnection(second)

	msg := receiveMessage(t, first, time.Second)
	assert.Equal(t, TypePresence, msg.Type)

	var presence PresenceContent
	require.NoError(t, json.Unmarshal(msg.Content, &presence))
	assert.Equal(t, "bob", presence.ClientID)
	assert.Equal(t, "offline", presence.Status)

	// bob's send channel is closed on unregister
	_, ok := <-second.Send
	assert.False(t, ok)
}

func TestBroadcastToDeckExcludesSender(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	sender := newTestConnection("alice", "deck-1")
	peer := newTestConnection("bob", "deck-1")
	other := newTestConnection("carol", "deck-2")

	hub.RegisterConnection(sender)
	hub.RegisterConnection(peer)
	hub.RegisterConnection(other)
	receiveMessage(t, sender, time.Second) // bob online

	hub.BroadcastToDeck("deck-1", Message{
		Type:     TypeDeckState,
		DeckID:   "deck-1",
		ClientID: "alice",
		Content:  mustRaw(map[string]string{"id": "deck-1"}),
	}, "alice")

	msg := receiveMessage(t, peer, time.Second)
	assert.Equal(t, TypeDeckState, msg.Type)

	assertNoMessage(t, sender)
	assertNoMessage(t, other)
}

func TestConnectedClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	hub.RegisterConnection(newTestConnection("alice", "deck-1"))
	hub.RegisterConnection(newTestConnection("bob", "deck-1"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(hub.ConnectedClients("deck-1")) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	clients := hub.ConnectedClients("deck-1")
	assert.ElementsMatch(t, []string{"alice", "bob"}, clients)
	assert.Empty(t, hub.ConnectedClients("deck-2"))
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	slow := &Connection{ID: "slow-conn", ClientID: "slow", DeckID: "deck-1", Send: make(chan []byte)}
	hub.RegisterConnection(slow)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(hub.ConnectedClients("deck-1")) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Unbuffered channel with no reader: the client is dropped from the room
	hub.BroadcastToDeck("deck-1", Message{Type: TypeDeckState, DeckID: "deck-1"}, "")

	assert.Empty(t, hub.ConnectedClients("deck-1"))
}

func TestSendAfterBroadcastDropIsNoop(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	slow := &Connection{ID: "slow-conn", ClientID: "slow", DeckID: "deck-1", Send: make(chan []byte)}
	hub.RegisterConnection(slow)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(hub.ConnectedClients("deck-1")) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastToDeck("deck-1", Message{Type: TypeDeckState, DeckID: "deck-1"}, "")
	require.Empty(t, hub.ConnectedClients("deck-1"))

	// The dropped connection's reader loop may still reply to its peer
	// afterwards; those sends must be silently discarded.
	assert.False(t, slow.trySend([]byte("late")))
	assert.NotPanics(t, func() {
		sendError(slow, "deck-1", "failed to save deck")
		sendToSelf(slow, Message{Type: TypeDeckState, DeckID: "deck-1"})
	})

	// Unregister from the reader's exit path must not close Send twice
	assert.NotPanics(t, func() { hub.UnregisterConnection(slow) })
}
