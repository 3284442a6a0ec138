package websocket

import "encoding/json"

// Message types exchanged over a deck room connection
const (
	TypeJoin          = "join"
	TypeDeckState     = "deck_state"
	TypeContentUpdate = "content_update"
	TypeCursor        = "cursor"
	TypePresence      = "presence"
	TypeError         = "error"
)

// Message is the envelope for all deck collaboration traffic
type Message struct {
	Type     string          `json:"type"`
	DeckID   string          `json:"deck_id,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// PresenceContent reports a client joining or leaving a deck room
type PresenceContent struct {
	ClientID string `json:"client_id"`
	Status   string `json:"status"` // "online", "offline"
}

// ContentUpdateContent carries the full deck document from an editing client
type ContentUpdateContent struct {
	Title  string          `json:"title"`
	Slides json.RawMessage `json:"slides"`
}

// CursorContent relays which slide and object a client is focused on
type CursorContent struct {
	ClientID string `json:"client_id"`
	SlideID  string `json:"slide_id"`
	ObjectID string `json:"object_id,omitempty"`
}

// mustRaw marshals content for an outbound message; marshal failures of
// server-built values indicate a programming error and yield null content.
func mustRaw(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
