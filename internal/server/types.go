// Package server defines the wire protocol types shared between the client
// pumps and the hub.
package server

import (
	"encoding/json"
	"strings"

	"chat-relay/internal/store"
)

// Event names of the real-time protocol. Clients emit join and sendMessage;
// the server emits receiveMessage to every open connection.
const (
	EventJoin           = "join"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
)

// Envelope is the framing of every event on the WebSocket channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload announces the display name of a connection. No acknowledgment
// is sent back.
type JoinPayload struct {
	Username string `json:"username" validate:"required"`
}

// SendMessagePayload is a candidate chat message. All three fields are
// required at the boundary; the relay drops anything less and tells nobody,
// matching the fire-and-forget send path. Note there is no timestamp here:
// recipients see the candidate as sent, while the stored copy carries the
// server-assigned timestamp.
type SendMessagePayload struct {
	Sender   string `json:"sender" validate:"required"`
	Receiver string `json:"receiver" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

// BroadcastMessage is a fully encoded receiveMessage event queued for
// fan-out to every connection known to the registry.
type BroadcastMessage struct {
	Payload []byte
}

// storeMessage maps a validated candidate to the record handed to the store.
// The timestamp is left zero so the store assigns it at persistence time.
func storeMessage(p SendMessagePayload) store.Message {
	return store.Message{Sender: p.Sender, Receiver: p.Receiver, Text: p.Text}
}

// encodeReceiveMessage frames the unmodified candidate payload as the
// receiveMessage event delivered to every open connection.
func encodeReceiveMessage(p SendMessagePayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: EventReceiveMessage, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
