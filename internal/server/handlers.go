// Package server exposes the HTTP handlers: WebSocket upgrades, the message
// history lookup, and the liveness check.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"chat-relay/internal/store"
)

// MessageResponse is one element of the history lookup response body.
type MessageResponse struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WebSocketHandler returns the handler for WebSocket upgrade requests. On a
// successful upgrade it creates a Client and hands it to the hub, which
// registers the connection and launches its pump goroutines.
func WebSocketHandler(hub *Hub, policy *OriginPolicy, log *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.Check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", slog.Any("error", err))
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
		}
	}
}

// HistoryHandler returns the handler for GET /messages/{participantA}/{participantB}.
// It responds with every message exchanged between the two participants, in
// either direction, ascending by timestamp. No messages is a 200 with an
// empty array; only a storage fault produces a 500.
func HistoryHandler(st *store.MessageStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantA := r.PathValue("participantA")
		participantB := r.PathValue("participantB")

		messages, err := st.FindConversation(participantA, participantB)
		if err != nil {
			log.Error("history lookup failed",
				slog.String("participant_a", participantA),
				slog.String("participant_b", participantB),
				slog.Any("error", err),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "message history unavailable"})
			return
		}

		body := lo.Map(messages, func(m store.Message, _ int) MessageResponse {
			return MessageResponse{
				Sender:    m.Sender,
				Receiver:  m.Receiver,
				Text:      m.Text,
				Timestamp: m.Timestamp.Format(time.RFC3339Nano),
			}
		})
		writeJSON(w, http.StatusOK, body)
	}
}

// HealthHandler provides the liveness endpoint with a plain text response.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chat relay is running")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
