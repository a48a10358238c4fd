// Package server wires the HTTP handlers into a ServeMux.
package server

import (
	"log/slog"
	"net/http"

	"chat-relay/internal/store"
)

// SetupRoutes configures and returns the application ServeMux: liveness at
// the root, the WebSocket endpoint, and the conversation history lookup.
func SetupRoutes(hub *Hub, st *store.MessageStore, policy *OriginPolicy, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub, policy, log))
	mux.HandleFunc("/messages/{participantA}/{participantB}", HistoryHandler(st, log))
	return mux
}
