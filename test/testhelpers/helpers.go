// Package testhelpers provides shared utilities for the relay's unit and
// integration tests: stack construction, WebSocket helpers, and response
// assertions.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"

	"chat-relay/internal/registry"
	"chat-relay/internal/server"
	"chat-relay/internal/store"
)

// Stack is a fully wired relay instance running against a throwaway
// BadgerDB directory and an httptest listener.
type Stack struct {
	DB       *badger.DB
	Store    *store.MessageStore
	Registry *registry.Registry
	Hub      *server.Hub
	Server   *httptest.Server
}

// StartRelay builds and starts a complete relay stack. Everything is torn
// down through t.Cleanup in reverse order.
func StartRelay(t *testing.T) *Stack {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.Default()
	messageStore := store.NewMessageStore(db, logger)
	connections := registry.New()
	hub := server.NewHub(messageStore, connections, logger, 65536)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	policy := server.NewOriginPolicy([]string{"*"}, logger)
	mux := server.SetupRoutes(hub, messageStore, policy, logger)
	testServer := httptest.NewServer(mux)
	t.Cleanup(testServer.Close)

	return &Stack{
		DB:       db,
		Store:    messageStore,
		Registry: connections,
		Hub:      hub,
		Server:   testServer,
	}
}

// WebSocketURL converts the stack's HTTP base URL into its ws:// endpoint.
func (s *Stack) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ws"
}

// Dial opens a WebSocket connection to the stack and registers its cleanup.
func (s *Stack) Dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.WebSocketURL(), nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// WaitForConnections blocks until the registry reports n open connections or
// the timeout elapses. Registration happens asynchronously after the dial
// returns, so tests must not assume the entry exists immediately.
func (s *Stack) WaitForConnections(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Registry.Len() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d registered connections, have %d", n, s.Registry.Len())
}

// SendEvent marshals and writes one protocol envelope on the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	env := server.Envelope{Event: event, Data: data}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("Failed to write event: %v", err)
	}
}

// EventReader yields protocol envelopes one at a time. The write pump may
// batch several queued events into a single frame separated by newlines, so
// a plain ReadJSON would silently drop everything after the first one.
type EventReader struct {
	conn    *websocket.Conn
	pending [][]byte
}

func NewEventReader(conn *websocket.Conn) *EventReader {
	return &EventReader{conn: conn}
}

// Next returns the next envelope, failing the test if nothing arrives before
// the timeout.
func (r *EventReader) Next(t *testing.T, timeout time.Duration) server.Envelope {
	t.Helper()
	if len(r.pending) == 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		_, frame, err := r.conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read event: %v", err)
		}
		r.pending = bytes.Split(frame, []byte{'\n'})
	}

	raw := r.pending[0]
	r.pending = r.pending[1:]

	var env server.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Failed to decode event %q: %v", raw, err)
	}
	return env
}

// ReadEvent reads a single envelope from the connection. Use an EventReader
// instead when more than one event is expected on the same connection.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.Envelope {
	t.Helper()
	return NewEventReader(conn).Next(t, timeout)
}

// ExpectNoEvent asserts that the connection stays silent for the given
// window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no event, but received one")
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	t.Fatalf("Expected read timeout, got: %v", err)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
